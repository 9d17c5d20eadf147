package session

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/logger"
)

// Manager stores the API token and publishes the matching session events.
type Manager struct {
	broker *Broker
	tokens tokenStore
}

type ManagerOption func(*Manager)

// WithKeyringUser stores the token under a different keyring account,
// e.g. one per profile.
func WithKeyringUser(user string) ManagerOption {
	return func(m *Manager) { m.tokens.user = user }
}

func NewManager(broker *Broker, opts ...ManagerOption) *Manager {
	if broker == nil {
		broker = NewBroker()
	}
	m := &Manager{
		broker: broker,
		tokens: tokenStore{service: constants.AppName, user: constants.DefaultKeyringUser},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Broker() *Broker {
	return m.broker
}

// Token returns the stored API token or ErrNotLoggedIn.
func (m *Manager) Token() (string, error) {
	return m.tokens.get()
}

func (m *Manager) LoggedIn() bool {
	_, err := m.tokens.get()
	return err == nil
}

// Login stores token and publishes LoggedIn.
func (m *Manager) Login(ctx context.Context, token string) error {
	if err := m.tokens.set(token); err != nil {
		return err
	}
	logger.Info("Logged in")
	m.broker.Publish(ctx, LoggedIn)
	return nil
}

// Logout removes the token and publishes LoggedOut. It is safe to call
// when no token is stored.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.tokens.remove(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	logger.Info("Logged out")
	m.broker.Publish(ctx, LoggedOut)
	return nil
}

// SignOut is the hook invoked when the server rejects the stored token.
func (m *Manager) SignOut(ctx context.Context) {
	if err := m.Logout(ctx); err != nil {
		logger.Warn("Failed to sign out", "error", err)
	}
}

func (m *Manager) RequestRefresh(ctx context.Context) {
	m.broker.Publish(ctx, RefreshRequested)
}
