package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

var (
	// ErrNotLoggedIn is returned when no API token is stored in the keyring
	ErrNotLoggedIn = errors.New("not logged in: no API token in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// tokenStore keeps the API token under one service/user pair of the OS keyring.
type tokenStore struct {
	service string
	user    string
}

func (s tokenStore) get() (string, error) {
	token, err := keyring.Get(s.service, s.user)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", ErrNotLoggedIn
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return token, nil
}

func (s tokenStore) set(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if err := keyring.Set(s.service, s.user, token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// remove deletes the token. A missing token is not an error.
func (s tokenStore) remove() error {
	err := keyring.Delete(s.service, s.user)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// KeyringAvailable checks if the OS keyring can be used on this system.
// This is a best-effort check.
func KeyringAvailable(service string) bool {
	_, err := keyring.Get(service, "test-availability")
	return err == nil || err == keyring.ErrNotFound
}
