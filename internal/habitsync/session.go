package habitsync

import (
	"context"

	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/session"
)

// HandleSession applies one session event. Login and logout both empty the
// collection and the cache; loading the new user's habits is left to a
// later refresh.
func (s *Store) HandleSession(ctx context.Context, ev session.Event) {
	switch ev {
	case session.LoggedIn, session.LoggedOut:
		logger.Debug("Clearing habits on session change", "event", ev)
		s.clear()
	case session.RefreshRequested:
		if err := s.Refresh(ctx); err != nil {
			logger.Warn("Requested refresh failed", "error", err)
		}
	}
}

// Run applies events until ctx is done or events is closed.
func (s *Store) Run(ctx context.Context, events <-chan session.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.HandleSession(ctx, ev)
		}
	}
}
