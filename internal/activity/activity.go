// Package activity records habit events in a bounded local feed and
// forwards them to the remote activity endpoint.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/storage"
)

// Remote receives activities. *api.Client satisfies it.
type Remote interface {
	CreateActivity(ctx context.Context, activity models.Activity) error
}

type Recorder struct {
	mu     sync.Mutex
	remote Remote
	store  storage.Provider
	feed   []models.Activity
	size   int
	now    func() time.Time
}

type Option func(*Recorder)

// WithFeedSize caps the local feed at n entries.
func WithFeedSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.size = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder loads the persisted feed from store. Either remote or store
// may be nil.
func NewRecorder(remote Remote, store storage.Provider, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		remote: remote,
		store:  store,
		size:   constants.ActivityFeedSize,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if store != nil {
		data, ok, err := store.Get(constants.ActivityFeedKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load activity feed: %w", err)
		}
		if ok {
			if err := json.Unmarshal(data, &r.feed); err != nil {
				return nil, fmt.Errorf("failed to decode activity feed: %w", err)
			}
		}
		r.trimLocked()
	}
	return r, nil
}

// Record appends a to the feed and forwards it. Neither a persistence nor a
// forwarding failure is returned; both are logged.
func (r *Recorder) Record(ctx context.Context, a models.Activity) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}

	r.mu.Lock()
	r.feed = append(r.feed, a)
	r.trimLocked()
	if err := r.persistLocked(); err != nil {
		logger.Warn("Failed to persist activity feed", "error", err)
	}
	r.mu.Unlock()

	if r.remote == nil {
		return
	}
	if err := r.remote.CreateActivity(ctx, a); err != nil {
		logger.Warn("Failed to forward activity", "type", a.Type, "error", err)
	}
}

// Recent returns up to n entries, newest first. n <= 0 returns the whole feed.
func (r *Recorder) Recent(n int) []models.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.feed) {
		n = len(r.feed)
	}
	out := make([]models.Activity, 0, n)
	for i := len(r.feed) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.feed[i])
	}
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feed)
}

func (r *Recorder) trimLocked() {
	if len(r.feed) > r.size {
		r.feed = append([]models.Activity(nil), r.feed[len(r.feed)-r.size:]...)
	}
}

func (r *Recorder) persistLocked() error {
	if r.store == nil {
		return nil
	}
	data, err := json.Marshal(r.feed)
	if err != nil {
		return err
	}
	return r.store.Put(constants.ActivityFeedKey, data)
}
