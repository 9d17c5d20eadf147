// Package cache keeps the offline snapshot of the habit collection.
//
// The snapshot is a derived, non-authoritative copy: it is rewritten in full
// after every mutation and read back only when the remote source is
// unavailable or at start-up.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/storage"
)

type envelope struct {
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Habits  []models.Habit `json:"habits"`
}

// HabitCache stores the ordered habit collection under one fixed key.
type HabitCache struct {
	store storage.Provider
	key   string
	now   func() time.Time
}

func New(store storage.Provider) *HabitCache {
	return &HabitCache{
		store: store,
		key:   constants.HabitCacheKey,
		now:   time.Now,
	}
}

// Save overwrites the snapshot with habits, preserving order.
func (c *HabitCache) Save(habits []models.Habit) error {
	if habits == nil {
		habits = []models.Habit{}
	}
	data, err := json.Marshal(envelope{
		Version: constants.HabitCacheVersion,
		SavedAt: c.now().UTC(),
		Habits:  habits,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize habit cache: %w", err)
	}
	return c.store.Put(c.key, data)
}

// Load returns the cached habits, or an empty slice when nothing is cached.
func (c *HabitCache) Load() ([]models.Habit, error) {
	data, ok, err := c.store.Get(c.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []models.Habit{}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse habit cache: %w", err)
	}
	if env.Version > constants.HabitCacheVersion {
		return nil, fmt.Errorf("habit cache version %d is newer than supported version %d", env.Version, constants.HabitCacheVersion)
	}
	if env.Habits == nil {
		env.Habits = []models.Habit{}
	}
	return env.Habits, nil
}

// SavedAt reports when the snapshot was written; ok is false if none exists.
func (c *HabitCache) SavedAt() (time.Time, bool, error) {
	data, ok, err := c.store.Get(c.key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse habit cache: %w", err)
	}
	return env.SavedAt, true, nil
}

// Clear removes the snapshot entirely.
func (c *HabitCache) Clear() error {
	return c.store.Remove(c.key)
}
