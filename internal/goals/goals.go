// Package goals tracks multi-habit goals that advance when linked habits
// are completed.
package goals

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/storage"
)

var ErrGoalNotFound = errors.New("goal not found")

// Tracker persists goals as a single JSON list in a storage provider.
type Tracker struct {
	mu    sync.Mutex
	store storage.Provider
	goals []models.Goal
	now   func() time.Time
}

func NewTracker(store storage.Provider) (*Tracker, error) {
	t := &Tracker{store: store, now: time.Now}

	data, ok, err := store.Get(constants.GoalsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load goals: %w", err)
	}
	if ok {
		if err := json.Unmarshal(data, &t.goals); err != nil {
			return nil, fmt.Errorf("failed to decode goals: %w", err)
		}
	}
	return t, nil
}

func (t *Tracker) Add(title string, target int, habitIDs ...string) (models.Goal, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Goal{}, errors.New("goal title cannot be empty")
	}
	if target <= 0 {
		return models.Goal{}, fmt.Errorf("goal target must be positive, got %d", target)
	}

	g := models.Goal{
		ID:       uuid.New().String(),
		Title:    title,
		HabitIDs: dedupe(habitIDs),
		Target:   target,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.goals = append(t.goals, g)
	if err := t.persistLocked(); err != nil {
		t.goals = t.goals[:len(t.goals)-1]
		return models.Goal{}, err
	}
	return clone(g), nil
}

// Link attaches habitID to the goal. Linking twice is a no-op.
func (t *Tracker) Link(goalID, habitID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(goalID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	if t.goals[i].LinkedTo(habitID) {
		return nil
	}
	t.goals[i].HabitIDs = append(t.goals[i].HabitIDs, habitID)
	return t.persistLocked()
}

func (t *Tracker) Remove(goalID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(goalID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	t.goals = append(t.goals[:i], t.goals[i+1:]...)
	return t.persistLocked()
}

func (t *Tracker) List() []models.Goal {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Goal, len(t.goals))
	for i, g := range t.goals {
		out[i] = clone(g)
	}
	return out
}

// IncrementLinked advances every incomplete goal linked to habitID and
// stamps CompletedAt on those that reach their target.
func (t *Tracker) IncrementLinked(habitID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for i := range t.goals {
		g := &t.goals[i]
		if !g.LinkedTo(habitID) || g.IsComplete() {
			continue
		}
		g.Progress++
		if g.Progress >= g.Target {
			at := t.now().UTC()
			g.CompletedAt = &at
			logger.Info("Goal completed", "goal", g.Title)
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return t.persistLocked()
}

func (t *Tracker) indexLocked(goalID string) int {
	for i, g := range t.goals {
		if g.ID == goalID {
			return i
		}
	}
	return -1
}

func (t *Tracker) persistLocked() error {
	goals := t.goals
	if goals == nil {
		goals = []models.Goal{}
	}
	data, err := json.Marshal(goals)
	if err != nil {
		return fmt.Errorf("failed to encode goals: %w", err)
	}
	if err := t.store.Put(constants.GoalsKey, data); err != nil {
		return fmt.Errorf("failed to save goals: %w", err)
	}
	return nil
}

func clone(g models.Goal) models.Goal {
	g.HabitIDs = append([]string(nil), g.HabitIDs...)
	if g.CompletedAt != nil {
		at := *g.CompletedAt
		g.CompletedAt = &at
	}
	return g
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
