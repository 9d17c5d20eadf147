// Package notifier schedules habit reminders and delivers them to the desktop.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/storage"
)

type Mode string

const (
	// ModeFixed fires every day at the reminder time.
	ModeFixed Mode = "fixed"
	// ModeFlexible fires only on the habit's frequency weekdays.
	ModeFlexible Mode = "flexible"
)

type Reminder struct {
	HabitID   string         `json:"habit_id"`
	HabitName string         `json:"habit_name"`
	Mode      Mode           `json:"mode"`
	Time      string         `json:"time"`               // HH:MM format
	Weekdays  []time.Weekday `json:"weekdays,omitempty"` // empty means every day
	Streak    int            `json:"streak"`
	LastFired string         `json:"last_fired,omitempty"` // YYYY-MM-DD format
}

// Deliverer shows a due reminder to the user.
type Deliverer interface {
	Deliver(ctx context.Context, r Reminder) error
}

// Scheduler keeps one reminder per habit. When backed by a storage
// provider, every change is persisted so short-lived CLI runs share it.
type Scheduler struct {
	mu        sync.Mutex
	store     storage.Provider
	now       func() time.Time
	reminders map[string]Reminder
}

type SchedulerOption func(*Scheduler)

// WithClock sets the clock Run fires against. Its location decides the
// wall-clock fire times and the calendar day recorded as LastFired.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler loads persisted reminders from store. A nil store keeps
// reminders in memory only.
func NewScheduler(store storage.Provider, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{store: store, now: time.Now, reminders: make(map[string]Reminder)}
	for _, opt := range opts {
		opt(s)
	}
	if store == nil {
		return s, nil
	}

	data, ok, err := store.Get(constants.RemindersKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load reminders: %w", err)
	}
	if !ok {
		return s, nil
	}
	var list []Reminder
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode reminders: %w", err)
	}
	for _, r := range list {
		s.reminders[r.HabitID] = r
	}
	return s, nil
}

// Schedule sets a fixed daily reminder at the habit's notification time,
// or 09:00 when it has none.
func (s *Scheduler) Schedule(h models.Habit) error {
	return s.set(h, ModeFixed)
}

// ScheduleFlexible sets a reminder at the habit's own time that fires only
// on the days its frequency names.
func (s *Scheduler) ScheduleFlexible(h models.Habit) error {
	return s.set(h, ModeFlexible)
}

// Update reschedules a habit keeping its current mode. Habits without a
// reminder get a fixed one.
func (s *Scheduler) Update(h models.Habit) error {
	s.mu.Lock()
	mode := ModeFixed
	if existing, ok := s.reminders[h.ID]; ok {
		mode = existing.Mode
	}
	s.mu.Unlock()
	return s.set(h, mode)
}

func (s *Scheduler) Cancel(habitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[habitID]; !ok {
		return nil
	}
	delete(s.reminders, habitID)
	logger.Debug("Reminder cancelled", "habit_id", habitID)
	return s.persistLocked()
}

// Retain cancels every reminder whose habit id is not in habitIDs.
func (s *Scheduler) Retain(habitIDs []string) error {
	keep := make(map[string]bool, len(habitIDs))
	for _, id := range habitIDs {
		keep[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id := range s.reminders {
		if !keep[id] {
			delete(s.reminders, id)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	logger.Debug("Reminders pruned", "removed", removed)
	return s.persistLocked()
}

func (s *Scheduler) set(h models.Habit, mode Mode) error {
	if !h.IsEnabled {
		return s.Cancel(h.ID)
	}

	at := h.NotificationTime
	if at == "" {
		at = constants.DefaultReminderTime
	}
	if _, err := time.Parse(constants.TimeFormat, at); err != nil {
		return fmt.Errorf("invalid reminder time %q for habit %q", at, h.Name)
	}

	r := Reminder{
		HabitID:   h.ID,
		HabitName: h.Name,
		Mode:      mode,
		Time:      at,
		Streak:    h.Streak,
	}
	if mode == ModeFlexible {
		r.Weekdays = weekdaysFor(h.Frequency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.reminders[h.ID]; ok {
		r.LastFired = existing.LastFired
	}
	s.reminders[h.ID] = r
	logger.Debug("Reminder scheduled", "habit_id", h.ID, "mode", mode, "time", at)
	return s.persistLocked()
}

func weekdaysFor(f models.Frequency) []time.Weekday {
	switch f.Kind {
	case models.FrequencyWeekdays:
		return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	case models.FrequencyCustom:
		if len(f.Weekdays) == 0 {
			return nil
		}
		days := append([]time.Weekday(nil), f.Weekdays...)
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		return days
	default:
		return nil
	}
}

func (s *Scheduler) Get(habitID string) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[habitID]
	return r, ok
}

// Reminders returns all reminders ordered by time of day, then habit name.
func (s *Scheduler) Reminders() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Due returns reminders whose fire time today has passed within the grace
// period and that have not fired yet today.
func (s *Scheduler) Due(now time.Time) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := now.Format(constants.DateFormat)
	var due []Reminder
	for _, r := range s.sortedLocked() {
		if r.LastFired == today || !firesOn(r, now.Weekday()) {
			continue
		}
		t, err := time.Parse(constants.TimeFormat, r.Time)
		if err != nil {
			continue
		}
		fire := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if now.Before(fire) || now.Sub(fire) > constants.ReminderGracePeriod {
			continue
		}
		due = append(due, r)
	}
	return due
}

func firesOn(r Reminder, day time.Weekday) bool {
	if len(r.Weekdays) == 0 {
		return true
	}
	for _, d := range r.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// MarkFired records that a reminder was delivered on at's calendar day.
func (s *Scheduler) MarkFired(habitID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[habitID]
	if !ok {
		return nil
	}
	r.LastFired = at.Format(constants.DateFormat)
	s.reminders[habitID] = r
	return s.persistLocked()
}

// Fire delivers every reminder due at now and marks the delivered ones.
// Delivery failures are logged and retried on the next call.
func (s *Scheduler) Fire(ctx context.Context, d Deliverer, now time.Time) int {
	delivered := 0
	for _, r := range s.Due(now) {
		if err := d.Deliver(ctx, r); err != nil {
			logger.Warn("Failed to deliver reminder", "habit_id", r.HabitID, "error", err)
			continue
		}
		if err := s.MarkFired(r.HabitID, now); err != nil {
			logger.Warn("Failed to record reminder delivery", "habit_id", r.HabitID, "error", err)
		}
		delivered++
	}
	return delivered
}

// Run fires due reminders on every tick until ctx is done. Ticks only pace
// the loop; the time checked is always read from the scheduler's clock.
func (s *Scheduler) Run(ctx context.Context, d Deliverer, interval time.Duration) error {
	if interval <= 0 {
		interval = constants.ReminderTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Fire(ctx, d, s.now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Fire(ctx, d, s.now())
		}
	}
}

func (s *Scheduler) sortedLocked() []Reminder {
	list := make([]Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Time != list[j].Time {
			return list[i].Time < list[j].Time
		}
		if list[i].HabitName != list[j].HabitName {
			return list[i].HabitName < list[j].HabitName
		}
		return list[i].HabitID < list[j].HabitID
	})
	return list
}

func (s *Scheduler) persistLocked() error {
	if s.store == nil {
		return nil
	}
	data, err := json.Marshal(s.sortedLocked())
	if err != nil {
		return fmt.Errorf("failed to encode reminders: %w", err)
	}
	if err := s.store.Put(constants.RemindersKey, data); err != nil {
		return fmt.Errorf("failed to save reminders: %w", err)
	}
	return nil
}
