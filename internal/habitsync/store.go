// Package habitsync owns the in-memory habit collection and keeps it in sync
// with the remote API and the offline cache.
//
// Every mutation is applied locally first, then sent to the server, then
// reconciled with the reply. Remote failures never reach the caller: the
// local result stands for the session. The collection is guarded by a
// single mutex, and each operation also holds a per-habit lock for its whole
// duration so operations on one habit never interleave.
package habitsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitpilot/internal/constants"
	apperrors "github.com/julianstephens/habitpilot/internal/errors"
	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/reconcile"
)

type Store struct {
	deps      Deps
	limit     int
	tolerance int
	now       func() time.Time
	metrics   *Metrics

	locks *idLocks

	mu      sync.Mutex
	habits  []models.Habit
	pending int // creates that passed the quota check but are not appended yet
}

type Option func(*Store)

// WithFreeHabitLimit overrides the free-tier habit limit.
func WithFreeHabitLimit(n int) Option {
	return func(s *Store) { s.limit = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTolerance overrides the streak drift the client keeps over the server.
func WithTolerance(n int) Option {
	return func(s *Store) { s.tolerance = n }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func New(deps Deps, opts ...Option) (*Store, error) {
	if deps.Remote == nil {
		return nil, errors.New("habitsync: remote is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("habitsync: cache is required")
	}

	s := &Store{
		deps:      deps,
		limit:     constants.FreeHabitLimit,
		tolerance: reconcile.DefaultTolerance,
		now:       time.Now,
		locks:     newIDLocks(),
		habits:    []models.Habit{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) isUnlimited() bool {
	return s.deps.Entitlements != nil && s.deps.Entitlements.IsUnlimited()
}

// Create adds a habit. It returns false, without touching anything, when
// the free-tier quota is reached. Otherwise the habit is always added: the
// server's record when the remote call succeeds, the draft as-is when it
// fails.
func (s *Store) Create(ctx context.Context, draft models.HabitDraft) (models.Habit, bool) {
	s.mu.Lock()
	if !s.isUnlimited() && len(s.habits)+s.pending >= s.limit {
		s.mu.Unlock()
		s.metrics.quotaRefused()
		logger.Debug("Habit creation refused by quota", "limit", s.limit)
		return models.Habit{}, false
	}
	s.pending++
	s.mu.Unlock()

	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}

	created, err := s.deps.Remote.CreateHabit(ctx, draft)
	s.observe("create", err)
	remoteOK := err == nil
	if !remoteOK {
		logger.Warn("Remote create failed, keeping local habit", "habit_id", draft.ID, "error", err)
		created = draft.ToHabit()
	} else if created.ID == "" {
		created.ID = draft.ID
	}
	created = created.Clamp()

	unlock := s.locks.lock(created.ID)
	defer unlock()

	s.mu.Lock()
	s.pending--
	if i := s.indexLocked(created.ID); i >= 0 {
		s.habits[i] = created
	} else {
		s.habits = append(s.habits, created)
	}
	s.saveLocked()
	s.mu.Unlock()

	if remoteOK {
		s.schedule(created)
	}
	s.record(ctx, models.Activity{
		Type:        models.ActivityHabitCreated,
		Description: fmt.Sprintf("Started a new habit: %s", created.Name),
		Metadata:    map[string]string{"habit_id": created.ID, "habit_name": created.Name},
	})
	return clone(created), true
}

// Update pushes an edited habit. Unknown ids are ignored.
func (s *Store) Update(ctx context.Context, habit models.Habit) {
	unlock := s.locks.lock(habit.ID)
	defer unlock()

	if _, ok := s.Get(habit.ID); !ok {
		return
	}

	updated, err := s.deps.Remote.UpdateHabit(ctx, habit)
	s.observe("update", err)
	if err != nil {
		logger.Warn("Remote update failed, keeping local edit", "habit_id", habit.ID, "error", err)
		s.replace(clone(habit))
		return
	}

	updated.ID = habit.ID
	if !s.replace(updated.Clamp()) {
		return
	}
	s.reschedule(updated)
}

// Delete removes a habit locally, cancels its reminder and then tells the
// server. The local removal is final even if the server call fails.
func (s *Store) Delete(ctx context.Context, habit models.Habit) {
	unlock := s.locks.lock(habit.ID)
	defer unlock()

	s.mu.Lock()
	if i := s.indexLocked(habit.ID); i >= 0 {
		s.habits = append(s.habits[:i], s.habits[i+1:]...)
	}
	s.saveLocked()
	s.mu.Unlock()

	if s.deps.Reminders != nil {
		if err := s.deps.Reminders.Cancel(habit.ID); err != nil {
			logger.Warn("Failed to cancel reminder", "habit_id", habit.ID, "error", err)
		}
	}

	err := s.deps.Remote.DeleteHabit(ctx, habit.ID)
	s.observe("delete", err)
	if err != nil {
		logger.Warn("Remote delete failed, local delete stands", "habit_id", habit.ID, "error", err)
	}
}

// ToggleCompletion completes the habit for today, or undoes today's
// completion if there is one. The stored record is used, not the argument,
// so a stale copy cannot resurrect old counters.
func (s *Store) ToggleCompletion(ctx context.Context, habit models.Habit) {
	unlock := s.locks.lock(habit.ID)
	defer unlock()

	current, ok := s.Get(habit.ID)
	if !ok {
		return
	}

	if current.CompletedToday(s.now()) {
		s.undo(ctx, current)
		return
	}
	s.complete(ctx, current)
}

func (s *Store) undo(ctx context.Context, h models.Habit) {
	if h.Streak > 0 {
		h.Streak--
	}
	h.LastCompletionDate = h.PreviousCompletionDate
	h.PreviousCompletionDate = ""
	if !s.replace(h) {
		return
	}

	res, err := s.deps.Remote.UndoHabit(ctx, h.ID)
	s.observe("undo", err)
	if err != nil {
		logger.Warn("Remote undo failed, local undo stands", "habit_id", h.ID, "error", err)
		return
	}
	s.reconcile(h.ID, res)
}

func (s *Store) complete(ctx context.Context, h models.Habit) {
	h.PreviousCompletionDate = h.LastCompletionDate
	h.LastCompletionDate = s.now().Format(constants.DateFormat)
	h.Streak++
	if !s.replace(h) {
		return
	}

	if s.deps.Goals != nil {
		if err := s.deps.Goals.IncrementLinked(h.ID); err != nil {
			logger.Warn("Failed to advance linked goals", "habit_id", h.ID, "error", err)
		}
	}
	s.record(ctx, models.Activity{
		Type:        models.ActivityHabitStreak,
		Description: fmt.Sprintf("%s streak: %d days", h.Name, h.Streak),
		Metadata:    map[string]string{"habit_id": h.ID, "streak": fmt.Sprint(h.Streak)},
	})

	res, err := s.deps.Remote.CompleteHabit(ctx, h.ID)
	s.observe("complete", err)
	if err != nil {
		logger.Warn("Remote complete failed, local completion stands", "habit_id", h.ID, "error", err)
		return
	}
	s.reconcile(h.ID, res)

	s.record(ctx, models.Activity{
		Type:        models.ActivityHabitCompleted,
		Description: fmt.Sprintf("Completed %s (streak: %d)", h.Name, res.Streak),
		Metadata: map[string]string{
			"habit_id":   h.ID,
			"habit_name": h.Name,
			"streak":     fmt.Sprint(res.Streak),
		},
	})
}

// reconcile merges a complete or undo reply into the stored record and
// persists only if something changed.
func (s *Store) reconcile(id string, res models.CompletionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return
	}
	merged, out := reconcile.Completion(s.habits[i], res, s.tolerance)
	s.metrics.reconciled(out.Winner)
	logger.Debug("Reconciled completion",
		"habit_id", id,
		"winner", out.Winner,
		"local_streak", out.LocalStreak,
		"server_streak", res.Streak,
		"progress", res.Progress,
	)
	if !out.Changed {
		return
	}
	s.habits[i] = merged
	s.saveLocked()
}

// ToggleEnabled flips the enabled flag locally and schedules or cancels the
// reminder to match. There is no remote call.
func (s *Store) ToggleEnabled(ctx context.Context, habit models.Habit) {
	unlock := s.locks.lock(habit.ID)
	defer unlock()

	h, ok := s.Get(habit.ID)
	if !ok {
		return
	}
	h.IsEnabled = !h.IsEnabled
	if !s.replace(h) {
		return
	}

	if h.IsEnabled {
		s.schedule(h)
		return
	}
	if s.deps.Reminders != nil {
		if err := s.deps.Reminders.Cancel(h.ID); err != nil {
			logger.Warn("Failed to cancel reminder", "habit_id", h.ID, "error", err)
		}
	}
}

// IncrementProgress adds one unit of today's progress to an incremental
// habit, stopping at its daily target. Simple habits are left alone.
func (s *Store) IncrementProgress(ctx context.Context, habit models.Habit) {
	unlock := s.locks.lock(habit.ID)
	defer unlock()

	h, ok := s.Get(habit.ID)
	if !ok || !h.IsIncremental() {
		return
	}
	if h.DailyTarget > 0 && h.TodayProgress >= h.DailyTarget {
		return
	}
	h.TodayProgress++
	s.replace(h)
}

// Refresh replaces the collection with the server's. On failure the
// collection and cache are emptied, and an unauthorized failure also signs
// the user out.
func (s *Store) Refresh(ctx context.Context) error {
	habits, err := s.deps.Remote.ListHabits(ctx)
	s.observe("list", err)
	if err != nil {
		logger.Warn("Refresh failed, clearing local habits", "error", err)
		s.clear()
		if apperrors.IsUnauthorized(err) && s.deps.SignOut != nil {
			s.deps.SignOut(ctx)
		}
		return fmt.Errorf("refresh habits: %w", err)
	}

	seen := make(map[string]bool, len(habits))
	fresh := make([]models.Habit, 0, len(habits))
	for _, h := range habits {
		if h.ID == "" || seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		fresh = append(fresh, h.Clamp())
	}

	s.mu.Lock()
	s.habits = fresh
	s.saveLocked()
	s.mu.Unlock()

	var enabled []string
	for _, h := range fresh {
		if h.IsEnabled {
			enabled = append(enabled, h.ID)
		}
	}
	s.retainReminders(enabled)
	for _, h := range fresh {
		s.schedule(h)
	}
	logger.Debug("Refreshed habits", "count", len(fresh))
	return nil
}

// LoadCache replaces the collection with the offline snapshot.
func (s *Store) LoadCache() error {
	habits, err := s.deps.Cache.Load()
	if err != nil {
		return fmt.Errorf("load habit cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.habits = habits
	s.metrics.setHabits(len(s.habits))
	return nil
}

// clear empties the collection and the cache and cancels every reminder.
func (s *Store) clear() {
	s.mu.Lock()
	s.habits = []models.Habit{}
	s.metrics.setHabits(0)
	if err := s.deps.Cache.Clear(); err != nil {
		logger.Warn("Failed to clear habit cache", "error", err)
	}
	s.mu.Unlock()

	s.retainReminders(nil)
}

// replace swaps in h if its id is still present and persists. It reports
// whether the record was found.
func (s *Store) replace(h models.Habit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(h.ID)
	if i < 0 {
		return false
	}
	s.habits[i] = h
	s.saveLocked()
	return true
}

// saveLocked writes the full collection to the cache. A failed write keeps
// the in-memory state.
func (s *Store) saveLocked() {
	s.metrics.setHabits(len(s.habits))
	if err := s.deps.Cache.Save(s.habits); err != nil {
		s.metrics.cacheWrite("error")
		logger.Warn("Skipped habit cache write", "error", err)
		return
	}
	s.metrics.cacheWrite("ok")
}

func (s *Store) indexLocked(id string) int {
	for i := range s.habits {
		if s.habits[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) schedule(h models.Habit) {
	if s.deps.Reminders == nil || !h.IsEnabled {
		return
	}
	var err error
	if s.isUnlimited() {
		err = s.deps.Reminders.ScheduleFlexible(h)
	} else {
		err = s.deps.Reminders.Schedule(h)
	}
	if err != nil {
		logger.Warn("Failed to schedule reminder", "habit_id", h.ID, "error", err)
	}
}

func (s *Store) retainReminders(ids []string) {
	if s.deps.Reminders == nil {
		return
	}
	if err := s.deps.Reminders.Retain(ids); err != nil {
		logger.Warn("Failed to prune reminders", "error", err)
	}
}

func (s *Store) reschedule(h models.Habit) {
	if s.deps.Reminders == nil {
		return
	}
	var err error
	if s.isUnlimited() {
		err = s.deps.Reminders.ScheduleFlexible(h)
	} else {
		err = s.deps.Reminders.Update(h)
	}
	if err != nil {
		logger.Warn("Failed to reschedule reminder", "habit_id", h.ID, "error", err)
	}
}

func (s *Store) record(ctx context.Context, a models.Activity) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if s.deps.Activity != nil {
		s.deps.Activity.Record(ctx, a)
		return
	}
	err := s.deps.Remote.CreateActivity(ctx, a)
	s.observe("activity", err)
	if err != nil {
		logger.Warn("Failed to send activity", "type", a.Type, "error", err)
	}
}

func (s *Store) observe(op string, err error) {
	if err == nil {
		s.metrics.remoteCall(op, "ok")
		return
	}
	s.metrics.remoteCall(op, string(apperrors.KindOf(err)))
}
