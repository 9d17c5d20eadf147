package habitsync

import "github.com/julianstephens/habitpilot/internal/models"

// Habits returns a copy of the collection in display order.
func (s *Store) Habits() []models.Habit {
	return s.filter(func(models.Habit) bool { return true })
}

func (s *Store) Get(id string) (models.Habit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Habit{}, false
	}
	return clone(s.habits[i]), true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.habits)
}

// CanAddMoreHabits reports whether Create would pass the quota check.
func (s *Store) CanAddMoreHabits() bool {
	if s.isUnlimited() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.habits)+s.pending < s.limit
}

func (s *Store) EnabledHabits() []models.Habit {
	return s.filter(func(h models.Habit) bool { return h.IsEnabled })
}

func (s *Store) CompletedTodayCount() int {
	now := s.now()
	return len(s.filter(func(h models.Habit) bool { return h.CompletedToday(now) }))
}

func (s *Store) HabitsOfType(t models.HabitType) []models.Habit {
	return s.filter(func(h models.Habit) bool { return h.Type == t })
}

func (s *Store) filter(keep func(models.Habit) bool) []models.Habit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Habit, 0, len(s.habits))
	for _, h := range s.habits {
		if keep(h) {
			out = append(out, clone(h))
		}
	}
	return out
}

func clone(h models.Habit) models.Habit {
	if h.Frequency.Weekdays != nil {
		h.Frequency.Weekdays = append(h.Frequency.Weekdays[:0:0], h.Frequency.Weekdays...)
	}
	return h
}
