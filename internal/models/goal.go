package models

import "time"

// Goal is a target count of completions across one or more habits.
type Goal struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	HabitIDs    []string   `json:"habit_ids"`
	Target      int        `json:"target"`
	Progress    int        `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (g Goal) IsComplete() bool {
	return g.CompletedAt != nil || (g.Target > 0 && g.Progress >= g.Target)
}

func (g Goal) LinkedTo(habitID string) bool {
	for _, id := range g.HabitIDs {
		if id == habitID {
			return true
		}
	}
	return false
}
