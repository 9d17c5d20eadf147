package models

import "time"

type ActivityType string

const (
	ActivityHabitCreated   ActivityType = "habit_created"
	ActivityHabitStreak    ActivityType = "habit_streak"
	ActivityHabitCompleted ActivityType = "habit_completed"
)

// Activity is an entry in the social activity feed.
type Activity struct {
	Type        ActivityType      `json:"type"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
