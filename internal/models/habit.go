package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitpilot/internal/constants"
)

type HabitType string

const (
	HabitTypeSimple      HabitType = "simple"
	HabitTypeIncremental HabitType = "incremental"
)

type FrequencyKind string

const (
	FrequencyDaily    FrequencyKind = "daily"
	FrequencyWeekdays FrequencyKind = "weekdays"
	FrequencyCustom   FrequencyKind = "custom"
)

// Frequency describes on which days a habit is expected. The sync layer
// treats it as opaque; only the flexible reminder schedule reads it.
type Frequency struct {
	Kind     FrequencyKind  `json:"kind"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

// Habit is one tracked habit as mirrored from the server.
type Habit struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description"`
	Type                   HabitType `json:"type"`
	Frequency              Frequency `json:"frequency"`
	DailyTarget            int       `json:"daily_target"`
	NotificationTime       string    `json:"notification_time,omitempty"` // HH:MM format
	ColorHex               string    `json:"color_hex"`
	IsEnabled              bool      `json:"is_enabled"`
	Streak                 int       `json:"streak"`
	TodayProgress          int       `json:"today_progress"`
	LastCompletionDate     string    `json:"last_completion_date,omitempty"`     // YYYY-MM-DD format
	PreviousCompletionDate string    `json:"previous_completion_date,omitempty"` // YYYY-MM-DD format
}

// CompletedToday reports whether the last completion falls on the calendar
// day of now, in now's location.
func (h Habit) CompletedToday(now time.Time) bool {
	return h.LastCompletionDate != "" && h.LastCompletionDate == now.Format(constants.DateFormat)
}

func (h Habit) IsIncremental() bool {
	return h.Type == HabitTypeIncremental
}

// TargetReached reports whether an incremental habit has met its daily target.
func (h Habit) TargetReached() bool {
	return h.IsIncremental() && h.DailyTarget > 0 && h.TodayProgress >= h.DailyTarget
}

// Clamp enforces the non-negative counters.
func (h Habit) Clamp() Habit {
	if h.Streak < 0 {
		h.Streak = 0
	}
	if h.TodayProgress < 0 {
		h.TodayProgress = 0
	}
	return h
}

func (h Habit) Validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return fmt.Errorf("habit id cannot be empty")
	}
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("habit name cannot be empty")
	}
	switch h.Type {
	case HabitTypeSimple:
	case HabitTypeIncremental:
		if h.DailyTarget <= 0 {
			return fmt.Errorf("incremental habit %q needs a positive daily target", h.Name)
		}
	default:
		return fmt.Errorf("invalid habit type %q", h.Type)
	}
	if h.NotificationTime != "" {
		if _, err := time.Parse(constants.TimeFormat, h.NotificationTime); err != nil {
			return fmt.Errorf("invalid notification time %q (expected HH:MM)", h.NotificationTime)
		}
	}
	if h.Streak < 0 || h.TodayProgress < 0 {
		return fmt.Errorf("habit %q has negative counters", h.Name)
	}
	return nil
}

// HabitDraft is the input for creating a habit. It carries a client-assigned
// id so the record can be kept locally when the server is unreachable.
type HabitDraft struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Type             HabitType `json:"type"`
	Frequency        Frequency `json:"frequency"`
	DailyTarget      int       `json:"daily_target"`
	NotificationTime string    `json:"notification_time,omitempty"`
	ColorHex         string    `json:"color_hex"`
}

// NewDraft returns a draft with a fresh client id and daily simple defaults.
func NewDraft(name string) HabitDraft {
	return HabitDraft{
		ID:          uuid.New().String(),
		Name:        name,
		Type:        HabitTypeSimple,
		Frequency:   Frequency{Kind: FrequencyDaily},
		DailyTarget: 1,
		ColorHex:    "#4F46E5",
	}
}

// ToHabit converts the draft into a fresh, enabled record with zeroed counters.
func (d HabitDraft) ToHabit() Habit {
	return Habit{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		Type:             d.Type,
		Frequency:        d.Frequency,
		DailyTarget:      d.DailyTarget,
		NotificationTime: d.NotificationTime,
		ColorHex:         d.ColorHex,
		IsEnabled:        true,
	}
}

// CompletionResult is the server's view of a habit after complete or undo.
type CompletionResult struct {
	Streak   int `json:"streak"`
	Progress int `json:"progress"`
}
