package habitsync

import (
	"context"

	"github.com/julianstephens/habitpilot/internal/models"
)

// Remote is the server-side habit API. *api.Client satisfies it.
type Remote interface {
	ListHabits(ctx context.Context) ([]models.Habit, error)
	CreateHabit(ctx context.Context, draft models.HabitDraft) (models.Habit, error)
	UpdateHabit(ctx context.Context, habit models.Habit) (models.Habit, error)
	DeleteHabit(ctx context.Context, id string) error
	CompleteHabit(ctx context.Context, id string) (models.CompletionResult, error)
	UndoHabit(ctx context.Context, id string) (models.CompletionResult, error)
	CreateActivity(ctx context.Context, activity models.Activity) error
}

// Cache is the offline snapshot. *cache.HabitCache satisfies it.
type Cache interface {
	Save(habits []models.Habit) error
	Load() ([]models.Habit, error)
	Clear() error
}

// Reminders schedules habit notifications. *notifier.Scheduler satisfies it.
type Reminders interface {
	Schedule(habit models.Habit) error
	ScheduleFlexible(habit models.Habit) error
	Update(habit models.Habit) error
	Cancel(habitID string) error
	// Retain cancels every reminder whose habit id is not listed.
	Retain(habitIDs []string) error
}

type Entitlements interface {
	IsUnlimited() bool
}

// StaticEntitlement is a fixed entitlement, e.g. from config.
type StaticEntitlement bool

func (e StaticEntitlement) IsUnlimited() bool { return bool(e) }

// Goals is the companion goal tracker. *goals.Tracker satisfies it.
type Goals interface {
	IncrementLinked(habitID string) error
}

// ActivitySink records activity events. *activity.Recorder satisfies it.
type ActivitySink interface {
	Record(ctx context.Context, activity models.Activity)
}

// Deps are the collaborators of a Store. Remote and Cache are required.
type Deps struct {
	Remote       Remote
	Cache        Cache
	Reminders    Reminders
	Entitlements Entitlements
	Goals        Goals
	// Activity receives activity events. When nil they are sent straight
	// to Remote.CreateActivity.
	Activity ActivitySink
	// SignOut runs when a full refresh is rejected as unauthorized.
	SignOut func(ctx context.Context)
}
