package habitsync

import (
	"context"
	"strings"
	"sync"

	"github.com/julianstephens/habitpilot/internal/models"
)

type fakeRemote struct {
	mu         sync.Mutex
	err        error
	listErr    error
	list       []models.Habit
	completion models.CompletionResult
	calls      []string
	activities []models.Activity
	// gate, when set, blocks complete and undo until it receives a value.
	gate    chan struct{}
	entered chan string
}

func (f *fakeRemote) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeRemote) ListHabits(context.Context) ([]models.Habit, error) {
	_ = f.call("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Habit(nil), f.list...), nil
}

func (f *fakeRemote) CreateHabit(_ context.Context, draft models.HabitDraft) (models.Habit, error) {
	if err := f.call("create"); err != nil {
		return models.Habit{}, err
	}
	h := draft.ToHabit()
	h.ID = "srv-" + draft.ID
	return h, nil
}

func (f *fakeRemote) UpdateHabit(_ context.Context, habit models.Habit) (models.Habit, error) {
	if err := f.call("update"); err != nil {
		return models.Habit{}, err
	}
	habit.Description = "server: " + habit.Description
	return habit, nil
}

func (f *fakeRemote) DeleteHabit(context.Context, string) error {
	return f.call("delete")
}

func (f *fakeRemote) wait(name string) {
	if f.entered != nil {
		f.entered <- name
	}
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeRemote) CompleteHabit(context.Context, string) (models.CompletionResult, error) {
	f.wait("complete")
	if err := f.call("complete"); err != nil {
		return models.CompletionResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completion, nil
}

func (f *fakeRemote) UndoHabit(context.Context, string) (models.CompletionResult, error) {
	f.wait("undo")
	if err := f.call("undo"); err != nil {
		return models.CompletionResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completion, nil
}

func (f *fakeRemote) CreateActivity(_ context.Context, a models.Activity) error {
	f.mu.Lock()
	f.activities = append(f.activities, a)
	f.mu.Unlock()
	return f.call("activity")
}

func (f *fakeRemote) Activities() []models.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Activity(nil), f.activities...)
}

type reminderCall struct {
	op string
	id string
}

type fakeReminders struct {
	mu    sync.Mutex
	calls []reminderCall
}

func (r *fakeReminders) add(op, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reminderCall{op, id})
	return nil
}

func (r *fakeReminders) Schedule(h models.Habit) error         { return r.add("schedule", h.ID) }
func (r *fakeReminders) ScheduleFlexible(h models.Habit) error { return r.add("flexible", h.ID) }
func (r *fakeReminders) Update(h models.Habit) error           { return r.add("update", h.ID) }
func (r *fakeReminders) Cancel(id string) error                { return r.add("cancel", id) }
func (r *fakeReminders) Retain(ids []string) error {
	return r.add("retain", strings.Join(ids, ","))
}

func (r *fakeReminders) Calls() []reminderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reminderCall(nil), r.calls...)
}

type fakeGoals struct {
	mu  sync.Mutex
	ids []string
}

func (g *fakeGoals) IncrementLinked(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids = append(g.ids, id)
	return nil
}

type failingCache struct{}

func (failingCache) Save([]models.Habit) error     { return errFake }
func (failingCache) Load() ([]models.Habit, error) { return nil, errFake }
func (failingCache) Clear() error                  { return errFake }
