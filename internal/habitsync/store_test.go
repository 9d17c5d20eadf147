package habitsync

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/julianstephens/habitpilot/internal/cache"
	apperrors "github.com/julianstephens/habitpilot/internal/errors"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/session"
	"github.com/julianstephens/habitpilot/internal/storage"
)

var errFake = errors.New("fake failure")

var offline = apperrors.Remote("test", apperrors.KindNetwork, 0, errFake)

// 2026-03-11, mid-morning local time
var testNow = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *Store
	remote    *fakeRemote
	cache     *cache.HabitCache
	reminders *fakeReminders
	goals     *fakeGoals
}

func newFixture(t *testing.T, unlimited bool, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		remote:    &fakeRemote{},
		cache:     cache.New(storage.NewMemoryStore()),
		reminders: &fakeReminders{},
		goals:     &fakeGoals{},
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s, err := New(Deps{
		Remote:       f.remote,
		Cache:        f.cache,
		Reminders:    f.reminders,
		Entitlements: StaticEntitlement(unlimited),
		Goals:        f.goals,
	}, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.store = s
	return f
}

// seed puts habits straight into the store and cache.
func (f *fixture) seed(t *testing.T, habits ...models.Habit) {
	t.Helper()
	if err := f.cache.Save(habits); err != nil {
		t.Fatal(err)
	}
	if err := f.store.LoadCache(); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) cached(t *testing.T) []models.Habit {
	t.Helper()
	habits, err := f.cache.Load()
	if err != nil {
		t.Fatalf("cache load failed: %v", err)
	}
	return habits
}

func simpleHabit(id string, streak int, last string) models.Habit {
	return models.Habit{
		ID:                 id,
		Name:               "Habit " + id,
		Type:               models.HabitTypeSimple,
		Frequency:          models.Frequency{Kind: models.FrequencyDaily},
		DailyTarget:        1,
		IsEnabled:          true,
		Streak:             streak,
		LastCompletionDate: last,
	}
}

func TestNewRequiresRemoteAndCache(t *testing.T) {
	if _, err := New(Deps{Cache: cache.New(storage.NewMemoryStore())}); err == nil {
		t.Error("expected error without remote")
	}
	if _, err := New(Deps{Remote: &fakeRemote{}}); err == nil {
		t.Error("expected error without cache")
	}
}

func TestQuotaScenario(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, ok := f.store.Create(ctx, models.NewDraft("habit")); !ok {
			t.Fatalf("create %d refused under quota", i+1)
		}
		if f.store.Len() != i+1 {
			t.Fatalf("after %d creates Len() = %d", i+1, f.store.Len())
		}
	}
	if f.store.CanAddMoreHabits() {
		t.Fatal("CanAddMoreHabits should be false at the free limit")
	}

	h, ok := f.store.Create(ctx, models.NewDraft("sixth"))
	if ok || h.ID != "" {
		t.Fatalf("sixth create should be refused, got %+v", h)
	}
	if f.store.Len() != 5 {
		t.Fatalf("Len() = %d after refused create, want 5", f.store.Len())
	}
	if n := f.remote.count("create"); n != 5 {
		t.Fatalf("refused create must not call the server, got %d create calls", n)
	}
}

func TestQuotaHoldsUnderConcurrentCreates(t *testing.T) {
	f := newFixture(t, false)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.store.Create(context.Background(), models.NewDraft("habit"))
		}()
	}
	wg.Wait()
	if f.store.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", f.store.Len())
	}
}

func TestCreateUnlimited(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 8; i++ {
		if _, ok := f.store.Create(context.Background(), models.NewDraft("habit")); !ok {
			t.Fatalf("unlimited create %d refused", i+1)
		}
	}
	if f.store.Len() != 8 || !f.store.CanAddMoreHabits() {
		t.Fatalf("unexpected state: Len=%d CanAdd=%v", f.store.Len(), f.store.CanAddMoreHabits())
	}
}

func TestCustomFreeLimit(t *testing.T) {
	f := newFixture(t, false, WithFreeHabitLimit(2))
	ctx := context.Background()
	f.store.Create(ctx, models.NewDraft("a"))
	f.store.Create(ctx, models.NewDraft("b"))
	if _, ok := f.store.Create(ctx, models.NewDraft("c")); ok {
		t.Fatal("third create should be refused with limit 2")
	}
}

func TestCreateSuccess(t *testing.T) {
	tests := []struct {
		name      string
		unlimited bool
		wantOp    string
	}{
		{"free tier gets fixed reminder", false, "schedule"},
		{"unlimited gets flexible reminder", true, "flexible"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.unlimited)
			draft := models.NewDraft("Read")

			h, ok := f.store.Create(context.Background(), draft)
			if !ok {
				t.Fatal("create refused")
			}
			if h.ID != "srv-"+draft.ID {
				t.Fatalf("server id should win, got %q", h.ID)
			}

			cached := f.cached(t)
			if len(cached) != 1 || cached[0].ID != h.ID {
				t.Fatalf("cache not updated: %+v", cached)
			}
			calls := f.reminders.Calls()
			if len(calls) != 1 || calls[0] != (reminderCall{tt.wantOp, h.ID}) {
				t.Fatalf("unexpected reminder calls %+v", calls)
			}
			acts := f.remote.Activities()
			if len(acts) != 1 || acts[0].Type != models.ActivityHabitCreated {
				t.Fatalf("expected habit_created activity, got %+v", acts)
			}
		})
	}
}

func TestCreateRemoteFailureKeepsDraft(t *testing.T) {
	f := newFixture(t, false)
	f.remote.err = offline
	draft := models.NewDraft("Meditate")

	h, ok := f.store.Create(context.Background(), draft)
	if !ok {
		t.Fatal("create must succeed locally when offline")
	}
	if h.ID != draft.ID || !h.IsEnabled {
		t.Fatalf("expected draft kept as-is, got %+v", h)
	}
	if got, _ := f.store.Get(draft.ID); got.Name != "Meditate" {
		t.Fatalf("draft missing from collection")
	}
	if cached := f.cached(t); len(cached) != 1 || cached[0].ID != draft.ID {
		t.Fatalf("draft missing from cache: %+v", cached)
	}
	if len(f.reminders.Calls()) != 0 {
		t.Fatal("no reminder is scheduled for an unconfirmed habit")
	}
	if acts := f.remote.Activities(); len(acts) != 1 || acts[0].Type != models.ActivityHabitCreated {
		t.Fatalf("creation activity should still be emitted, got %+v", acts)
	}
}

func TestCreateAssignsMissingID(t *testing.T) {
	f := newFixture(t, false)
	f.remote.err = offline
	h, ok := f.store.Create(context.Background(), models.HabitDraft{Name: "x", Type: models.HabitTypeSimple})
	if !ok || h.ID == "" {
		t.Fatalf("expected generated id, got %+v", h)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		d := models.NewDraft(name)
		d.Type = models.HabitTypeIncremental
		d.DailyTarget = 3
		d.NotificationTime = "07:15"
		d.Frequency = models.Frequency{Kind: models.FrequencyCustom, Weekdays: []time.Weekday{time.Monday}}
		f.store.Create(ctx, d)
	}
	f.store.ToggleCompletion(ctx, f.store.Habits()[1])
	f.store.IncrementProgress(ctx, f.store.Habits()[2])

	if got, want := f.cached(t), f.store.Habits(); !reflect.DeepEqual(got, want) {
		t.Fatalf("cache round trip mismatch\n got %+v\nwant %+v", got, want)
	}

	other := newFixture(t, true)
	other.cache = f.cache
	other.store.deps.Cache = f.cache
	if err := other.store.LoadCache(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(other.store.Habits(), f.store.Habits()) {
		t.Fatal("hydrated store differs from the original")
	}
}

func TestToggleRoundTripOffline(t *testing.T) {
	f := newFixture(t, false)
	f.remote.err = offline
	orig := simpleHabit("h1", 3, "2026-03-10")
	f.seed(t, orig)
	ctx := context.Background()

	f.store.ToggleCompletion(ctx, orig)
	done, _ := f.store.Get("h1")
	if done.Streak != 4 || done.LastCompletionDate != "2026-03-11" || !done.CompletedToday(testNow) {
		t.Fatalf("unexpected completed state %+v", done)
	}
	if f.store.CompletedTodayCount() != 1 {
		t.Fatal("expected one habit completed today")
	}

	f.store.ToggleCompletion(ctx, done)
	undone, _ := f.store.Get("h1")
	if undone.Streak != orig.Streak || undone.LastCompletionDate != orig.LastCompletionDate {
		t.Fatalf("complete then undo should restore %+v, got %+v", orig, undone)
	}
	if cached := f.cached(t); !reflect.DeepEqual(cached[0], undone) {
		t.Fatalf("cache should hold the undone state, got %+v", cached[0])
	}
}

func TestToggleUsesStoredRecord(t *testing.T) {
	f := newFixture(t, false)
	f.remote.err = offline
	stale := simpleHabit("h1", 3, "2026-03-10")
	f.seed(t, stale)
	ctx := context.Background()

	f.store.ToggleCompletion(ctx, stale)
	// stale copy still says "not completed today"; the store knows better
	f.store.ToggleCompletion(ctx, stale)

	h, _ := f.store.Get("h1")
	if h.Streak != 3 || h.CompletedToday(testNow) {
		t.Fatalf("second toggle should undo, got %+v", h)
	}
}

func TestUndoNeverGoesNegative(t *testing.T) {
	f := newFixture(t, false)
	f.remote.err = offline
	h := simpleHabit("h1", 0, "2026-03-11")
	f.seed(t, h)

	f.store.ToggleCompletion(context.Background(), h)
	got, _ := f.store.Get("h1")
	if got.Streak != 0 || got.CompletedToday(testNow) {
		t.Fatalf("unexpected state %+v", got)
	}
}

func TestCompletionReconciliation(t *testing.T) {
	tests := []struct {
		name       string
		server     models.CompletionResult
		wantStreak int
		winner     string
	}{
		{"drift of one keeps local", models.CompletionResult{Streak: 6, Progress: 1}, 5, "local"},
		{"equal keeps local", models.CompletionResult{Streak: 5, Progress: 1}, 5, "local"},
		{"large drift takes server", models.CompletionResult{Streak: 2, Progress: 1}, 2, "server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			f := newFixture(t, false, WithMetrics(NewMetrics(reg)))
			f.remote.completion = tt.server
			h := simpleHabit("h1", 4, "2026-03-10")
			f.seed(t, h)

			f.store.ToggleCompletion(context.Background(), h)

			got, _ := f.store.Get("h1")
			if got.Streak != tt.wantStreak {
				t.Fatalf("streak = %d, want %d", got.Streak, tt.wantStreak)
			}
			if got.TodayProgress != tt.server.Progress {
				t.Fatalf("progress = %d, want server's %d", got.TodayProgress, tt.server.Progress)
			}
			if cached := f.cached(t); cached[0].Streak != tt.wantStreak || cached[0].TodayProgress != tt.server.Progress {
				t.Fatalf("cache not reconciled: %+v", cached[0])
			}
			if v := testutil.ToFloat64(f.store.metrics.Reconciliations.WithLabelValues(tt.winner)); v != 1 {
				t.Fatalf("expected one %s reconciliation, got %v", tt.winner, v)
			}

			acts := f.remote.Activities()
			if len(acts) != 2 || acts[0].Type != models.ActivityHabitStreak || acts[1].Type != models.ActivityHabitCompleted {
				t.Fatalf("unexpected activities %+v", acts)
			}
			if acts[1].Metadata["streak"] != strconv.Itoa(tt.server.Streak) || acts[1].Metadata["habit_name"] != h.Name {
				t.Fatalf("completed activity should carry the server streak, got %+v", acts[1].Metadata)
			}
		})
	}
}

func TestUndoReconciliation(t *testing.T) {
	f := newFixture(t, false)
	f.remote.completion = models.CompletionResult{Streak: 9, Progress: 0}
	h := simpleHabit("h1", 5, "2026-03-11")
	h.PreviousCompletionDate = "2026-03-10"
	h.TodayProgress = 1
	f.seed(t, h)

	f.store.ToggleCompletion(context.Background(), h)

	got, _ := f.store.Get("h1")
	if got.Streak != 9 || got.TodayProgress != 0 || got.LastCompletionDate != "2026-03-10" {
		t.Fatalf("unexpected undo result %+v", got)
	}
	if calls := f.remote.Calls(); len(calls) != 1 || calls[0] != "undo" {
		t.Fatalf("expected a single undo call, got %v", calls)
	}
}

func TestCompleteIncrementsGoals(t *testing.T) {
	f := newFixture(t, false)
	f.remote.err = offline
	h := simpleHabit("h1", 0, "")
	f.seed(t, h)

	f.store.ToggleCompletion(context.Background(), h)
	if len(f.goals.ids) != 1 || f.goals.ids[0] != "h1" {
		t.Fatalf("expected linked goals advanced for h1, got %v", f.goals.ids)
	}
	acts := f.remote.Activities()
	if len(acts) != 1 || acts[0].Type != models.ActivityHabitStreak {
		t.Fatalf("offline completion keeps only the local streak activity, got %+v", acts)
	}
}

func TestUpdate(t *testing.T) {
	t.Run("success takes server version", func(t *testing.T) {
		f := newFixture(t, false)
		h := simpleHabit("h1", 2, "")
		f.seed(t, h)

		h.Description = "edited"
		f.store.Update(context.Background(), h)

		got, _ := f.store.Get("h1")
		if got.Description != "server: edited" {
			t.Fatalf("expected server version, got %q", got.Description)
		}
		if calls := f.reminders.Calls(); len(calls) != 1 || calls[0].op != "update" {
			t.Fatalf("expected reminder update, got %+v", calls)
		}
	})

	t.Run("unlimited reschedules flexibly", func(t *testing.T) {
		f := newFixture(t, true)
		h := simpleHabit("h1", 2, "")
		f.seed(t, h)
		f.store.Update(context.Background(), h)
		if calls := f.reminders.Calls(); len(calls) != 1 || calls[0].op != "flexible" {
			t.Fatalf("expected flexible reschedule, got %+v", calls)
		}
	})

	t.Run("failure keeps caller version", func(t *testing.T) {
		f := newFixture(t, false)
		f.remote.err = offline
		h := simpleHabit("h1", 2, "")
		f.seed(t, h)

		h.Description = "edited offline"
		f.store.Update(context.Background(), h)

		got, _ := f.store.Get("h1")
		if !reflect.DeepEqual(got, h) {
			t.Fatalf("expected verbatim local edit, got %+v", got)
		}
		if cached := f.cached(t); cached[0].Description != "edited offline" {
			t.Fatal("local edit not cached")
		}
		if len(f.reminders.Calls()) != 0 {
			t.Fatal("failed update must not reschedule")
		}
	})

	t.Run("unknown id is ignored", func(t *testing.T) {
		f := newFixture(t, false)
		f.store.Update(context.Background(), simpleHabit("ghost", 0, ""))
		if f.store.Len() != 0 || len(f.remote.Calls()) != 0 {
			t.Fatal("update of unknown id must be a no-op")
		}
	})
}

func TestDeleteWithRemoteFailure(t *testing.T) {
	f := newFixture(t, false)
	f.remote.err = offline
	a, b := simpleHabit("a", 0, ""), simpleHabit("b", 0, "")
	f.seed(t, a, b)

	f.store.Delete(context.Background(), a)

	if _, ok := f.store.Get("a"); ok {
		t.Fatal("deleted habit still in collection")
	}
	cached := f.cached(t)
	if len(cached) != 1 || cached[0].ID != "b" {
		t.Fatalf("deleted habit still in cache: %+v", cached)
	}
	if calls := f.reminders.Calls(); len(calls) != 1 || calls[0] != (reminderCall{"cancel", "a"}) {
		t.Fatalf("expected reminder cancel, got %+v", calls)
	}
	if f.remote.count("delete") != 1 {
		t.Fatal("expected the remote delete to be attempted")
	}
}

func TestToggleEnabled(t *testing.T) {
	f := newFixture(t, false)
	h := simpleHabit("h1", 0, "")
	f.seed(t, h)
	ctx := context.Background()

	f.store.ToggleEnabled(ctx, h)
	got, _ := f.store.Get("h1")
	if got.IsEnabled || len(f.store.EnabledHabits()) != 0 {
		t.Fatal("expected habit disabled")
	}
	if f.cached(t)[0].IsEnabled {
		t.Fatal("disable not cached")
	}

	f.store.ToggleEnabled(ctx, h)
	want := []reminderCall{{"cancel", "h1"}, {"schedule", "h1"}}
	if calls := f.reminders.Calls(); !reflect.DeepEqual(calls, want) {
		t.Fatalf("reminder calls = %+v, want %+v", calls, want)
	}
	if len(f.remote.Calls()) != 0 {
		t.Fatal("toggling enabled must not call the server")
	}
}

func TestIncrementProgress(t *testing.T) {
	f := newFixture(t, false)
	inc := simpleHabit("inc", 0, "")
	inc.Type = models.HabitTypeIncremental
	inc.DailyTarget = 2
	simple := simpleHabit("simple", 0, "")
	f.seed(t, inc, simple)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.store.IncrementProgress(ctx, inc)
	}
	f.store.IncrementProgress(ctx, simple)

	got, _ := f.store.Get("inc")
	if got.TodayProgress != 2 || !got.TargetReached() {
		t.Fatalf("progress should cap at target, got %d", got.TodayProgress)
	}
	if s, _ := f.store.Get("simple"); s.TodayProgress != 0 {
		t.Fatal("simple habits have no incremental progress")
	}
	if f.cached(t)[0].TodayProgress != 2 {
		t.Fatal("progress not cached")
	}
	if len(f.store.HabitsOfType(models.HabitTypeIncremental)) != 1 {
		t.Fatal("expected one incremental habit")
	}
	if len(f.remote.Calls()) != 0 {
		t.Fatal("progress must not call the server")
	}
}

func TestRefresh(t *testing.T) {
	t.Run("replaces wholesale", func(t *testing.T) {
		f := newFixture(t, false)
		f.seed(t, simpleHabit("old", 1, ""))
		f.remote.list = []models.Habit{simpleHabit("n1", 2, ""), simpleHabit("n2", 0, ""), simpleHabit("n1", 9, "")}

		if err := f.store.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		got := f.store.Habits()
		if len(got) != 2 || got[0].ID != "n1" || got[0].Streak != 2 || got[1].ID != "n2" {
			t.Fatalf("unexpected refreshed habits %+v", got)
		}
		if !reflect.DeepEqual(f.cached(t), got) {
			t.Fatal("refresh not cached")
		}
	})

	t.Run("network failure clears without sign out", func(t *testing.T) {
		f := newFixture(t, false)
		signedOut := false
		f.store.deps.SignOut = func(context.Context) { signedOut = true }
		f.seed(t, simpleHabit("old", 1, ""))
		f.remote.listErr = offline

		if err := f.store.Refresh(context.Background()); err == nil {
			t.Fatal("expected refresh error")
		}
		if f.store.Len() != 0 || len(f.cached(t)) != 0 {
			t.Fatal("failed refresh must clear memory and cache")
		}
		if signedOut {
			t.Fatal("network failure must not sign out")
		}
	})

	t.Run("unauthorized clears and signs out", func(t *testing.T) {
		f := newFixture(t, false)
		signedOut := false
		f.store.deps.SignOut = func(context.Context) { signedOut = true }
		f.seed(t, simpleHabit("old", 1, ""))
		f.remote.listErr = apperrors.Remote("list habits", apperrors.KindUnauthorized, 401, nil)

		err := f.store.Refresh(context.Background())
		if !apperrors.IsUnauthorized(err) {
			t.Fatalf("expected unauthorized error, got %v", err)
		}
		if f.store.Len() != 0 || len(f.cached(t)) != 0 {
			t.Fatal("unauthorized refresh must clear memory and cache")
		}
		if !signedOut {
			t.Fatal("unauthorized refresh must sign out")
		}
	})
}

func TestSessionEvents(t *testing.T) {
	for _, ev := range []session.Event{session.LoggedIn, session.LoggedOut} {
		t.Run(ev.String(), func(t *testing.T) {
			f := newFixture(t, false)
			f.seed(t, simpleHabit("a", 1, ""), simpleHabit("b", 2, ""))

			f.store.HandleSession(context.Background(), ev)

			if f.store.Len() != 0 {
				t.Fatal("collection should be empty")
			}
			if cached := f.cached(t); len(cached) != 0 {
				t.Fatalf("cache should be cleared, got %+v", cached)
			}
			if len(f.remote.Calls()) != 0 {
				t.Fatal("session change must not reload")
			}
		})
	}

	t.Run("refresh requested", func(t *testing.T) {
		f := newFixture(t, false)
		f.remote.list = []models.Habit{simpleHabit("n1", 0, "")}
		f.store.HandleSession(context.Background(), session.RefreshRequested)
		if f.store.Len() != 1 {
			t.Fatal("refresh request should load remote habits")
		}
	})
}

func TestRunConsumesBroker(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, simpleHabit("a", 1, ""))
	broker := session.NewBroker()
	events, cancel := broker.Subscribe()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan error, 1)
	go func() { done <- f.store.Run(ctx, events) }()

	broker.Publish(ctx, session.LoggedOut)
	deadline := time.Now().Add(time.Second)
	for f.store.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.store.Len() != 0 {
		t.Fatal("LoggedOut event was not applied")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after channel close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the subscription closed")
	}
}

func TestSameHabitOperationsAreSerialized(t *testing.T) {
	f := newFixture(t, false)
	f.remote.gate = make(chan struct{})
	f.remote.entered = make(chan string, 2)
	f.remote.completion = models.CompletionResult{Streak: 4, Progress: 1}
	h := simpleHabit("h1", 3, "2026-03-10")
	f.seed(t, h)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.store.ToggleCompletion(ctx, h)
	}()
	if op := <-f.remote.entered; op != "complete" {
		t.Fatalf("first remote call = %s, want complete", op)
	}

	second := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.store.ToggleCompletion(ctx, h)
		close(second)
	}()

	select {
	case op := <-f.remote.entered:
		t.Fatalf("second toggle reached the server (%s) while the first was in flight", op)
	case <-time.After(50 * time.Millisecond):
	}

	// other habits are not blocked by h1's lock
	f.store.Create(ctx, models.NewDraft("other"))

	f.remote.gate <- struct{}{}
	if op := <-f.remote.entered; op != "undo" {
		t.Fatalf("second remote call = %s, want undo", op)
	}
	f.remote.completion = models.CompletionResult{Streak: 3, Progress: 0}
	f.remote.gate <- struct{}{}
	<-second
	wg.Wait()

	got, _ := f.store.Get("h1")
	if got.Streak != 3 || got.LastCompletionDate != "2026-03-10" || got.TodayProgress != 0 {
		t.Fatalf("complete then undo should settle on the original state, got %+v", got)
	}
	if f.store.locks.size() != 0 {
		t.Fatalf("per-habit locks leaked: %d", f.store.locks.size())
	}
}

func TestCacheWriteFailureKeepsMemory(t *testing.T) {
	reg := prometheus.NewRegistry()
	remote := &fakeRemote{err: offline}
	s, err := New(Deps{Remote: remote, Cache: failingCache{}}, WithMetrics(NewMetrics(reg)))
	if err != nil {
		t.Fatal(err)
	}

	h, ok := s.Create(context.Background(), models.NewDraft("x"))
	if !ok {
		t.Fatal("create refused")
	}
	if _, ok := s.Get(h.ID); !ok {
		t.Fatal("habit must stay in memory when the cache write fails")
	}
	if v := testutil.ToFloat64(s.metrics.CacheWrites.WithLabelValues("error")); v != 1 {
		t.Fatalf("expected one failed cache write, got %v", v)
	}
	if err := s.LoadCache(); err == nil {
		t.Fatal("expected LoadCache to surface the cache error")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, false, WithFreeHabitLimit(1), WithMetrics(NewMetrics(reg)))
	ctx := context.Background()

	f.store.Create(ctx, models.NewDraft("a"))
	f.store.Create(ctx, models.NewDraft("b"))
	f.remote.err = offline
	f.store.Delete(ctx, f.store.Habits()[0])

	m := f.store.metrics
	if v := testutil.ToFloat64(m.RemoteCalls.WithLabelValues("create", "ok")); v != 1 {
		t.Errorf("create ok = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.RemoteCalls.WithLabelValues("delete", "network")); v != 1 {
		t.Errorf("delete network = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.QuotaRefusals); v != 1 {
		t.Errorf("quota refusals = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.Habits); v != 0 {
		t.Errorf("habits gauge = %v, want 0", v)
	}
}

func TestActivityViaSink(t *testing.T) {
	sink := &recordingSink{}
	remote := &fakeRemote{err: offline}
	s, _ := New(Deps{Remote: remote, Cache: cache.New(storage.NewMemoryStore()), Activity: sink})

	s.Create(context.Background(), models.NewDraft("x"))
	if len(sink.got) != 1 || sink.got[0].CreatedAt.IsZero() {
		t.Fatalf("expected stamped activity in sink, got %+v", sink.got)
	}
	if remote.count("activity") != 0 {
		t.Fatal("activity should go to the sink, not the remote")
	}
}

type recordingSink struct{ got []models.Activity }

func (r *recordingSink) Record(_ context.Context, a models.Activity) { r.got = append(r.got, a) }

func TestRemindersFollowCollection(t *testing.T) {
	t.Run("session change cancels all", func(t *testing.T) {
		f := newFixture(t, false)
		f.seed(t, simpleHabit("a", 1, ""))

		f.store.HandleSession(context.Background(), session.LoggedOut)

		want := []reminderCall{{"retain", ""}}
		if calls := f.reminders.Calls(); !reflect.DeepEqual(calls, want) {
			t.Fatalf("reminder calls = %v, want %v", calls, want)
		}
	})

	t.Run("refresh keeps enabled server habits", func(t *testing.T) {
		f := newFixture(t, false)
		f.seed(t, simpleHabit("old", 1, ""))
		off := simpleHabit("n2", 0, "")
		off.IsEnabled = false
		f.remote.list = []models.Habit{simpleHabit("n1", 2, ""), off, simpleHabit("n3", 0, "")}

		if err := f.store.Refresh(context.Background()); err != nil {
			t.Fatal(err)
		}

		want := []reminderCall{{"retain", "n1,n3"}, {"schedule", "n1"}, {"schedule", "n3"}}
		if calls := f.reminders.Calls(); !reflect.DeepEqual(calls, want) {
			t.Fatalf("reminder calls = %v, want %v", calls, want)
		}
	})

	t.Run("failed refresh cancels all", func(t *testing.T) {
		f := newFixture(t, false)
		f.seed(t, simpleHabit("old", 1, ""))
		f.remote.listErr = offline

		_ = f.store.Refresh(context.Background())

		want := []reminderCall{{"retain", ""}}
		if calls := f.reminders.Calls(); !reflect.DeepEqual(calls, want) {
			t.Fatalf("reminder calls = %v, want %v", calls, want)
		}
	})
}

func TestUpdateFailureDoesNotAliasCaller(t *testing.T) {
	f := newFixture(t, false)
	f.remote.err = offline
	h := simpleHabit("h1", 0, "")
	f.seed(t, h)

	edit := h
	edit.Frequency = models.Frequency{Kind: models.FrequencyCustom, Weekdays: []time.Weekday{time.Monday, time.Friday}}
	f.store.Update(context.Background(), edit)

	edit.Frequency.Weekdays[0] = time.Sunday

	got, _ := f.store.Get("h1")
	if got.Frequency.Weekdays[0] != time.Monday {
		t.Fatalf("stored habit changed through the caller's slice: %v", got.Frequency.Weekdays)
	}
}
