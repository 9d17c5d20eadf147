package cache

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/storage"
	"github.com/julianstephens/habitpilot/internal/storage/sqlite"
)

func sampleHabits() []models.Habit {
	return []models.Habit{
		{
			ID:                     "b-second-by-id-first-by-order",
			Name:                   "Read",
			Description:            "20 pages",
			Type:                   models.HabitTypeIncremental,
			Frequency:              models.Frequency{Kind: models.FrequencyCustom, Weekdays: []time.Weekday{time.Monday, time.Thursday}},
			DailyTarget:            20,
			NotificationTime:       "21:30",
			ColorHex:               "#FF8800",
			IsEnabled:              true,
			Streak:                 12,
			TodayProgress:          7,
			LastCompletionDate:     "2026-10-16",
			PreviousCompletionDate: "2026-10-15",
		},
		{
			ID:          "a-first-by-id",
			Name:        "Stretch",
			Type:        models.HabitTypeSimple,
			Frequency:   models.Frequency{Kind: models.FrequencyDaily},
			DailyTarget: 1,
			ColorHex:    "#00AA00",
		},
	}
}

func TestRoundTrip(t *testing.T) {
	c := New(storage.NewMemoryStore())
	habits := sampleHabits()

	if err := c.Save(habits); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := c.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, habits) {
		t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", loaded, habits)
	}
}

func TestRoundTripSQLite(t *testing.T) {
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "cache.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer store.Close()

	c := New(store)
	habits := sampleHabits()
	if err := c.Save(habits); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := c.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, habits) {
		t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", loaded, habits)
	}
}

func TestLoadEmpty(t *testing.T) {
	c := New(storage.NewMemoryStore())

	loaded, err := c.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || len(loaded) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", loaded)
	}

	if _, ok, err := c.SavedAt(); ok || err != nil {
		t.Errorf("SavedAt on empty cache = ok %v, err %v", ok, err)
	}
}

func TestSaveNilWritesEmpty(t *testing.T) {
	c := New(storage.NewMemoryStore())
	if err := c.Save(nil); err != nil {
		t.Fatalf("Save(nil) failed: %v", err)
	}
	loaded, err := c.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty cache, got %d habits", len(loaded))
	}
}

func TestClear(t *testing.T) {
	store := storage.NewMemoryStore()
	c := New(store)
	if err := c.Save(sampleHabits()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, ok, _ := store.Get(constants.HabitCacheKey); ok {
		t.Error("cache key still present after Clear")
	}
	loaded, err := c.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty cache after Clear, got %d", len(loaded))
	}
}

func TestSavedAt(t *testing.T) {
	c := New(storage.NewMemoryStore())
	fixed := time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	if err := c.Save(sampleHabits()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	at, ok, err := c.SavedAt()
	if err != nil || !ok {
		t.Fatalf("SavedAt = ok %v, err %v", ok, err)
	}
	if !at.Equal(fixed) {
		t.Errorf("SavedAt = %v, want %v", at, fixed)
	}
}

func TestLoadCorrupt(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Put(constants.HabitCacheKey, []byte("{not json")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := New(store).Load(); err == nil {
		t.Error("expected error for corrupt cache")
	}
}

func TestLoadNewerVersion(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Put(constants.HabitCacheKey, []byte(`{"version":99,"habits":[]}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := New(store).Load(); err == nil {
		t.Error("expected error for newer cache version")
	}
}
