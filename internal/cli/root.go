package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/julianstephens/habitpilot/internal/activity"
	"github.com/julianstephens/habitpilot/internal/api"
	"github.com/julianstephens/habitpilot/internal/backup"
	"github.com/julianstephens/habitpilot/internal/cache"
	"github.com/julianstephens/habitpilot/internal/config"
	"github.com/julianstephens/habitpilot/internal/goals"
	"github.com/julianstephens/habitpilot/internal/habitsync"
	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/notifier"
	"github.com/julianstephens/habitpilot/internal/session"
	"github.com/julianstephens/habitpilot/internal/storage"
	"github.com/julianstephens/habitpilot/internal/utils"
)

// Context is handed to every command's Run method.
type Context struct {
	Ctx    context.Context
	Config config.Config
	Out    io.Writer
	Now    func() time.Time

	Storage   storage.Provider
	Sessions  *session.Manager
	Client    *api.Client
	Cache     *cache.HabitCache
	Habits    *habitsync.Store
	Reminders *notifier.Scheduler
	Goals     *goals.Tracker
	Activity  *activity.Recorder

	// Metrics holds the sync store's counters for this run.
	Metrics *prometheus.Registry
}

// NewContext wires the habit store and its collaborators on top of an
// initialized storage provider and hydrates it from the offline cache.
func NewContext(ctx context.Context, cfg config.Config, store storage.Provider, sessions *session.Manager) (*Context, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	now := utils.NowIn(loc)

	client, err := api.New(cfg.APIURL,
		api.WithTimeout(cfg.Timeout),
		api.WithRateLimit(cfg.RequestRate, cfg.RequestBurst),
		api.WithTokenSource(sessions),
	)
	if err != nil {
		return nil, err
	}

	reminders, err := notifier.NewScheduler(store, notifier.WithClock(now))
	if err != nil {
		return nil, err
	}
	tracker, err := goals.NewTracker(store)
	if err != nil {
		return nil, err
	}
	feed, err := activity.NewRecorder(client, store, activity.WithClock(now))
	if err != nil {
		return nil, err
	}
	hc := cache.New(store)
	reg := prometheus.NewRegistry()

	habits, err := habitsync.New(habitsync.Deps{
		Remote:       client,
		Cache:        hc,
		Reminders:    reminders,
		Entitlements: habitsync.StaticEntitlement(cfg.Unlimited),
		Goals:        tracker,
		Activity:     feed,
		SignOut:      sessions.SignOut,
	},
		habitsync.WithFreeHabitLimit(cfg.FreeLimit),
		habitsync.WithClock(now),
		habitsync.WithMetrics(habitsync.NewMetrics(reg)),
	)
	if err != nil {
		return nil, err
	}

	// A corrupt snapshot is not fatal; the next refresh rewrites it.
	if err := habits.LoadCache(); err != nil {
		logger.Warn("Starting without cached habits", "error", err)
	}
	sessions.Broker().Listen(habits.HandleSession)

	return &Context{
		Ctx:       ctx,
		Config:    cfg,
		Out:       os.Stdout,
		Now:       now,
		Storage:   store,
		Sessions:  sessions,
		Client:    client,
		Cache:     hc,
		Habits:    habits,
		Reminders: reminders,
		Goals:     tracker,
		Activity:  feed,
		Metrics:   reg,
	}, nil
}

// Backups returns the backup manager for the cache storage.
func (c *Context) Backups() (*backup.Manager, error) {
	dir, err := c.Config.ConfigDir()
	if err != nil {
		return nil, err
	}
	return backup.NewManager(c.Storage, dir), nil
}

// PerformAutomaticBackup creates an automatic backup and silently handles errors
func (c *Context) PerformAutomaticBackup() {
	mgr, err := c.Backups()
	if err == nil {
		_, err = mgr.CreateBackup()
	}
	if err != nil {
		// Log warning but don't interrupt user workflow
		logger.Warn("Automatic backup failed", "error", err)
	}
}

func (c *Context) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) println(args ...interface{}) {
	fmt.Fprintln(c.Out, args...)
}

// ResolveHabit finds a habit by exact id, unique id prefix, or
// case-insensitive name.
func (c *Context) ResolveHabit(ref string) (models.Habit, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Habit{}, fmt.Errorf("habit reference cannot be empty")
	}
	if h, ok := c.Habits.Get(ref); ok {
		return h, nil
	}

	var matches []models.Habit
	for _, h := range c.Habits.Habits() {
		if strings.HasPrefix(h.ID, ref) || strings.EqualFold(h.Name, ref) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return models.Habit{}, fmt.Errorf("habit %q not found", ref)
	case 1:
		return matches[0], nil
	default:
		return models.Habit{}, fmt.Errorf("habit reference %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// ParseFrequency builds a Frequency from a kind name and an optional
// comma-separated weekday list. A day list alone implies a custom kind.
func ParseFrequency(kind, days string) (models.Frequency, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = string(models.FrequencyDaily)
		if strings.TrimSpace(days) != "" {
			kind = string(models.FrequencyCustom)
		}
	}

	switch models.FrequencyKind(kind) {
	case models.FrequencyDaily, models.FrequencyWeekdays:
		if strings.TrimSpace(days) != "" {
			return models.Frequency{}, fmt.Errorf("--days only applies to custom frequency")
		}
		return models.Frequency{Kind: models.FrequencyKind(kind)}, nil
	case models.FrequencyCustom:
		weekdays, err := utils.ParseWeekdays(days)
		if err != nil {
			return models.Frequency{}, err
		}
		if len(weekdays) == 0 {
			return models.Frequency{}, fmt.Errorf("custom frequency needs at least one day")
		}
		return models.Frequency{Kind: models.FrequencyCustom, Weekdays: weekdays}, nil
	default:
		return models.Frequency{}, fmt.Errorf("invalid frequency %q (expected daily, weekdays, or custom)", kind)
	}
}

// FormatFrequency formats a frequency into a human-readable string
func FormatFrequency(f models.Frequency) string {
	switch f.Kind {
	case models.FrequencyDaily, "":
		return "daily"
	case models.FrequencyWeekdays:
		return "weekdays"
	case models.FrequencyCustom:
		return utils.FormatWeekdays(f.Weekdays)
	default:
		return string(f.Kind)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
