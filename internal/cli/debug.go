package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/prometheus/common/expfmt"

	"github.com/julianstephens/habitpilot/internal/logger"
)

type DebugCmd struct {
	CachePath *DebugCachePathCmd `cmd:"" help:"Show the cache and log file locations."`
	Keys      *DebugKeysCmd      `cmd:"" help:"List keys in the cache storage."`
	DumpHabit *DebugDumpHabitCmd `cmd:"" help:"Dump a habit as JSON."`
	Metrics   *DebugMetricsCmd   `cmd:"" help:"Print sync metrics in Prometheus text format."`
}

type DebugCachePathCmd struct{}

func (cmd *DebugCachePathCmd) Run(ctx *Context) error {
	dir, err := ctx.Config.ConfigDir()
	if err != nil {
		return err
	}
	// Output in machine-readable format
	return ctx.printJSON(map[string]string{
		"path": ctx.Storage.GetConfigPath(),
		"log":  logger.FilePath(dir),
	})
}

type DebugKeysCmd struct{}

func (cmd *DebugKeysCmd) Run(ctx *Context) error {
	keys, err := ctx.Storage.Keys()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return ctx.printJSON(keys)
}

type DebugDumpHabitCmd struct {
	Habit string `arg:"" help:"Habit id, id prefix, or name."`
}

func (cmd *DebugDumpHabitCmd) Run(ctx *Context) error {
	habit, err := ctx.ResolveHabit(cmd.Habit)
	if err != nil {
		return err
	}

	out := struct {
		Habit    interface{} `json:"habit"`
		Reminder interface{} `json:"reminder,omitempty"`
	}{Habit: habit}
	if r, ok := ctx.Reminders.Get(habit.ID); ok {
		out.Reminder = r
	}
	return ctx.printJSON(out)
}

// DebugMetricsCmd prints the sync metrics gathered so far in this run,
// which after start-up covers cache hydration.
type DebugMetricsCmd struct {
	Refresh bool `help:"Refresh from the server first."`
}

func (cmd *DebugMetricsCmd) Run(ctx *Context) error {
	if cmd.Refresh {
		if err := ctx.Habits.Refresh(ctx.Ctx); err != nil {
			ctx.printf("refresh failed: %v\n", err)
		}
	}
	families, err := ctx.Metrics.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(ctx.Out, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func (c *Context) printJSON(v interface{}) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	c.println(string(jsonBytes))
	return nil
}
