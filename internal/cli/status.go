package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

type StatusCmd struct {
	Activity int `help:"Number of recent activity entries to show." default:"5"`
}

func (c *StatusCmd) Run(ctx *Context) error {
	ctx.println(titleStyle.Render("HabitPilot status"))

	if ctx.Sessions.LoggedIn() {
		ctx.printf("  Session:   %s\n", okStyle.Render("logged in"))
	} else {
		ctx.printf("  Session:   %s\n", warnStyle.Render("logged out"))
	}
	ctx.printf("  API:       %s\n", ctx.Config.APIURL)

	limit := strconv.Itoa(ctx.Config.FreeLimit)
	if ctx.Config.Unlimited {
		limit = "unlimited"
	}
	ctx.printf("  Habits:    %d (limit %s, %d enabled)\n", ctx.Habits.Len(), limit, len(ctx.Habits.EnabledHabits()))
	ctx.printf("  Today:     %d completed\n", ctx.Habits.CompletedTodayCount())

	savedAt, ok, err := ctx.Cache.SavedAt()
	switch {
	case err != nil:
		ctx.printf("  Cache:     %s\n", errStyle.Render(err.Error()))
	case !ok:
		ctx.printf("  Cache:     %s\n", mutedStyle.Render("empty"))
	default:
		ctx.printf("  Cache:     saved %s\n", savedAt.In(ctx.Now().Location()).Format(time.RFC1123))
	}
	ctx.printf("  Reminders: %d scheduled\n", len(ctx.Reminders.Reminders()))

	recent := ctx.Activity.Recent(c.Activity)
	if len(recent) == 0 {
		return nil
	}
	ctx.println()
	ctx.println(titleStyle.Render("Recent activity"))
	for _, a := range recent {
		ctx.printf("  %s %s\n",
			mutedStyle.Render(a.CreatedAt.In(ctx.Now().Location()).Format("Jan 02 15:04")),
			a.Description,
		)
	}
	return nil
}

type CacheCmd struct {
	Show    CacheShowCmd    `cmd:"" help:"Show the offline habit snapshot." default:"1"`
	Clear   CacheClearCmd   `cmd:"" help:"Delete the offline habit snapshot."`
	Backup  CacheBackupCmd  `cmd:"" help:"Back up the local cache, reminders, goals and activity."`
	Backups CacheBackupsCmd `cmd:"" help:"List available backups."`
	Restore CacheRestoreCmd `cmd:"" help:"Restore local state from a backup."`
}

type CacheShowCmd struct{}

func (c *CacheShowCmd) Run(ctx *Context) error {
	habits, err := ctx.Cache.Load()
	if err != nil {
		return err
	}
	savedAt, ok, err := ctx.Cache.SavedAt()
	if err != nil {
		return err
	}
	if !ok {
		ctx.println("No cached habits.")
		return nil
	}

	ctx.printf("%s %s\n", titleStyle.Render(fmt.Sprintf("Cached habits (%d)", len(habits))),
		mutedStyle.Render("saved "+savedAt.In(ctx.Now().Location()).Format(time.RFC1123)))
	now := ctx.Now()
	for _, h := range habits {
		ctx.println(habitLine(h, h.CompletedToday(now)))
	}
	return nil
}

type CacheClearCmd struct {
	Yes bool `short:"y" help:"Skip the confirmation prompt."`
}

func (c *CacheClearCmd) Run(ctx *Context) error {
	if !c.Yes {
		ok, err := confirm("Clear the offline cache? Unsynced changes are lost.")
		if err != nil {
			return err
		}
		if !ok {
			ctx.println("Cancelled.")
			return nil
		}
	}
	ctx.PerformAutomaticBackup()
	if err := ctx.Cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	ctx.println("Cache cleared.")
	return nil
}

type CacheBackupCmd struct{}

func (c *CacheBackupCmd) Run(ctx *Context) error {
	mgr, err := ctx.Backups()
	if err != nil {
		return err
	}
	path, err := mgr.CreateBackup()
	if err != nil {
		return err
	}
	ctx.printf("Backup created: %s\n", path)
	return nil
}

type CacheBackupsCmd struct{}

func (c *CacheBackupsCmd) Run(ctx *Context) error {
	mgr, err := ctx.Backups()
	if err != nil {
		return err
	}
	backups, err := mgr.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		ctx.println("No backups found.")
		return nil
	}

	ctx.printf("Backups in %s:\n", mgr.GetBackupDir())
	for _, b := range backups {
		ctx.printf("  %s  %s  %s\n",
			b.Timestamp.Local().Format("2006-01-02 15:04:05"),
			filepath.Base(b.Path),
			mutedStyle.Render(fmt.Sprintf("%d bytes", b.Size)))
	}
	return nil
}

type CacheRestoreCmd struct {
	File string `arg:"" optional:"" help:"Backup file name or path. Defaults to the newest backup."`
	Yes  bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *CacheRestoreCmd) Run(ctx *Context) error {
	mgr, err := ctx.Backups()
	if err != nil {
		return err
	}

	path := c.File
	switch {
	case path == "":
		backups, err := mgr.ListBackups()
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			return fmt.Errorf("no backups found in %s", mgr.GetBackupDir())
		}
		path = backups[0].Path
	case !filepath.IsAbs(path) && filepath.Dir(path) == ".":
		path = filepath.Join(mgr.GetBackupDir(), path)
	}

	if !c.Yes {
		ok, err := confirm(fmt.Sprintf("Restore %s? Current local state is backed up first.", filepath.Base(path)))
		if err != nil {
			return err
		}
		if !ok {
			ctx.println("Cancelled.")
			return nil
		}
	}

	safety, err := mgr.RestoreBackup(path)
	if err != nil {
		return err
	}
	if err := ctx.Habits.LoadCache(); err != nil {
		return fmt.Errorf("restored backup has an unreadable habit cache: %w", err)
	}
	ctx.printf("Restored %s (previous state saved to %s)\n", filepath.Base(path), filepath.Base(safety))
	return nil
}
