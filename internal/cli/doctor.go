package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/julianstephens/habitpilot/internal/constants"
	apperrors "github.com/julianstephens/habitpilot/internal/errors"
	"github.com/julianstephens/habitpilot/internal/migration"
	"github.com/julianstephens/habitpilot/internal/notifier"
	"github.com/julianstephens/habitpilot/internal/session"
	"github.com/julianstephens/habitpilot/internal/storage/postgres"
	"github.com/julianstephens/habitpilot/internal/storage/sqlite"
	"github.com/julianstephens/habitpilot/migrations"
)

type DoctorCmd struct {
	Offline bool `help:"Skip checks that contact the API."`
}

func (cmd *DoctorCmd) Run(ctx *Context) error {
	ctx.println("Running diagnostics...")
	ctx.println()

	hasError := false
	fail := func(name string, err error) {
		ctx.printf("%s\n", errStyle.Render("❌ "+name+": FAIL"))
		ctx.printf("   Error: %v\n", err)
		hasError = true
	}
	warn := func(name string, err error) {
		ctx.printf("%s\n", warnStyle.Render("⚠ "+name+": WARNING"))
		ctx.printf("   %v\n", err)
	}
	pass := func(name string) {
		ctx.printf("%s\n", okStyle.Render("✓ "+name+": OK"))
	}
	skip := func(name, why string) {
		ctx.printf("%s\n", mutedStyle.Render("⊘ "+name+": SKIPPED ("+why+")"))
	}

	// Check 1: cache storage reachable
	storageReachable := false
	if err := checkStorageReachable(ctx); err != nil {
		fail("Cache storage reachable", err)
	} else {
		pass("Cache storage reachable")
		storageReachable = true
	}

	// Check 2: migrations complete
	if storageReachable {
		if err := checkMigrationsComplete(ctx); err != nil {
			fail("Migrations complete", err)
		} else {
			pass("Migrations complete")
		}
	} else {
		skip("Migrations complete", "storage not reachable")
	}

	// Check 3: cached habits are well formed
	if storageReachable {
		if err := checkCacheIntegrity(ctx); err != nil {
			fail("Cache integrity", err)
		} else {
			pass("Cache integrity")
		}
	} else {
		skip("Cache integrity", "storage not reachable")
	}

	// Check 4: clock/timezone sanity
	if err := checkClockTimezone(ctx); err != nil {
		fail("Clock/timezone", err)
	} else {
		pass("Clock/timezone")
	}

	// Check 5: keyring (warning only, login needs it)
	if !session.KeyringAvailable(constants.AppName) {
		warn("OS keyring", errors.New("keyring unavailable; 'habitpilot login' cannot store a token"))
	} else {
		pass("OS keyring")
	}

	// Check 6: API reachable with the stored token (warning only, offline use is supported)
	switch {
	case cmd.Offline:
		skip("API reachable", "--offline")
	case !ctx.Sessions.LoggedIn():
		skip("API reachable", "not logged in")
	default:
		if err := checkAPIReachable(ctx); err != nil {
			warn("API reachable", err)
		} else {
			pass("API reachable")
		}
	}

	// Check 7: tray app for desktop reminders (warning only)
	if err := notifier.TrayRunning(); err != nil {
		warn("Tray notifier", err)
	} else {
		pass("Tray notifier")
	}

	ctx.println()
	if hasError {
		return fmt.Errorf("some checks failed")
	}
	ctx.println("All critical checks passed!")
	return nil
}

func checkStorageReachable(ctx *Context) error {
	if ctx.Storage == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := ctx.Storage.Keys(); err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	return nil
}

func checkMigrationsComplete(ctx *Context) error {
	var (
		db      *sql.DB
		dir     string
		dialect migration.Dialect
	)
	switch st := ctx.Storage.(type) {
	case *sqlite.Store:
		db, dir, dialect = st.GetDB(), "sqlite", migration.DialectSQLite
	case *postgres.Store:
		db, dir, dialect = st.GetDB(), "postgres", migration.DialectPostgres
	default:
		// The in-memory provider has no schema.
		return nil
	}
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sub, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("failed to access %s migrations: %w", dir, err)
	}
	runner := migration.NewRunner(db, sub, dialect)

	currentVersion, err := runner.GetCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}
	latestVersion, err := runner.GetLatestVersion()
	if err != nil {
		return fmt.Errorf("failed to get latest schema version: %w", err)
	}
	if currentVersion < latestVersion {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d", currentVersion, latestVersion)
	}
	return nil
}

func checkCacheIntegrity(ctx *Context) error {
	habits, err := ctx.Cache.Load()
	if err != nil {
		return err
	}

	ids := make(map[string]bool, len(habits))
	for _, h := range habits {
		if ids[h.ID] {
			return fmt.Errorf("duplicate habit ID found: %s", h.ID)
		}
		ids[h.ID] = true
		if err := h.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func checkClockTimezone(ctx *Context) error {
	now := ctx.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	if _, err := ctx.Config.Location(); err != nil {
		return err
	}
	if now.Location() == time.UTC {
		ctx.printf("   Note: timezone is UTC\n")
	}
	return nil
}

func checkAPIReachable(ctx *Context) error {
	if _, err := ctx.Client.ListHabits(ctx.Ctx); err != nil {
		if apperrors.IsUnauthorized(err) {
			return fmt.Errorf("stored token was rejected; run 'habitpilot login' again")
		}
		return fmt.Errorf("%s: %w", apperrors.KindOf(err), err)
	}
	return nil
}
