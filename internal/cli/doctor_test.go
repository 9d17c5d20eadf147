package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/julianstephens/habitpilot/internal/config"
	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/storage/sqlite"
)

func TestDoctorCmd_HealthyMemoryCache(t *testing.T) {
	env := setupTestContext(t, nil)
	env.login(t)

	if err := (&DoctorCmd{}).Run(env.ctx); err != nil {
		t.Fatalf("doctor failed on healthy setup: %v\n%s", err, env.out.String())
	}
	out := env.out.String()
	for _, want := range []string{"Cache storage reachable: OK", "API reachable: OK", "OS keyring: OK", "All critical checks passed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDoctorCmd_HealthySQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	env := setupTestContext(t, func(c *config.Config) { c.Cache = dbPath })

	if err := (&DoctorCmd{Offline: true}).Run(env.ctx); err != nil {
		t.Fatalf("doctor failed on fresh sqlite cache: %v\n%s", err, env.out.String())
	}
	if !strings.Contains(env.out.String(), "Migrations complete: OK") {
		t.Errorf("expected migrations check to pass:\n%s", env.out.String())
	}
	if !strings.Contains(env.out.String(), "API reachable: SKIPPED") {
		t.Errorf("expected API check skipped:\n%s", env.out.String())
	}
}

func TestDoctorCmd_BrokenSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	env := setupTestContext(t, func(c *config.Config) { c.Cache = dbPath })

	db := env.ctx.Storage.(*sqlite.Store).GetDB()
	if db == nil {
		t.Fatal("database connection is nil")
	}
	if _, err := db.Exec("DELETE FROM schema_version"); err != nil {
		t.Fatalf("failed to corrupt schema version: %v", err)
	}

	if err := (&DoctorCmd{Offline: true}).Run(env.ctx); err == nil {
		t.Fatal("expected doctor to fail with missing schema version")
	}
	if !strings.Contains(env.out.String(), "Migrations complete: FAIL") {
		t.Errorf("expected migrations failure:\n%s", env.out.String())
	}
}

func TestDoctorCmd_DuplicateCachedHabits(t *testing.T) {
	env := setupTestContext(t, nil)

	h := models.NewDraft("Dup").ToHabit()
	if err := env.ctx.Cache.Save([]models.Habit{h, h}); err != nil {
		t.Fatal(err)
	}

	if err := (&DoctorCmd{Offline: true}).Run(env.ctx); err == nil {
		t.Fatal("expected doctor to fail on duplicate cached habits")
	}
	if !strings.Contains(env.out.String(), "duplicate habit ID") {
		t.Errorf("expected duplicate error:\n%s", env.out.String())
	}
}

func TestDoctorCmd_RejectedTokenIsWarning(t *testing.T) {
	env := setupTestContext(t, nil)
	env.login(t)
	env.server.SetUnauthorized(true)

	if err := (&DoctorCmd{}).Run(env.ctx); err != nil {
		t.Fatalf("a rejected token should only warn: %v", err)
	}
	if !strings.Contains(env.out.String(), "run 'habitpilot login' again") {
		t.Errorf("expected login hint:\n%s", env.out.String())
	}
}
