package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/julianstephens/habitpilot/internal/cli"
	"github.com/julianstephens/habitpilot/internal/config"
	"github.com/julianstephens/habitpilot/internal/constants"
	apperrors "github.com/julianstephens/habitpilot/internal/errors"
	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/session"
	"github.com/julianstephens/habitpilot/internal/storage"
)

var CLI struct {
	Version kong.VersionFlag
	Config  config.Config `embed:""`

	Status  cli.StatusCmd  `cmd:"" help:"Show session, habit and cache status." default:"1"`
	Login   cli.LoginCmd   `cmd:"" help:"Store an API token and load your habits."`
	Logout  cli.LogoutCmd  `cmd:"" help:"Forget the API token and clear local habits."`
	Refresh cli.RefreshCmd `cmd:"" help:"Reload habits from the server."`
	Habit   cli.HabitCmd   `cmd:"" help:"Manage habits."`
	Goal    cli.GoalCmd    `cmd:"" help:"Manage goals that span habits."`
	Remind  cli.RemindCmd  `cmd:"" help:"Habit reminders."`
	Cache   cli.CacheCmd   `cmd:"" help:"Inspect or clear the offline cache."`
	Doctor  cli.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	Debug   cli.DebugCmd   `cmd:"" help:"Debug commands for troubleshooting."`

	DevServer cli.DevServerCmd `cmd:"" name:"dev-server" hidden:"" help:"Run an in-memory API for local development."`
}

func main() {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	vars := kong.Vars{"version": constants.Version}
	for k, v := range config.Vars() {
		vars[k] = v
	}

	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Offline-first habit tracker with streaks, goals and reminders"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		vars,
	)

	cfg := CLI.Config
	if err := cfg.Validate(); err != nil {
		apperrors.Fatal(err)
	}

	configDir, err := cfg.ConfigDir()
	if err != nil {
		apperrors.Fatal(err)
	}
	if err := logger.Init(logger.Config{Debug: cfg.Debug, ConfigDir: configDir}); err != nil {
		apperrors.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The dev server has no local state to open.
	if kctx.Command() == "dev-server" {
		err := kctx.Run(&cli.Context{Ctx: ctx, Config: cfg, Out: os.Stdout, Now: time.Now})
		stop()
		apperrors.Fatal(err)
		return
	}

	dsn, err := cfg.CacheDSN()
	if err != nil {
		apperrors.Fatal(err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		apperrors.Fatal(err)
	}

	sessions := session.NewManager(session.NewBroker(), session.WithKeyringUser(cfg.Profile))
	appCtx, err := cli.NewContext(ctx, cfg, store, sessions)
	if err != nil {
		store.Close()
		apperrors.Fatal(err)
	}

	err = kctx.Run(appCtx)
	if cerr := store.Close(); cerr != nil {
		logger.Warn("Failed to close cache storage", "error", cerr)
	}
	stop()
	apperrors.Fatal(err)
}
