package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/julianstephens/habitpilot/internal/fakeapi"
	"github.com/julianstephens/habitpilot/internal/logger"
	"github.com/julianstephens/habitpilot/internal/models"
)

// DevServerCmd runs the in-memory API locally so the CLI can be tried
// without a real backend.
type DevServerCmd struct {
	Addr  string `help:"Listen address." default:"127.0.0.1:8787"`
	Token string `help:"Bearer token the server accepts." env:"HABITPILOT_DEV_TOKEN" default:"dev-token"`
	Seed  bool   `help:"Start with a few example habits."`
}

func (c *DevServerCmd) Run(ctx *Context) error {
	srv := fakeapi.New()
	srv.SetToken(c.Token)
	if c.Seed {
		srv.Seed(sampleHabits()...)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server := &http.Server{
		Addr:         c.Addr,
		Handler:      srv.DevHandler(reg, ctx.Out),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx.printf("Dev API listening on http://%s (token %q, metrics at /metrics)\n", c.Addr, c.Token)
	logger.Info("Dev server started", "addr", c.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Dev server stopped")
	return nil
}

func sampleHabits() []models.Habit {
	read := models.NewDraft("Read 20 pages").ToHabit()
	read.Description = "Any book counts"
	read.NotificationTime = "21:00"

	water := models.NewDraft("Drink water").ToHabit()
	water.Type = models.HabitTypeIncremental
	water.DailyTarget = 8
	water.ColorHex = "#0EA5E9"

	stretch := models.NewDraft("Stretch").ToHabit()
	stretch.Frequency = models.Frequency{Kind: models.FrequencyWeekdays}
	stretch.NotificationTime = "07:30"
	stretch.ColorHex = "#22C55E"

	return []models.Habit{read, water, stretch}
}
