package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/julianstephens/habitpilot/internal/notifier"
	"github.com/julianstephens/habitpilot/internal/utils"
)

type RemindCmd struct {
	List  RemindListCmd  `cmd:"" help:"List scheduled reminders." default:"1"`
	Due   RemindDueCmd   `cmd:"" help:"Fire reminders that are due now."`
	Watch RemindWatchCmd `cmd:"" help:"Keep firing reminders until interrupted."`
}

type RemindListCmd struct{}

func (c *RemindListCmd) Run(ctx *Context) error {
	reminders := ctx.Reminders.Reminders()
	if len(reminders) == 0 {
		ctx.println("No reminders scheduled.")
		return nil
	}
	for _, r := range reminders {
		days := "every day"
		if len(r.Weekdays) > 0 {
			days = utils.FormatWeekdays(r.Weekdays)
		}
		ctx.printf("  %s %s %s %s\n", r.Time, r.HabitName,
			mutedStyle.Render("("+days+", "+string(r.Mode)+")"),
			mutedStyle.Render(shortID(r.HabitID)))
	}
	return nil
}

type RemindDueCmd struct {
	Notify bool `help:"Deliver through the tray app instead of printing."`
}

func (c *RemindDueCmd) Run(ctx *Context) error {
	var d notifier.Deliverer = printDeliverer{out: ctx.Out}
	if c.Notify {
		d = notifier.NewTrayNotifier()
	}

	n := ctx.Reminders.Fire(ctx.Ctx, d, ctx.Now())
	if n == 0 && !c.Notify {
		ctx.println("Nothing due.")
	}
	return nil
}

type RemindWatchCmd struct {
	Interval time.Duration `help:"How often to check for due reminders." default:"30s"`
}

func (c *RemindWatchCmd) Run(ctx *Context) error {
	ctx.printf("Watching reminders every %s, press Ctrl+C to stop\n", c.Interval)
	return ctx.Reminders.Run(ctx.Ctx, notifier.NewTrayNotifier(), c.Interval)
}

// printDeliverer writes reminders to the terminal.
type printDeliverer struct {
	out io.Writer
}

func (p printDeliverer) Deliver(_ context.Context, r notifier.Reminder) error {
	_, err := fmt.Fprintf(p.out, "⏰ %s Time for %s (streak: %d)\n", r.Time, r.HabitName, r.Streak)
	return err
}

var _ notifier.Deliverer = printDeliverer{}
