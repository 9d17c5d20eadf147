package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/utils"
)

type HabitCmd struct {
	Add      HabitAddCmd      `cmd:"" help:"Add a new habit."`
	List     HabitListCmd     `cmd:"" help:"List habits."`
	Edit     HabitEditCmd     `cmd:"" help:"Edit an existing habit."`
	Delete   HabitDeleteCmd   `cmd:"" help:"Delete a habit."`
	Done     HabitDoneCmd     `cmd:"" help:"Toggle today's completion of a habit."`
	Progress HabitProgressCmd `cmd:"" help:"Add one unit of progress to an incremental habit."`
	Enable   HabitEnableCmd   `cmd:"" help:"Enable a habit and its reminder."`
	Disable  HabitDisableCmd  `cmd:"" help:"Disable a habit and cancel its reminder."`
}

type HabitAddCmd struct {
	Name        string `arg:"" optional:"" help:"Habit name."`
	Description string `help:"Habit description."`
	Type        string `help:"Habit type (simple or incremental)." enum:"simple,incremental" default:"simple"`
	Target      int    `help:"Daily target for incremental habits." default:"1"`
	Time        string `help:"Reminder time in HH:MM format."`
	Frequency   string `help:"Frequency: daily, weekdays, or custom."`
	Days        string `help:"Comma-separated weekdays for a custom frequency (e.g., mon,wed,fri)."`
	Color       string `help:"Hex color." default:"#4F46E5"`
	Interactive bool   `short:"i" help:"Fill in the habit with an interactive form."`
}

func (c *HabitAddCmd) Run(ctx *Context) error {
	if !ctx.Habits.CanAddMoreHabits() {
		return fmt.Errorf("habit limit reached (%d); enable unlimited habits to add more", ctx.Config.FreeLimit)
	}

	if c.Interactive {
		fm := &habitFormModel{
			Name:        c.Name,
			Description: c.Description,
			Type:        c.Type,
			Target:      strconv.Itoa(c.Target),
			Time:        c.Time,
			Frequency:   string(models.FrequencyDaily),
			Days:        c.Days,
		}
		if err := newHabitForm(fm).Run(); err != nil {
			return err
		}
		target, err := strconv.Atoi(strings.TrimSpace(fm.Target))
		if err != nil {
			return fmt.Errorf("invalid target %q", fm.Target)
		}
		c.Name, c.Description, c.Type, c.Target = fm.Name, fm.Description, fm.Type, target
		c.Time, c.Frequency, c.Days = fm.Time, fm.Frequency, fm.Days
		if c.Frequency != string(models.FrequencyCustom) {
			c.Days = ""
		}
	}

	draft, err := c.draft()
	if err != nil {
		return err
	}

	habit, ok := ctx.Habits.Create(ctx.Ctx, draft)
	if !ok {
		return fmt.Errorf("habit limit reached (%d); enable unlimited habits to add more", ctx.Config.FreeLimit)
	}

	ctx.printf("Added habit: %s %s\n", habit.Name, mutedStyle.Render(shortID(habit.ID)))
	return nil
}

func (c *HabitAddCmd) draft() (models.HabitDraft, error) {
	if strings.TrimSpace(c.Name) == "" {
		return models.HabitDraft{}, fmt.Errorf("habit name cannot be empty")
	}
	if c.Time != "" && !utils.ValidateTimeFormat(c.Time) {
		return models.HabitDraft{}, fmt.Errorf("invalid time format: %s (expected HH:MM)", c.Time)
	}
	freq, err := ParseFrequency(c.Frequency, c.Days)
	if err != nil {
		return models.HabitDraft{}, err
	}

	draft := models.NewDraft(strings.TrimSpace(c.Name))
	draft.Description = c.Description
	draft.Type = models.HabitType(c.Type)
	draft.Frequency = freq
	draft.NotificationTime = c.Time
	if c.Color != "" {
		draft.ColorHex = c.Color
	}
	if draft.Type == models.HabitTypeIncremental {
		draft.DailyTarget = c.Target
	}

	if err := draft.ToHabit().Validate(); err != nil {
		return models.HabitDraft{}, err
	}
	return draft, nil
}

type HabitListCmd struct {
	Type    string `help:"Only show habits of this type." enum:",simple,incremental" default:""`
	Enabled bool   `help:"Only show enabled habits."`
}

func (c *HabitListCmd) Run(ctx *Context) error {
	var habits []models.Habit
	switch {
	case c.Type != "":
		habits = ctx.Habits.HabitsOfType(models.HabitType(c.Type))
	case c.Enabled:
		habits = ctx.Habits.EnabledHabits()
	default:
		habits = ctx.Habits.Habits()
	}
	if c.Type != "" && c.Enabled {
		habits = enabledOnly(habits)
	}

	if len(habits) == 0 {
		ctx.println("No habits found.")
		return nil
	}

	now := ctx.Now()
	limit := strconv.Itoa(ctx.Config.FreeLimit)
	if ctx.Config.Unlimited {
		limit = "∞"
	}
	ctx.println(titleStyle.Render(fmt.Sprintf("Habits (%d/%s)", ctx.Habits.Len(), limit)))
	for _, h := range habits {
		ctx.println(habitLine(h, h.CompletedToday(now)))
		ctx.printf("    %s\n", mutedStyle.Render(describeSchedule(h)))
	}
	ctx.printf("\nCompleted today: %d\n", ctx.Habits.CompletedTodayCount())
	return nil
}

func enabledOnly(habits []models.Habit) []models.Habit {
	out := habits[:0:0]
	for _, h := range habits {
		if h.IsEnabled {
			out = append(out, h)
		}
	}
	return out
}

func describeSchedule(h models.Habit) string {
	s := FormatFrequency(h.Frequency)
	if h.NotificationTime != "" {
		s += " at " + h.NotificationTime
	}
	if h.Description != "" {
		s += " - " + h.Description
	}
	return s
}

type HabitEditCmd struct {
	Habit       string  `arg:"" help:"Habit id, id prefix, or name."`
	Name        string  `help:"New name."`
	Description *string `help:"New description."`
	Target      int     `help:"New daily target (incremental habits)."`
	Time        *string `help:"New reminder time in HH:MM format (empty to clear)."`
	Frequency   string  `help:"New frequency: daily, weekdays, or custom."`
	Days        string  `help:"Weekdays for a custom frequency."`
	Color       string  `help:"New hex color."`
}

func (c *HabitEditCmd) Run(ctx *Context) error {
	habit, err := ctx.ResolveHabit(c.Habit)
	if err != nil {
		return err
	}

	updated, err := c.apply(habit)
	if err != nil {
		return err
	}

	ctx.Habits.Update(ctx.Ctx, updated)
	ctx.printf("Updated habit: %s\n", updated.Name)
	return nil
}

func (c *HabitEditCmd) apply(h models.Habit) (models.Habit, error) {
	if c.Name != "" {
		h.Name = strings.TrimSpace(c.Name)
	}
	if c.Description != nil {
		h.Description = *c.Description
	}
	if c.Target > 0 {
		if !h.IsIncremental() {
			return h, fmt.Errorf("--target only applies to incremental habits")
		}
		h.DailyTarget = c.Target
	}
	if c.Time != nil {
		if *c.Time != "" && !utils.ValidateTimeFormat(*c.Time) {
			return h, fmt.Errorf("invalid time format: %s (expected HH:MM)", *c.Time)
		}
		h.NotificationTime = *c.Time
	}
	if c.Frequency != "" || c.Days != "" {
		freq, err := ParseFrequency(c.Frequency, c.Days)
		if err != nil {
			return h, err
		}
		h.Frequency = freq
	}
	if c.Color != "" {
		h.ColorHex = c.Color
	}
	return h, h.Validate()
}

type HabitDeleteCmd struct {
	Habit string `arg:"" help:"Habit id, id prefix, or name."`
	Yes   bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *HabitDeleteCmd) Run(ctx *Context) error {
	habit, err := ctx.ResolveHabit(c.Habit)
	if err != nil {
		return err
	}

	if !c.Yes {
		ok, err := confirm(fmt.Sprintf("Delete %q? Its streak is lost.", habit.Name))
		if err != nil {
			return err
		}
		if !ok {
			ctx.println("Cancelled.")
			return nil
		}
	}

	ctx.Habits.Delete(ctx.Ctx, habit)
	ctx.printf("Deleted habit: %s\n", habit.Name)
	return nil
}

type HabitDoneCmd struct {
	Habit string `arg:"" help:"Habit id, id prefix, or name."`
}

func (c *HabitDoneCmd) Run(ctx *Context) error {
	habit, err := ctx.ResolveHabit(c.Habit)
	if err != nil {
		return err
	}

	ctx.Habits.ToggleCompletion(ctx.Ctx, habit)

	after, ok := ctx.Habits.Get(habit.ID)
	if !ok {
		return fmt.Errorf("habit %q disappeared during completion", habit.Name)
	}
	if after.CompletedToday(ctx.Now()) {
		ctx.printf("%s %s (streak: %d)\n", okStyle.Render("✓ Completed"), after.Name, after.Streak)
	} else {
		ctx.printf("%s %s (streak: %d)\n", warnStyle.Render("↺ Undone"), after.Name, after.Streak)
	}
	return nil
}

type HabitProgressCmd struct {
	Habit string `arg:"" help:"Habit id, id prefix, or name."`
}

func (c *HabitProgressCmd) Run(ctx *Context) error {
	habit, err := ctx.ResolveHabit(c.Habit)
	if err != nil {
		return err
	}
	if !habit.IsIncremental() {
		return fmt.Errorf("habit %q is not incremental", habit.Name)
	}

	ctx.Habits.IncrementProgress(ctx.Ctx, habit)

	after, _ := ctx.Habits.Get(habit.ID)
	ctx.printf("%s: %d/%d\n", after.Name, after.TodayProgress, after.DailyTarget)
	if after.TargetReached() {
		ctx.println(okStyle.Render("Target reached for today"))
	}
	return nil
}

type HabitEnableCmd struct {
	Habit string `arg:"" help:"Habit id, id prefix, or name."`
}

func (c *HabitEnableCmd) Run(ctx *Context) error {
	return setEnabled(ctx, c.Habit, true)
}

type HabitDisableCmd struct {
	Habit string `arg:"" help:"Habit id, id prefix, or name."`
}

func (c *HabitDisableCmd) Run(ctx *Context) error {
	return setEnabled(ctx, c.Habit, false)
}

func setEnabled(ctx *Context, ref string, enabled bool) error {
	habit, err := ctx.ResolveHabit(ref)
	if err != nil {
		return err
	}
	if habit.IsEnabled != enabled {
		ctx.Habits.ToggleEnabled(ctx.Ctx, habit)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	ctx.printf("Habit %s is %s\n", habit.Name, state)
	return nil
}
