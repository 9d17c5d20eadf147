package cli

import (
	"fmt"
	"strings"

	"github.com/julianstephens/habitpilot/internal/models"
)

type GoalCmd struct {
	Add    GoalAddCmd    `cmd:"" help:"Add a goal."`
	Link   GoalLinkCmd   `cmd:"" help:"Link a habit to a goal."`
	List   GoalListCmd   `cmd:"" help:"List goals."`
	Remove GoalRemoveCmd `cmd:"" help:"Remove a goal."`
}

type GoalAddCmd struct {
	Title  string   `arg:"" help:"Goal title."`
	Target int      `help:"Number of completions needed." default:"30"`
	Habit  []string `help:"Habit to link (id, id prefix, or name). Repeatable."`
}

func (c *GoalAddCmd) Run(ctx *Context) error {
	ids := make([]string, 0, len(c.Habit))
	for _, ref := range c.Habit {
		h, err := ctx.ResolveHabit(ref)
		if err != nil {
			return err
		}
		ids = append(ids, h.ID)
	}

	g, err := ctx.Goals.Add(c.Title, c.Target, ids...)
	if err != nil {
		return err
	}
	ctx.printf("Added goal: %s (0/%d) %s\n", g.Title, g.Target, mutedStyle.Render(shortID(g.ID)))
	return nil
}

type GoalLinkCmd struct {
	Goal  string `arg:"" help:"Goal id, id prefix, or title."`
	Habit string `arg:"" help:"Habit id, id prefix, or name."`
}

func (c *GoalLinkCmd) Run(ctx *Context) error {
	g, err := resolveGoal(ctx, c.Goal)
	if err != nil {
		return err
	}
	h, err := ctx.ResolveHabit(c.Habit)
	if err != nil {
		return err
	}
	if err := ctx.Goals.Link(g.ID, h.ID); err != nil {
		return err
	}
	ctx.printf("Linked %s to %s\n", h.Name, g.Title)
	return nil
}

type GoalListCmd struct{}

func (c *GoalListCmd) Run(ctx *Context) error {
	goals := ctx.Goals.List()
	if len(goals) == 0 {
		ctx.println("No goals found.")
		return nil
	}

	ctx.println(titleStyle.Render("Goals"))
	for _, g := range goals {
		status := fmt.Sprintf("%d/%d", g.Progress, g.Target)
		if g.IsComplete() {
			status = okStyle.Render(status + " done")
		}
		ctx.printf("  %s %s %s\n", g.Title, status, mutedStyle.Render(shortID(g.ID)))

		names := make([]string, 0, len(g.HabitIDs))
		for _, id := range g.HabitIDs {
			if h, ok := ctx.Habits.Get(id); ok {
				names = append(names, h.Name)
			} else {
				names = append(names, shortID(id))
			}
		}
		if len(names) > 0 {
			ctx.printf("    %s\n", mutedStyle.Render("habits: "+strings.Join(names, ", ")))
		}
	}
	return nil
}

type GoalRemoveCmd struct {
	Goal string `arg:"" help:"Goal id, id prefix, or title."`
}

func (c *GoalRemoveCmd) Run(ctx *Context) error {
	g, err := resolveGoal(ctx, c.Goal)
	if err != nil {
		return err
	}
	if err := ctx.Goals.Remove(g.ID); err != nil {
		return err
	}
	ctx.printf("Removed goal: %s\n", g.Title)
	return nil
}

func resolveGoal(ctx *Context, ref string) (models.Goal, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Goal{}, fmt.Errorf("goal reference cannot be empty")
	}
	var matches []models.Goal
	for _, g := range ctx.Goals.List() {
		if g.ID == ref {
			return g, nil
		}
		if strings.HasPrefix(g.ID, ref) || strings.EqualFold(g.Title, ref) {
			matches = append(matches, g)
		}
	}
	switch len(matches) {
	case 0:
		return models.Goal{}, fmt.Errorf("goal %q not found", ref)
	case 1:
		return matches[0], nil
	default:
		return models.Goal{}, fmt.Errorf("goal reference %q is ambiguous (%d matches)", ref, len(matches))
	}
}
