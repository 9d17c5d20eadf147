package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitpilot/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// swatch renders a small block in the habit's color. Invalid colors fall
// back to the terminal default.
func swatch(hex string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render("■")
}

func habitLine(h models.Habit, doneToday bool) string {
	mark := mutedStyle.Render("[ ]")
	if doneToday {
		mark = okStyle.Render("[x]")
	}

	name := h.Name
	if !h.IsEnabled {
		name = mutedStyle.Render(name + " (disabled)")
	}

	progress := ""
	if h.IsIncremental() {
		progress = fmt.Sprintf(" %d/%d", h.TodayProgress, h.DailyTarget)
	}

	return fmt.Sprintf("%s %s %s%s  %s %s",
		mark,
		swatch(h.ColorHex),
		name,
		progress,
		mutedStyle.Render(fmt.Sprintf("streak %d", h.Streak)),
		mutedStyle.Render(shortID(h.ID)),
	)
}
