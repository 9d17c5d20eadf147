package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitpilot/internal/models"
	"github.com/julianstephens/habitpilot/internal/utils"
)

// habitFormModel backs the interactive add form. Numbers are kept as text
// so huh inputs can bind to them.
type habitFormModel struct {
	Name        string
	Description string
	Type        string
	Target      string
	Time        string
	Frequency   string
	Days        string
}

func newHabitForm(fm *habitFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Habit Name").
				Value(&fm.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("habit name cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Description").
				Value(&fm.Description),
			huh.NewSelect[string]().
				Title("Type").
				Options(
					huh.NewOption("Simple (done / not done)", string(models.HabitTypeSimple)),
					huh.NewOption("Incremental (count toward a target)", string(models.HabitTypeIncremental)),
				).
				Value(&fm.Type),
			huh.NewInput().
				Title("Daily Target").
				Value(&fm.Target).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n <= 0 {
						return fmt.Errorf("target must be a positive number")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Reminder Time (HH:MM, empty for default)").
				Value(&fm.Time).
				Validate(func(s string) error {
					if s != "" && !utils.ValidateTimeFormat(s) {
						return fmt.Errorf("invalid time format, use HH:MM")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Frequency").
				Options(
					huh.NewOption("Daily", string(models.FrequencyDaily)),
					huh.NewOption("Weekdays", string(models.FrequencyWeekdays)),
					huh.NewOption("Custom days", string(models.FrequencyCustom)),
				).
				Value(&fm.Frequency),
			huh.NewInput().
				Title("Days (custom only, e.g. mon,wed,fri)").
				Value(&fm.Days),
		),
	).WithTheme(huh.ThemeDracula())
}

func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula()).Run()
	return ok, err
}

func promptToken() (string, error) {
	var token string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Token").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("token cannot be empty")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeDracula()).Run()
	return strings.TrimSpace(token), err
}
