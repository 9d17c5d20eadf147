// Package reconcile resolves disagreements between a locally computed habit
// state and the state the server reports after a complete or undo call.
//
// The policy is drift tolerant: the client's own same-session arithmetic is
// kept when it is within Tolerance of the server's value, since device and
// server calendars can legitimately disagree by a day. Larger drift means a
// missed sync or corrupted local state, and the server value replaces the
// local one. This is a heuristic, not a consistency protocol: repeated drift
// of exactly Tolerance is never corrected.
package reconcile

import (
	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/models"
)

// DefaultTolerance is the largest streak drift the client keeps.
const DefaultTolerance = constants.StreakDriftTolerance

// Winner names the side whose streak value was kept.
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerServer Winner = "server"
)

// Resolve returns remote when |remote-local| > tolerance, otherwise local.
func Resolve(local, remote, tolerance int) int {
	if tolerance < 0 {
		tolerance = 0
	}
	if abs(remote-local) > tolerance {
		return remote
	}
	return local
}

// Outcome describes what Completion did to a record.
type Outcome struct {
	Winner      Winner
	LocalStreak int
	Drift       int
	Changed     bool
}

// Completion applies the server's reply to the local record: the streak
// follows Resolve and today's progress is always taken from the server.
func Completion(local models.Habit, res models.CompletionResult, tolerance int) (models.Habit, Outcome) {
	out := Outcome{
		Winner:      WinnerLocal,
		LocalStreak: local.Streak,
		Drift:       res.Streak - local.Streak,
	}

	merged := local
	merged.Streak = Resolve(local.Streak, res.Streak, tolerance)
	if merged.Streak != local.Streak {
		out.Winner = WinnerServer
	}
	merged.TodayProgress = res.Progress
	merged = merged.Clamp()

	out.Changed = merged.Streak != local.Streak || merged.TodayProgress != local.TodayProgress
	return merged, out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
