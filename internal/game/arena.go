package game

import (
	"fmt"
	"time"

	"ctf-tracker/internal/domain"
)

type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseStarting
	PhaseInProgress
	PhaseEnding
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseStarting:
		return "starting"
	case PhaseInProgress:
		return "in_progress"
	case PhaseEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Arena holds the per-match mutable state of a venue. Per-team tallies are
// fixed-size arrays indexed by team ordinal, so every team has a defined
// zero tally from the moment the arena exists. Mutation happens only on the
// owning session loop.
type Arena struct {
	name      string
	phase     Phase
	score     [domain.NumTeams]int
	teamKills [domain.NumTeams]int
	// deadline is the absolute end of the current phase; zero means the
	// phase has no timer.
	deadline time.Time
}

func NewArena(name string) *Arena {
	return &Arena{name: name, phase: PhaseWaiting}
}

func (a *Arena) Name() string {
	return a.name
}

func (a *Arena) Phase() Phase {
	return a.phase
}

func (a *Arena) Score(team domain.TeamColor) int {
	return a.score[team]
}

func (a *Arena) Kills(team domain.TeamColor) int {
	return a.teamKills[team]
}

func (a *Arena) addCapture(team domain.TeamColor) int {
	a.score[team]++
	return a.score[team]
}

func (a *Arena) addKill(team domain.TeamColor) {
	a.teamKills[team]++
}

func (a *Arena) setPhase(phase Phase, deadline time.Time) {
	a.phase = phase
	a.deadline = deadline
}

// TimeLeft recomputes the remaining phase time from the deadline so delayed
// ticks cannot drift the clock.
func (a *Arena) TimeLeft(now time.Time) time.Duration {
	if a.deadline.IsZero() {
		return 0
	}
	left := a.deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// FormatClock renders a duration as mm:ss, rounding up so a running clock
// never shows 00:00 while time remains.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Snapshot is a consistent read-only copy of an arena plus its session
// occupancy, safe to hand to any goroutine.
type Snapshot struct {
	SessionID string
	Name      string
	Phase     Phase
	Score     [domain.NumTeams]int
	TeamKills [domain.NumTeams]int
	TimeLeft  time.Duration
	Players   int
}

func (s Snapshot) Clock() string {
	return FormatClock(s.TimeLeft)
}
