package domain

import (
	"fmt"
	"strings"
	"time"
)

// TeamColor identifies one of the two participating teams. It is used as an
// array index everywhere team-scoped tallies are stored, so values must stay
// dense and zero-based.
type TeamColor int

const (
	TeamRed TeamColor = iota
	TeamBlue

	// NumTeams sizes per-team arrays.
	NumTeams = 2
)

func (t TeamColor) String() string {
	switch t {
	case TeamRed:
		return "red"
	case TeamBlue:
		return "blue"
	default:
		return "unknown"
	}
}

// Hex returns the display color used by external overlays.
func (t TeamColor) Hex() string {
	switch t {
	case TeamRed:
		return "#ff5555"
	case TeamBlue:
		return "#5555ff"
	default:
		return "#ffffff"
	}
}

func (t TeamColor) Valid() bool {
	return t >= TeamRed && t < NumTeams
}

func ParseTeamColor(s string) (TeamColor, error) {
	switch strings.ToLower(s) {
	case "red":
		return TeamRed, nil
	case "blue":
		return TeamBlue, nil
	default:
		return 0, fmt.Errorf("unknown team color: %q", s)
	}
}

// Teams lists every team color in ordinal order.
func Teams() []TeamColor {
	return []TeamColor{TeamRed, TeamBlue}
}

// ProgressionSnapshot is the durable slice of a player's progression record:
// level, experience and the cumulative counters. Session counters are never
// persisted.
type ProgressionSnapshot struct {
	PlayerID      string
	Level         int
	Experience    int
	TotalKills    int
	TotalDeaths   int
	TotalCaptures int
	TotalReturns  int
	GamesPlayed   int
	GamesWon      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MatchHistory is one per-player row recorded when a session ends.
type MatchHistory struct {
	ID        string // nanoid
	PlayerID  string
	Arena     string
	Team      TeamColor
	Kills     int
	Deaths    int
	Captures  int
	Returns   int
	Won       bool
	EndedAt   time.Time
	CreatedAt time.Time
}

type Rarity int

const (
	RarityCommon Rarity = iota
	RarityRare
	RarityEpic
	RarityLegendary
)

func (r Rarity) String() string {
	switch r {
	case RarityCommon:
		return "common"
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legendary"
	default:
		return "unknown"
	}
}

type Cosmetic struct {
	ID        string
	Name      string
	Rarity    Rarity
	CreatedAt time.Time
}
