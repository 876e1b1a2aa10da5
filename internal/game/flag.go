package game

import (
	"errors"
	"fmt"

	"ctf-tracker/internal/domain"
)

// ErrInvalidState reports an operation whose phase, flag-state or binding
// precondition is not met. It surfaces to the mutating caller only, never to
// the query facade.
var ErrInvalidState = errors.New("invalid state")

type FlagState int

const (
	FlagAtBase FlagState = iota
	FlagCarried
	FlagDropped
)

func (s FlagState) String() string {
	switch s {
	case FlagAtBase:
		return "at_base"
	case FlagCarried:
		return "carried"
	case FlagDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Flag is one team's objective. It carries no lock of its own: all mutation
// happens on the owning session loop.
type Flag struct {
	team    domain.TeamColor
	state   FlagState
	carrier string
}

func NewFlag(team domain.TeamColor) *Flag {
	return &Flag{team: team, state: FlagAtBase}
}

func (f *Flag) Team() domain.TeamColor {
	return f.team
}

func (f *Flag) State() FlagState {
	return f.state
}

// Carrier returns the id of the player holding the flag, if any.
func (f *Flag) Carrier() (string, bool) {
	return f.carrier, f.state == FlagCarried
}

// PickUp moves the flag into the carried state. It fails unless the flag is
// at base or dropped.
func (f *Flag) PickUp(playerID string) error {
	if f.state == FlagCarried {
		return fmt.Errorf("%w: %s flag already carried by %s", ErrInvalidState, f.team, f.carrier)
	}

	f.carrier = playerID
	f.state = FlagCarried

	return nil
}

// Drop releases a carried flag onto the ground and returns the former
// carrier.
func (f *Flag) Drop() (string, error) {
	if f.state != FlagCarried {
		return "", fmt.Errorf("%w: %s flag is %s, not carried", ErrInvalidState, f.team, f.state)
	}

	carrier := f.carrier
	f.carrier = ""
	f.state = FlagDropped

	return carrier, nil
}

// ReturnToBase is valid from any state.
func (f *Flag) ReturnToBase() {
	f.carrier = ""
	f.state = FlagAtBase
}
