package game

import (
	"testing"

	"ctf-tracker/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestFlagPickUp(t *testing.T) {
	flag := NewFlag(domain.TeamRed)
	require.Equal(t, FlagAtBase, flag.State())

	require.NoError(t, flag.PickUp("alice"))
	require.Equal(t, FlagCarried, flag.State())
	carrier, carried := flag.Carrier()
	require.True(t, carried)
	require.Equal(t, "alice", carrier)

	// A carried flag cannot be picked up again.
	err := flag.PickUp("bob")
	require.ErrorIs(t, err, ErrInvalidState)
	carrier, _ = flag.Carrier()
	require.Equal(t, "alice", carrier)
}

func TestFlagPickUpFromDropped(t *testing.T) {
	flag := NewFlag(domain.TeamBlue)
	require.NoError(t, flag.PickUp("alice"))

	carrier, err := flag.Drop()
	require.NoError(t, err)
	require.Equal(t, "alice", carrier)
	require.Equal(t, FlagDropped, flag.State())

	require.NoError(t, flag.PickUp("bob"))
	require.Equal(t, FlagCarried, flag.State())
}

func TestFlagDropRequiresCarrier(t *testing.T) {
	flag := NewFlag(domain.TeamRed)

	_, err := flag.Drop()
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, flag.PickUp("alice"))
	_, err = flag.Drop()
	require.NoError(t, err)

	_, err = flag.Drop()
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestFlagReturnToBaseFromAnyState(t *testing.T) {
	flag := NewFlag(domain.TeamRed)

	flag.ReturnToBase()
	require.Equal(t, FlagAtBase, flag.State())

	require.NoError(t, flag.PickUp("alice"))
	flag.ReturnToBase()
	require.Equal(t, FlagAtBase, flag.State())
	_, carried := flag.Carrier()
	require.False(t, carried)
}
