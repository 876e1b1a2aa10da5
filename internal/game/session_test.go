package game

import (
	"context"
	"testing"
	"time"

	"ctf-tracker/internal/config"
	"ctf-tracker/internal/domain"
	"ctf-tracker/internal/progression"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubStore struct{}

func (stubStore) Load(_ context.Context, _ string) (*domain.ProgressionSnapshot, error) {
	return nil, nil
}

func (stubStore) Save(_ context.Context, _ domain.ProgressionSnapshot) error { return nil }

func (stubStore) AppendMatchHistory(_ context.Context, _ domain.MatchHistory) error { return nil }

type stubNotifier struct{}

func (stubNotifier) CaptureScored(_ string, _ domain.TeamColor, _ string, _ int) {}

func (stubNotifier) MatchEnded(_ string, _ string, _ [domain.NumTeams]int) {}

func testConfig() *config.Config {
	return &config.Config{
		MinPlayersPerTeam: 1,
		WinThreshold:      3,
		Countdown:         30 * time.Second,
		MatchDuration:     10 * time.Minute,
		EndingDisplay:     10 * time.Second,
	}
}

func newTestSession(t *testing.T) (*Session, *progression.Manager) {
	t.Helper()

	prog := progression.NewManager(stubStore{}, zerolog.Nop())
	sess, err := newSession("nexus", testConfig(), prog, stubNotifier{}, zerolog.Nop())
	require.NoError(t, err)

	return sess, prog
}

func join(t *testing.T, sess *Session, playerID string, team domain.TeamColor) {
	t.Helper()
	require.NoError(t, sess.apply(Event{Type: EventPlayerJoin, Player: playerID, Team: team}))
}

func TestSessionQuotaStartsCountdown(t *testing.T) {
	sess, _ := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	require.Equal(t, PhaseWaiting, sess.Snapshot(time.Now()).Phase)

	join(t, sess, "bob", domain.TeamBlue)
	snap := sess.Snapshot(time.Now())
	require.Equal(t, PhaseStarting, snap.Phase)
	require.Greater(t, snap.TimeLeft, time.Duration(0))
}

func TestSessionForceStart(t *testing.T) {
	sess, _ := newTestSession(t)

	// Forcing only works while the countdown runs.
	err := sess.apply(Event{Type: EventForceStart})
	require.ErrorIs(t, err, ErrInvalidState)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)
	require.NoError(t, sess.apply(Event{Type: EventForceStart}))
	require.Equal(t, PhaseInProgress, sess.Snapshot(time.Now()).Phase)
}

func TestSessionCountdownExpiresIntoProgress(t *testing.T) {
	sess, _ := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)

	sess.onTick(time.Now().Add(31 * time.Second))
	require.Equal(t, PhaseInProgress, sess.Snapshot(time.Now()).Phase)
}

func TestSessionJoinTwice(t *testing.T) {
	sess, _ := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	err := sess.apply(Event{Type: EventPlayerJoin, Player: "alice", Team: domain.TeamRed})
	require.ErrorIs(t, err, progression.ErrAlreadyBound)
}

func TestSessionKillRequiresProgress(t *testing.T) {
	sess, prog := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)

	err := sess.apply(Event{Type: EventKill, Player: "alice", Victim: "bob"})
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, sess.apply(Event{Type: EventForceStart}))
	require.NoError(t, sess.apply(Event{Type: EventKill, Player: "alice", Victim: "bob"}))

	snap := sess.Snapshot(time.Now())
	require.Equal(t, 1, snap.TeamKills[domain.TeamRed])
	require.Equal(t, 0, snap.TeamKills[domain.TeamBlue])

	killer, ok := prog.View("alice")
	require.True(t, ok)
	require.Equal(t, 1, killer.Kills)
	victim, ok := prog.View("bob")
	require.True(t, ok)
	require.Equal(t, 1, victim.Deaths)
}

func TestSessionCaptureFlow(t *testing.T) {
	sess, prog := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)
	require.NoError(t, sess.apply(Event{Type: EventForceStart}))

	// Capture without carrying anything is a contract violation.
	err := sess.apply(Event{Type: EventCapture, Player: "alice"})
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, sess.apply(Event{Type: EventFlagPickup, Player: "alice", FlagTeam: domain.TeamBlue}))
	view, ok := prog.View("alice")
	require.True(t, ok)
	require.True(t, view.Carrying)

	require.NoError(t, sess.apply(Event{Type: EventCapture, Player: "alice"}))

	snap := sess.Snapshot(time.Now())
	require.Equal(t, 1, snap.Score[domain.TeamRed])
	require.Equal(t, FlagAtBase, sess.flags[domain.TeamBlue].State())

	view, _ = prog.View("alice")
	require.False(t, view.Carrying)
	require.Equal(t, 1, view.Captures)
}

func TestSessionWinThresholdEndsMatch(t *testing.T) {
	sess, _ := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)
	require.NoError(t, sess.apply(Event{Type: EventForceStart}))

	for i := 0; i < 3; i++ {
		require.NoError(t, sess.apply(Event{Type: EventFlagPickup, Player: "alice", FlagTeam: domain.TeamBlue}))
		require.NoError(t, sess.apply(Event{Type: EventCapture, Player: "alice"}))
	}

	snap := sess.Snapshot(time.Now())
	require.Equal(t, PhaseEnding, snap.Phase)
	require.Equal(t, 3, snap.Score[domain.TeamRed])
	require.NotNil(t, sess.winner)
	require.Equal(t, domain.TeamRed, *sess.winner)
}

func TestSessionEndingDestroysAndUnbinds(t *testing.T) {
	sess, prog := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)
	require.NoError(t, sess.apply(Event{Type: EventForceStart}))

	for i := 0; i < 3; i++ {
		require.NoError(t, sess.apply(Event{Type: EventFlagPickup, Player: "alice", FlagTeam: domain.TeamBlue}))
		require.NoError(t, sess.apply(Event{Type: EventCapture, Player: "alice"}))
	}

	sess.onTick(time.Now().Add(time.Minute))
	require.True(t, sess.isDestroyed())

	winner, ok := prog.View("alice")
	require.True(t, ok)
	require.False(t, winner.Bound)
	require.Equal(t, 1, winner.GamesPlayed)
	require.Equal(t, 1, winner.GamesWon)

	loser, ok := prog.View("bob")
	require.True(t, ok)
	require.Equal(t, 1, loser.GamesPlayed)
	require.Equal(t, 0, loser.GamesWon)
}

func TestSessionTimerExpiryPicksLeader(t *testing.T) {
	sess, _ := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)
	require.NoError(t, sess.apply(Event{Type: EventForceStart}))

	require.NoError(t, sess.apply(Event{Type: EventFlagPickup, Player: "alice", FlagTeam: domain.TeamBlue}))
	require.NoError(t, sess.apply(Event{Type: EventCapture, Player: "alice"}))

	sess.onTick(time.Now().Add(11 * time.Minute))
	require.Equal(t, PhaseEnding, sess.Snapshot(time.Now()).Phase)
	require.NotNil(t, sess.winner)
	require.Equal(t, domain.TeamRed, *sess.winner)
}

func TestSessionTimerExpiryTieHasNoWinner(t *testing.T) {
	sess, _ := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)
	require.NoError(t, sess.apply(Event{Type: EventForceStart}))

	sess.onTick(time.Now().Add(11 * time.Minute))
	require.Equal(t, PhaseEnding, sess.Snapshot(time.Now()).Phase)
	require.Nil(t, sess.winner)
}

func TestSessionAbandonmentEndsMatch(t *testing.T) {
	sess, _ := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)
	require.NoError(t, sess.apply(Event{Type: EventForceStart}))

	require.NoError(t, sess.apply(Event{Type: EventPlayerLeave, Player: "bob"}))

	require.Equal(t, PhaseEnding, sess.Snapshot(time.Now()).Phase)
	require.NotNil(t, sess.winner)
	require.Equal(t, domain.TeamRed, *sess.winner)
}

func TestSessionLeaveUnknownPlayer(t *testing.T) {
	sess, _ := newTestSession(t)

	err := sess.apply(Event{Type: EventPlayerLeave, Player: "ghost"})
	require.ErrorIs(t, err, progression.ErrNotBound)
}

func TestSessionLeaveDropsCarriedFlag(t *testing.T) {
	sess, _ := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	join(t, sess, "bob", domain.TeamBlue)
	require.NoError(t, sess.apply(Event{Type: EventForceStart}))

	require.NoError(t, sess.apply(Event{Type: EventFlagPickup, Player: "bob", FlagTeam: domain.TeamRed}))
	require.NoError(t, sess.apply(Event{Type: EventPlayerLeave, Player: "bob"}))

	require.Equal(t, FlagAtBase, sess.flags[domain.TeamRed].State())
}

func TestSessionStopTearsDown(t *testing.T) {
	sess, prog := newTestSession(t)

	join(t, sess, "alice", domain.TeamRed)
	require.NoError(t, sess.apply(Event{Type: EventStop}))
	require.Equal(t, PhaseEnding, sess.Snapshot(time.Now()).Phase)

	// A second stop during the display interval destroys immediately; the
	// teardown counts as a loss for everyone.
	require.NoError(t, sess.apply(Event{Type: EventStop}))
	require.True(t, sess.isDestroyed())

	view, ok := prog.View("alice")
	require.True(t, ok)
	require.Equal(t, 1, view.GamesPlayed)
	require.Equal(t, 0, view.GamesWon)
}

func TestSessionRunAppliesEvents(t *testing.T) {
	sess, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	require.NoError(t, sess.Apply(ctx, Event{Type: EventPlayerJoin, Player: "alice", Team: domain.TeamRed}))
	require.NoError(t, sess.Apply(ctx, Event{Type: EventPlayerJoin, Player: "bob", Team: domain.TeamBlue}))
	require.Equal(t, PhaseStarting, sess.Snapshot(time.Now()).Phase)

	require.NoError(t, sess.Apply(ctx, Event{Type: EventStop}))
	require.NoError(t, sess.Apply(ctx, Event{Type: EventStop}))

	err := sess.Apply(ctx, Event{Type: EventPlayerJoin, Player: "carol", Team: domain.TeamRed})
	require.ErrorIs(t, err, ErrSessionClosed)
}
