package progression

import (
	"testing"

	"ctf-tracker/internal/domain"

	"github.com/stretchr/testify/require"
)

func testBinding() Binding {
	return Binding{SessionID: "s1", Arena: "nexus", Team: domain.TeamRed}
}

func TestRecordKDRatioNeverDividesByZero(t *testing.T) {
	v := View{Kills: 5, Deaths: 0, TotalKills: 5, TotalDeaths: 0}
	require.InDelta(t, 5.0, v.KDRatio(), 0.001)
	require.InDelta(t, 5.0, v.TotalKDRatio(), 0.001)

	v = View{Kills: 7, Deaths: 2}
	require.InDelta(t, 3.5, v.KDRatio(), 0.001)
}

func TestRecordWinRateZeroGames(t *testing.T) {
	require.Equal(t, 0.0, View{}.WinRate())
	require.InDelta(t, 0.25, View{GamesPlayed: 4, GamesWon: 1}.WinRate(), 0.001)
}

func TestRecordJoinResetsSessionCounters(t *testing.T) {
	rec := newRecord("alice")
	rec.merge(&domain.ProgressionSnapshot{PlayerID: "alice", TotalKills: 40})

	require.NoError(t, rec.join(testBinding()))
	rec.addKill()
	_, err := rec.leave(false)
	require.NoError(t, err)

	require.NoError(t, rec.join(testBinding()))
	v := rec.View()
	require.Equal(t, 0, v.Kills)
	require.Equal(t, 41, v.TotalKills)
}

func TestRecordDoubleJoin(t *testing.T) {
	rec := newRecord("alice")
	require.NoError(t, rec.join(testBinding()))

	err := rec.join(testBinding())
	require.ErrorIs(t, err, ErrAlreadyBound)
}

func TestRecordLeaveFoldsWithoutDoubleCounting(t *testing.T) {
	rec := newRecord("alice")
	require.NoError(t, rec.join(testBinding()))

	rec.addKill()
	rec.addKill()
	rec.addKill()
	rec.addDeath()
	rec.addCapture()
	rec.addCapture()

	hist, err := rec.leave(true)
	require.NoError(t, err)
	require.Equal(t, "nexus", hist.Arena)
	require.Equal(t, 3, hist.Kills)
	require.True(t, hist.Won)

	v := rec.View()
	require.Equal(t, 3, v.TotalKills)
	require.Equal(t, 1, v.TotalDeaths)
	require.Equal(t, 2, v.TotalCaptures)
	require.Equal(t, 1, v.GamesPlayed)
	require.Equal(t, 1, v.GamesWon)
	require.Equal(t, 0, v.Kills)
	require.False(t, v.Bound)

	// Leaving an unbound record is a contract violation, not a silent
	// double fold.
	_, err = rec.leave(true)
	require.ErrorIs(t, err, ErrNotBound)

	v = rec.View()
	require.Equal(t, 3, v.TotalKills)
	require.Equal(t, 1, v.GamesPlayed)
}

func TestRecordExperienceRaisesLevel(t *testing.T) {
	rec := newRecord("alice")
	require.Equal(t, 1, rec.View().Level)

	require.NoError(t, rec.join(testBinding()))
	// 7 captures = 700 XP, past the level 4 requirement of 600.
	for i := 0; i < 7; i++ {
		rec.addCapture()
	}

	v := rec.View()
	require.Equal(t, 700, v.Experience)
	require.Equal(t, 4, v.Level)
}

func TestRecordMergePreservesSessionState(t *testing.T) {
	rec := newRecord("alice")
	require.NoError(t, rec.join(testBinding()))
	rec.addKill()

	// Durable snapshot arrives after the session already started.
	rec.merge(&domain.ProgressionSnapshot{
		PlayerID:    "alice",
		Experience:  250,
		TotalKills:  10,
		GamesPlayed: 4,
		GamesWon:    2,
	})

	v := rec.View()
	require.Equal(t, 1, v.Kills)
	require.Equal(t, 10+1, v.TotalKills)
	require.Equal(t, 4, v.GamesPlayed)
	require.True(t, v.Bound)
	require.Equal(t, 2, v.Level)
}

func TestRecordFlushableOnlyAfterMerge(t *testing.T) {
	rec := newRecord("alice")
	_, _, flushable := rec.flushSnapshot()
	require.False(t, flushable)

	// Session mutations before the durable snapshot arrives must not be
	// written out: the save would replace the stored counters.
	rec.addKill()
	_, _, flushable = rec.flushSnapshot()
	require.False(t, flushable)
	require.True(t, rec.pendingLoad())

	rec.merge(&domain.ProgressionSnapshot{PlayerID: "alice", TotalKills: 40})
	snap, gen, flushable := rec.flushSnapshot()
	require.True(t, flushable)
	require.False(t, rec.pendingLoad())
	require.Equal(t, 40, snap.TotalKills)

	rec.markClean(gen)
	_, _, flushable = rec.flushSnapshot()
	require.False(t, flushable)
}

func TestRecordNewPlayerFlushableAfterMutation(t *testing.T) {
	rec := newRecord("bob")
	rec.merge(nil)

	_, _, flushable := rec.flushSnapshot()
	require.False(t, flushable)

	rec.addKill()
	_, _, flushable = rec.flushSnapshot()
	require.True(t, flushable)
}

func TestRecordDirtyGeneration(t *testing.T) {
	rec := newRecord("alice")
	rec.merge(nil)
	require.NoError(t, rec.join(testBinding()))
	rec.addKill()

	snap, gen, dirty := rec.flushSnapshot()
	require.True(t, dirty)
	require.Equal(t, "alice", snap.PlayerID)

	// A mutation between snapshot and save keeps the record dirty.
	rec.addCapture()
	rec.markClean(gen)
	_, _, dirty = rec.flushSnapshot()
	require.True(t, dirty)

	snap2, gen2, _ := rec.flushSnapshot()
	rec.markClean(gen2)
	_, _, dirty = rec.flushSnapshot()
	require.False(t, dirty)
	require.Greater(t, snap2.Experience, snap.Experience)
}
