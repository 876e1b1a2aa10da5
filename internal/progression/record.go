package progression

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ctf-tracker/internal/constants"
	"ctf-tracker/internal/domain"
)

var (
	ErrAlreadyBound   = errors.New("player already bound to a session")
	ErrNotBound       = errors.New("player not bound to a session")
	ErrPlayerNotFound = errors.New("player not found")
)

// Binding ties a record to the match session that currently owns it.
type Binding struct {
	SessionID string
	Arena     string
	Team      domain.TeamColor
}

// Record is one player's live progression state: transient session counters
// plus the durable cumulative counters. Mutations come from the owning
// session loop; reads happen from arbitrary goroutines via View.
type Record struct {
	mu sync.RWMutex

	playerID   string
	level      int
	experience int

	kills       int
	deaths      int
	captures    int
	flagReturns int

	totalKills    int
	totalDeaths   int
	totalCaptures int
	totalReturns  int
	gamesPlayed   int
	gamesWon      int

	bound        bool
	binding      Binding
	carrying     bool
	carryingTeam domain.TeamColor

	loaded   bool
	dirty    bool
	dirtyGen uint64

	createdAt time.Time
}

func newRecord(playerID string) *Record {
	return &Record{
		playerID:  playerID,
		level:     1,
		createdAt: time.Now(),
	}
}

// merge folds a durable snapshot into the live record. The record may have
// accumulated session state before the load finished, so cumulative counters
// are added rather than overwritten. Until merge runs the record is not
// flushable; afterwards it is dirty so the merged state reaches the store.
func (r *Record) merge(snap *domain.ProgressionSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap == nil {
		r.loaded = true
		return
	}

	r.experience += snap.Experience
	r.totalKills += snap.TotalKills
	r.totalDeaths += snap.TotalDeaths
	r.totalCaptures += snap.TotalCaptures
	r.totalReturns += snap.TotalReturns
	r.gamesPlayed += snap.GamesPlayed
	r.gamesWon += snap.GamesWon
	r.level = levelForXP(r.experience)
	r.loaded = true
	if !snap.CreatedAt.IsZero() {
		r.createdAt = snap.CreatedAt
	}
	r.markDirtyLocked()
}

func (r *Record) join(b Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bound {
		return fmt.Errorf("player %s: %w", r.playerID, ErrAlreadyBound)
	}

	r.bound = true
	r.binding = b
	r.kills = 0
	r.deaths = 0
	r.captures = 0
	r.flagReturns = 0
	r.carrying = false

	return nil
}

// leave folds the session counters into the cumulative ones and clears the
// binding. The returned history row describes the finished session.
func (r *Record) leave(won bool) (domain.MatchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.bound {
		return domain.MatchHistory{}, fmt.Errorf("player %s: %w", r.playerID, ErrNotBound)
	}

	hist := domain.MatchHistory{
		PlayerID: r.playerID,
		Arena:    r.binding.Arena,
		Team:     r.binding.Team,
		Kills:    r.kills,
		Deaths:   r.deaths,
		Captures: r.captures,
		Returns:  r.flagReturns,
		Won:      won,
		EndedAt:  time.Now(),
	}

	r.totalKills += r.kills
	r.totalDeaths += r.deaths
	r.totalCaptures += r.captures
	r.totalReturns += r.flagReturns
	r.gamesPlayed++
	if won {
		r.gamesWon++
		r.addExperienceLocked(constants.XPPerWin)
	}

	r.kills = 0
	r.deaths = 0
	r.captures = 0
	r.flagReturns = 0
	r.bound = false
	r.binding = Binding{}
	r.carrying = false
	r.markDirtyLocked()

	return hist, nil
}

func (r *Record) addKill() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kills++
	r.addExperienceLocked(constants.XPPerKill)
	r.markDirtyLocked()
}

func (r *Record) addDeath() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deaths++
}

func (r *Record) addCapture() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures++
	r.addExperienceLocked(constants.XPPerCapture)
	r.markDirtyLocked()
}

func (r *Record) addReturn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flagReturns++
	r.addExperienceLocked(constants.XPPerReturn)
	r.markDirtyLocked()
}

func (r *Record) setCarrying(team domain.TeamColor, carrying bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carrying = carrying
	r.carryingTeam = team
}

// addExperienceLocked recomputes the level after an XP grant. The level never
// decreases because experience never decreases.
func (r *Record) addExperienceLocked(xp int) {
	r.experience += xp
	r.level = levelForXP(r.experience)
}

func (r *Record) markDirtyLocked() {
	r.dirty = true
	r.dirtyGen++
}

// flushSnapshot returns the durable slice of the record together with the
// dirty generation it was taken at, for markClean after a successful save.
// A record whose durable snapshot has not been merged yet is never
// flushable: saving it would overwrite the stored counters with
// session-only state.
func (r *Record) flushSnapshot() (domain.ProgressionSnapshot, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := domain.ProgressionSnapshot{
		PlayerID:      r.playerID,
		Level:         r.level,
		Experience:    r.experience,
		TotalKills:    r.totalKills,
		TotalDeaths:   r.totalDeaths,
		TotalCaptures: r.totalCaptures,
		TotalReturns:  r.totalReturns,
		GamesPlayed:   r.gamesPlayed,
		GamesWon:      r.gamesWon,
		CreatedAt:     r.createdAt,
		UpdatedAt:     time.Now(),
	}

	return snap, r.dirtyGen, r.dirty && r.loaded
}

// pendingLoad reports whether the record is still waiting for its durable
// snapshot.
func (r *Record) pendingLoad() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.loaded
}

// markClean clears the dirty flag unless the record changed again since the
// snapshot was taken.
func (r *Record) markClean(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dirtyGen == gen {
		r.dirty = false
	}
}

// View is an immutable copy of the record handed to readers. Derived metrics
// live here so they are computed on demand, never stored.
type View struct {
	PlayerID   string
	Level      int
	Experience int

	Kills       int
	Deaths      int
	Captures    int
	FlagReturns int

	TotalKills    int
	TotalDeaths   int
	TotalCaptures int
	TotalReturns  int
	GamesPlayed   int
	GamesWon      int

	Bound     bool
	SessionID string
	Arena     string
	Team      domain.TeamColor
	Carrying  bool
}

func (r *Record) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return View{
		PlayerID:      r.playerID,
		Level:         r.level,
		Experience:    r.experience,
		Kills:         r.kills,
		Deaths:        r.deaths,
		Captures:      r.captures,
		FlagReturns:   r.flagReturns,
		TotalKills:    r.totalKills,
		TotalDeaths:   r.totalDeaths,
		TotalCaptures: r.totalCaptures,
		TotalReturns:  r.totalReturns,
		GamesPlayed:   r.gamesPlayed,
		GamesWon:      r.gamesWon,
		Bound:         r.bound,
		SessionID:     r.binding.SessionID,
		Arena:         r.binding.Arena,
		Team:          r.binding.Team,
		Carrying:      r.carrying,
	}
}

// KDRatio is the session kill/death ratio. A zero death count divides by one
// so the ratio is never infinite.
func (v View) KDRatio() float64 {
	return float64(v.Kills) / float64(max(v.Deaths, 1))
}

func (v View) TotalKDRatio() float64 {
	return float64(v.TotalKills) / float64(max(v.TotalDeaths, 1))
}

func (v View) WinRate() float64 {
	if v.GamesPlayed == 0 {
		return 0
	}
	return float64(v.GamesWon) / float64(v.GamesPlayed)
}

// XPProgress is the fraction of the current level already earned, in [0, 1).
func (v View) XPProgress() float64 {
	cur := xpRequired(v.Level)
	next := xpRequired(v.Level + 1)
	progress := float64(v.Experience-cur) / float64(next-cur)
	if progress < 0 {
		return 0
	}
	if progress >= 1 {
		return 0.999
	}
	return progress
}

// XPForNextLevel is the experience still missing for the next level, never
// negative.
func (v View) XPForNextLevel() int {
	missing := xpRequired(v.Level+1) - v.Experience
	if missing < 0 {
		return 0
	}
	return missing
}
