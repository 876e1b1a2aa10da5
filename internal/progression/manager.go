package progression

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ctf-tracker/internal/constants"
	"ctf-tracker/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Store is the durable persistence boundary. Load returns (nil, nil) for a
// player with no stored snapshot.
type Store interface {
	Load(ctx context.Context, playerID string) (*domain.ProgressionSnapshot, error)
	Save(ctx context.Context, snap domain.ProgressionSnapshot) error
	AppendMatchHistory(ctx context.Context, hist domain.MatchHistory) error
}

// Manager owns the in-memory progression records. Session loops mutate
// records through it; the query facade reads views from it. Durable loads
// and saves are asynchronous and never block either path.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*Record
	loading map[string]bool

	store  Store
	logger zerolog.Logger
}

func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{
		records: make(map[string]*Record),
		loading: make(map[string]bool),
		store:   store,
		logger:  logger,
	}
}

// Bind attaches a player to a session, installing a live record immediately.
// If the durable snapshot has not been loaded yet the load is requested in
// the background and merged in once it completes.
func (m *Manager) Bind(playerID string, b Binding) error {
	rec := m.ensure(playerID)
	if err := rec.join(b); err != nil {
		return err
	}

	m.logger.Debug().
		Str("player_id", playerID).
		Str("session_id", b.SessionID).
		Str("arena", b.Arena).
		Str("team", b.Team.String()).
		Msg("player bound to session")

	return nil
}

// Unbind folds session counters into the cumulative ones and schedules a
// fire-and-forget flush plus a match history row. A save failure leaves the
// record dirty for the next flush tick.
func (m *Manager) Unbind(playerID string, won bool) error {
	rec, ok := m.get(playerID)
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrPlayerNotFound)
	}

	hist, err := rec.leave(won)
	if err != nil {
		return err
	}

	m.logger.Info().
		Str("player_id", playerID).
		Str("arena", hist.Arena).
		Bool("won", won).
		Int("kills", hist.Kills).
		Int("captures", hist.Captures).
		Msg("player unbound from session")

	g := new(errgroup.Group)
	g.Go(func() error {
		return m.flushRecord(rec)
	})
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
		defer cancel()
		if err := m.store.AppendMatchHistory(ctx, hist); err != nil {
			return fmt.Errorf("failed to append match history: %w", err)
		}
		return nil
	})
	go func() {
		if err := g.Wait(); err != nil {
			m.logger.Warn().Err(err).Str("player_id", playerID).Msg("session end persistence failed")
		}
	}()

	return nil
}

func (m *Manager) RecordKill(playerID string) error {
	rec, ok := m.get(playerID)
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrPlayerNotFound)
	}
	rec.addKill()
	return nil
}

func (m *Manager) RecordDeath(playerID string) error {
	rec, ok := m.get(playerID)
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrPlayerNotFound)
	}
	rec.addDeath()
	return nil
}

func (m *Manager) RecordCapture(playerID string) error {
	rec, ok := m.get(playerID)
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrPlayerNotFound)
	}
	rec.addCapture()
	return nil
}

func (m *Manager) RecordReturn(playerID string) error {
	rec, ok := m.get(playerID)
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrPlayerNotFound)
	}
	rec.addReturn()
	return nil
}

func (m *Manager) SetCarrying(playerID string, team domain.TeamColor, carrying bool) error {
	rec, ok := m.get(playerID)
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, ErrPlayerNotFound)
	}
	rec.setCarrying(team, carrying)
	return nil
}

// View returns the live view for an installed record.
func (m *Manager) View(playerID string) (View, bool) {
	rec, ok := m.get(playerID)
	if !ok {
		return View{}, false
	}
	return rec.View(), true
}

// ViewOrZero serves the query facade: an installed record yields its live
// view, anything else yields a detached zero-value view that is never
// installed and never persisted. First contact requests a background load so
// later queries see the durable history.
func (m *Manager) ViewOrZero(playerID string) View {
	if rec, ok := m.get(playerID); ok {
		return rec.View()
	}

	m.requestLoad(playerID, nil)

	return newRecord(playerID).View()
}

// ensure installs a live record for playerID, requesting the durable load in
// the background if this is first contact.
func (m *Manager) ensure(playerID string) *Record {
	m.mu.Lock()
	rec, ok := m.records[playerID]
	if !ok {
		rec = newRecord(playerID)
		m.records[playerID] = rec
	}
	m.mu.Unlock()

	if !ok {
		m.requestLoad(playerID, rec)
	}

	return rec
}

// requestLoad starts one async snapshot load per player. When target is nil
// the loaded record is installed on completion; otherwise the snapshot is
// merged into the already-installed target.
func (m *Manager) requestLoad(playerID string, target *Record) {
	m.mu.Lock()
	if m.loading[playerID] {
		m.mu.Unlock()
		return
	}
	if target == nil {
		if _, installed := m.records[playerID]; installed {
			m.mu.Unlock()
			return
		}
	}
	m.loading[playerID] = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.loading, playerID)
			m.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
		defer cancel()

		snap, err := m.store.Load(ctx, playerID)
		if err != nil {
			// The record stays unloaded and unflushable; the next flush
			// trigger retries the load. Gameplay is never blocked on the
			// store.
			m.logger.Warn().Err(err).Str("player_id", playerID).Msg("progression load failed, will retry")
			return
		}

		m.mu.Lock()
		rec := target
		if rec == nil {
			if existing, ok := m.records[playerID]; ok {
				rec = existing
			} else {
				rec = newRecord(playerID)
				m.records[playerID] = rec
			}
		}
		m.mu.Unlock()

		rec.merge(snap)

		m.logger.Debug().
			Str("player_id", playerID).
			Bool("had_snapshot", snap != nil).
			Msg("progression record loaded")
	}()
}

// Evict flushes and removes a record, typically on disconnect.
func (m *Manager) Evict(playerID string) {
	rec, ok := m.get(playerID)
	if !ok {
		return
	}

	if err := m.flushRecord(rec); err != nil {
		m.logger.Warn().Err(err).Str("player_id", playerID).Msg("final flush failed")
	}

	m.mu.Lock()
	delete(m.records, playerID)
	m.mu.Unlock()

	m.logger.Debug().Str("player_id", playerID).Msg("progression record evicted")
}

// FlushAll writes out every dirty record. Failed saves stay dirty and are
// retried at the next flush trigger; records still waiting on their durable
// snapshot are skipped and their load is retried instead.
func (m *Manager) FlushAll() {
	m.mu.RLock()
	records := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	var flushed, failed int
	for _, rec := range records {
		snap, gen, flushable := rec.flushSnapshot()
		if !flushable {
			if rec.pendingLoad() {
				m.requestLoad(snap.PlayerID, rec)
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
		err := m.store.Save(ctx, snap)
		cancel()
		if err != nil {
			failed++
			m.logger.Warn().Err(err).Str("player_id", snap.PlayerID).Msg("progression flush failed")
			continue
		}

		rec.markClean(gen)
		flushed++
	}

	if flushed > 0 || failed > 0 {
		m.logger.Debug().Int("flushed", flushed).Int("failed", failed).Msg("progression flush pass")
	}
}

// Run drives the periodic flush loop until ctx is cancelled, then performs a
// final flush pass.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.FlushAll()
		case <-ctx.Done():
			m.FlushAll()
			return
		}
	}
}

func (m *Manager) flushRecord(rec *Record) error {
	snap, gen, flushable := rec.flushSnapshot()
	if !flushable {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	if err := m.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save progression snapshot: %w", err)
	}

	rec.markClean(gen)
	return nil
}

func (m *Manager) get(playerID string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[playerID]
	return rec, ok
}
