package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ctf-tracker/internal/config"
	"ctf-tracker/internal/progression"

	"github.com/rs/zerolog"
)

var (
	ErrArenaNotFound = errors.New("arena not found")
	ErrArenaExists   = errors.New("arena already active")
)

// Manager is the registry of active sessions, keyed by arena name. It owns
// session goroutine lifecycles and routes incoming events to the right
// session loop.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
	root     context.Context

	cfg      *config.Config
	prog     *progression.Manager
	notifier Notifier
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

func NewManager(cfg *config.Config, prog *progression.Manager, notifier Notifier, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cancels:  make(map[string]context.CancelFunc),
		root:     context.Background(),
		cfg:      cfg,
		prog:     prog,
		notifier: notifier,
		logger:   logger,
	}
}

// Start installs the context that parents every session loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = ctx
}

// Stop tears down every active session and waits for their loops to exit.
// Players are force-unbound as losses.
func (m *Manager) Stop() {
	m.mu.Lock()
	for name, cancel := range m.cancels {
		cancel()
		delete(m.cancels, name)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// ActivateArena creates a fresh session for an arena definition and starts
// its loop.
func (m *Manager) ActivateArena(name string) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty arena name", ErrInvalidState)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("arena %s: %w", name, ErrArenaExists)
	}

	sess, err := newSession(name, m.cfg, m.prog, m.notifier, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for arena %s: %w", name, err)
	}

	ctx, cancel := context.WithCancel(m.root)
	m.sessions[name] = sess
	m.cancels[name] = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		sess.Run(ctx)
		cancel()
		m.remove(name, sess)
	}()

	m.logger.Info().Str("arena", name).Str("session_id", sess.ID).Msg("arena activated")

	return sess, nil
}

// Dispatch routes an event to its arena's session loop and returns the
// loop's verdict.
func (m *Manager) Dispatch(ctx context.Context, event Event) error {
	sess, ok := m.session(event.Arena)
	if !ok {
		return fmt.Errorf("arena %s: %w", event.Arena, ErrArenaNotFound)
	}

	return sess.Apply(ctx, event)
}

// StopArena ends an arena's session immediately.
func (m *Manager) StopArena(ctx context.Context, name string) error {
	return m.Dispatch(ctx, Event{Type: EventStop, Arena: name})
}

// ArenaSnapshot returns a consistent copy of one arena's state.
func (m *Manager) ArenaSnapshot(name string, now time.Time) (Snapshot, bool) {
	sess, ok := m.session(name)
	if !ok {
		return Snapshot{}, false
	}
	return sess.Snapshot(now), true
}

// Snapshots lists every active arena.
func (m *Manager) Snapshots(now time.Time) []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		snapshots = append(snapshots, sess.Snapshot(now))
	}
	return snapshots
}

func (m *Manager) session(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[name]
	return sess, ok
}

// remove drops a finished session, but only if it is still the registered
// one: the arena may already have been re-activated.
func (m *Manager) remove(name string, sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.sessions[name]; ok && current == sess {
		delete(m.sessions, name)
		delete(m.cancels, name)
		m.logger.Info().Str("arena", name).Str("session_id", sess.ID).Msg("arena deactivated")
	}
}
