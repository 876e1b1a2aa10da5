package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ctf-tracker/internal/config"
	"ctf-tracker/internal/constants"
	"ctf-tracker/internal/domain"
	"ctf-tracker/internal/progression"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var ErrSessionClosed = errors.New("session closed")

// Notifier receives fire-and-forget notifications about scoring events. It
// must not block the caller.
type Notifier interface {
	CaptureScored(arena string, team domain.TeamColor, playerID string, score int)
	MatchEnded(arena string, winner string, score [domain.NumTeams]int)
}

// Session is one running instance of an arena. A single goroutine (Run) is
// the only writer: events arrive over a channel and are applied in order,
// with a phase tick interleaved. Readers get consistent copies via Snapshot.
type Session struct {
	ID string

	mu      sync.RWMutex
	arena   *Arena
	flags   [domain.NumTeams]*Flag
	players map[string]domain.TeamColor
	// winner is resolved when the match ends; nil for a tie or teardown.
	winner    *domain.TeamColor
	destroyed bool

	events   chan envelope
	done     chan struct{}
	cfg      *config.Config
	prog     *progression.Manager
	notifier Notifier
	logger   zerolog.Logger
}

func newSession(arenaName string, cfg *config.Config, prog *progression.Manager, notifier Notifier, logger zerolog.Logger) (*Session, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	s := &Session{
		ID:       id,
		arena:    NewArena(arenaName),
		players:  make(map[string]domain.TeamColor),
		events:   make(chan envelope, 16),
		done:     make(chan struct{}),
		cfg:      cfg,
		prog:     prog,
		notifier: notifier,
		logger:   logger.With().Str("session_id", id).Str("arena", arenaName).Logger(),
	}
	for _, team := range domain.Teams() {
		s.flags[team] = NewFlag(team)
	}

	return s, nil
}

// Run owns all mutation until the session is destroyed or ctx is cancelled.
// Cancellation force-unbinds every player as a loss; it is not an error
// path.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.SessionTickInterval)
	defer ticker.Stop()

	s.logger.Info().Msg("session started")

	for {
		select {
		case env := <-s.events:
			env.reply <- s.apply(env.event)
		case <-ticker.C:
			s.onTick(time.Now())
		case <-ctx.Done():
			s.mu.Lock()
			s.destroyLocked()
			s.mu.Unlock()
		}

		if s.isDestroyed() {
			s.logger.Info().Msg("session destroyed")
			return
		}
	}
}

// Apply hands an event to the session loop and waits for the result.
func (s *Session) Apply(ctx context.Context, event Event) error {
	env := envelope{event: event, reply: make(chan error, 1)}

	select {
	case s.events <- env:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a consistent copy of the arena state for readers.
func (s *Session) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		SessionID: s.ID,
		Name:      s.arena.Name(),
		Phase:     s.arena.Phase(),
		Score:     s.arena.score,
		TeamKills: s.arena.teamKills,
		TimeLeft:  s.arena.TimeLeft(now),
		Players:   len(s.players),
	}
}

func (s *Session) isDestroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// apply runs on the session loop only.
func (s *Session) apply(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrSessionClosed
	}

	switch event.Type {
	case EventPlayerJoin:
		return s.joinLocked(event.Player, event.Team)
	case EventPlayerLeave:
		return s.leaveLocked(event.Player)
	case EventKill:
		return s.killLocked(event.Player, event.Victim)
	case EventFlagPickup:
		return s.flagPickupLocked(event.FlagTeam, event.Player)
	case EventFlagDrop:
		return s.flagDropLocked(event.FlagTeam)
	case EventFlagReturn:
		return s.flagReturnLocked(event.FlagTeam, event.Player)
	case EventCapture:
		return s.captureLocked(event.Player)
	case EventForceStart:
		return s.forceStartLocked()
	case EventStop:
		return s.stopLocked()
	default:
		return fmt.Errorf("unknown event type: %q", event.Type)
	}
}

func (s *Session) onTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || s.arena.TimeLeft(now) > 0 || s.arena.deadline.IsZero() {
		return
	}

	switch s.arena.Phase() {
	case PhaseStarting:
		s.startMatchLocked(now)
	case PhaseInProgress:
		s.endMatchLocked(s.leaderLocked(), now)
	case PhaseEnding:
		s.destroyLocked()
	}
}

func (s *Session) joinLocked(playerID string, team domain.TeamColor) error {
	if !team.Valid() {
		return fmt.Errorf("%w: invalid team for join", ErrInvalidState)
	}
	if s.arena.Phase() == PhaseEnding {
		return fmt.Errorf("%w: match is ending", ErrInvalidState)
	}
	if _, exists := s.players[playerID]; exists {
		return fmt.Errorf("player %s: %w", playerID, progression.ErrAlreadyBound)
	}

	if err := s.prog.Bind(playerID, progression.Binding{
		SessionID: s.ID,
		Arena:     s.arena.Name(),
		Team:      team,
	}); err != nil {
		return err
	}

	s.players[playerID] = team
	s.logger.Info().Str("player_id", playerID).Str("team", team.String()).Int("players", len(s.players)).Msg("player joined")

	if s.arena.Phase() == PhaseWaiting && s.quotaMetLocked() {
		s.arena.setPhase(PhaseStarting, time.Now().Add(s.cfg.Countdown))
		s.logger.Info().Dur("countdown", s.cfg.Countdown).Msg("player quota reached, countdown started")
	}

	return nil
}

func (s *Session) leaveLocked(playerID string) error {
	if _, exists := s.players[playerID]; !exists {
		return fmt.Errorf("player %s: %w", playerID, progression.ErrNotBound)
	}

	s.dropCarriedFlagLocked(playerID)
	delete(s.players, playerID)

	if err := s.prog.Unbind(playerID, false); err != nil {
		return err
	}

	s.logger.Info().Str("player_id", playerID).Int("players", len(s.players)).Msg("player left")

	// A match cannot continue once all but one team is gone.
	if s.arena.Phase() == PhaseInProgress {
		if remaining, count := s.remainingTeamsLocked(); count <= 1 {
			s.endMatchLocked(remaining, time.Now())
		}
	}

	return nil
}

func (s *Session) killLocked(killerID, victimID string) error {
	if s.arena.Phase() != PhaseInProgress {
		return fmt.Errorf("%w: match is %s, kills only count in progress", ErrInvalidState, s.arena.Phase())
	}

	killerTeam, ok := s.players[killerID]
	if !ok {
		return fmt.Errorf("killer %s: %w", killerID, progression.ErrNotBound)
	}
	if _, ok := s.players[victimID]; !ok {
		return fmt.Errorf("victim %s: %w", victimID, progression.ErrNotBound)
	}

	s.arena.addKill(killerTeam)
	if err := s.prog.RecordKill(killerID); err != nil {
		return err
	}
	if err := s.prog.RecordDeath(victimID); err != nil {
		return err
	}

	return nil
}

func (s *Session) flagPickupLocked(flagTeam domain.TeamColor, playerID string) error {
	if s.arena.Phase() != PhaseInProgress {
		return fmt.Errorf("%w: match is %s, flags are inactive", ErrInvalidState, s.arena.Phase())
	}
	if !flagTeam.Valid() {
		return fmt.Errorf("%w: invalid flag team", ErrInvalidState)
	}
	if _, ok := s.players[playerID]; !ok {
		return fmt.Errorf("player %s: %w", playerID, progression.ErrNotBound)
	}
	if s.carriedFlagLocked(playerID) != nil {
		return fmt.Errorf("%w: player %s already carries a flag", ErrInvalidState, playerID)
	}

	if err := s.flags[flagTeam].PickUp(playerID); err != nil {
		return err
	}
	if err := s.prog.SetCarrying(playerID, flagTeam, true); err != nil {
		return err
	}

	s.logger.Debug().Str("player_id", playerID).Str("flag", flagTeam.String()).Msg("flag picked up")

	return nil
}

func (s *Session) flagDropLocked(flagTeam domain.TeamColor) error {
	if !flagTeam.Valid() {
		return fmt.Errorf("%w: invalid flag team", ErrInvalidState)
	}

	carrier, err := s.flags[flagTeam].Drop()
	if err != nil {
		return err
	}
	if err := s.prog.SetCarrying(carrier, flagTeam, false); err != nil {
		return err
	}

	s.logger.Debug().Str("player_id", carrier).Str("flag", flagTeam.String()).Msg("flag dropped")

	return nil
}

func (s *Session) flagReturnLocked(flagTeam domain.TeamColor, playerID string) error {
	if !flagTeam.Valid() {
		return fmt.Errorf("%w: invalid flag team", ErrInvalidState)
	}

	flag := s.flags[flagTeam]
	if carrier, carried := flag.Carrier(); carried {
		if err := s.prog.SetCarrying(carrier, flagTeam, false); err != nil {
			return err
		}
	}
	flag.ReturnToBase()

	// Credit the returning player when known.
	if playerID != "" {
		if _, ok := s.players[playerID]; ok {
			if err := s.prog.RecordReturn(playerID); err != nil {
				return err
			}
		}
	}

	s.logger.Debug().Str("player_id", playerID).Str("flag", flagTeam.String()).Msg("flag returned to base")

	return nil
}

func (s *Session) captureLocked(playerID string) error {
	if s.arena.Phase() != PhaseInProgress {
		return fmt.Errorf("%w: match is %s, captures only count in progress", ErrInvalidState, s.arena.Phase())
	}

	team, ok := s.players[playerID]
	if !ok {
		return fmt.Errorf("player %s: %w", playerID, progression.ErrNotBound)
	}

	flag := s.carriedFlagLocked(playerID)
	if flag == nil {
		return fmt.Errorf("%w: player %s is not carrying a flag", ErrInvalidState, playerID)
	}

	flag.ReturnToBase()
	if err := s.prog.SetCarrying(playerID, flag.Team(), false); err != nil {
		return err
	}
	if err := s.prog.RecordCapture(playerID); err != nil {
		return err
	}

	score := s.arena.addCapture(team)
	s.logger.Info().Str("player_id", playerID).Str("team", team.String()).Int("score", score).Msg("flag captured")

	go s.notifier.CaptureScored(s.arena.Name(), team, playerID, score)

	if score >= s.cfg.WinThreshold {
		s.endMatchLocked(&team, time.Now())
	}

	return nil
}

func (s *Session) forceStartLocked() error {
	if s.arena.Phase() != PhaseStarting {
		return fmt.Errorf("%w: match is %s, cannot force start", ErrInvalidState, s.arena.Phase())
	}

	s.startMatchLocked(time.Now())
	return nil
}

func (s *Session) stopLocked() error {
	if s.arena.Phase() == PhaseEnding {
		s.destroyLocked()
		return nil
	}

	s.endMatchLocked(nil, time.Now())
	return nil
}

func (s *Session) startMatchLocked(now time.Time) {
	s.arena.setPhase(PhaseInProgress, now.Add(s.cfg.MatchDuration))
	for _, flag := range s.flags {
		flag.ReturnToBase()
	}
	s.logger.Info().Dur("duration", s.cfg.MatchDuration).Msg("match started")
}

func (s *Session) endMatchLocked(winner *domain.TeamColor, now time.Time) {
	s.winner = winner
	s.arena.setPhase(PhaseEnding, now.Add(s.cfg.EndingDisplay))

	winnerName := "none"
	if winner != nil {
		winnerName = winner.String()
	}
	s.logger.Info().
		Str("winner", winnerName).
		Int("red_score", s.arena.Score(domain.TeamRed)).
		Int("blue_score", s.arena.Score(domain.TeamBlue)).
		Msg("match ended")

	go s.notifier.MatchEnded(s.arena.Name(), winnerName, s.arena.score)
}

// destroyLocked force-unbinds every player and closes the session. Players
// on the winning team are credited a win; on teardown there is no winner.
func (s *Session) destroyLocked() {
	if s.destroyed {
		return
	}

	for playerID, team := range s.players {
		s.dropCarriedFlagLocked(playerID)
		won := s.winner != nil && *s.winner == team
		if err := s.prog.Unbind(playerID, won); err != nil {
			s.logger.Warn().Err(err).Str("player_id", playerID).Msg("failed to unbind player on destroy")
		}
	}
	s.players = make(map[string]domain.TeamColor)

	s.destroyed = true
	close(s.done)
}

// dropCarriedFlagLocked returns any flag held by playerID to its base.
func (s *Session) dropCarriedFlagLocked(playerID string) {
	flag := s.carriedFlagLocked(playerID)
	if flag == nil {
		return
	}

	flag.ReturnToBase()
	if err := s.prog.SetCarrying(playerID, flag.Team(), false); err != nil {
		s.logger.Warn().Err(err).Str("player_id", playerID).Msg("failed to clear carry state")
	}
}

func (s *Session) carriedFlagLocked(playerID string) *Flag {
	for _, flag := range s.flags {
		if carrier, carried := flag.Carrier(); carried && carrier == playerID {
			return flag
		}
	}
	return nil
}

func (s *Session) quotaMetLocked() bool {
	var counts [domain.NumTeams]int
	for _, team := range s.players {
		counts[team]++
	}
	for _, team := range domain.Teams() {
		if counts[team] < s.cfg.MinPlayersPerTeam {
			return false
		}
	}
	return true
}

// remainingTeamsLocked reports the sole remaining team, if any, and how many
// teams still have players.
func (s *Session) remainingTeamsLocked() (*domain.TeamColor, int) {
	var counts [domain.NumTeams]int
	for _, team := range s.players {
		counts[team]++
	}

	var remaining *domain.TeamColor
	count := 0
	for _, team := range domain.Teams() {
		if counts[team] > 0 {
			team := team
			remaining = &team
			count++
		}
	}
	if count != 1 {
		remaining = nil
	}
	return remaining, count
}

// leaderLocked resolves the winning team by score when the phase timer
// expires; nil on a tie.
func (s *Session) leaderLocked() *domain.TeamColor {
	best := -1
	var leader *domain.TeamColor
	tied := false
	for _, team := range domain.Teams() {
		score := s.arena.Score(team)
		switch {
		case score > best:
			best = score
			team := team
			leader = &team
			tied = false
		case score == best:
			tied = true
		}
	}
	if tied {
		return nil
	}
	return leader
}
