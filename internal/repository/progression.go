package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ctf-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// ProgressionRepository persists player progression snapshots and per-match
// history rows.
type ProgressionRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewProgressionRepository(db *sql.DB, logger zerolog.Logger) *ProgressionRepository {
	return &ProgressionRepository{db: db, logger: logger}
}

// Load fetches a player's durable snapshot. A player without one yields
// (nil, nil): callers treat that as a new player.
func (r *ProgressionRepository) Load(ctx context.Context, playerID string) (*domain.ProgressionSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT player_id, level, experience, total_kills, total_deaths,
		       total_captures, total_returns, games_played, games_won,
		       created_at, updated_at
		FROM progression
		WHERE player_id = ?`, playerID)

	var snap domain.ProgressionSnapshot
	err := row.Scan(
		&snap.PlayerID,
		&snap.Level,
		&snap.Experience,
		&snap.TotalKills,
		&snap.TotalDeaths,
		&snap.TotalCaptures,
		&snap.TotalReturns,
		&snap.GamesPlayed,
		&snap.GamesWon,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug().Str("player_id", playerID).Msg("no stored progression, new player")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progression for %s: %w", playerID, err)
	}

	return &snap, nil
}

// Save upserts a player's durable snapshot.
func (r *ProgressionRepository) Save(ctx context.Context, snap domain.ProgressionSnapshot) error {
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO progression (
			player_id, level, experience, total_kills, total_deaths,
			total_captures, total_returns, games_played, games_won,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id) DO UPDATE SET
			level = excluded.level,
			experience = excluded.experience,
			total_kills = excluded.total_kills,
			total_deaths = excluded.total_deaths,
			total_captures = excluded.total_captures,
			total_returns = excluded.total_returns,
			games_played = excluded.games_played,
			games_won = excluded.games_won,
			updated_at = excluded.updated_at`,
		snap.PlayerID,
		snap.Level,
		snap.Experience,
		snap.TotalKills,
		snap.TotalDeaths,
		snap.TotalCaptures,
		snap.TotalReturns,
		snap.GamesPlayed,
		snap.GamesWon,
		createdAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save progression for %s: %w", snap.PlayerID, err)
	}

	r.logger.Debug().
		Str("player_id", snap.PlayerID).
		Int("level", snap.Level).
		Int("experience", snap.Experience).
		Msg("progression snapshot saved")

	return nil
}

// AppendMatchHistory records one finished session for a player.
func (r *ProgressionRepository) AppendMatchHistory(ctx context.Context, hist domain.MatchHistory) error {
	id := hist.ID
	if id == "" {
		var err error
		id, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_history (
			id, player_id, arena, team, kills, deaths, captures, returns,
			won, ended_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		hist.PlayerID,
		hist.Arena,
		int(hist.Team),
		hist.Kills,
		hist.Deaths,
		hist.Captures,
		hist.Returns,
		hist.Won,
		hist.EndedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to append match history for %s: %w", hist.PlayerID, err)
	}

	return nil
}

// RecentMatches returns a player's latest history rows, newest first.
func (r *ProgressionRepository) RecentMatches(ctx context.Context, playerID string, limit int) ([]domain.MatchHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, player_id, arena, team, kills, deaths, captures, returns,
		       won, ended_at, created_at
		FROM match_history
		WHERE player_id = ?
		ORDER BY ended_at DESC
		LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history for %s: %w", playerID, err)
	}
	defer rows.Close()

	var result []domain.MatchHistory
	for rows.Next() {
		var hist domain.MatchHistory
		var team int
		if err := rows.Scan(
			&hist.ID,
			&hist.PlayerID,
			&hist.Arena,
			&team,
			&hist.Kills,
			&hist.Deaths,
			&hist.Captures,
			&hist.Returns,
			&hist.Won,
			&hist.EndedAt,
			&hist.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match history row: %w", err)
		}
		hist.Team = domain.TeamColor(team)
		result = append(result, hist)
	}

	return result, rows.Err()
}
