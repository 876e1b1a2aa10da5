package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ctf-tracker/internal/domain"

	"github.com/rs/zerolog"
)

// CosmeticsRepository reads the cosmetic catalog and per-player ownership.
type CosmeticsRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewCosmeticsRepository(db *sql.DB, logger zerolog.Logger) *CosmeticsRepository {
	return &CosmeticsRepository{db: db, logger: logger}
}

func (r *CosmeticsRepository) Catalog(ctx context.Context) ([]domain.Cosmetic, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, rarity, created_at
		FROM cosmetics
		ORDER BY rarity, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cosmetic catalog: %w", err)
	}
	defer rows.Close()

	return scanCosmetics(rows)
}

func (r *CosmeticsRepository) OwnedBy(ctx context.Context, playerID string) ([]domain.Cosmetic, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.rarity, c.created_at
		FROM cosmetics c
		JOIN player_cosmetics pc ON pc.cosmetic_id = c.id
		WHERE pc.player_id = ?
		ORDER BY c.rarity, c.name`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query owned cosmetics for %s: %w", playerID, err)
	}
	defer rows.Close()

	return scanCosmetics(rows)
}

func (r *CosmeticsRepository) Grant(ctx context.Context, playerID, cosmeticID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO player_cosmetics (player_id, cosmetic_id)
		VALUES (?, ?)
		ON CONFLICT (player_id, cosmetic_id) DO NOTHING`, playerID, cosmeticID)
	if err != nil {
		return fmt.Errorf("failed to grant cosmetic %s to %s: %w", cosmeticID, playerID, err)
	}

	r.logger.Info().Str("player_id", playerID).Str("cosmetic_id", cosmeticID).Msg("cosmetic granted")
	return nil
}

func scanCosmetics(rows *sql.Rows) ([]domain.Cosmetic, error) {
	var result []domain.Cosmetic
	for rows.Next() {
		var c domain.Cosmetic
		var rarity int
		if err := rows.Scan(&c.ID, &c.Name, &rarity, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cosmetic row: %w", err)
		}
		c.Rarity = domain.Rarity(rarity)
		result = append(result, c)
	}
	return result, rows.Err()
}
