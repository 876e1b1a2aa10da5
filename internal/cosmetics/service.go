// Package cosmetics exposes the read accessors consumed by the external
// command and menu layer. All operations are plain queries with no side
// effects except Grant, which that layer owns.
package cosmetics

import (
	"context"
	"fmt"

	"ctf-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type Store interface {
	Catalog(ctx context.Context) ([]domain.Cosmetic, error)
	OwnedBy(ctx context.Context, playerID string) ([]domain.Cosmetic, error)
	Grant(ctx context.Context, playerID, cosmeticID string) error
}

type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// AllCatalog returns every cosmetic in the catalog.
func (s *Service) AllCatalog(ctx context.Context) ([]domain.Cosmetic, error) {
	return s.store.Catalog(ctx)
}

// OwnedSet returns the cosmetics a player owns.
func (s *Service) OwnedSet(ctx context.Context, playerID string) ([]domain.Cosmetic, error) {
	return s.store.OwnedBy(ctx, playerID)
}

// UnlockedSet returns the ids of the cosmetics a player owns.
func (s *Service) UnlockedSet(ctx context.Context, playerID string) (map[string]bool, error) {
	owned, err := s.store.OwnedBy(ctx, playerID)
	if err != nil {
		return nil, err
	}

	unlocked := make(map[string]bool, len(owned))
	for _, c := range owned {
		unlocked[c.ID] = true
	}
	return unlocked, nil
}

// CompletionPercentage is the share of the catalog a player owns, in
// [0, 100]. An empty catalog yields 0.
func (s *Service) CompletionPercentage(ctx context.Context, playerID string) (float64, error) {
	catalog, err := s.store.Catalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load catalog: %w", err)
	}
	if len(catalog) == 0 {
		return 0, nil
	}

	owned, err := s.store.OwnedBy(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load owned cosmetics: %w", err)
	}

	return float64(len(owned)) / float64(len(catalog)) * 100, nil
}

func (s *Service) Grant(ctx context.Context, playerID, cosmeticID string) error {
	return s.store.Grant(ctx, playerID, cosmeticID)
}
