package repository

import (
	"context"

	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

// ProfileRepository persists the whole wishlist collection of an account as
// one document.
type ProfileRepository interface {
	// GetWishlists returns the account's profile document, or an error
	// wrapping apperrors.ErrNotFound when none has been written yet.
	GetWishlists(ctx context.Context, accountID string) (*domain.ProfileDocument, error)

	// UpsertWishlists replaces the stored collection in a single write when
	// the stored version equals expectedVersion (0 for a record that does not
	// exist yet). It returns the new version, or an error wrapping
	// apperrors.ErrConflict when another writer got there first.
	UpsertWishlists(ctx context.Context, accountID string, wishlists []domain.Wishlist, expectedVersion int64) (int64, error)
}
