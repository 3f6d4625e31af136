package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/database"
	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

const (
	getWishlistsQuery = `
		SELECT id, wishlists, version, updated_at
		FROM profiles
		WHERE id = $1`

	insertWishlistsQuery = `
		INSERT INTO profiles (id, wishlists, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING version`

	updateWishlistsQuery = `
		UPDATE profiles
		SET wishlists  = $2,
		    version    = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $3
		RETURNING version`
)

// ProfileRepository implements repository.ProfileRepository on the
// profiles table.
type ProfileRepository struct {
	db database.DBTX
}

// NewProfileRepository creates a PostgreSQL-backed profile repository.
func NewProfileRepository(db database.DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetWishlists loads the profile document for accountID.
func (r *ProfileRepository) GetWishlists(ctx context.Context, accountID string) (doc *domain.ProfileDocument, err error) {
	ctx, end := database.TraceQuery(ctx, "GetWishlists", getWishlistsQuery)
	defer func() { end(err) }()

	var (
		d   domain.ProfileDocument
		raw []byte
	)
	err = r.db.QueryRow(ctx, getWishlistsQuery, accountID).Scan(&d.ID, &raw, &d.Version, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("profile", accountID)
		}
		return nil, fmt.Errorf("get wishlists: %w", err)
	}

	if len(raw) > 0 {
		if err = json.Unmarshal(raw, &d.Wishlists); err != nil {
			return nil, fmt.Errorf("decode wishlists: %w", err)
		}
	}

	return &d, nil
}

// UpsertWishlists writes the full collection guarded by expectedVersion.
// Version 0 only creates the row; any other version only updates an
// existing row holding exactly that version.
func (r *ProfileRepository) UpsertWishlists(ctx context.Context, accountID string, wishlists []domain.Wishlist, expectedVersion int64) (version int64, err error) {
	query, args := updateWishlistsQuery, []any{accountID, nil, expectedVersion}
	if expectedVersion == 0 {
		query, args = insertWishlistsQuery, []any{accountID, nil}
	}

	ctx, end := database.TraceQuery(ctx, "UpsertWishlists", query)
	defer func() {
		if errors.Is(err, apperrors.ErrConflict) {
			end(nil)
			return
		}
		end(err)
	}()

	if wishlists == nil {
		wishlists = []domain.Wishlist{}
	}
	payload, err := json.Marshal(wishlists)
	if err != nil {
		return 0, fmt.Errorf("encode wishlists: %w", err)
	}

	args[1] = payload
	err = r.db.QueryRow(ctx, query, args...).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.Conflict(fmt.Sprintf("profile %s was modified concurrently (expected version %d)", accountID, expectedVersion))
		}
		return 0, fmt.Errorf("upsert wishlists: %w", err)
	}

	return version, nil
}
