package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/database"
	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

const keyPrefix = "profile:"

// ProfileRepository implements repository.ProfileRepository with one JSON
// document per account. Writes use WATCH/MULTI for the version check.
type ProfileRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewProfileRepository creates a Redis-backed profile repository.
func NewProfileRepository(client *redis.Client) *ProfileRepository {
	return &ProfileRepository{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func profileKey(accountID string) string {
	return keyPrefix + accountID
}

// GetWishlists loads the profile document for accountID.
func (r *ProfileRepository) GetWishlists(ctx context.Context, accountID string) (doc *domain.ProfileDocument, err error) {
	key := profileKey(accountID)
	ctx, end := database.TraceCommand(ctx, "GetWishlists", key)
	defer func() { end(err) }()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("profile", accountID)
		}
		return nil, fmt.Errorf("redis get profile: %w", err)
	}

	var d domain.ProfileDocument
	if err = json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &d, nil
}

// UpsertWishlists writes the full collection guarded by expectedVersion.
func (r *ProfileRepository) UpsertWishlists(ctx context.Context, accountID string, wishlists []domain.Wishlist, expectedVersion int64) (version int64, err error) {
	key := profileKey(accountID)
	ctx, end := database.TraceCommand(ctx, "UpsertWishlists", key)
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

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return apperrors.Conflict(fmt.Sprintf("profile %s is at version %d, expected %d", accountID, current, expectedVersion))
		}

		doc := domain.ProfileDocument{
			ID:        accountID,
			Wishlists: wishlists,
			Version:   current + 1,
			UpdatedAt: r.now(),
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		version = doc.Version
		return nil
	}, key)

	switch {
	case err == nil:
		return version, nil
	case errors.Is(err, redis.TxFailedErr):
		return 0, apperrors.Conflict(fmt.Sprintf("profile %s was modified concurrently", accountID))
	case errors.Is(err, apperrors.ErrConflict):
		return 0, err
	default:
		return 0, fmt.Errorf("redis upsert profile: %w", err)
	}
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get profile: %w", err)
	}

	var doc struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("unmarshal profile: %w", err)
	}
	return doc.Version, nil
}
