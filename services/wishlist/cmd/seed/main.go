// Command seed populates the profile store with deterministic wishlist data
// for local development and load tests. Re-runs overwrite the same accounts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	pkgconfig "github.com/justin-elyphant/elyphant-v1-sub002/pkg/config"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/database"
	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/config"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/repository"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/repository/postgres"
	redisrepo "github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/repository/redis"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/migrations"
)

type seedConfig struct {
	Profiles    int    `env:"SEED_PROFILES" envDefault:"1000"`
	RandomSeed  uint64 `env:"SEED_RANDOM" envDefault:"42"`
	Concurrency int    `env:"SEED_CONCURRENCY" envDefault:"8"`
}

var namespace = uuid.MustParse("6f0d3c1e-8a7b-4d55-9c2e-1b3a4f5d6e7f")

var listTitles = []string{"Birthday", "Holiday Gifts", "Home Office", "Summer", "Someday", "For Mom"}

var brands = []string{"Acme", "Lumen", "Northwind", "Fable & Co", "Tidewater"}

func main() {
	if err := pkgconfig.LoadDotenv(); err != nil {
		slog.Warn("failed to read .env file", slog.String("error", err.Error()))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var seed seedConfig
	if err := pkgconfig.Load(&seed); err != nil {
		slog.Error("failed to load seed config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("wishlist-seed", cfg.LogLevel, cfg.LogFormat)
	if err := run(context.Background(), cfg, seed, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, seed seedConfig, log *slog.Logger) error {
	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(seed.Concurrency, 1))

	for i := range seed.Profiles {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seed.RandomSeed, uint64(i)))
			accountID := fmt.Sprintf("seed-user-%05d", i)
			return writeProfile(ctx, repo, accountID, buildWishlists(rng, accountID, i))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("seed complete",
		slog.Int("profiles", seed.Profiles),
		slog.String("backend", cfg.StoreBackend),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.ProfileRepository, func(), error) {
	if cfg.StoreBackend == config.BackendRedis {
		rdb, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return redisrepo.NewProfileRepository(rdb), func() { _ = rdb.Close() }, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return postgres.NewProfileRepository(pool), pool.Close, nil
}

// writeProfile overwrites whatever the account currently stores.
func writeProfile(ctx context.Context, repo repository.ProfileRepository, accountID string, wishlists []domain.Wishlist) error {
	var expected int64
	doc, err := repo.GetWishlists(ctx, accountID)
	switch {
	case err == nil:
		expected = doc.Version
	case !errors.Is(err, apperrors.ErrNotFound):
		return fmt.Errorf("read %s: %w", accountID, err)
	}

	if _, err := repo.UpsertWishlists(ctx, accountID, wishlists, expected); err != nil {
		return fmt.Errorf("write %s: %w", accountID, err)
	}
	return nil
}

func buildWishlists(rng *rand.Rand, accountID string, index int) []domain.Wishlist {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(index) * time.Minute)

	wishlists := []domain.Wishlist{newList(accountID, domain.DefaultWishlistTitle, 0, created)}
	for n := range rng.IntN(3) {
		title := listTitles[rng.IntN(len(listTitles))]
		wishlists = append(wishlists, newList(accountID, title, n+1, created))
	}

	for w := range wishlists {
		for range rng.IntN(6) {
			productID := deterministicID(fmt.Sprintf("product:%d", rng.IntN(10000))).String()
			if wishlists[w].HasProduct(productID) {
				continue
			}
			item := domain.NewItem(wishlists[w].ID, domain.ProductSnapshot{
				ProductID: productID,
				Title:     fmt.Sprintf("Product %s", productID[:8]),
				Price:     int64(499 + rng.IntN(50000)),
				ImageURL:  fmt.Sprintf("https://cdn.example.com/products/%s.jpg", productID),
				Brand:     brands[rng.IntN(len(brands))],
			}, created)
			item.ID = deterministicID(fmt.Sprintf("%s:item:%d", wishlists[w].ID, len(wishlists[w].Items))).String()
			wishlists[w].Items = append(wishlists[w].Items, item)
		}
	}
	return wishlists
}

func newList(accountID, title string, n int, created time.Time) domain.Wishlist {
	wl := domain.NewWishlist(accountID, title, "", created)
	wl.ID = deterministicID(fmt.Sprintf("%s:list:%d", accountID, n)).String()
	return wl
}

// deterministicID keeps IDs stable across re-runs.
func deterministicID(name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}
