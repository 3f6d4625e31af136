package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/notify"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/repository"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/store"
)

var tracer = otel.Tracer("github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/service")

// Operation names used in notifications and metrics.
const (
	OpCreate         = "create_wishlist"
	OpCreateWithItem = "create_wishlist_with_item"
	OpDelete         = "delete_wishlist"
	OpAdd            = "add_to_wishlist"
	OpRemove         = "remove_from_wishlist"
	OpDefault        = "get_or_create_default"
	OpQuickAdd       = "quick_add"
)

// User-visible messages.
const (
	MsgSignIn           = "Please sign in to manage your wishlists"
	MsgCreated          = "Wishlist created"
	MsgCreateFailed     = "Failed to create wishlist. Please try again."
	MsgDeleted          = "Wishlist deleted"
	MsgDeleteFailed     = "Failed to delete wishlist. Please try again."
	MsgWishlistNotFound = "Wishlist not found"
	MsgAdded            = "Added to wishlist"
	MsgAlreadyPresent   = "Already in your wishlist"
	MsgAddFailed        = "Failed to add to wishlist. Please try again."
	MsgRemoved          = "Removed from wishlist"
	MsgRemoveFailed     = "Failed to remove from wishlist. Please try again."
	MsgItemNotFound     = "Item not found in wishlist"
)

// DefaultAddRetryDelay is how long an add waits after reloading before it
// re-checks for a wishlist it could not find.
const DefaultAddRetryDelay = 500 * time.Millisecond

// AddOutcome describes how an add request ended.
type AddOutcome string

const (
	OutcomeAdded          AddOutcome = "added"
	OutcomeAlreadyPresent AddOutcome = "already_present"
	OutcomeFailed         AddOutcome = "failed"
)

// EventPublisher announces durable collection writes.
type EventPublisher interface {
	PublishWishlistUpdated(ctx context.Context, accountID string, version int64, wishlists []domain.Wishlist) error
}

// Config tunes engine and session behaviour.
type Config struct {
	AddRetryDelay time.Duration
	// SessionIdleTTL is how long an unused, unwatched session is kept.
	// Zero keeps sessions until they are evicted explicitly.
	SessionIdleTTL time.Duration
}

// WishlistEngine owns the wishlist state of one signed-in session. Every
// mutation is applied to the store first, then written as a whole
// collection against the version it was derived from; a failed write is
// rolled back by reloading from storage. Mutations, loads and account
// switches on one engine run one at a time.
type WishlistEngine struct {
	repo          repository.ProfileRepository
	events        EventPublisher
	notifier      notify.Notifier
	logger        *slog.Logger
	store         *store.Store
	addRetryDelay time.Duration
	now           func() time.Time

	// write is held by every store writer for the whole read-modify-write.
	write sync.Mutex

	mu      sync.RWMutex
	account string
}

// NewWishlistEngine creates an engine with no account. events and notifier
// may be nil.
func NewWishlistEngine(repo repository.ProfileRepository, events EventPublisher, notifier notify.Notifier, logger *slog.Logger, cfg Config) *WishlistEngine {
	if notifier == nil {
		notifier = notify.NotifierFunc(func(context.Context, domain.Notification) {})
	}
	return &WishlistEngine{
		repo:          repo,
		events:        events,
		notifier:      notifier,
		logger:        logger,
		store:         store.New(),
		addRetryDelay: cfg.AddRetryDelay,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Account returns the signed-in account, or "".
func (e *WishlistEngine) Account() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.account
}

// SetAccount switches the session to accountID and loads its wishlists. An
// empty id signs the session out and clears the state.
func (e *WishlistEngine) SetAccount(ctx context.Context, accountID string) {
	e.write.Lock()
	defer e.write.Unlock()

	e.mu.Lock()
	changed := e.account != accountID
	e.account = accountID
	e.mu.Unlock()

	if accountID == "" {
		e.store.Clear()
		return
	}
	if changed {
		e.store.Replace(accountID, nil, 0)
	}
	e.load(ctx)
}

// Wishlists returns a copy of the current state.
func (e *WishlistEngine) Wishlists() store.Snapshot {
	return e.store.Snapshot()
}

// Subscribe registers fn for state changes.
func (e *WishlistEngine) Subscribe(fn store.Listener) (unsubscribe func()) {
	return e.store.Subscribe(fn)
}

// Watched reports whether any subscriber is attached.
func (e *WishlistEngine) Watched() bool {
	return e.store.Subscribers() > 0
}

// IsProductWishlisted reports whether productID is saved in any wishlist.
func (e *WishlistEngine) IsProductWishlisted(productID string) bool {
	return e.store.IsProductWishlisted(productID)
}

// Load replaces the state with the stored collection. It never fails: a
// missing profile is initialized with the default wishlist and any other
// read error leaves an empty collection at version 0.
func (e *WishlistEngine) Load(ctx context.Context) {
	e.write.Lock()
	defer e.write.Unlock()
	e.load(ctx)
}

func (e *WishlistEngine) load(ctx context.Context) {
	accountID := e.Account()
	if accountID == "" {
		e.store.Clear()
		return
	}

	ctx, span := tracer.Start(ctx, "WishlistEngine.Load",
		trace.WithAttributes(attribute.String("account.id", accountID)))
	defer span.End()

	doc, err := e.repo.GetWishlists(ctx, accountID)
	switch {
	case err == nil:
		e.adopt(ctx, accountID, domain.Normalize(accountID, doc.Wishlists), doc.Version)
	case errors.Is(err, apperrors.ErrNotFound):
		e.initializeProfile(ctx, accountID)
	default:
		span.RecordError(err)
		loadFailuresTotal.Inc()
		logger.WithContext(ctx, e.logger).ErrorContext(ctx, "failed to load wishlists, using empty collection",
			slog.String("error", err.Error()),
		)
		e.adopt(ctx, accountID, nil, 0)
	}
}

func (e *WishlistEngine) initializeProfile(ctx context.Context, accountID string) {
	log := logger.WithContext(ctx, e.logger)
	initial := []domain.Wishlist{domain.NewWishlist(accountID, domain.DefaultWishlistTitle, "", e.now())}

	version, err := e.repo.UpsertWishlists(ctx, accountID, initial, 0)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			if doc, getErr := e.repo.GetWishlists(ctx, accountID); getErr == nil {
				e.adopt(ctx, accountID, domain.Normalize(accountID, doc.Wishlists), doc.Version)
				return
			}
		}
		loadFailuresTotal.Inc()
		log.ErrorContext(ctx, "failed to create default wishlist, using empty collection",
			slog.String("error", err.Error()),
		)
		e.adopt(ctx, accountID, nil, 0)
		return
	}

	log.InfoContext(ctx, "created default wishlist for new profile",
		slog.String("wishlist_id", initial[0].ID),
	)
	e.adopt(ctx, accountID, initial, version)
	e.publishUpdated(ctx, accountID, version, initial)
}

// adopt installs loaded state unless the session moved to another account
// while the load was in flight.
func (e *WishlistEngine) adopt(ctx context.Context, accountID string, wishlists []domain.Wishlist, version int64) {
	if current := e.Account(); current != accountID {
		logger.WithContext(ctx, e.logger).DebugContext(ctx, "discarding load for previous account",
			slog.String("loaded_account", accountID),
		)
		return
	}
	e.store.Replace(accountID, wishlists, version)
}

// Sync writes wishlists as the account's whole collection, guarded by the
// version of the last load or write.
func (e *WishlistEngine) Sync(ctx context.Context, wishlists []domain.Wishlist) error {
	accountID := e.Account()
	if accountID == "" {
		return apperrors.Unauthorized("sign in required")
	}

	e.write.Lock()
	defer e.write.Unlock()
	return e.sync(ctx, accountID, e.store.Version(), wishlists)
}

// sync persists wishlists only if storage still holds expectedVersion.
func (e *WishlistEngine) sync(ctx context.Context, accountID string, expectedVersion int64, wishlists []domain.Wishlist) (err error) {
	ctx, span := tracer.Start(ctx, "WishlistEngine.Sync",
		trace.WithAttributes(
			attribute.String("account.id", accountID),
			attribute.Int("wishlist.count", len(wishlists)),
			attribute.Int64("wishlist.expected_version", expectedVersion),
		))
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		syncDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		span.End()
	}()

	version, err := e.repo.UpsertWishlists(ctx, accountID, wishlists, expectedVersion)
	if err != nil {
		return fmt.Errorf("sync wishlists: %w", err)
	}

	if e.Account() == accountID {
		e.store.SetVersion(version)
	}
	e.publishUpdated(ctx, accountID, version, wishlists)
	return nil
}

func (e *WishlistEngine) publishUpdated(ctx context.Context, accountID string, version int64, wishlists []domain.Wishlist) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishWishlistUpdated(ctx, accountID, version, wishlists); err != nil {
		logger.WithContext(ctx, e.logger).WarnContext(ctx, "failed to publish wishlist.updated event",
			slog.String("error", err.Error()),
		)
	}
}

// commit applies next, derived from the state at version base, and persists
// it against base. On failure the optimistic state is discarded by
// reloading before the error is returned. Callers hold e.write.
func (e *WishlistEngine) commit(ctx context.Context, accountID string, base int64, next []domain.Wishlist) error {
	e.store.Replace(accountID, next, base)

	if err := e.sync(ctx, accountID, base, next); err != nil {
		reconciliationsTotal.Inc()
		logger.WithContext(ctx, e.logger).WarnContext(ctx, "wishlist sync failed, reloading",
			slog.String("error", err.Error()),
		)
		e.load(context.WithoutCancel(ctx))
		return err
	}
	return nil
}

func (e *WishlistEngine) report(ctx context.Context, accountID, op string, level domain.NotificationLevel, message string) {
	outcome := "success"
	switch level {
	case domain.LevelInfo:
		outcome = "noop"
	case domain.LevelError:
		outcome = "failure"
	}
	mutationsTotal.WithLabelValues(op, outcome).Inc()

	e.notifier.Notify(ctx, domain.Notification{
		AccountID: accountID,
		Operation: op,
		Level:     level,
		Message:   message,
		At:        e.now(),
	})
}

func (e *WishlistEngine) requireAccount(ctx context.Context, op string) (string, error) {
	accountID := e.Account()
	if accountID == "" {
		e.report(ctx, "", op, domain.LevelError, MsgSignIn)
		return "", apperrors.Unauthorized("sign in to manage wishlists")
	}
	return accountID, nil
}

// CreateWishlist appends a new empty wishlist and persists it.
func (e *WishlistEngine) CreateWishlist(ctx context.Context, title, description string) (*domain.Wishlist, error) {
	return e.createAndReport(ctx, OpCreate, title, description, nil)
}

// CreateWishlistWithItem appends a new wishlist already holding one item
// built from product, in a single write.
func (e *WishlistEngine) CreateWishlistWithItem(ctx context.Context, title string, product domain.ProductSnapshot, description string) (*domain.Wishlist, error) {
	return e.createAndReport(ctx, OpCreateWithItem, title, description, &product)
}

func (e *WishlistEngine) createAndReport(ctx context.Context, op, title, description string, product *domain.ProductSnapshot) (*domain.Wishlist, error) {
	accountID, err := e.requireAccount(ctx, op)
	if err != nil {
		return nil, err
	}

	e.write.Lock()
	defer e.write.Unlock()

	wl, err := e.create(ctx, accountID, strings.TrimSpace(title), description, product)
	if err != nil {
		e.report(ctx, accountID, op, domain.LevelError, MsgCreateFailed)
		return nil, err
	}

	e.report(ctx, accountID, op, domain.LevelSuccess, MsgCreated)
	return wl, nil
}

func (e *WishlistEngine) create(ctx context.Context, accountID, title, description string, product *domain.ProductSnapshot) (*domain.Wishlist, error) {
	now := e.now()
	wl := domain.NewWishlist(accountID, title, description, now)
	if product != nil {
		wl.Items = append(wl.Items, domain.NewItem(wl.ID, *product, now))
	}

	snap := e.store.Snapshot()
	next := append(snap.Wishlists, wl)
	if err := e.commit(ctx, accountID, snap.Version, next); err != nil {
		return nil, err
	}

	out := wl.Clone()
	return &out, nil
}

// DeleteWishlist removes a wishlist and all of its items.
func (e *WishlistEngine) DeleteWishlist(ctx context.Context, wishlistID string) error {
	accountID, err := e.requireAccount(ctx, OpDelete)
	if err != nil {
		return err
	}

	e.write.Lock()
	defer e.write.Unlock()

	snap := e.store.Snapshot()
	idx := domain.Find(snap.Wishlists, wishlistID)
	if idx < 0 {
		e.report(ctx, accountID, OpDelete, domain.LevelError, MsgWishlistNotFound)
		return apperrors.NotFound("wishlist", wishlistID)
	}

	next := slices.Delete(snap.Wishlists, idx, idx+1)
	if err := e.commit(ctx, accountID, snap.Version, next); err != nil {
		e.report(ctx, accountID, OpDelete, domain.LevelError, MsgDeleteFailed)
		return err
	}

	e.report(ctx, accountID, OpDelete, domain.LevelSuccess, MsgDeleted)
	return nil
}

// AddToWishlist saves product into wishlistID. A product already present is
// reported as OutcomeAlreadyPresent without a write.
func (e *WishlistEngine) AddToWishlist(ctx context.Context, wishlistID string, product domain.ProductSnapshot) (AddOutcome, error) {
	accountID, err := e.requireAccount(ctx, OpAdd)
	if err != nil {
		return OutcomeFailed, err
	}

	e.write.Lock()
	defer e.write.Unlock()
	return e.add(ctx, accountID, OpAdd, wishlistID, product)
}

// add expects e.write to be held.
func (e *WishlistEngine) add(ctx context.Context, accountID, op, wishlistID string, product domain.ProductSnapshot) (AddOutcome, error) {
	snap := e.store.Snapshot()
	idx := domain.Find(snap.Wishlists, wishlistID)
	if idx < 0 {
		// The wishlist may have been created by a write this session has
		// not loaded yet.
		var err error
		snap, idx, err = e.lookupAfterReload(ctx, wishlistID)
		if err != nil {
			e.report(ctx, accountID, op, domain.LevelError, MsgAddFailed)
			return OutcomeFailed, err
		}
		if idx < 0 {
			e.report(ctx, accountID, op, domain.LevelError, MsgWishlistNotFound)
			return OutcomeFailed, apperrors.NotFound("wishlist", wishlistID)
		}
	}

	current := snap.Wishlists
	if current[idx].HasProduct(product.ProductID) {
		e.report(ctx, accountID, op, domain.LevelInfo, MsgAlreadyPresent)
		return OutcomeAlreadyPresent, nil
	}

	now := e.now()
	current[idx].Items = append(current[idx].Items, domain.NewItem(wishlistID, product, now))
	current[idx].UpdatedAt = now

	if err := e.commit(ctx, accountID, snap.Version, current); err != nil {
		e.report(ctx, accountID, op, domain.LevelError, MsgAddFailed)
		return OutcomeFailed, err
	}

	e.report(ctx, accountID, op, domain.LevelSuccess, MsgAdded)
	return OutcomeAdded, nil
}

func (e *WishlistEngine) lookupAfterReload(ctx context.Context, wishlistID string) (store.Snapshot, int, error) {
	e.load(ctx)

	if e.addRetryDelay > 0 {
		timer := time.NewTimer(e.addRetryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return store.Snapshot{}, -1, ctx.Err()
		case <-timer.C:
		}
	}

	snap := e.store.Snapshot()
	return snap, domain.Find(snap.Wishlists, wishlistID), nil
}

// RemoveFromWishlist deletes one item. It returns false without error when
// either the wishlist or the item does not exist.
func (e *WishlistEngine) RemoveFromWishlist(ctx context.Context, wishlistID, itemID string) (bool, error) {
	accountID, err := e.requireAccount(ctx, OpRemove)
	if err != nil {
		return false, err
	}
	log := logger.WithContext(ctx, e.logger)

	e.write.Lock()
	defer e.write.Unlock()

	snap := e.store.Snapshot()
	current := snap.Wishlists
	idx := domain.Find(current, wishlistID)
	if idx < 0 {
		log.WarnContext(ctx, "remove from unknown wishlist", slog.String("wishlist_id", wishlistID))
		e.report(ctx, accountID, OpRemove, domain.LevelError, MsgWishlistNotFound)
		return false, nil
	}
	itemIdx := current[idx].FindItem(itemID)
	if itemIdx < 0 {
		log.WarnContext(ctx, "remove of unknown wishlist item",
			slog.String("wishlist_id", wishlistID),
			slog.String("item_id", itemID),
		)
		e.report(ctx, accountID, OpRemove, domain.LevelError, MsgItemNotFound)
		return false, nil
	}

	current[idx].Items = slices.Delete(current[idx].Items, itemIdx, itemIdx+1)
	current[idx].UpdatedAt = e.now()

	if err := e.commit(ctx, accountID, snap.Version, current); err != nil {
		e.report(ctx, accountID, OpRemove, domain.LevelError, MsgRemoveFailed)
		return false, err
	}

	e.report(ctx, accountID, OpRemove, domain.LevelSuccess, MsgRemoved)
	return true, nil
}

// GetOrCreateDefaultWishlist returns the default wishlist, creating it on
// first use. Concurrent callers share a single creation.
func (e *WishlistEngine) GetOrCreateDefaultWishlist(ctx context.Context) (*domain.Wishlist, error) {
	accountID, err := e.requireAccount(ctx, OpDefault)
	if err != nil {
		return nil, err
	}

	e.write.Lock()
	defer e.write.Unlock()

	wl, created, err := e.defaultWishlist(ctx, accountID)
	if err != nil {
		e.report(ctx, accountID, OpDefault, domain.LevelError, MsgCreateFailed)
		return nil, err
	}
	if created {
		e.report(ctx, accountID, OpDefault, domain.LevelSuccess, MsgCreated)
	}
	return wl, nil
}

// QuickAddToWishlist saves product into the default wishlist, creating it if
// needed. It yields exactly one notification.
func (e *WishlistEngine) QuickAddToWishlist(ctx context.Context, product domain.ProductSnapshot) (AddOutcome, error) {
	accountID, err := e.requireAccount(ctx, OpQuickAdd)
	if err != nil {
		return OutcomeFailed, err
	}

	e.write.Lock()
	defer e.write.Unlock()

	wl, _, err := e.defaultWishlist(ctx, accountID)
	if err != nil {
		e.report(ctx, accountID, OpQuickAdd, domain.LevelError, MsgAddFailed)
		return OutcomeFailed, err
	}
	return e.add(ctx, accountID, OpQuickAdd, wl.ID, product)
}

// defaultWishlist expects e.write to be held, so a caller that finds no
// default is the only one creating it.
func (e *WishlistEngine) defaultWishlist(ctx context.Context, accountID string) (*domain.Wishlist, bool, error) {
	if wl, ok := e.findDefault(); ok {
		return wl, false, nil
	}

	wl, err := e.create(context.WithoutCancel(ctx), accountID, domain.DefaultWishlistTitle, "", nil)
	if err != nil {
		return nil, false, err
	}
	return wl, true, nil
}

func (e *WishlistEngine) findDefault() (*domain.Wishlist, bool) {
	current := e.store.Snapshot().Wishlists
	idx := domain.FindByTitle(current, domain.DefaultWishlistTitle)
	if idx < 0 {
		return nil, false
	}
	return &current[idx], true
}
