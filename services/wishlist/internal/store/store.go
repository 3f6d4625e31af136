// Package store holds the in-memory wishlist state of one session and
// notifies subscribers whenever it is replaced.
package store

import (
	"slices"
	"sync"

	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

// Snapshot is an immutable copy of the store contents.
type Snapshot struct {
	AccountID          string            `json:"account_id,omitempty"`
	Wishlists          []domain.Wishlist `json:"wishlists"`
	WishlistedProducts []string          `json:"wishlisted_products"`
	Version            int64             `json:"version"`
}

// Listener receives the new state after every change.
type Listener func(Snapshot)

type subscription struct {
	id int
	fn Listener
}

// Store is the observable wishlist collection. Every write replaces the
// collection wholesale and recomputes the derived product set.
type Store struct {
	mu         sync.RWMutex
	accountID  string
	wishlists  []domain.Wishlist
	wishlisted map[string]struct{}
	version    int64

	subMu  sync.Mutex
	nextID int
	subs   []subscription
}

// New returns an empty store.
func New() *Store {
	return &Store{
		wishlists:  []domain.Wishlist{},
		wishlisted: map[string]struct{}{},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	products := make([]string, 0, len(s.wishlisted))
	for id := range s.wishlisted {
		products = append(products, id)
	}
	slices.Sort(products)

	return Snapshot{
		AccountID:          s.accountID,
		Wishlists:          domain.CloneAll(s.wishlists),
		WishlistedProducts: products,
		Version:            s.version,
	}
}

// Version returns the version token of the last persisted or loaded state.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Replace swaps in a new collection. The caller's slice is copied.
func (s *Store) Replace(accountID string, wishlists []domain.Wishlist, version int64) {
	next := domain.CloneAll(wishlists)

	s.mu.Lock()
	s.accountID = accountID
	s.wishlists = next
	s.wishlisted = domain.WishlistedProducts(next)
	s.version = version
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

// SetVersion records the version returned by a successful write.
func (s *Store) SetVersion(version int64) {
	s.mu.Lock()
	s.version = version
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

// Clear empties the store and forgets the account.
func (s *Store) Clear() {
	s.Replace("", nil, 0)
}

// IsProductWishlisted reports whether productID is saved in any wishlist.
func (s *Store) IsProductWishlisted(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.wishlisted[productID]
	return ok
}

// Subscribe registers fn for future changes. Listeners run synchronously in
// registration order, outside the state lock, so they may read the store.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool { return sub.id == id })
		})
	}
}

// Subscribers returns the number of registered listeners.
func (s *Store) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func (s *Store) publish(snap Snapshot) {
	s.subMu.Lock()
	subs := slices.Clone(s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}
