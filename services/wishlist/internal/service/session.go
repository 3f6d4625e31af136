package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/notify"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/repository"
)

type session struct {
	engine   *WishlistEngine
	lastUsed atomic.Int64 // unix nanos
}

// SessionManager keeps one WishlistEngine per signed-in account. Engines are
// created and loaded on first access and live until evicted, either
// explicitly or by Sweep once idle.
type SessionManager struct {
	repo     repository.ProfileRepository
	events   EventPublisher
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	loading  singleflight.Group
}

// NewSessionManager creates a manager whose engines share the given
// dependencies.
func NewSessionManager(repo repository.ProfileRepository, events EventPublisher, notifier notify.Notifier, logger *slog.Logger, cfg Config) *SessionManager {
	return &SessionManager{
		repo:     repo,
		events:   events,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Get returns the loaded engine for accountID, creating it if needed.
// Concurrent first requests for the same account share one load.
func (m *SessionManager) Get(ctx context.Context, accountID string) (*WishlistEngine, error) {
	if accountID == "" {
		return nil, apperrors.Unauthorized("sign in to manage wishlists")
	}

	if engine, ok := m.lookup(accountID); ok {
		return engine, nil
	}

	v, err, _ := m.loading.Do(accountID, func() (any, error) {
		if existing, ok := m.lookup(accountID); ok {
			return existing, nil
		}

		engine := NewWishlistEngine(m.repo, m.events, m.notifier, m.logger, m.cfg)
		engine.SetAccount(context.WithoutCancel(ctx), accountID)

		s := &session{engine: engine}
		s.lastUsed.Store(m.now().UnixNano())

		m.mu.Lock()
		m.sessions[accountID] = s
		sessionsActive.Set(float64(len(m.sessions)))
		m.mu.Unlock()

		m.logger.DebugContext(ctx, "wishlist session opened", slog.String("account_id", accountID))
		return engine, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*WishlistEngine), nil
}

func (m *SessionManager) lookup(accountID string) (*WishlistEngine, bool) {
	m.mu.RLock()
	s, ok := m.sessions[accountID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.lastUsed.Store(m.now().UnixNano())
	return s.engine, true
}

// Evict signs the session of accountID out and forgets it. It reports
// whether a session existed.
func (m *SessionManager) Evict(ctx context.Context, accountID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[accountID]
	delete(m.sessions, accountID)
	sessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.engine.SetAccount(ctx, "")
	m.logger.InfoContext(ctx, "wishlist session evicted", slog.String("account_id", accountID))
	return true
}

// Sweep closes sessions unused for longer than the configured idle TTL.
// Sessions with an attached subscriber are kept. It returns how many were
// closed.
func (m *SessionManager) Sweep(ctx context.Context) int {
	if m.cfg.SessionIdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.SessionIdleTTL).UnixNano()

	var idle []*session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.lastUsed.Load() < cutoff && !s.engine.Watched() {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	sessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range idle {
		s.engine.SetAccount(ctx, "")
	}
	if len(idle) > 0 {
		m.logger.DebugContext(ctx, "idle wishlist sessions closed", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
