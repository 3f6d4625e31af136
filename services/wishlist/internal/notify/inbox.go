package notify

import (
	"context"
	"sync"

	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

type inboxKey struct{}

// Inbox collects the notifications raised while serving one request.
type Inbox struct {
	mu    sync.Mutex
	items []domain.Notification
}

// WithInbox attaches a fresh Inbox to ctx.
func WithInbox(ctx context.Context) (context.Context, *Inbox) {
	in := &Inbox{}
	return context.WithValue(ctx, inboxKey{}, in), in
}

// InboxFromContext returns the Inbox attached to ctx, or nil.
func InboxFromContext(ctx context.Context) *Inbox {
	in, _ := ctx.Value(inboxKey{}).(*Inbox)
	return in
}

func (in *Inbox) add(n domain.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = append(in.items, n)
}

// All returns the collected notifications in arrival order.
func (in *Inbox) All() []domain.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]domain.Notification, len(in.items))
	copy(out, in.items)
	return out
}

// Last returns the most recent notification.
func (in *Inbox) Last() (domain.Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.items) == 0 {
		return domain.Notification{}, false
	}
	return in.items[len(in.items)-1], true
}

// ContextNotifier appends notifications to the Inbox carried by the context.
// Notifications raised without an Inbox are dropped.
type ContextNotifier struct{}

func (ContextNotifier) Notify(ctx context.Context, n domain.Notification) {
	if in := InboxFromContext(ctx); in != nil {
		in.add(n)
	}
}
