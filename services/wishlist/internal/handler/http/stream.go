package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/store"
)

// DefaultHeartbeat is the interval between keep-alive comments on idle
// streams.
const DefaultHeartbeat = 15 * time.Second

// StreamConfig tunes the server-sent event stream.
type StreamConfig struct {
	Heartbeat time.Duration
}

// Stream handles GET /api/v1/wishlists/stream. It sends the current state
// as a "snapshot" event, then one more per change. Bursts of changes are
// coalesced so a slow client only ever receives the latest state. The
// stream ends with a "signed_out" event when the session is evicted.
func (h *WishlistHandler) Stream(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	log := logger.WithContext(r.Context(), h.logger)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	updates := make(chan store.Snapshot, 1)
	unsubscribe := engine.Subscribe(func(s store.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSnapshot(w, engine.Wishlists()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.WarnContext(r.Context(), "event stream not flushable", slog.String("error", err.Error()))
		return
	}

	heartbeat := time.NewTicker(h.stream.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if snap.AccountID == "" {
				_, _ = io.WriteString(w, "event: signed_out\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if err := writeSnapshot(w, snap); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSnapshot(w io.Writer, snap store.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, data)
	return err
}
