package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/justin-elyphant/elyphant-v1-sub002/pkg/kafka"
)

// Topics consumed from the user service.
const (
	TopicUserPasswordReset = "ecommerce.user.password_reset"
	TopicUserLoggedOut     = "ecommerce.user.logged_out"
)

// ConsumerGroupID is the default consumer group of the wishlist service.
const ConsumerGroupID = "wishlist-service"

// SessionEvictor drops the in-memory session of an account.
type SessionEvictor interface {
	Evict(ctx context.Context, accountID string) bool
}

// UserEventData is the subset of user event payloads the service reads.
type UserEventData struct {
	UserID string `json:"user_id"`
}

// ConsumerHandler reacts to authentication changes published by the user
// service by logging the affected account out.
type ConsumerHandler struct {
	sessions SessionEvictor
	logger   *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler.
func NewConsumerHandler(sessions SessionEvictor, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// Handle routes an incoming event by type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicUserPasswordReset, TopicUserLoggedOut:
		return h.handleSessionEnded(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (h *ConsumerHandler) handleSessionEnded(ctx context.Context, event *pkgkafka.Event) error {
	var data UserEventData
	if len(event.Data) > 0 {
		if err := event.UnmarshalData(&data); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.EventType, err)
		}
	}

	accountID := data.UserID
	if accountID == "" {
		accountID = event.AggregateID
	}
	if accountID == "" {
		h.logger.WarnContext(ctx, "user event without account id",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	evicted := h.sessions.Evict(ctx, accountID)
	h.logger.InfoContext(ctx, "wishlist session ended by user event",
		slog.String("event_type", event.EventType),
		slog.String("account_id", accountID),
		slog.Bool("had_session", evicted),
	)
	return nil
}

// NewConsumer creates a group consumer over the user topics, dropping
// redelivered events through store.
func NewConsumer(brokers []string, groupID string, handler *ConsumerHandler, store pkgkafka.IdempotencyStore, logger *slog.Logger) *pkgkafka.Consumer {
	if groupID == "" {
		groupID = ConsumerGroupID
	}
	cfg := pkgkafka.ConsumerConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topics:   []string{TopicUserPasswordReset, TopicUserLoggedOut},
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	return pkgkafka.NewConsumer(cfg, pkgkafka.IdempotentHandler(store, handler.Handle, logger), logger)
}
