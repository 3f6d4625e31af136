package event

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	pkgkafka "github.com/justin-elyphant/elyphant-v1-sub002/pkg/kafka"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

// Kafka topic constants for wishlist domain events.
const (
	TopicWishlistUpdated      = "ecommerce.wishlist.updated"
	TopicWishlistNotification = "ecommerce.wishlist.notification"
)

// AggregateTypeProfile is the aggregate wishlist events are keyed by.
const AggregateTypeProfile = "profile"

// SourceWishlistService identifies events originating from this service.
const SourceWishlistService = "wishlist-service"

// WishlistUpdatedData is the payload for a wishlist.updated event.
type WishlistUpdatedData struct {
	AccountID     string   `json:"account_id"`
	Version       int64    `json:"version"`
	WishlistCount int      `json:"wishlist_count"`
	ItemCount     int      `json:"item_count"`
	ProductIDs    []string `json:"product_ids"`
}

// NotificationData is the payload for a wishlist.notification event.
type NotificationData struct {
	AccountID string `json:"account_id"`
	Operation string `json:"operation"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Producer publishes wishlist domain events.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the wishlist service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishWishlistUpdated announces a durable write of the account's collection.
func (p *Producer) PublishWishlistUpdated(ctx context.Context, accountID string, version int64, wishlists []domain.Wishlist) error {
	products := domain.WishlistedProducts(wishlists)
	ids := make([]string, 0, len(products))
	for id := range products {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	data := WishlistUpdatedData{
		AccountID:     accountID,
		Version:       version,
		WishlistCount: len(wishlists),
		ItemCount:     domain.ItemCount(wishlists),
		ProductIDs:    ids,
	}

	if err := p.publish(ctx, TopicWishlistUpdated, accountID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published wishlist.updated event",
		slog.String("account_id", accountID),
		slog.Int64("version", version),
	)
	return nil
}

// PublishNotification forwards a user-visible message to the bus.
func (p *Producer) PublishNotification(ctx context.Context, n domain.Notification) error {
	data := NotificationData{
		AccountID: n.AccountID,
		Operation: n.Operation,
		Level:     string(n.Level),
		Message:   n.Message,
	}
	return p.publish(ctx, TopicWishlistNotification, n.AccountID, data)
}

func (p *Producer) publish(ctx context.Context, topic, accountID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, accountID, AggregateTypeProfile, SourceWishlistService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
