package event

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/justin-elyphant/elyphant-v1-sub002/pkg/kafka"
	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProducer_PublishWishlistUpdated(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, newTestLogger())

	now := time.Now()
	a := domain.NewWishlist("acct-1", "A", "", now)
	a.Items = append(a.Items,
		domain.NewItem(a.ID, domain.ProductSnapshot{ProductID: "p-2"}, now),
		domain.NewItem(a.ID, domain.ProductSnapshot{ProductID: "p-1"}, now))
	b := domain.NewWishlist("acct-1", "B", "", now)

	var captured *pkgkafka.Event
	pub.On("Publish", mock.Anything, TopicWishlistUpdated, mock.AnythingOfType("*kafka.Event")).
		Run(func(args mock.Arguments) { captured = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	require.NoError(t, p.PublishWishlistUpdated(ctx, "acct-1", 9, []domain.Wishlist{a, b}))

	require.NotNil(t, captured)
	assert.Equal(t, TopicWishlistUpdated, captured.EventType)
	assert.Equal(t, "acct-1", captured.AggregateID)
	assert.Equal(t, AggregateTypeProfile, captured.AggregateType)
	assert.Equal(t, SourceWishlistService, captured.Source)
	assert.Equal(t, "corr-42", captured.CorrelationID)

	var data WishlistUpdatedData
	require.NoError(t, captured.UnmarshalData(&data))
	assert.Equal(t, int64(9), data.Version)
	assert.Equal(t, 2, data.WishlistCount)
	assert.Equal(t, 2, data.ItemCount)
	assert.Equal(t, []string{"p-1", "p-2"}, data.ProductIDs)
	pub.AssertExpectations(t)
}

func TestProducer_PublishNotification(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, newTestLogger())

	var captured *pkgkafka.Event
	pub.On("Publish", mock.Anything, TopicWishlistNotification, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).(*pkgkafka.Event) }).
		Return(nil)

	err := p.PublishNotification(context.Background(), domain.Notification{
		AccountID: "acct-1", Operation: "quick_add", Level: domain.LevelInfo, Message: "Already in your wishlist",
	})
	require.NoError(t, err)

	var data NotificationData
	require.NoError(t, captured.UnmarshalData(&data))
	assert.Equal(t, "info", data.Level)
	assert.Equal(t, "Already in your wishlist", data.Message)
	assert.Empty(t, captured.CorrelationID)
}

func TestProducer_PublishError(t *testing.T) {
	pub := new(mockPublisher)
	p := NewProducer(pub, newTestLogger())
	pub.On("Publish", mock.Anything, TopicWishlistUpdated, mock.Anything).Return(errors.New("broker unavailable"))

	err := p.PublishWishlistUpdated(context.Background(), "acct-1", 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish ecommerce.wishlist.updated event")
	assert.Contains(t, err.Error(), "broker unavailable")
}
