package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/justin-elyphant/elyphant-v1-sub002/pkg/kafka"
)

// --- Mock SessionEvictor ---

type mockEvictor struct {
	mock.Mock
}

func (m *mockEvictor) Evict(ctx context.Context, accountID string) bool {
	args := m.Called(ctx, accountID)
	return args.Bool(0)
}

func newTestEvent(eventType, aggregateID string, data any) *pkgkafka.Event {
	raw, _ := json.Marshal(data)
	return &pkgkafka.Event{
		EventID:       "evt-" + eventType,
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: "user",
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        "user-service",
		Data:          raw,
	}
}

func TestConsumerHandler_PasswordResetEvictsSession(t *testing.T) {
	ev := new(mockEvictor)
	h := NewConsumerHandler(ev, newTestLogger())
	ev.On("Evict", mock.Anything, "user-1").Return(true).Once()

	err := h.Handle(context.Background(), newTestEvent(TopicUserPasswordReset, "user-1", UserEventData{UserID: "user-1"}))
	require.NoError(t, err)
	ev.AssertExpectations(t)
}

func TestConsumerHandler_LoggedOutFallsBackToAggregateID(t *testing.T) {
	ev := new(mockEvictor)
	h := NewConsumerHandler(ev, newTestLogger())
	ev.On("Evict", mock.Anything, "user-2").Return(false).Once()

	err := h.Handle(context.Background(), newTestEvent(TopicUserLoggedOut, "user-2", map[string]string{}))
	require.NoError(t, err)
	ev.AssertExpectations(t)
}

func TestConsumerHandler_MissingAccountIsSkipped(t *testing.T) {
	ev := new(mockEvictor)
	h := NewConsumerHandler(ev, newTestLogger())

	err := h.Handle(context.Background(), newTestEvent(TopicUserLoggedOut, "", map[string]string{}))
	require.NoError(t, err)
	ev.AssertNotCalled(t, "Evict", mock.Anything, mock.Anything)
}

func TestConsumerHandler_MalformedPayload(t *testing.T) {
	ev := new(mockEvictor)
	h := NewConsumerHandler(ev, newTestLogger())
	event := newTestEvent(TopicUserPasswordReset, "user-1", nil)
	event.Data = json.RawMessage(`{"user_id":`)

	err := h.Handle(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
	ev.AssertNotCalled(t, "Evict", mock.Anything, mock.Anything)
}

func TestConsumerHandler_UnknownEventIgnored(t *testing.T) {
	ev := new(mockEvictor)
	h := NewConsumerHandler(ev, newTestLogger())

	err := h.Handle(context.Background(), newTestEvent("ecommerce.user.registered", "user-1", nil))
	assert.NoError(t, err)
	ev.AssertNotCalled(t, "Evict", mock.Anything, mock.Anything)
}

func TestConsumerHandler_DuplicateDeliveryEvictsOnce(t *testing.T) {
	ev := new(mockEvictor)
	h := NewConsumerHandler(ev, newTestLogger())
	ev.On("Evict", mock.Anything, "user-1").Return(true).Once()

	handle := pkgkafka.IdempotentHandler(pkgkafka.NewMemoryIdempotencyStore(time.Hour), h.Handle, newTestLogger())
	event := newTestEvent(TopicUserLoggedOut, "user-1", UserEventData{UserID: "user-1"})

	require.NoError(t, handle(context.Background(), event))
	require.NoError(t, handle(context.Background(), event))
	ev.AssertExpectations(t)
}
