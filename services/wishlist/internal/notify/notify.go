// Package notify delivers user-visible wishlist messages.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/domain"
)

// Notifier is a fire-and-forget sink for user-visible messages.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n domain.Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) { f(ctx, n) }

// Multi fans a notification out to every non-nil notifier.
func Multi(notifiers ...Notifier) Notifier {
	var ns []Notifier
	for _, n := range notifiers {
		if n != nil {
			ns = append(ns, n)
		}
	}
	return NotifierFunc(func(ctx context.Context, n domain.Notification) {
		for _, sink := range ns {
			sink.Notify(ctx, n)
		}
	})
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs n at info level, or warn for error notifications.
func (l *LogNotifier) Notify(ctx context.Context, n domain.Notification) {
	level := slog.LevelInfo
	if n.Level == domain.LevelError {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "wishlist notification",
		slog.String("account_id", n.AccountID),
		slog.String("operation", n.Operation),
		slog.String("level", string(n.Level)),
		slog.String("message", n.Message),
	)
}

// Publisher sends a notification to the event bus.
type Publisher interface {
	PublishNotification(ctx context.Context, n domain.Notification) error
}

// KafkaNotifier publishes notifications as events without blocking the
// caller. Publish failures are logged.
type KafkaNotifier struct {
	publisher Publisher
	logger    *slog.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewKafkaNotifier creates a KafkaNotifier.
func NewKafkaNotifier(publisher Publisher, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, logger: logger, timeout: 5 * time.Second}
}

// Notify publishes n in the background, detached from ctx cancellation and
// bounded by the notifier timeout.
func (k *KafkaNotifier) Notify(ctx context.Context, n domain.Notification) {
	ctx = context.WithoutCancel(ctx)
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, k.timeout)
		defer cancel()
		if err := k.publisher.PublishNotification(ctx, n); err != nil {
			k.logger.WarnContext(ctx, "failed to publish wishlist notification",
				slog.String("account_id", n.AccountID),
				slog.String("operation", n.Operation),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until in-flight publishes have finished.
func (k *KafkaNotifier) Wait() {
	k.wg.Wait()
}
