package notification

import (
	"context"

	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/metrics"
	"ride-settlement/internal/general/telemetry"
	"ride-settlement/internal/ports"

	"github.com/newrelic/go-agent/v3/newrelic"
)

const (
	consumerTag = "notification-service"

	// DefaultMaxRetries is the number of re-deliveries after the first attempt.
	DefaultMaxRetries = 5
)

// Deps groups the collaborators of the notification service.
type Deps struct {
	Logger     *logger.Logger
	Deliverer  Deliverer
	Publisher  ports.Publisher
	Subscriber ports.Subscriber
	Metrics    *metrics.Metrics
	NewRelic   *newrelic.Application
	MaxRetries int
	Prefetch   int
}

// Service consumes payment_notifications.
type Service struct {
	logger     *logger.Logger
	deliverer  Deliverer
	publisher  ports.Publisher
	subscriber ports.Subscriber
	metrics    *metrics.Metrics
	nr         *newrelic.Application
	maxRetries int
	prefetch   int
}

// NewService creates the notification service.
func NewService(d Deps) *Service {
	if d.MaxRetries <= 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics(nil)
	}
	return &Service{
		logger:     d.Logger,
		deliverer:  d.Deliverer,
		publisher:  d.Publisher,
		subscriber: d.Subscriber,
		metrics:    d.Metrics,
		nr:         d.NewRelic,
		maxRetries: d.MaxRetries,
		prefetch:   d.Prefetch,
	}
}

// Run consumes payment_notifications until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	handler := telemetry.WrapConsumer(s.nr, contracts.QueueNotifications, s.Handle)
	return s.subscriber.Subscribe(ctx, contracts.QueueNotifications, consumerTag, s.prefetch, handler)
}

// Handle delivers one notification. Delivery failures are acked after the envelope has been
// moved to the retry or failed exchange; only a failed hand-off requeues the original.
func (s *Service) Handle(ctx context.Context, d ports.Delivery) error {
	env := FromDelivery(d)
	ctx = s.logger.WithMessageID(ctx, env.MessageID())
	details := map[string]any{"event": env.OriginalRoutingKey(), "attempt": env.Attempt()}

	s.logger.Info(ctx, "notification_received", "Notification received", details)

	err := s.deliverer.Deliver(ctx, env)
	if err == nil {
		s.metrics.NotificationDelivered()
		s.logger.Info(ctx, "notification_delivered", "Notification delivered", details)
		return nil
	}

	if env.Attempt() < s.maxRetries {
		next := env.Next()
		if perr := s.publisher.Publish(ctx, contracts.ExchangeNotificationsRetry, contracts.QueueNotificationsRetry, next.Message("")); perr != nil {
			s.logger.Error(ctx, "notification_retry_publish_failed", "Failed to schedule retry", perr, details)
			return perr
		}
		s.metrics.NotificationRetried()
		s.logger.Error(ctx, "notification_retry_scheduled", "Delivery failed; retry scheduled", err,
			map[string]any{"event": env.OriginalRoutingKey(), "attempt": env.Attempt(), "next_attempt": next.Attempt()})
		return nil
	}

	if perr := s.publisher.Publish(ctx, contracts.ExchangeNotificationsFailed, "", env.Message(err.Error())); perr != nil {
		s.logger.Error(ctx, "notification_dead_letter_publish_failed", "Failed to dead-letter notification", perr, details)
		return perr
	}
	s.metrics.NotificationDead()
	s.logger.Error(ctx, "notification_dead_lettered", "Retries exhausted; notification moved to failure exchange", err, details)
	return nil
}
