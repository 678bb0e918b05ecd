// Package command consumes direct process_payment commands. Commands are deduplicated by
// their AMQP message id and may open a new attempt for a ride whose last payment failed.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/domain/saga"
	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/metrics"
	"ride-settlement/internal/general/rabbitmq"
	"ride-settlement/internal/general/telemetry"
	"ride-settlement/internal/ports"
	"ride-settlement/internal/software/settlement/events"

	"github.com/newrelic/go-agent/v3/newrelic"
)

const (
	consumerTag = "settlement-commands"

	// DefaultLockTTL outlives a handler run, which is bounded at 30s by the transport.
	DefaultLockTTL = 45 * time.Second
)

// ErrInFlight means another consumer holds the ride's command lock; the delivery is requeued.
var ErrInFlight = errors.New("command for this ride is in flight")

// Deps groups the collaborators of the consumer.
type Deps struct {
	Logger     *logger.Logger
	Processor  ports.PaymentProcessor
	Guard      ports.IdempotencyGuard
	Locker     ports.Locker // optional
	Events     *events.Publisher
	Subscriber ports.Subscriber
	Metrics    *metrics.Metrics
	NewRelic   *newrelic.Application
	Prefetch   int
	LockTTL    time.Duration
}

// Consumer handles the process_payment queue.
type Consumer struct {
	logger     *logger.Logger
	processor  ports.PaymentProcessor
	guard      ports.IdempotencyGuard
	locker     ports.Locker
	events     *events.Publisher
	subscriber ports.Subscriber
	metrics    *metrics.Metrics
	nr         *newrelic.Application
	prefetch   int
	lockTTL    time.Duration
}

// NewConsumer creates the command consumer.
func NewConsumer(d Deps) *Consumer {
	if d.LockTTL <= 0 {
		d.LockTTL = DefaultLockTTL
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics(nil)
	}
	return &Consumer{
		logger:     d.Logger,
		processor:  d.Processor,
		guard:      d.Guard,
		locker:     d.Locker,
		events:     d.Events,
		subscriber: d.Subscriber,
		metrics:    d.Metrics,
		nr:         d.NewRelic,
		prefetch:   d.Prefetch,
		lockTTL:    d.LockTTL,
	}
}

// Run consumes the process_payment queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	handler := telemetry.WrapConsumer(c.nr, contracts.QueueProcessPayment, c.Handle)
	return c.subscriber.Subscribe(ctx, contracts.QueueProcessPayment, consumerTag, c.prefetch, handler)
}

// Handle processes one command delivery.
func (c *Consumer) Handle(ctx context.Context, d ports.Delivery) error {
	cmd, err := events.DecodeCommand(d)
	if err != nil {
		c.logger.Error(ctx, "command_invalid", "Rejecting malformed command", err,
			map[string]any{"message_id": d.MessageID})
		return rabbitmq.Reject(err)
	}

	ctx = c.logger.WithMessageID(ctx, cmd.MessageID)
	ctx = c.logger.WithRideID(ctx, cmd.SagaID())
	c.logger.Info(ctx, "command_received", "Process payment command received",
		map[string]any{"redelivered": d.Redelivered})

	seen, err := c.guard.HasProcessed(ctx, cmd.MessageID)
	if err != nil {
		c.logger.Error(ctx, "command_dedup_failed", "Failed to check processed messages", err, nil)
		return err
	}
	if seen {
		c.metrics.CommandDeduplicated()
		c.logger.Info(ctx, "command_duplicate_dropped", "Command already processed", nil)
		return nil
	}

	release, err := c.lock(ctx, cmd.SagaID())
	if err != nil {
		return err
	}
	defer release()

	return c.execute(ctx, cmd)
}

// lock serializes commands of one ride across consumers. Without a locker the database
// constraints alone decide.
func (c *Consumer) lock(ctx context.Context, rideID string) (func(), error) {
	if c.locker == nil {
		return func() {}, nil
	}

	key := "ride:" + rideID
	token, ok, err := c.locker.Acquire(ctx, key, c.lockTTL)
	if err != nil {
		c.logger.Error(ctx, "command_lock_failed", "Failed to acquire ride lock", err, nil)
		return nil, err
	}
	if !ok {
		c.logger.Info(ctx, "command_in_flight", "Another consumer is settling this ride; requeueing", nil)
		return nil, ErrInFlight
	}

	return func() {
		if err := c.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			c.logger.Error(ctx, "command_unlock_failed", "Failed to release ride lock", err, nil)
		}
	}, nil
}

func (c *Consumer) execute(ctx context.Context, cmd saga.ProcessPaymentCommand) error {
	p, created, err := c.processor.OpenAttempt(ctx, cmd.Req)
	if err != nil {
		if errors.Is(err, payment.ErrValidation) {
			return rabbitmq.Reject(err)
		}
		c.logger.Error(ctx, "command_open_failed", "Failed to open payment attempt", err, nil)
		return err
	}

	switch p.Status {
	case payment.StatusCompleted:
		// the ride is already settled; record the command so repeats are dropped early
		c.logger.Info(ctx, "command_already_settled", "Ride already settled", map[string]any{"payment_id": p.ID})
		if err := c.guard.MarkProcessed(ctx, cmd.MessageID); err != nil {
			return err
		}
		c.guard.Remember(ctx, cmd.MessageID)
		return c.publish(ctx, p)

	case payment.StatusPending:
		if !created {
			c.logger.Info(ctx, "command_resumed", "Resuming pending payment", map[string]any{"payment_id": p.ID})
		}

	default:
		return fmt.Errorf("open attempt returned %s payment %s", p.Status, p.ID)
	}

	res, err := c.processor.Process(ctx, ports.ProcessInput{Payment: p, MessageID: cmd.MessageID})
	if res.Payment == nil {
		return err
	}
	if !res.Payment.Status.Terminal() {
		return fmt.Errorf("payment %s left pending: %w", res.Payment.ID, err)
	}
	if err != nil {
		// a failed command is not marked; a retry with the same message id opens a new attempt
		c.logger.Error(ctx, "command_payment_failed", "Payment processing failed", err,
			map[string]any{"payment_id": res.Payment.ID, "status": res.Payment.Status.String()})
	}
	return c.publish(ctx, res.Payment)
}

func (c *Consumer) publish(ctx context.Context, p *payment.Payment) error {
	evt, err := saga.Outcome(p)
	if err != nil {
		return err
	}
	if err := c.events.PublishEvent(ctx, evt); err != nil {
		c.logger.Error(ctx, "command_publish_failed", "Failed to publish payment outcome", err,
			map[string]any{"payment_id": p.ID})
		return err
	}
	c.logger.Info(ctx, "command_event_published", "Payment outcome published",
		map[string]any{"payment_id": p.ID, "event": evt.Kind().String()})
	return nil
}
