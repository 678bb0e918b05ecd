// Package orchestrator drives the settlement saga of each ride: it consumes payment_saga,
// hands RideCompleted to the payment processor and announces the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/domain/saga"
	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/rabbitmq"
	"ride-settlement/internal/general/telemetry"
	"ride-settlement/internal/ports"
	"ride-settlement/internal/software/settlement/events"

	"github.com/newrelic/go-agent/v3/newrelic"
)

const consumerTag = "settlement-orchestrator"

// Orchestrator consumes the saga queue.
type Orchestrator struct {
	logger     *logger.Logger
	processor  ports.PaymentProcessor
	events     *events.Publisher
	subscriber ports.Subscriber
	nr         *newrelic.Application
	prefetch   int
}

// NewOrchestrator wires the orchestrator. nr may be nil.
func NewOrchestrator(logger *logger.Logger, processor ports.PaymentProcessor, publisher *events.Publisher,
	subscriber ports.Subscriber, nr *newrelic.Application, prefetch int) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		processor:  processor,
		events:     publisher,
		subscriber: subscriber,
		nr:         nr,
		prefetch:   prefetch,
	}
}

// Run consumes payment_saga_events until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	handler := telemetry.WrapConsumer(o.nr, contracts.QueueSagaEvents, o.Handle)
	return o.subscriber.Subscribe(ctx, contracts.QueueSagaEvents, consumerTag, o.prefetch, handler)
}

// Handle processes one saga delivery. Malformed messages are rejected; infrastructure
// errors are returned so the delivery is requeued.
func (o *Orchestrator) Handle(ctx context.Context, d ports.Delivery) error {
	evt, err := events.DecodeSaga(d.Body)
	if err != nil {
		o.logger.Error(ctx, "saga_event_invalid", "Rejecting malformed saga message", err,
			map[string]any{"routing_key": d.RoutingKey, "message_id": d.MessageID})
		return rabbitmq.Reject(err)
	}

	ctx = o.logger.WithRideID(ctx, evt.SagaID())
	o.logger.Info(ctx, "saga_event_received", "Saga event received",
		map[string]any{"event": evt.Kind().String(), "routing_key": d.RoutingKey, "redelivered": d.Redelivered})

	switch e := evt.(type) {
	case saga.RideCompleted:
		return o.onRideCompleted(ctx, e)
	case saga.PaymentSucceeded:
		o.logger.Info(ctx, "saga_completed", "Payment succeeded", map[string]any{"payment_id": e.PaymentID})
		return nil
	case saga.PaymentFailed:
		o.logger.Info(ctx, "saga_failed", "Payment failed", map[string]any{"payment_id": e.PaymentID, "reason": e.Reason})
		return nil
	case saga.ProcessPaymentCommand:
		return rabbitmq.Reject(fmt.Errorf("%w: process_payment on the saga exchange", payment.ErrValidation))
	default:
		return rabbitmq.Reject(fmt.Errorf("%w: unhandled saga event %T", payment.ErrValidation, evt))
	}
}

// onRideCompleted opens the ride's payment and settles it. A payment that is already terminal
// is not processed again; its outcome is re-published so a lost announcement is recovered.
func (o *Orchestrator) onRideCompleted(ctx context.Context, e saga.RideCompleted) error {
	instance := saga.Start(e.SagaID())

	p, created, err := o.processor.OpenForRide(ctx, e.Req)
	if err != nil {
		if errors.Is(err, payment.ErrValidation) {
			return rabbitmq.Reject(err)
		}
		o.logger.Error(ctx, "saga_open_failed", "Failed to open payment", err, nil)
		return err
	}
	if _, err := instance.Advance(saga.StateProcessing); err != nil {
		return err
	}

	if p.Status.Terminal() {
		o.logger.Info(ctx, "saga_replayed", "Ride already settled; re-publishing outcome",
			map[string]any{"payment_id": p.ID, "status": p.Status.String()})
		return o.publishOutcome(ctx, instance, p)
	}
	if !created {
		o.logger.Info(ctx, "saga_resumed", "Resuming pending payment", map[string]any{"payment_id": p.ID})
	}

	res, err := o.processor.Process(ctx, ports.ProcessInput{Payment: p})
	if res.Payment == nil {
		// the failure was not recorded; the payment is still pending and the delivery retries it
		return err
	}
	if !res.Payment.Status.Terminal() {
		return fmt.Errorf("payment %s left pending: %w", res.Payment.ID, err)
	}
	if err != nil {
		o.logger.Error(ctx, "saga_payment_failed", "Payment processing failed", err,
			map[string]any{"payment_id": res.Payment.ID, "status": res.Payment.Status.String()})
	}
	return o.publishOutcome(ctx, instance, res.Payment)
}

func (o *Orchestrator) publishOutcome(ctx context.Context, instance *saga.Instance, p *payment.Payment) error {
	evt, err := saga.Outcome(p)
	if err != nil {
		return err
	}

	next := saga.StateSuccess
	if evt.Kind() == saga.KindFailed {
		next = saga.StateFailed
	}
	if _, err := instance.Advance(next); err != nil {
		return err
	}

	if err := o.events.PublishEvent(ctx, evt); err != nil {
		// the payment is terminal, so the redelivery re-publishes without processing
		o.logger.Error(ctx, "saga_publish_failed", "Failed to publish payment outcome", err,
			map[string]any{"payment_id": p.ID, "event": evt.Kind().String()})
		return err
	}

	o.logger.Info(ctx, "saga_event_published", "Payment outcome published",
		map[string]any{"payment_id": p.ID, "event": evt.Kind().String(), "state": instance.State().String()})
	return nil
}
