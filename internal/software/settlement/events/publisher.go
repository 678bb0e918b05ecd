package events

import (
	"context"
	"fmt"

	"ride-settlement/internal/domain/saga"
	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/ports"

	"github.com/google/uuid"
)

// Publisher puts saga events and commands on their exchanges.
type Publisher struct {
	pub ports.Publisher
}

// NewPublisher wraps a transport publisher.
func NewPublisher(pub ports.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// PublishEvent publishes evt on payment_saga under payment.<event>. Outcome events carry a
// deterministic message id (payment id + event) so consumers can drop duplicates of a
// re-published outcome.
func (p *Publisher) PublishEvent(ctx context.Context, evt saga.Event) error {
	key, body, err := EncodeSaga(evt)
	if err != nil {
		return err
	}

	var messageID string
	switch e := evt.(type) {
	case saga.PaymentSucceeded:
		messageID = e.PaymentID + ":" + e.Kind().String()
	case saga.PaymentFailed:
		messageID = e.PaymentID + ":" + e.Kind().String()
	default:
		messageID = uuid.NewString()
	}

	if err := p.pub.Publish(ctx, contracts.ExchangeSaga, key, ports.Message{Body: body, MessageID: messageID}); err != nil {
		return fmt.Errorf("publish %s for ride %s: %w", key, evt.SagaID(), err)
	}
	return nil
}

// PublishCommand publishes a process_payment command with its message id.
func (p *Publisher) PublishCommand(ctx context.Context, cmd saga.ProcessPaymentCommand) error {
	body, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	msg := ports.Message{Body: body, MessageID: cmd.MessageID}
	if err := p.pub.Publish(ctx, contracts.ExchangeCommands, contracts.RouteProcessPayment, msg); err != nil {
		return fmt.Errorf("publish command %s for ride %s: %w", cmd.MessageID, cmd.SagaID(), err)
	}
	return nil
}
