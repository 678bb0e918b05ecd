// Package events maps saga events and payment commands to and from their wire form.
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/domain/saga"
	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/ports"
)

// DecodeSaga parses a payment_saga message. Errors wrap payment.ErrValidation.
// RideCompleted data is validated in full; success and failed are informational and only
// need a saga id.
func DecodeSaga(body []byte) (saga.Event, error) {
	var msg contracts.SagaMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: decode saga message: %v", payment.ErrValidation, err)
	}

	kind, err := saga.ParseKind(msg.Event)
	if err != nil {
		return nil, fmt.Errorf("%w: event %q: %v", payment.ErrValidation, msg.Event, err)
	}

	// sagaId is the ride id; data.rideId may be omitted by producers
	if msg.Data.RideID == "" {
		msg.Data.RideID = msg.SagaID
	}
	if msg.SagaID != "" && msg.SagaID != msg.Data.RideID {
		return nil, fmt.Errorf("%w: sagaId %q does not match rideId %q", payment.ErrValidation, msg.SagaID, msg.Data.RideID)
	}

	switch kind {
	case saga.KindRideCompleted:
		req, err := ToRequest(msg.Data)
		if err != nil {
			return nil, err
		}
		return saga.RideCompleted{Req: req}, nil
	case saga.KindSuccess:
		return saga.PaymentSucceeded{Req: looseRequest(msg.Data), PaymentID: msg.PaymentID}, nil
	case saga.KindFailed:
		return saga.PaymentFailed{Req: looseRequest(msg.Data), PaymentID: msg.PaymentID, Reason: msg.Reason}, nil
	default:
		// process_payment travels on the command exchange only
		return nil, fmt.Errorf("%w: event %q is not a saga event", payment.ErrValidation, kind)
	}
}

// EncodeSaga returns the routing key and body for a saga event.
func EncodeSaga(evt saga.Event) (string, []byte, error) {
	msg := contracts.SagaMessage{
		SagaID: contracts.ID(evt.SagaID()),
		Event:  evt.Kind().String(),
		Data:   FromRequest(evt.Request()),
	}

	switch e := evt.(type) {
	case saga.RideCompleted:
	case saga.PaymentSucceeded:
		msg.PaymentID = e.PaymentID
	case saga.PaymentFailed:
		msg.PaymentID = e.PaymentID
		msg.Reason = e.Reason
	case saga.ProcessPaymentCommand:
		return "", nil, fmt.Errorf("process_payment is a command; use EncodeCommand")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", nil, fmt.Errorf("encode saga message: %w", err)
	}
	return contracts.SagaRoutingKey(msg.Event), body, nil
}

// DecodeCommand parses a process_payment delivery. The message id comes from the AMQP
// MessageId property; a command without one cannot be deduplicated and is invalid.
func DecodeCommand(d ports.Delivery) (saga.ProcessPaymentCommand, error) {
	messageID := strings.TrimSpace(d.MessageID)
	if messageID == "" {
		return saga.ProcessPaymentCommand{}, fmt.Errorf("%w: command without message id", payment.ErrValidation)
	}

	var msg contracts.CommandMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return saga.ProcessPaymentCommand{}, fmt.Errorf("%w: decode command: %v", payment.ErrValidation, err)
	}

	req, err := ToRequest(msg.Data)
	if err != nil {
		return saga.ProcessPaymentCommand{}, err
	}
	return saga.ProcessPaymentCommand{Req: req, MessageID: messageID}, nil
}

// EncodeCommand returns the body of a process_payment command.
func EncodeCommand(cmd saga.ProcessPaymentCommand) ([]byte, error) {
	body, err := json.Marshal(contracts.CommandMessage{Data: FromRequest(cmd.Req)})
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return body, nil
}

// ToRequest converts and validates wire data.
func ToRequest(d contracts.PaymentData) (payment.Request, error) {
	req := looseRequest(d)
	if err := req.Validate(); err != nil {
		return payment.Request{}, err
	}
	return req, nil
}

// FromRequest converts a request to wire data.
func FromRequest(req payment.Request) contracts.PaymentData {
	return contracts.PaymentData{
		RideID:        contracts.ID(req.RideID),
		PassengerID:   contracts.ID(req.PassengerID),
		DriverID:      contracts.ID(req.DriverID),
		Amount:        req.Amount,
		PaymentMethod: req.Method.String(),
		City:          req.City,
	}
}

func looseRequest(d contracts.PaymentData) payment.Request {
	return payment.Request{
		RideID:      d.RideID.String(),
		PassengerID: d.PassengerID.String(),
		DriverID:    d.DriverID.String(),
		Amount:      d.Amount,
		Method:      payment.Method(strings.ToLower(strings.TrimSpace(d.PaymentMethod))),
		City:        strings.TrimSpace(d.City),
	}
}
