// Package saga holds the settlement saga vocabulary: the closed set of events that travel
// on the saga and command exchanges, and the per-ride saga state machine.
package saga

import (
	"errors"
	"strings"

	"ride-settlement/internal/domain/payment"
)

// Kind is the event name carried in the `event` field and in the `payment.<kind>` routing key.
type Kind string

const (
	KindRideCompleted  Kind = "RideCompleted"
	KindSuccess        Kind = "success"
	KindFailed         Kind = "failed"
	KindProcessPayment Kind = "process_payment"
)

var ErrUnknownKind = errors.New("unknown saga event")

// ParseKind validates an event name. Matching is exact apart from surrounding whitespace.
func ParseKind(in string) (Kind, error) {
	kind := Kind(strings.TrimSpace(in))
	switch kind {
	case KindRideCompleted, KindSuccess, KindFailed, KindProcessPayment:
		return kind, nil
	default:
		return "", ErrUnknownKind
	}
}

// String returns the string representation of the Kind.
func (kind Kind) String() string {
	return string(kind)
}

// Event is one of RideCompleted, PaymentSucceeded, PaymentFailed or ProcessPaymentCommand.
// The set is closed: the unexported marker keeps other packages from adding variants.
type Event interface {
	SagaID() string
	Kind() Kind
	Request() payment.Request
	sagaEvent()
}

// RideCompleted starts the saga for a ride.
type RideCompleted struct {
	Req payment.Request
}

// PaymentSucceeded announces a completed payment.
type PaymentSucceeded struct {
	Req       payment.Request
	PaymentID string
}

// PaymentFailed announces a failed payment.
type PaymentFailed struct {
	Req       payment.Request
	PaymentID string
	Reason    string
}

// ProcessPaymentCommand asks for a specific payment to be processed, deduplicated by MessageID.
type ProcessPaymentCommand struct {
	Req       payment.Request
	MessageID string
}

func (e RideCompleted) SagaID() string           { return e.Req.RideID }
func (e RideCompleted) Kind() Kind               { return KindRideCompleted }
func (e RideCompleted) Request() payment.Request { return e.Req }
func (RideCompleted) sagaEvent()                 {}

func (e PaymentSucceeded) SagaID() string           { return e.Req.RideID }
func (e PaymentSucceeded) Kind() Kind               { return KindSuccess }
func (e PaymentSucceeded) Request() payment.Request { return e.Req }
func (PaymentSucceeded) sagaEvent()                 {}

func (e PaymentFailed) SagaID() string           { return e.Req.RideID }
func (e PaymentFailed) Kind() Kind               { return KindFailed }
func (e PaymentFailed) Request() payment.Request { return e.Req }
func (PaymentFailed) sagaEvent()                 {}

func (e ProcessPaymentCommand) SagaID() string           { return e.Req.RideID }
func (e ProcessPaymentCommand) Kind() Kind               { return KindProcessPayment }
func (e ProcessPaymentCommand) Request() payment.Request { return e.Req }
func (ProcessPaymentCommand) sagaEvent()                 {}

// Outcome builds the terminal event for a payment that has reached completed or failed.
func Outcome(p *payment.Payment) (Event, error) {
	switch p.Status {
	case payment.StatusCompleted:
		return PaymentSucceeded{Req: p.Request(), PaymentID: p.ID}, nil
	case payment.StatusFailed:
		reason := ""
		if p.FailureReason != nil {
			reason = *p.FailureReason
		}
		return PaymentFailed{Req: p.Request(), PaymentID: p.ID, Reason: reason}, nil
	default:
		return nil, payment.ErrPaymentNotPending
	}
}
