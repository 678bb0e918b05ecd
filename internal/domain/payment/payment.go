package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Request carries the settlement fields shared by RideCompleted events and process_payment commands.
type Request struct {
	RideID      string
	PassengerID string
	DriverID    string
	Amount      decimal.Decimal
	Method      Method
	City        string
}

// Validate checks the request and returns an error wrapping ErrValidation.
func (req Request) Validate() error {
	var problems []string
	if strings.TrimSpace(req.RideID) == "" {
		problems = append(problems, "rideId is required")
	}
	if strings.TrimSpace(req.PassengerID) == "" {
		problems = append(problems, "passengerId is required")
	}
	if strings.TrimSpace(req.DriverID) == "" {
		problems = append(problems, "driverId is required")
	}
	if !req.Amount.IsPositive() {
		problems = append(problems, "amount must be positive")
	} else if !req.Amount.Equal(req.Amount.Round(MinorUnitPlaces)) {
		problems = append(problems, fmt.Sprintf("amount must have at most %d decimal places", MinorUnitPlaces))
	} else if req.Amount.GreaterThan(MaxAmount) {
		problems = append(problems, "amount must not exceed "+MaxAmount.StringFixed(MinorUnitPlaces))
	}
	if !req.Method.Valid() {
		problems = append(problems, "paymentMethod is not supported")
	}
	if strings.TrimSpace(req.City) == "" {
		problems = append(problems, "city is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// Equal reports whether both requests settle the same ride the same way.
func (req Request) Equal(other Request) bool {
	return req.RideID == other.RideID &&
		req.PassengerID == other.PassengerID &&
		req.DriverID == other.DriverID &&
		req.Amount.Equal(other.Amount) &&
		req.Method == other.Method &&
		req.City == other.City
}

// Payment is the domain entity corresponding to the `payments` table.
type Payment struct {
	ID          string
	RideID      string
	PassengerID string
	DriverID    string
	Amount      decimal.Decimal
	Method      Method
	City        string
	Status      Status

	// set once the payment is completed
	Commission   decimal.NullDecimal
	DriverAmount decimal.NullDecimal

	// set once the payment failed
	FailureReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a pending payment for the request under the given id.
func New(id string, req Request) (*Payment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Payment{
		ID:          id,
		RideID:      req.RideID,
		PassengerID: req.PassengerID,
		DriverID:    req.DriverID,
		Amount:      req.Amount,
		Method:      req.Method,
		City:        req.City,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Request returns the settlement request the payment was opened for.
func (p *Payment) Request() Request {
	return Request{
		RideID:      p.RideID,
		PassengerID: p.PassengerID,
		DriverID:    p.DriverID,
		Amount:      p.Amount,
		Method:      p.Method,
		City:        p.City,
	}
}

// Complete moves a pending payment to completed and records the split.
func (p *Payment) Complete(split Split, at time.Time) error {
	if !p.Status.CanTransitionTo(StatusCompleted) {
		return ErrPaymentNotPending
	}
	p.Status = StatusCompleted
	p.Commission = decimal.NewNullDecimal(split.Commission)
	p.DriverAmount = decimal.NewNullDecimal(split.DriverAmount)
	p.UpdatedAt = at
	return nil
}

// Fail moves a pending payment to failed with a reason.
func (p *Payment) Fail(reason string, at time.Time) error {
	if !p.Status.CanTransitionTo(StatusFailed) {
		return ErrPaymentNotPending
	}
	p.Status = StatusFailed
	p.FailureReason = &reason
	p.UpdatedAt = at
	return nil
}
