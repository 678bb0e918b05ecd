package contracts

import "github.com/shopspring/decimal"

// PaymentData is the ride settlement payload shared by saga events and commands.
type PaymentData struct {
	RideID        ID              `json:"rideId"`
	PassengerID   ID              `json:"passengerId"`
	DriverID      ID              `json:"driverId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	City          string          `json:"city"`
}

// SagaMessage is published on payment_saga with routing key payment.<event>.
type SagaMessage struct {
	SagaID ID          `json:"sagaId"`
	Event  string      `json:"event"`
	Data   PaymentData `json:"data"`
	// Set on payment.failed only.
	Reason    string `json:"reason,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
}

// CommandMessage is published on payment_commands with routing key process_payment.
// The message id travels as the AMQP MessageId property.
type CommandMessage struct {
	Data PaymentData `json:"data"`
}
