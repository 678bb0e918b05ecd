package ports

import (
	"context"
	"time"

	"ride-settlement/internal/domain/ledger"
	"ride-settlement/internal/domain/payment"

	"github.com/shopspring/decimal"
)

// ----- External collaborators -----

// ChargeRequest is one card charge.
type ChargeRequest struct {
	CardToken      string
	Amount         decimal.Decimal
	IdempotencyKey string // payment id; a repeated key must not charge twice
}

// ChargeResult is the gateway's answer to an approved charge.
type ChargeResult struct {
	TransactionID string
}

// CardGateway charges riders' cards. Declines and transport failures are both errors.
type CardGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// PaymentMethodSource resolves a rider's stored card token.
type PaymentMethodSource interface {
	CardToken(ctx context.Context, passengerID string) (string, error)
}

// ----- Idempotency -----

// ProcessedCache is a fast, non-authoritative view of processed message ids.
type ProcessedCache interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Remember(ctx context.Context, messageID string) error
}

// Locker is a short-lived distributed mutex keyed by string.
type Locker interface {
	// Acquire returns ok=false without error when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// IdempotencyGuard deduplicates commands by message id.
type IdempotencyGuard interface {
	HasProcessed(ctx context.Context, messageID string) (bool, error)
	// MarkProcessed must run inside the transaction of the guarded mutation.
	MarkProcessed(ctx context.Context, messageID string) error
	// Remember fills the fast cache after the transaction committed.
	Remember(ctx context.Context, messageID string)
}

// ----- Payment processor -----

// ProcessInput identifies the payment to settle. MessageID is set for direct commands.
type ProcessInput struct {
	Payment   *payment.Payment
	MessageID string
}

// ProcessResult is the state after Process. Payment is nil only when the failure
// could not be recorded, in which case the payment is still pending.
type ProcessResult struct {
	Payment *payment.Payment
	Balance *ledger.Balance
}

// PaymentProcessor is the only code path that moves money.
type PaymentProcessor interface {
	// OpenForRide returns the ride's payment, creating a pending one when the ride has none.
	OpenForRide(ctx context.Context, req payment.Request) (p *payment.Payment, created bool, err error)
	// OpenAttempt is OpenForRide, except that a failed payment gets a fresh pending attempt.
	OpenAttempt(ctx context.Context, req payment.Request) (p *payment.Payment, created bool, err error)
	Process(ctx context.Context, in ProcessInput) (ProcessResult, error)
}

// ----- Read side -----

// SettlementQuery serves the HTTP read endpoints.
type SettlementQuery interface {
	PaymentForRide(ctx context.Context, rideID string) (*payment.Payment, error)
	Balance(ctx context.Context, driverID string) (*ledger.Balance, error)
}
