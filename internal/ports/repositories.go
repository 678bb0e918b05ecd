package ports

import (
	"context"
	"time"

	"ride-settlement/internal/domain/ledger"
	"ride-settlement/internal/domain/payment"

	"github.com/shopspring/decimal"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentRepository defines the methods for managing payment rows.
type PaymentRepository interface {
	// Create inserts p unless a non-failed payment already exists for the ride; created reports which.
	Create(ctx context.Context, p *payment.Payment) (created bool, err error)
	GetByID(ctx context.Context, id string) (*payment.Payment, error)
	// LatestForRide returns the newest payment for a ride, or nil when there is none.
	LatestForRide(ctx context.Context, rideID string) (*payment.Payment, error)
	// MarkCompleted and MarkFailed only touch pending rows and return payment.ErrPaymentNotPending otherwise.
	MarkCompleted(ctx context.Context, id string, split payment.Split, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
}

// BalanceRepository defines the methods for managing the driver ledger.
type BalanceRepository interface {
	// Credit adds amount to the driver's balance, creating it on first use, and returns the new balance.
	Credit(ctx context.Context, driverID string, amount decimal.Decimal) (ledger.Balance, error)
	Get(ctx context.Context, driverID string) (*ledger.Balance, error)
}

// TariffRepository defines the methods for reading and seeding city tariffs.
type TariffRepository interface {
	GetByCity(ctx context.Context, city string) (*ledger.Tariff, error)
	Upsert(ctx context.Context, t ledger.Tariff) error
}

// ProcessedMessageRepository is the append-only idempotency ledger.
type ProcessedMessageRepository interface {
	Exists(ctx context.Context, messageID string) (bool, error)
	// Insert is a no-op when the message id is already recorded.
	Insert(ctx context.Context, messageID string, at time.Time) error
}
