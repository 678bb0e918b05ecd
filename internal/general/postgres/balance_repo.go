package postgres

import (
	"context"
	"errors"
	"fmt"

	"ride-settlement/internal/domain/ledger"
	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BalanceRepo persists driver balances.
type BalanceRepo struct{}

// NewBalanceRepo constructs a new BalanceRepo.
func NewBalanceRepo() ports.BalanceRepository {
	return &BalanceRepo{}
}

// Credit adds amount to the driver's balance. The upsert takes the row lock, so concurrent
// credits for one driver queue behind each other until the enclosing transaction ends.
func (repo *BalanceRepo) Credit(ctx context.Context, driverID string, amount decimal.Decimal) (ledger.Balance, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return ledger.Balance{}, err
	}
	if amount.IsNegative() {
		return ledger.Balance{}, ledger.ErrNegativeCredit
	}

	var b ledger.Balance
	err = tx.QueryRow(ctx, `
		INSERT INTO balances (driver_id, amount, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (driver_id)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
		RETURNING driver_id, amount, updated_at`,
		driverID, amount,
	).Scan(&b.DriverID, &b.Amount, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Balance{}, fmt.Errorf("%w: driver %s", payment.ErrBalanceNotFound, driverID)
	}
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("credit balance %s: %w", driverID, err)
	}
	return b, nil
}

// Get returns the balance of a driver or payment.ErrBalanceNotFound.
func (repo *BalanceRepo) Get(ctx context.Context, driverID string) (*ledger.Balance, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var b ledger.Balance
	err = tx.QueryRow(ctx, `SELECT driver_id, amount, updated_at FROM balances WHERE driver_id = $1`, driverID).
		Scan(&b.DriverID, &b.Amount, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payment.ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get balance %s: %w", driverID, err)
	}
	return &b, nil
}
