package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/ports"

	"github.com/jackc/pgx/v5"
)

// PaymentRepo persists payments using pgx and plain SQL.
type PaymentRepo struct{}

// NewPaymentRepo constructs a new PaymentRepo.
func NewPaymentRepo() ports.PaymentRepository {
	return &PaymentRepo{}
}

const paymentColumns = `
	id, ride_id, passenger_id, driver_id, amount, payment_method, city, status,
	commission, driver_amount, failure_reason, created_at, updated_at`

// Create inserts a pending payment unless the ride already owns a non-failed one.
func (repo *PaymentRepo) Create(ctx context.Context, p *payment.Payment) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payments (
			id, ride_id, passenger_id, driver_id, amount, payment_method, city, status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (ride_id) WHERE status <> 'failed' DO NOTHING
		RETURNING created_at, updated_at
	`,
		p.ID,
		p.RideID,
		p.PassengerID,
		p.DriverID,
		p.Amount,
		p.Method.String(),
		p.City,
		p.Status.String(),
		p.CreatedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// lost the race to another open payment for this ride
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return true, nil
}

// GetByID fetches a payment by primary key.
func (repo *PaymentRepo) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payment.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return p, nil
}

// LatestForRide returns the most recent payment attempt for a ride, or nil.
// The open (non-failed) payment wins over newer failed attempts.
func (repo *PaymentRepo) LatestForRide(ctx context.Context, rideID string) (*payment.Payment, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := scanPayment(tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE ride_id = $1
		ORDER BY (status <> 'failed') DESC, created_at DESC
		LIMIT 1`, rideID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest payment for ride %s: %w", rideID, err)
	}
	return p, nil
}

// MarkCompleted moves a pending payment to completed with its commission split.
func (repo *PaymentRepo) MarkCompleted(ctx context.Context, id string, split payment.Split, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = 'completed', commission = $2, driver_amount = $3, failure_reason = NULL, updated_at = $4
		WHERE id = $1 AND status = 'pending'`,
		id, split.Commission, split.DriverAmount, at)
	if err != nil {
		return fmt.Errorf("complete payment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repo.notPending(ctx, tx, id)
	}
	return nil
}

// MarkFailed moves a pending payment to failed.
func (repo *PaymentRepo) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, reason, at)
	if err != nil {
		return fmt.Errorf("fail payment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repo.notPending(ctx, tx, id)
	}
	return nil
}

// notPending tells a missing row apart from one that already left pending.
func (repo *PaymentRepo) notPending(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check payment %s: %w", id, err)
	}
	if !exists {
		return payment.ErrPaymentNotFound
	}
	return payment.ErrPaymentNotPending
}

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var (
		p      payment.Payment
		method string
		status string
	)
	err := row.Scan(
		&p.ID, &p.RideID, &p.PassengerID, &p.DriverID, &p.Amount, &method, &p.City, &status,
		&p.Commission, &p.DriverAmount, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// rows were written through the domain types, so parse failures mean a corrupted row
	if p.Method, err = payment.ParseMethod(method); err != nil {
		return nil, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	if p.Status, err = payment.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	return &p, nil
}
