package postgres

import (
	"context"
	"errors"
	"fmt"

	"ride-settlement/internal/domain/ledger"
	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/ports"

	"github.com/jackc/pgx/v5"
)

// TariffRepo reads and seeds city tariffs.
type TariffRepo struct{}

// NewTariffRepo constructs a new TariffRepo.
func NewTariffRepo() ports.TariffRepository {
	return &TariffRepo{}
}

// GetByCity returns the tariff for a city or payment.ErrTariffNotFound.
func (repo *TariffRepo) GetByCity(ctx context.Context, city string) (*ledger.Tariff, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var t ledger.Tariff
	err = tx.QueryRow(ctx, `SELECT city, commission_percentage FROM tariffs WHERE city = $1`, city).
		Scan(&t.City, &t.CommissionPercentage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: city %q", payment.ErrTariffNotFound, city)
	}
	if err != nil {
		return nil, fmt.Errorf("get tariff %q: %w", city, err)
	}
	return &t, nil
}

// Upsert inserts or replaces the tariff of a city.
func (repo *TariffRepo) Upsert(ctx context.Context, t ledger.Tariff) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tariffs (city, commission_percentage, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (city) DO UPDATE SET commission_percentage = EXCLUDED.commission_percentage, updated_at = now()`,
		t.City, t.CommissionPercentage)
	if err != nil {
		return fmt.Errorf("upsert tariff %q: %w", t.City, err)
	}
	return nil
}
