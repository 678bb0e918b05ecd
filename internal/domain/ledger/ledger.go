package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the driver ledger row from the `balances` table.
type Balance struct {
	DriverID  string
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

// Tariff is the per-city commission reference row from the `tariffs` table.
type Tariff struct {
	City                 string
	CommissionPercentage decimal.Decimal
}

var (
	ErrCityRequired    = errors.New("tariff city is required")
	ErrCommissionRange = errors.New("commission percentage must be between 0 and 100")
	ErrNegativeCredit  = errors.New("credit amount must not be negative")
)

var maxPercentage = decimal.NewFromInt(100)

// Validate checks that the tariff can be stored.
func (t Tariff) Validate() error {
	if strings.TrimSpace(t.City) == "" {
		return ErrCityRequired
	}
	if t.CommissionPercentage.IsNegative() || t.CommissionPercentage.GreaterThan(maxPercentage) {
		return ErrCommissionRange
	}
	return nil
}

// Credit returns the balance after adding amount.
func (b Balance) Credit(amount decimal.Decimal, at time.Time) (Balance, error) {
	if amount.IsNegative() {
		return b, ErrNegativeCredit
	}
	return Balance{DriverID: b.DriverID, Amount: b.Amount.Add(amount), UpdatedAt: at}, nil
}
