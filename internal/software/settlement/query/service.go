// Package query serves read-only views of payments and driver balances.
package query

import (
	"context"

	"ride-settlement/internal/domain/ledger"
	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/ports"
)

type settlementQuery struct {
	uow      ports.UnitOfWork
	payments ports.PaymentRepository
	balances ports.BalanceRepository
}

// NewSettlementQuery creates the read service.
func NewSettlementQuery(uow ports.UnitOfWork, payments ports.PaymentRepository, balances ports.BalanceRepository) ports.SettlementQuery {
	return &settlementQuery{uow: uow, payments: payments, balances: balances}
}

// PaymentForRide returns the ride's latest payment or payment.ErrPaymentNotFound.
func (q *settlementQuery) PaymentForRide(ctx context.Context, rideID string) (*payment.Payment, error) {
	var found *payment.Payment
	err := q.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		found, err = q.payments.LatestForRide(ctx, rideID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, payment.ErrPaymentNotFound
	}
	return found, nil
}

// Balance returns the driver's balance or payment.ErrBalanceNotFound.
func (q *settlementQuery) Balance(ctx context.Context, driverID string) (*ledger.Balance, error) {
	var b *ledger.Balance
	err := q.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = q.balances.Get(ctx, driverID)
		return err
	})
	return b, err
}
