package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ride-settlement/internal/domain/ledger"
	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/ports"
)

// maxReasonLen caps the failure reason stored on the payment row.
const maxReasonLen = 500

// Process settles one pending payment:
//  1. load the city tariff (no fallback),
//  2. for card methods, resolve the rider's card token and charge the gateway,
//  3. in one transaction, complete the payment, credit the driver and record the message id.
//
// Any failure marks the payment failed and is returned. The tariff is read before the
// charge so a ride without a tariff never charges the rider.
func (p *processor) Process(ctx context.Context, in ports.ProcessInput) (ports.ProcessResult, error) {
	if in.Payment == nil {
		return ports.ProcessResult{}, fmt.Errorf("%w: no payment to process", payment.ErrValidation)
	}
	current := *in.Payment
	if current.Status != payment.StatusPending {
		return ports.ProcessResult{Payment: &current}, payment.ErrPaymentNotPending
	}

	ctx = p.logger.WithRideID(ctx, current.RideID)
	ctx = p.logger.WithMessageID(ctx, in.MessageID)

	balance, err := p.settle(ctx, &current, in.MessageID)
	if err == nil {
		p.metrics.PaymentCompleted()
		p.logger.Info(ctx, "payment_completed", "Payment completed and driver credited", map[string]any{
			"payment_id":     current.ID,
			"driver_id":      current.DriverID,
			"commission":     current.Commission.Decimal.String(),
			"driver_amount":  current.DriverAmount.Decimal.String(),
			"driver_balance": balance.Amount.String(),
		})
		return ports.ProcessResult{Payment: &current, Balance: &balance}, nil
	}

	if errors.Is(err, payment.ErrPaymentNotPending) {
		// settled by a concurrent delivery between the caller's read and our update
		final, gerr := p.reload(ctx, current.ID)
		if gerr != nil {
			return ports.ProcessResult{}, fmt.Errorf("%w (reload: %v)", err, gerr)
		}
		p.logger.Info(ctx, "payment_already_settled", "Payment left pending concurrently; nothing to do",
			map[string]any{"payment_id": current.ID, "status": final.Status.String()})
		return ports.ProcessResult{Payment: final}, err
	}

	action := "payment_failed"
	if payment.IsDataIntegrity(err) {
		action = "settlement_data_integrity_alert"
	}
	p.logger.Error(ctx, action, "Payment could not be settled", err, map[string]any{
		"payment_id": current.ID,
		"city":       current.City,
		"method":     current.Method.String(),
	})

	final, ferr := p.fail(ctx, current.ID, reasonOf(err))
	if ferr != nil {
		p.logger.Error(ctx, "payment_fail_record_failed", "Failed to record payment failure; payment stays pending", ferr,
			map[string]any{"payment_id": current.ID})
		return ports.ProcessResult{}, fmt.Errorf("%w (recording failure: %v)", err, ferr)
	}
	if final.Status == payment.StatusFailed {
		p.metrics.PaymentFailed()
	}
	return ports.ProcessResult{Payment: final}, err
}

// settle runs the lookups, the charge and the ledger transaction. On success pay is
// completed in place.
func (p *processor) settle(ctx context.Context, pay *payment.Payment, messageID string) (ledger.Balance, error) {
	var tariff *ledger.Tariff
	err := p.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		tariff, err = p.tariffs.GetByCity(ctx, pay.City)
		return err
	})
	if err != nil {
		return ledger.Balance{}, err
	}

	if pay.Method.IsCard() {
		if err := p.charge(ctx, pay); err != nil {
			return ledger.Balance{}, err
		}
	}

	split := payment.ComputeSplit(pay.Amount, tariff.CommissionPercentage, pay.Method)
	at := p.now()

	var balance ledger.Balance
	err = p.uow.WithinTx(ctx, func(ctx context.Context) error {
		// the conditional update runs first so a payment settled elsewhere is never credited twice
		if err := p.payments.MarkCompleted(ctx, pay.ID, split, at); err != nil {
			return err
		}

		var err error
		balance, err = p.balances.Credit(ctx, pay.DriverID, split.DriverAmount)
		if err != nil {
			return err
		}

		if messageID != "" {
			return p.guard.MarkProcessed(ctx, messageID)
		}
		return nil
	})
	if err != nil {
		return ledger.Balance{}, err
	}

	if messageID != "" {
		p.guard.Remember(ctx, messageID)
	}
	if err := pay.Complete(split, at); err != nil {
		return ledger.Balance{}, err
	}
	return balance, nil
}

// charge resolves the card token and charges the gateway, each bounded by the timeout.
// The payment id is the gateway idempotency key, so a redelivered payment is not charged twice.
func (p *processor) charge(ctx context.Context, pay *payment.Payment) error {
	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	token, err := p.profiles.CardToken(lookupCtx, pay.PassengerID)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: card token for passenger %s: %w", payment.ErrChargeFailed, pay.PassengerID, err)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.gateway.Charge(chargeCtx, ports.ChargeRequest{
		CardToken:      token,
		Amount:         pay.Amount,
		IdempotencyKey: pay.ID,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", payment.ErrChargeFailed, err)
	}

	p.logger.Info(ctx, "card_charged", "Card charged", map[string]any{
		"payment_id":     pay.ID,
		"transaction_id": res.TransactionID,
		"amount":         pay.Amount.String(),
	})
	return nil
}

// fail marks the payment failed and returns its stored state. A payment that already left
// pending (completed by a concurrent consumer) is returned unchanged.
func (p *processor) fail(ctx context.Context, id, reason string) (*payment.Payment, error) {
	// the failure must be recorded even if the delivery context has expired
	ctx = context.WithoutCancel(ctx)

	var final *payment.Payment
	err := p.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.payments.MarkFailed(ctx, id, reason, p.now()); err != nil && !errors.Is(err, payment.ErrPaymentNotPending) {
			return err
		}
		var err error
		final, err = p.payments.GetByID(ctx, id)
		return err
	})
	return final, err
}

func (p *processor) reload(ctx context.Context, id string) (*payment.Payment, error) {
	var found *payment.Payment
	err := p.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		found, err = p.payments.GetByID(ctx, id)
		return err
	})
	return found, err
}

// reasonOf returns valid UTF-8 of at most maxReasonLen bytes; failure_reason is a TEXT column.
func reasonOf(err error) string {
	reason := strings.ToValidUTF8(err.Error(), "\uFFFD")
	if len(reason) <= maxReasonLen {
		return reason
	}
	cut := maxReasonLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
