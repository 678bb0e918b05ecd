package processor

import (
	"context"
	"fmt"

	"ride-settlement/internal/domain/payment"
)

// OpenForRide returns the ride's payment, creating a pending one if the ride has none.
// A failed payment is returned as is so the caller can re-announce the failure.
func (p *processor) OpenForRide(ctx context.Context, req payment.Request) (*payment.Payment, bool, error) {
	return p.open(ctx, req, false)
}

// OpenAttempt is OpenForRide for direct commands: a failed payment gets a fresh pending attempt.
func (p *processor) OpenAttempt(ctx context.Context, req payment.Request) (*payment.Payment, bool, error) {
	return p.open(ctx, req, true)
}

// open reads the latest payment and inserts a new one when allowed. The insert loses
// against a concurrent open for the same ride; the second pass then reads the winner.
func (p *processor) open(ctx context.Context, req payment.Request, retryFailed bool) (*payment.Payment, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	for pass := 0; pass < 2; pass++ {
		var (
			opened  *payment.Payment
			created bool
		)

		err := p.uow.WithinTx(ctx, func(ctx context.Context) error {
			latest, err := p.payments.LatestForRide(ctx, req.RideID)
			if err != nil {
				return err
			}
			if latest != nil && !(retryFailed && latest.Status == payment.StatusFailed) {
				opened = latest
				return nil
			}

			fresh, err := payment.New(p.newID(), req)
			if err != nil {
				return err
			}
			ok, err := p.payments.Create(ctx, fresh)
			if err != nil {
				return err
			}
			if ok {
				opened, created = fresh, true
			}
			return nil
		})
		if err != nil {
			return nil, false, fmt.Errorf("open payment for ride %s: %w", req.RideID, err)
		}
		if opened == nil {
			continue
		}

		if created {
			p.metrics.PaymentCreated()
			p.logger.Info(ctx, "payment_created", "Pending payment created", map[string]any{
				"payment_id": opened.ID,
				"driver_id":  opened.DriverID,
				"amount":     opened.Amount.String(),
				"method":     opened.Method.String(),
			})
		} else if !opened.Request().Equal(req) {
			// the stored payment wins; a trigger cannot change what is being settled
			p.logger.Info(ctx, "payment_request_mismatch", "Trigger differs from the stored payment; using the stored payment",
				map[string]any{"payment_id": opened.ID, "stored_amount": opened.Amount.String(), "trigger_amount": req.Amount.String()})
		}
		return opened, created, nil
	}

	return nil, false, fmt.Errorf("open payment for ride %s: concurrent open did not become visible", req.RideID)
}
