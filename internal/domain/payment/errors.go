package payment

import "errors"

// Settlement error taxonomy. Callers classify with errors.Is.
var (
	// ErrValidation marks a malformed trigger or command; it is rejected and never retried.
	ErrValidation = errors.New("invalid settlement request")

	// ErrChargeFailed means the card gateway refused the charge or could not be reached in time.
	ErrChargeFailed = errors.New("charge failed")

	// ErrTariffNotFound means no commission tariff exists for the ride's city.
	ErrTariffNotFound = errors.New("tariff not found")

	// ErrBalanceNotFound means the driver ledger row could not be read back.
	ErrBalanceNotFound = errors.New("balance not found")

	// ErrPaymentNotFound is returned when no payment row matches.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrPaymentNotPending is returned when a terminal payment is asked to transition again.
	ErrPaymentNotPending = errors.New("payment is not pending")
)

// IsDataIntegrity reports whether err points at missing reference data that needs an operator.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrTariffNotFound) || errors.Is(err, ErrBalanceNotFound)
}
