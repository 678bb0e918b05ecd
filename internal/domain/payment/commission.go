package payment

import "github.com/shopspring/decimal"

// MinorUnitPlaces is the number of decimal places of the settlement currency.
const MinorUnitPlaces = 2

// MaxAmount is the largest amount the payments and balances columns (NUMERIC(14,2)) hold.
var MaxAmount = decimal.RequireFromString("999999999999.99")

var hundred = decimal.NewFromInt(100)

// Split is the division of a ride amount between the platform and the driver.
type Split struct {
	Amount       decimal.Decimal
	Commission   decimal.Decimal
	DriverAmount decimal.Decimal
}

// ComputeSplit applies the city commission to a ride amount.
// Card payments pay amount*pct/100 commission rounded half-up to the minor unit;
// other methods pass the whole amount through to the driver.
func ComputeSplit(amount, commissionPercentage decimal.Decimal, method Method) Split {
	commission := decimal.Zero
	if method.IsCard() {
		commission = amount.Mul(commissionPercentage).Div(hundred).Round(MinorUnitPlaces)
	}
	return Split{
		Amount:       amount,
		Commission:   commission,
		DriverAmount: amount.Sub(commission),
	}
}
