package payment

import (
	"errors"
	"strings"
)

// Method is the payment method chosen by the passenger for a ride.
type Method string

const (
	MethodCard       Method = "card"
	MethodCreditCard Method = "credit_card"
	MethodDebitCard  Method = "debit_card"
	MethodCash       Method = "cash"
)

var ErrInvalidMethod = errors.New("invalid payment method")

// ParseMethod normalizes (lowercases+trims) and validates a payment method string.
func ParseMethod(in string) (Method, error) {
	method := Method(strings.ToLower(strings.TrimSpace(in)))
	if method.Valid() {
		return method, nil
	}
	return "", ErrInvalidMethod
}

// Valid reports whether method is one of the supported payment methods.
func (method Method) Valid() bool {
	switch method {
	case MethodCard, MethodCreditCard, MethodDebitCard, MethodCash:
		return true
	default:
		return false
	}
}

// IsCard reports whether the method is settled through the card gateway.
func (method Method) IsCard() bool {
	switch method {
	case MethodCard, MethodCreditCard, MethodDebitCard:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Method.
func (method Method) String() string {
	return string(method)
}
