package payment

import (
	"errors"
	"strings"
)

// Status is a payment status as stored in the `payments.status` column.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var ErrInvalidStatus = errors.New("invalid payment status")

// ParseStatus normalizes (lowercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed payment status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo reports whether the payment may move from status to next.
// Only pending payments move, and only to a terminal status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Terminal indicates if the status is completed or failed.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusFailed
}
