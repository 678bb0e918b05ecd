// Package notification delivers payment outcomes to webhooks. A failed delivery is
// re-published to the delay queue with an incremented attempt counter and dead-lettered
// to payment_notifications_failed once the retries are used up.
package notification

import (
	"strconv"
	"strings"

	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/ports"
)

// Envelope is one notification and its delivery history. It is never mutated; Next returns
// the envelope of the following attempt.
type Envelope struct {
	payload            []byte
	messageID          string
	attempt            int
	originalRoutingKey string
}

// NewEnvelope wraps a first-attempt payload.
func NewEnvelope(payload []byte, messageID, routingKey string) Envelope {
	return Envelope{
		payload:            append([]byte(nil), payload...),
		messageID:          messageID,
		originalRoutingKey: routingKey,
	}
}

// FromDelivery restores the envelope from the x-attempt and x-original-routing-key headers.
// A delivery without them is a first attempt routed by its own key.
func FromDelivery(d ports.Delivery) Envelope {
	env := NewEnvelope(d.Body, d.MessageID, d.RoutingKey)
	if v, ok := d.Headers[contracts.HeaderAttempt]; ok {
		env.attempt = attemptOf(v)
	}
	if v, ok := d.Headers[contracts.HeaderOriginalRoutingKey].(string); ok && strings.TrimSpace(v) != "" {
		env.originalRoutingKey = v
	}
	return env
}

func (e Envelope) Payload() []byte            { return append([]byte(nil), e.payload...) }
func (e Envelope) MessageID() string          { return e.messageID }
func (e Envelope) Attempt() int               { return e.attempt }
func (e Envelope) OriginalRoutingKey() string { return e.originalRoutingKey }

// Next returns the envelope for the next delivery attempt.
func (e Envelope) Next() Envelope {
	next := e
	next.attempt = e.attempt + 1
	return next
}

// Message renders the envelope for the broker. reason is set on dead-lettered messages.
func (e Envelope) Message(reason string) ports.Message {
	headers := map[string]any{
		contracts.HeaderAttempt:            int32(e.attempt),
		contracts.HeaderOriginalRoutingKey: e.originalRoutingKey,
	}
	if reason != "" {
		headers[contracts.HeaderFailureReason] = reason
	}
	return ports.Message{Body: e.Payload(), MessageID: e.messageID, Headers: headers}
}

// attemptOf reads the header as the broker hands it back, which depends on the encoder.
func attemptOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
