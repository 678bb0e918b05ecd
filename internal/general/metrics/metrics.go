package metrics

import (
	"sync/atomic"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type Metrics struct {
	PaymentsCreated        atomic.Int64
	PaymentsCompleted      atomic.Int64
	PaymentsFailed         atomic.Int64
	CommandsDeduplicated   atomic.Int64
	NotificationsDelivered atomic.Int64
	NotificationsRetried   atomic.Int64
	NotificationsDead      atomic.Int64

	nr *newrelic.Application
}

// NewMetrics returns zeroed counters. A non-nil app also receives each increment
// as a Custom/Settlement/* metric.
func NewMetrics(nr *newrelic.Application) *Metrics {
	return &Metrics{nr: nr}
}

func (m *Metrics) add(c *atomic.Int64, name string) {
	c.Add(1)
	if m.nr != nil {
		m.nr.RecordCustomMetric("Settlement/"+name, 1)
	}
}

func (m *Metrics) PaymentCreated()        { m.add(&m.PaymentsCreated, "PaymentsCreated") }
func (m *Metrics) PaymentCompleted()      { m.add(&m.PaymentsCompleted, "PaymentsCompleted") }
func (m *Metrics) PaymentFailed()         { m.add(&m.PaymentsFailed, "PaymentsFailed") }
func (m *Metrics) CommandDeduplicated()   { m.add(&m.CommandsDeduplicated, "CommandsDeduplicated") }
func (m *Metrics) NotificationDelivered() { m.add(&m.NotificationsDelivered, "NotificationsDelivered") }
func (m *Metrics) NotificationRetried()   { m.add(&m.NotificationsRetried, "NotificationsRetried") }
func (m *Metrics) NotificationDead()      { m.add(&m.NotificationsDead, "NotificationsDeadLettered") }

// Snapshot is the JSON view served by GET /metrics.
type Snapshot struct {
	PaymentsCreated        int64 `json:"payments_created"`
	PaymentsCompleted      int64 `json:"payments_completed"`
	PaymentsFailed         int64 `json:"payments_failed"`
	CommandsDeduplicated   int64 `json:"commands_deduplicated"`
	NotificationsDelivered int64 `json:"notifications_delivered"`
	NotificationsRetried   int64 `json:"notifications_retried"`
	NotificationsDead      int64 `json:"notifications_dead_lettered"`
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		PaymentsCreated:        m.PaymentsCreated.Load(),
		PaymentsCompleted:      m.PaymentsCompleted.Load(),
		PaymentsFailed:         m.PaymentsFailed.Load(),
		CommandsDeduplicated:   m.CommandsDeduplicated.Load(),
		NotificationsDelivered: m.NotificationsDelivered.Load(),
		NotificationsRetried:   m.NotificationsRetried.Load(),
		NotificationsDead:      m.NotificationsDead.Load(),
	}
}
