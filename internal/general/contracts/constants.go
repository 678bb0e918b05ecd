package contracts

// Exchanges
const (
	ExchangeSaga                = "payment_saga"                 // topic
	ExchangeCommands            = "payment_commands"             // direct
	ExchangeNotificationsRetry  = "payment_notifications_retry"  // direct
	ExchangeNotificationsFailed = "payment_notifications_failed" // fanout
)

// Queues
const (
	QueueSagaEvents          = "payment_saga_events"
	QueueProcessPayment      = "process_payment"
	QueueNotifications       = "payment_notifications"
	QueueNotificationsRetry  = "payment_notifications_retry"
	QueueNotificationsFailed = "payment_notifications_failed"
)

// Routing patterns
const (
	RouteSagaPrefix     = "payment."        // {event}
	RouteSagaAll        = RouteSagaPrefix + "#"
	RouteSagaSuccess    = RouteSagaPrefix + "success"
	RouteSagaFailed     = RouteSagaPrefix + "failed"
	RouteProcessPayment = "process_payment" // command key on the direct exchange
)

// Headers
const (
	HeaderAttempt            = "x-attempt"
	HeaderOriginalRoutingKey = "x-original-routing-key"
	HeaderFailureReason      = "x-failure-reason"
)

// SagaRoutingKey returns the routing key for a saga event name, e.g. payment.success.
func SagaRoutingKey(event string) string {
	return RouteSagaPrefix + event
}
