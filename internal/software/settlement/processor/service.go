package processor

import (
	"time"

	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/metrics"
	"ride-settlement/internal/ports"

	"github.com/google/uuid"
)

// DefaultTimeout bounds each profile lookup and gateway charge.
const DefaultTimeout = 5 * time.Second

// Deps groups the collaborators of the processor.
type Deps struct {
	Logger   *logger.Logger
	UoW      ports.UnitOfWork
	Payments ports.PaymentRepository
	Balances ports.BalanceRepository
	Tariffs  ports.TariffRepository
	Guard    ports.IdempotencyGuard
	Gateway  ports.CardGateway
	Profiles ports.PaymentMethodSource
	Metrics  *metrics.Metrics
	Timeout  time.Duration
}

// processor is the single code path that charges riders and credits drivers.
type processor struct {
	logger   *logger.Logger
	uow      ports.UnitOfWork
	payments ports.PaymentRepository
	balances ports.BalanceRepository
	tariffs  ports.TariffRepository
	guard    ports.IdempotencyGuard
	gateway  ports.CardGateway
	profiles ports.PaymentMethodSource
	metrics  *metrics.Metrics
	timeout  time.Duration

	now   func() time.Time
	newID func() string
}

// NewPaymentProcessor creates the processor with the provided dependencies.
func NewPaymentProcessor(d Deps) ports.PaymentProcessor {
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics(nil)
	}
	return &processor{
		logger:   d.Logger,
		uow:      d.UoW,
		payments: d.Payments,
		balances: d.Balances,
		tariffs:  d.Tariffs,
		guard:    d.Guard,
		gateway:  d.Gateway,
		profiles: d.Profiles,
		metrics:  d.Metrics,
		timeout:  d.Timeout,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}
