package paymentservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-settlement/internal/general/config"
	"ride-settlement/internal/general/gateway"
	"ride-settlement/internal/general/lifecycle"
	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/metrics"
	"ride-settlement/internal/general/postgres"
	"ride-settlement/internal/general/rabbitmq"
	"ride-settlement/internal/general/redis"
	"ride-settlement/internal/general/telemetry"
	"ride-settlement/internal/ports"
	"ride-settlement/internal/software/settlement/command"
	"ride-settlement/internal/software/settlement/events"
	"ride-settlement/internal/software/settlement/handler"
	"ride-settlement/internal/software/settlement/idempotency"
	"ride-settlement/internal/software/settlement/orchestrator"
	"ride-settlement/internal/software/settlement/processor"
	"ride-settlement/internal/software/settlement/query"
)

// Run wires the payment service (saga orchestrator, command consumer, HTTP API) and
// blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	// load a config from file; the logger depends on it
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.New("payment-service").Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}
	logger := logger.New("payment-service", logger.WithDebug(cfg.Log.Debug))
	ctx = logger.WithRequestID(ctx, "startup-001")

	nr, err := telemetry.NewApplication(cfg, "payment-service")
	if err != nil {
		logger.Error(ctx, "newrelic_init_failed", "Failed to start New Relic agent", err, nil)
		return err
	}
	defer telemetry.Shutdown(nr)
	m := metrics.NewMetrics(nr)

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ and declare the settlement topology
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg.AMQPURL(), rabbitmq.Options{
		ReconnectDelay: cfg.RabbitMQ.ReconnectDelay,
		Topology:       rabbitmq.SettlementTopology(cfg.Notifications.RetryDelay),
	}, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	publisher := events.NewPublisher(rabbitmq.NewMQPublisher(rmq))

	// optional Redis cache and lock
	var (
		cache  ports.ProcessedCache
		locker ports.Locker
	)
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, nr)
		if err != nil {
			logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
			return err
		}
		defer rdb.Close()
		cache = redis.NewProcessedStore(rdb, cfg.Redis.ProcessedTTL)
		locker = redis.NewLockStore(rdb)
	}

	// set up the repos and collaborators
	uow := postgres.NewUnitOfWork(pool)
	payments := postgres.NewPaymentRepo()
	balances := postgres.NewBalanceRepo()
	guard := idempotency.NewGuard(logger, uow, postgres.NewProcessedMessageRepo(), cache)
	cardGateway, profiles := newGateway(cfg)

	proc := processor.NewPaymentProcessor(processor.Deps{
		Logger:   logger,
		UoW:      uow,
		Payments: payments,
		Balances: balances,
		Tariffs:  postgres.NewTariffRepo(),
		Guard:    guard,
		Gateway:  cardGateway,
		Profiles: profiles,
		Metrics:  m,
		Timeout:  cfg.Gateway.Timeout,
	})

	orch := orchestrator.NewOrchestrator(logger, proc, publisher, rmq, nr, cfg.RabbitMQ.Prefetch)
	commands := command.NewConsumer(command.Deps{
		Logger:     logger,
		Processor:  proc,
		Guard:      guard,
		Locker:     locker,
		Events:     publisher,
		Subscriber: rmq,
		Metrics:    m,
		NewRelic:   nr,
		Prefetch:   cfg.RabbitMQ.Prefetch,
		LockTTL:    cfg.Redis.LockTTL,
	})

	// run the consumers in the background
	errCh := make(chan error, 3)
	go func() { errCh <- consumerErr("orchestrator", orch.Run(ctx)) }()
	go func() { errCh <- consumerErr("command consumer", commands.Run(ctx)) }()

	// set up the HTTP handler and its routes
	httpHandler := handler.NewSettlementHTTPHandler(handler.Deps{
		Logger:   logger,
		Events:   publisher,
		Query:    query.NewSettlementQuery(uow, payments, balances),
		Metrics:  m,
		Healthy:  rmq.Healthy,
		NewRelic: nr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.PaymentServicePort),
		Handler:           withConcurrencyLimit(maxConcurrent, httpHandler.NewRouter()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Payment Service started on port %d", cfg.Services.PaymentServicePort),
		map[string]any{"port": cfg.Services.PaymentServicePort, "max_concurrent": maxConcurrent, "redis": cfg.Redis.Enabled},
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	return lifecycle.Await(ctx, logger, "Payment service", srv, errCh)
}

// newGateway picks the card gateway and the profile source. The real gateway is
// wrapped in a circuit breaker.
func newGateway(cfg *config.Config) (ports.CardGateway, ports.PaymentMethodSource) {
	if cfg.Gateway.Fake {
		return gateway.NewFakeGateway(), gateway.StaticProfile{}
	}

	httpGateway := gateway.NewHTTPGateway(cfg.Gateway.URL, cfg.Gateway.APIKey, gateway.NewHTTPClient(cfg.Gateway.Timeout))
	breaker := gateway.NewCircuitBreakerGateway(httpGateway, gateway.CircuitBreakerConfig{
		FailureThreshold: cfg.Gateway.Breaker.MaxFailures,
		OpenTimeout:      cfg.Gateway.Breaker.OpenTimeout,
	})
	profiles := gateway.NewProfileClient(cfg.Profile.URL, gateway.NewHTTPClient(cfg.Profile.Timeout))
	return breaker, profiles
}

func consumerErr(name string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("%s stopped: %w", name, err)
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
