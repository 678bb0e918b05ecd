package notificationservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-settlement/internal/general/config"
	"ride-settlement/internal/general/lifecycle"
	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/metrics"
	"ride-settlement/internal/general/rabbitmq"
	"ride-settlement/internal/general/telemetry"
	"ride-settlement/internal/software/notification"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// Run wires the notification service and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.New("notification-service").Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}
	logger := logger.New("notification-service", logger.WithDebug(cfg.Log.Debug))
	ctx = logger.WithRequestID(ctx, "startup-001")

	nr, err := telemetry.NewApplication(cfg, "notification-service")
	if err != nil {
		logger.Error(ctx, "newrelic_init_failed", "Failed to start New Relic agent", err, nil)
		return err
	}
	defer telemetry.Shutdown(nr)
	m := metrics.NewMetrics(nr)

	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg.AMQPURL(), rabbitmq.Options{
		ReconnectDelay: cfg.RabbitMQ.ReconnectDelay,
		Topology:       rabbitmq.SettlementTopology(cfg.Notifications.RetryDelay),
	}, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	if len(cfg.Notifications.Webhooks) == 0 {
		logger.Info(ctx, "notification_no_webhooks", "No webhooks configured; notifications will exhaust their retries and land on the failed exchange", nil)
	}

	svc := notification.NewService(notification.Deps{
		Logger:     logger,
		Deliverer:  notification.NewWebhookDeliverer(cfg.Notifications.Webhooks, cfg.Notifications.Timeout),
		Publisher:  rabbitmq.NewMQPublisher(rmq),
		Subscriber: rmq,
		Metrics:    m,
		NewRelic:   nr,
		MaxRetries: cfg.Notifications.MaxRetries,
		Prefetch:   cfg.RabbitMQ.Prefetch,
	})

	// health and metrics only; the service has no other HTTP surface
	router := gin.New()
	router.Use(gin.Recovery())
	if nr != nil {
		router.Use(nrgin.Middleware(nr))
	}
	router.GET("/health", func(c *gin.Context) {
		if !rmq.Healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "broker": "disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, m.Snapshot())
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.NotificationServicePort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 2)
	go func() {
		err := svc.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("notification consumer stopped: %w", err)
			return
		}
		errCh <- nil
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Notification Service started on port %d", cfg.Services.NotificationServicePort),
		map[string]any{"webhooks": len(cfg.Notifications.Webhooks), "max_retries": cfg.Notifications.MaxRetries},
	)

	return lifecycle.Await(ctx, logger, "Notification service", srv, errCh)
}
