package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/metrics"
	"ride-settlement/internal/ports"
	"ride-settlement/internal/software/settlement/events"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// requestTimeout bounds every service call made by a handler.
const requestTimeout = 5 * time.Second

// Deps groups what the HTTP layer needs.
type Deps struct {
	Logger  *logger.Logger
	Events  *events.Publisher
	Query   ports.SettlementQuery
	Metrics *metrics.Metrics
	// Healthy reports broker connectivity; nil means always healthy.
	Healthy  func() bool
	NewRelic *newrelic.Application
}

// SettlementHTTPHandler adapts HTTP requests to the settlement trigger and read side.
type SettlementHTTPHandler struct {
	logger  *logger.Logger
	events  *events.Publisher
	query   ports.SettlementQuery
	metrics *metrics.Metrics
	healthy func() bool
	nr      *newrelic.Application
}

// NewSettlementHTTPHandler wires the handler.
func NewSettlementHTTPHandler(d Deps) *SettlementHTTPHandler {
	if d.Healthy == nil {
		d.Healthy = func() bool { return true }
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics(nil)
	}
	return &SettlementHTTPHandler{
		logger:  d.Logger,
		events:  d.Events,
		query:   d.Query,
		metrics: d.Metrics,
		healthy: d.Healthy,
		nr:      d.NewRelic,
	}
}

// NewRouter builds the gin engine with every settlement route.
func (handler *SettlementHTTPHandler) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if handler.nr != nil {
		router.Use(nrgin.Middleware(handler.nr))
	}
	router.Use(handler.requestContext())

	handler.RegisterRoutes(router)
	return router
}

// RegisterRoutes mounts the settlement endpoints.
func (handler *SettlementHTTPHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", handler.handleHealth)
	router.GET("/metrics", handler.handleMetrics)

	v1 := router.Group("/api/v1")
	{
		settlements := v1.Group("/settlements")
		settlements.POST("", handler.handleTrigger)
		settlements.POST("/commands", handler.handleCommand)
		settlements.GET("/:ride_id", handler.handleGetPayment)

		v1.GET("/balances/:driver_id", handler.handleGetBalance)
	}
}

// ----- general helpers -----

type errBody struct {
	Error string `json:"error"`
}

// requestContext puts a request id into the request context and logs the outcome of each call.
func (handler *SettlementHTTPHandler) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := handler.logger.WithRequestID(c.Request.Context(), reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", reqID)

		start := time.Now()
		c.Next()

		handler.logger.Debug(ctx, "http_request", "Request served", map[string]any{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

// httpError sends a JSON error response with a message and logs it.
func (handler *SettlementHTTPHandler) httpError(c *gin.Context, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(c.Request.Context(), action, msg, err, nil)
	c.JSON(status, errBody{Error: msg})
}

// statusOf maps settlement errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, payment.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrPaymentNotFound), errors.Is(err, payment.ErrBalanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (handler *SettlementHTTPHandler) bounded(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}
