package handler

import (
	"net/http"
	"strings"

	"ride-settlement/internal/domain/saga"
	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/software/settlement/events"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ----- Handler: POST /api/v1/settlements -----

// handleTrigger validates a completed ride and puts RideCompleted on the saga exchange.
// Settlement happens asynchronously, so the answer is always 202.
func (handler *SettlementHTTPHandler) handleTrigger(c *gin.Context) {
	var data contracts.PaymentData
	if err := c.ShouldBindJSON(&data); err != nil {
		handler.httpError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req, err := events.ToRequest(data)
	if err != nil {
		handler.httpError(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	ctx, cancel := handler.bounded(c)
	defer cancel()
	ctx = handler.logger.WithRideID(ctx, req.RideID)

	if err := handler.events.PublishEvent(ctx, saga.RideCompleted{Req: req}); err != nil {
		handler.httpError(c, http.StatusServiceUnavailable, "failed to enqueue settlement", err)
		return
	}

	handler.logger.Info(ctx, "settlement_triggered", "RideCompleted published", nil)
	c.JSON(http.StatusAccepted, gin.H{"status": "processing", "ride_id": req.RideID})
}

// ----- Handler: POST /api/v1/settlements/commands -----

// handleCommand publishes a process_payment command. The Idempotency-Key header becomes
// the command's message id so client retries are deduplicated by the consumer.
func (handler *SettlementHTTPHandler) handleCommand(c *gin.Context) {
	var data contracts.PaymentData
	if err := c.ShouldBindJSON(&data); err != nil {
		handler.httpError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req, err := events.ToRequest(data)
	if err != nil {
		handler.httpError(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	messageID := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if messageID == "" {
		messageID = uuid.NewString()
	}

	ctx, cancel := handler.bounded(c)
	defer cancel()
	ctx = handler.logger.WithRideID(ctx, req.RideID)
	ctx = handler.logger.WithMessageID(ctx, messageID)

	if err := handler.events.PublishCommand(ctx, saga.ProcessPaymentCommand{Req: req, MessageID: messageID}); err != nil {
		handler.httpError(c, http.StatusServiceUnavailable, "failed to enqueue command", err)
		return
	}

	handler.logger.Info(ctx, "command_published", "process_payment published", nil)
	c.JSON(http.StatusAccepted, gin.H{"status": "processing", "message_id": messageID})
}
