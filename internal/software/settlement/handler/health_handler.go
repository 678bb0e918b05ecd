package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ----- Handler: GET /health -----

func (handler *SettlementHTTPHandler) handleHealth(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	if !handler.healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "broker": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ----- Handler: GET /metrics -----

func (handler *SettlementHTTPHandler) handleMetrics(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, handler.metrics.Snapshot())
}
