package handler

import (
	"net/http"
	"time"

	"ride-settlement/internal/domain/payment"

	"github.com/gin-gonic/gin"
)

type paymentResponse struct {
	ID            string    `json:"id"`
	RideID        string    `json:"ride_id"`
	PassengerID   string    `json:"passenger_id"`
	DriverID      string    `json:"driver_id"`
	Amount        string    `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	City          string    `json:"city"`
	Status        string    `json:"status"`
	Commission    *string   `json:"commission,omitempty"`
	DriverAmount  *string   `json:"driver_amount,omitempty"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type balanceResponse struct {
	DriverID  string    `json:"driver_id"`
	Amount    string    `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		RideID:        p.RideID,
		PassengerID:   p.PassengerID,
		DriverID:      p.DriverID,
		Amount:        p.Amount.StringFixed(payment.MinorUnitPlaces),
		PaymentMethod: p.Method.String(),
		City:          p.City,
		Status:        p.Status.String(),
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.Commission.Valid {
		s := p.Commission.Decimal.StringFixed(payment.MinorUnitPlaces)
		resp.Commission = &s
	}
	if p.DriverAmount.Valid {
		s := p.DriverAmount.Decimal.StringFixed(payment.MinorUnitPlaces)
		resp.DriverAmount = &s
	}
	return resp
}

// ----- Handler: GET /api/v1/settlements/:ride_id -----

func (handler *SettlementHTTPHandler) handleGetPayment(c *gin.Context) {
	ctx, cancel := handler.bounded(c)
	defer cancel()

	p, err := handler.query.PaymentForRide(ctx, c.Param("ride_id"))
	if err != nil {
		status := statusOf(err)
		handler.httpError(c, status, http.StatusText(status), err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

// ----- Handler: GET /api/v1/balances/:driver_id -----

func (handler *SettlementHTTPHandler) handleGetBalance(c *gin.Context) {
	ctx, cancel := handler.bounded(c)
	defer cancel()

	b, err := handler.query.Balance(ctx, c.Param("driver_id"))
	if err != nil {
		status := statusOf(err)
		handler.httpError(c, status, http.StatusText(status), err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{
		DriverID:  b.DriverID,
		Amount:    b.Amount.StringFixed(payment.MinorUnitPlaces),
		UpdatedAt: b.UpdatedAt,
	})
}
