package events

import (
	"context"
	"encoding/json"
	"testing"

	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/domain/saga"
	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/general/memory"
	"ride-settlement/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDecodeSaga_RideCompleted(t *testing.T) {
	body := []byte(`{"sagaId":42,"event":"RideCompleted","data":{"rideId":"42","passengerId":1,"driverId":9,
		"amount":100,"paymentMethod":"Card","city":"X"}}`)

	evt, err := DecodeSaga(body)
	require.NoError(t, err)

	rc, ok := evt.(saga.RideCompleted)
	require.True(t, ok)
	require.Equal(t, "42", rc.SagaID())
	require.Equal(t, "1", rc.Req.PassengerID)
	require.Equal(t, "9", rc.Req.DriverID)
	require.Equal(t, payment.MethodCard, rc.Req.Method)
	require.True(t, decimal.NewFromInt(100).Equal(rc.Req.Amount))
}

func TestDecodeSaga_Invalid(t *testing.T) {
	var tests = []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "unknown event", body: `{"sagaId":"1","event":"RideCancelled","data":{}}`},
		{name: "mismatched saga id", body: `{"sagaId":"1","event":"success","data":{"rideId":"2"}}`},
		{name: "missing city", body: `{"sagaId":"1","event":"RideCompleted","data":{"passengerId":"1","driverId":"9","amount":10,"paymentMethod":"cash"}}`},
		{name: "negative amount", body: `{"sagaId":"1","event":"RideCompleted","data":{"passengerId":"1","driverId":"9","amount":-1,"paymentMethod":"cash","city":"X"}}`},
		{name: "command on saga exchange", body: `{"sagaId":"1","event":"process_payment","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSaga([]byte(tt.body))
			require.ErrorIs(t, err, payment.ErrValidation)
		})
	}
}

func TestEncodeDecodeOutcome(t *testing.T) {
	req := payment.Request{RideID: "R1", PassengerID: "1", DriverID: "9", Amount: decimal.RequireFromString("12.30"), Method: payment.MethodCash, City: "X"}

	key, body, err := EncodeSaga(saga.PaymentFailed{Req: req, PaymentID: "p1", Reason: "tariff not found"})
	require.NoError(t, err)
	require.Equal(t, "payment.failed", key)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))
	require.Equal(t, "R1", wire["sagaId"])
	require.Equal(t, "failed", wire["event"])

	evt, err := DecodeSaga(body)
	require.NoError(t, err)
	failed := evt.(saga.PaymentFailed)
	require.Equal(t, "tariff not found", failed.Reason)
	require.Equal(t, "p1", failed.PaymentID)
}

func TestDecodeCommand(t *testing.T) {
	body := []byte(`{"data":{"rideId":7,"passengerId":"1","driverId":"9","amount":"25.00","paymentMethod":"debit_card","city":"X"}}`)

	cmd, err := DecodeCommand(ports.Delivery{Body: body, MessageID: " m-1 "})
	require.NoError(t, err)
	require.Equal(t, "m-1", cmd.MessageID)
	require.Equal(t, "7", cmd.SagaID())

	_, err = DecodeCommand(ports.Delivery{Body: body})
	require.ErrorIs(t, err, payment.ErrValidation)
}

func TestPublisher(t *testing.T) {
	rec := &memory.Publisher{}
	pub := NewPublisher(rec)
	req := payment.Request{RideID: "R1", PassengerID: "1", DriverID: "9", Amount: decimal.NewFromInt(5), Method: payment.MethodCash, City: "X"}

	require.NoError(t, pub.PublishEvent(context.Background(), saga.PaymentSucceeded{Req: req, PaymentID: "p1"}))
	require.NoError(t, pub.PublishCommand(context.Background(), saga.ProcessPaymentCommand{Req: req, MessageID: "m1"}))

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, contracts.ExchangeSaga, msgs[0].Exchange)
	require.Equal(t, "payment.success", msgs[0].RoutingKey)
	require.Equal(t, "p1:success", msgs[0].Message.MessageID)
	require.Equal(t, contracts.ExchangeCommands, msgs[1].Exchange)
	require.Equal(t, contracts.RouteProcessPayment, msgs[1].RoutingKey)
	require.Equal(t, "m1", msgs[1].Message.MessageID)
}

func TestContractsID(t *testing.T) {
	var d contracts.PaymentData
	require.NoError(t, json.Unmarshal([]byte(`{"rideId":12345678901234,"driverId":" d-1 ","passengerId":null}`), &d))
	require.Equal(t, contracts.ID("12345678901234"), d.RideID)
	require.Equal(t, contracts.ID("d-1"), d.DriverID)
	require.Equal(t, contracts.ID(""), d.PassengerID)

	require.Error(t, json.Unmarshal([]byte(`{"rideId":true}`), &d))
}
