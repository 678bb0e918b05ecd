package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ride-settlement/internal/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHTTPGateway_Charge(t *testing.T) {
	var got chargeBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/charges", r.URL.Path)
		require.Equal(t, "p-1", r.Header.Get("Idempotency-Key"))
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"transactionId":"tx-9","status":"approved"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL+"/", "key", srv.Client())
	res, err := g.Charge(context.Background(), ports.ChargeRequest{
		CardToken: "tok", Amount: decimal.RequireFromString("10.50"), IdempotencyKey: "p-1",
	})
	require.NoError(t, err)
	require.Equal(t, "tx-9", res.TransactionID)
	require.Equal(t, "tok", got.CardToken)
	require.True(t, decimal.RequireFromString("10.5").Equal(got.Amount))
}

func TestHTTPGateway_Errors(t *testing.T) {
	var tests = []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "declined by status", status: http.StatusPaymentRequired, body: `insufficient funds`, wantErr: ErrDeclined},
		{name: "declined in body", status: http.StatusOK, body: `{"status":"declined","reason":"stolen"}`, wantErr: ErrDeclined},
		{name: "bad request", status: http.StatusBadRequest, body: `bad token`, wantErr: ErrClient},
		{name: "server error", status: http.StatusBadGateway, body: ``, wantErr: ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPGateway(srv.URL, "", srv.Client()).Charge(context.Background(), ports.ChargeRequest{IdempotencyKey: "p"})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPGateway_ErrorBodyCutOnRuneBoundary(t *testing.T) {
	body := "x" + strings.Repeat("Ошибка", 60)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, "", srv.Client()).Charge(context.Background(), ports.ChargeRequest{IdempotencyKey: "p"})
	require.ErrorIs(t, err, ErrServer)
	require.True(t, utf8.ValidString(err.Error()), "error text %q", err.Error())
}

func TestSnippet(t *testing.T) {
	s := snippet([]byte("x" + strings.Repeat("é", 150)))
	require.True(t, utf8.ValidString(s))
	require.LessOrEqual(t, len(s), snippetLen)
	require.Equal(t, snippetLen-1, len(s))

	require.Equal(t, "ok\uFFFD", snippet([]byte("ok\xff")))
	require.Equal(t, "short", snippet([]byte("  short \n")))
}

func TestHTTPGateway_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPGateway(srv.URL, "", srv.Client()).Charge(ctx, ports.ChargeRequest{IdempotencyKey: "p"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestProfileClient_CardToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payment-methods/1":
			_, _ = w.Write([]byte(`{"cardToken":"tok_1"}`))
		case "/payment-methods/2":
			_, _ = w.Write([]byte(`{"cardToken":""}`))
		case "/payment-methods/3":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewProfileClient(srv.URL, srv.Client())

	token, err := c.CardToken(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "tok_1", token)

	for _, id := range []string{"2", "3", "404"} {
		_, err := c.CardToken(context.Background(), id)
		require.ErrorIs(t, err, ErrNoCard, "passenger %s", id)
	}
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Charge(ctx context.Context, req ports.ChargeRequest) (ports.ChargeResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.ChargeResult), args.Error(1)
}

func TestCircuitBreaker(t *testing.T) {
	next := &mockGateway{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreakerGateway(next, CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	req := ports.ChargeRequest{IdempotencyKey: "p"}

	// declines do not count against the circuit
	next.On("Charge", ctx, req).Return(ports.ChargeResult{}, ErrDeclined).Once()
	_, err := cb.Charge(ctx, req)
	require.ErrorIs(t, err, ErrDeclined)

	next.On("Charge", ctx, req).Return(ports.ChargeResult{}, ErrServer).Twice()
	_, _ = cb.Charge(ctx, req)
	_, _ = cb.Charge(ctx, req)
	require.True(t, cb.Open())

	_, err = cb.Charge(ctx, req)
	require.ErrorIs(t, err, ErrCircuitOpen)

	// after the open timeout a single probe goes through and closes the circuit
	now = now.Add(time.Minute)
	next.On("Charge", ctx, req).Return(ports.ChargeResult{TransactionID: "tx"}, nil).Once()
	res, err := cb.Charge(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "tx", res.TransactionID)
	require.False(t, cb.Open())

	next.AssertNumberOfCalls(t, "Charge", 4)
}

func TestFakeGateway(t *testing.T) {
	res, err := NewFakeGateway().Charge(context.Background(), ports.ChargeRequest{IdempotencyKey: "p-1"})
	require.NoError(t, err)
	require.Equal(t, "gw_p-1", res.TransactionID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFakeGateway().Charge(ctx, ports.ChargeRequest{})
	require.True(t, errors.Is(err, ErrTimeout))
}
