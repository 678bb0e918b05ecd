// Package gateway holds the HTTP clients for the card gateway and the rider profile service,
// plus the circuit breaker that guards the gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ride-settlement/internal/ports"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/shopspring/decimal"
)

var (
	ErrTimeout     = errors.New("gateway timeout")
	ErrServer      = errors.New("gateway 5xx")
	ErrClient      = errors.New("gateway 4xx")
	ErrDeclined    = errors.New("charge declined")
	ErrCircuitOpen = errors.New("circuit open")
)

// NewHTTPClient returns an http.Client whose requests are recorded as external segments
// of the New Relic transaction carried by the request context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newrelic.NewRoundTripper(http.DefaultTransport),
	}
}

type chargeBody struct {
	CardToken      string          `json:"cardToken"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type chargeReply struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// HTTPGateway charges cards through POST {baseURL}/charges.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway constructs an HTTPGateway.
func NewHTTPGateway(baseURL, apiKey string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &HTTPGateway{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

// Charge sends one charge. The payment id doubles as the gateway idempotency key.
func (g *HTTPGateway) Charge(ctx context.Context, req ports.ChargeRequest) (ports.ChargeResult, error) {
	body, err := json.Marshal(chargeBody{
		CardToken:      req.CardToken,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return ports.ChargeResult{}, fmt.Errorf("encode charge: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return ports.ChargeResult{}, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return ports.ChargeResult{}, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return ports.ChargeResult{}, err
	}

	var reply chargeReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return ports.ChargeResult{}, fmt.Errorf("%w: undecodable reply: %v", ErrServer, err)
	}
	if strings.EqualFold(reply.Status, "declined") {
		return ports.ChargeResult{}, fmt.Errorf("%w: %s", ErrDeclined, reply.Reason)
	}
	return ports.ChargeResult{TransactionID: reply.TransactionID}, nil
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrServer, err)
}

func classifyStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrDeclined, snippet(body))
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: status %d: %s", ErrClient, code, snippet(body))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrServer, code, snippet(body))
	}
}

// snippetLen bounds how much of an error body ends up in the error text.
const snippetLen = 200

func snippet(b []byte) string {
	s := strings.ToValidUTF8(strings.TrimSpace(string(b)), "\uFFFD")
	if len(s) <= snippetLen {
		return s
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// FakeGateway approves every charge. Used when gateway.fake is set.
type FakeGateway struct{}

// NewFakeGateway constructs a FakeGateway.
func NewFakeGateway() *FakeGateway { return &FakeGateway{} }

func (g *FakeGateway) Charge(ctx context.Context, req ports.ChargeRequest) (ports.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.ChargeResult{}, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return ports.ChargeResult{TransactionID: "gw_" + req.IdempotencyKey}, nil
}
