package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoCard means the rider has no usable stored card.
var ErrNoCard = errors.New("no card on file")

// ProfileClient reads riders' payment methods from GET {baseURL}/payment-methods/{passengerId}.
type ProfileClient struct {
	baseURL string
	client  *http.Client
}

// NewProfileClient constructs a ProfileClient.
func NewProfileClient(baseURL string, client *http.Client) *ProfileClient {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &ProfileClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type paymentMethodReply struct {
	CardToken string `json:"cardToken"`
}

// CardToken returns the stored card token of a passenger.
func (c *ProfileClient) CardToken(ctx context.Context, passengerID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/payment-methods/"+url.PathEscape(passengerID), nil)
	if err != nil {
		return "", fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: passenger %s", ErrNoCard, passengerID)
	}
	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return "", err
	}

	var reply paymentMethodReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("%w: malformed payment method: %v", ErrNoCard, err)
	}
	token := strings.TrimSpace(reply.CardToken)
	if token == "" {
		return "", fmt.Errorf("%w: passenger %s", ErrNoCard, passengerID)
	}
	return token, nil
}

// StaticProfile hands out a deterministic token per passenger. Used with the fake gateway.
type StaticProfile struct{}

func (StaticProfile) CardToken(_ context.Context, passengerID string) (string, error) {
	return "tok_" + passengerID, nil
}
