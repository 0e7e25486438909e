package escrow

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrGatewayUnavailable signals the payment gateway timed out or refused the
// order. Nothing was persisted; the caller may retry the intent.
var ErrGatewayUnavailable = errors.New("escrow: payment gateway unavailable")

// Gateway creates payment orders with the external provider.
type Gateway interface {
	CreateOrder(ctx context.Context, engagementID string, amount int64) (orderRef string, err error)
}

// HTTPGateway talks to the real provider. Every call is bounded by the
// configured timeout so a slow gateway cannot hold a request open.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, engagementID string, amount int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"receipt": engagementID,
		"amount":  amount,
	})
	if err != nil {
		return "", fmt.Errorf("escrow: marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("escrow: build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("escrow: decode order response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("escrow: gateway returned empty order id")
	}
	return out.ID, nil
}

// Signer computes and checks the gateway's callback signatures.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 over orderRef|paymentRef.
func (s *Signer) Sign(orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderRef))
	mac.Write([]byte("|"))
	mac.Write([]byte(paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the provided signature constant-time against the expected
// callback signature.
func (s *Signer) Verify(orderRef, paymentRef, signature string) bool {
	expected := s.Sign(orderRef, paymentRef)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyBody checks the webhook transport signature: hex HMAC-SHA256 over
// the raw request body.
func (s *Signer) VerifyBody(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
