package escrow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func bodySignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler_WrongMethod(t *testing.T) {
	handler := NewWebhookHandler(NewSigner("secret"), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/escrow", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestWebhookHandler_BadTransportSignature(t *testing.T) {
	handler := NewWebhookHandler(NewSigner("secret"), nil, nil)

	body := `{"event":"payment.captured"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/escrow", strings.NewReader(body))
	req.Header.Set(SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookHandler_MalformedPayload(t *testing.T) {
	handler := NewWebhookHandler(NewSigner("secret"), nil, nil)

	body := []byte(`{"event":`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/escrow", strings.NewReader(string(body)))
	req.Header.Set(SignatureHeader, bodySignature("secret", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookHandler_IgnoresUnknownEvent(t *testing.T) {
	// The service is never reached for unknown events; a nil service proves
	// the handler short-circuits.
	handler := NewWebhookHandler(NewSigner("secret"), nil, nil)

	body := []byte(`{"event":"payment.refund_initiated","payload":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/escrow", strings.NewReader(string(body)))
	req.Header.Set(SignatureHeader, bodySignature("secret", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
