package escrow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPGateway_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Receipt string `json:"receipt"`
			Amount  int64  `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode order body: %v", err)
		}
		if body.Receipt != "e1" || body.Amount != 50000 {
			t.Errorf("unexpected order body: %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "order_123"})
	}))
	defer srv.Close()

	gateway := NewHTTPGateway(srv.URL, time.Second)
	orderRef, err := gateway.CreateOrder(context.Background(), "e1", 50000)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if orderRef != "order_123" {
		t.Fatalf("expected order_123, got %s", orderRef)
	}
}

func TestHTTPGateway_CreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gateway := NewHTTPGateway(srv.URL, time.Second)
	if _, err := gateway.CreateOrder(context.Background(), "e1", 100); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestHTTPGateway_CreateOrderEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": ""})
	}))
	defer srv.Close()

	gateway := NewHTTPGateway(srv.URL, time.Second)
	if _, err := gateway.CreateOrder(context.Background(), "e1", 100); err == nil {
		t.Fatalf("expected error for empty order id")
	}
}

func TestSigner_VerifyRoundTrip(t *testing.T) {
	signer := NewSigner("topsecret")

	sig := signer.Sign("order_1", "pay_1")
	if !signer.Verify("order_1", "pay_1", sig) {
		t.Fatalf("expected signature to verify")
	}
	if signer.Verify("order_1", "pay_2", sig) {
		t.Fatalf("signature must not verify for a different payment ref")
	}
	if signer.Verify("order_1", "pay_1", sig+"00") {
		t.Fatalf("tampered signature must not verify")
	}
	if NewSigner("othersecret").Verify("order_1", "pay_1", sig) {
		t.Fatalf("signature must be bound to the secret")
	}
}

func TestSigner_VerifyBody(t *testing.T) {
	signer := NewSigner("topsecret")
	body := []byte(`{"event":"payment.captured"}`)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !signer.VerifyBody(body, valid) {
		t.Fatalf("expected body signature to verify")
	}
	if signer.VerifyBody(append(body, ' '), valid) {
		t.Fatalf("modified body must not verify")
	}
	if signer.VerifyBody(body, "deadbeef") {
		t.Fatalf("bogus signature must not verify")
	}
}
