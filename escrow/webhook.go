package escrow

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
)

// SignatureHeader carries the transport-level HMAC over the raw body.
const SignatureHeader = "X-Gateway-Signature"

const eventPaymentCaptured = "payment.captured"

// WebhookHandler terminates the gateway's callback POSTs. Unhandled event
// types are logged and acknowledged with 200 so the gateway does not enter a
// redelivery storm.
type WebhookHandler struct {
	signer  *Signer
	service *Service
	logger  *log.Logger
}

func NewWebhookHandler(signer *Signer, service *Service, logger *log.Logger) *WebhookHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookHandler{signer: signer, service: service, logger: logger}
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		OrderRef   string `json:"order_ref"`
		PaymentRef string `json:"payment_ref"`
		Signature  string `json:"signature"`
	} `json:"payload"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !h.signer.VerifyBody(body, r.Header.Get(SignatureHeader)) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if env.Event != eventPaymentCaptured {
		h.logger.Printf("escrow webhook: ignoring event %q", env.Event)
		w.WriteHeader(http.StatusOK)
		return
	}

	_, err = h.service.VerifyCallback(r.Context(), VerifyCallbackParams{
		OrderRef:   env.Payload.OrderRef,
		PaymentRef: env.Payload.PaymentRef,
		Signature:  env.Payload.Signature,
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrVerificationFailed):
		// Recorded as failed; acknowledging stops redelivery of a callback
		// that can never verify.
		h.logger.Printf("escrow webhook: verification failed for order %s", env.Payload.OrderRef)
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrNotFound):
		h.logger.Printf("escrow webhook: unknown order %s", env.Payload.OrderRef)
		w.WriteHeader(http.StatusOK)
	default:
		h.logger.Printf("escrow webhook: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
