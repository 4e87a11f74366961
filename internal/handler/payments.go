package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/service"
)

// maxWebhookBytes caps the webhook body read before signature checking.
const maxWebhookBytes = 65536

// PaymentServicer defines the payment reconciler operations used by the
// payment handlers. Satisfied by *service.PaymentService.
type PaymentServicer interface {
	CreateIntent(ctx context.Context, req service.CreateIntentRequest) (database.Payment, error)
	HandleEvent(ctx context.Context, ev service.ExternalEvent) error
	Status(ctx context.Context, intentID string) (database.Payment, error)
}

// EventParser verifies and decodes a gateway webhook delivery.
// Satisfied by *payment.Stripe.
type EventParser interface {
	ParseEvent(ctx context.Context, payload []byte, signature string) (service.ExternalEvent, error)
}

// PaymentHandler handles card payment endpoints.
type PaymentHandler struct {
	svc            PaymentServicer
	events         EventParser
	publishableKey string
	currency       string
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer, events EventParser, publishableKey, currency string) *PaymentHandler {
	return &PaymentHandler{svc: svc, events: events, publishableKey: publishableKey, currency: currency}
}

// RegisterPublicRoutes registers the unauthenticated payment endpoints. The
// webhook authenticates itself with the gateway signature.
func (h *PaymentHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/payments/config", h.Config)
	r.Post("/payments/webhook", h.Webhook)
	r.Get("/payments/status/{intentID}", h.Status)
}

// RegisterRoutes registers the authenticated payment endpoints.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/intents", h.CreateIntent)
}

// --- Request / Response types ---

type createIntentRequest struct {
	OrderIDs   []string `json:"order_ids"`
	PayerEmail string   `json:"payer_email"`
}

type intentResponse struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	IntentID       string    `json:"intent_id"`
	ClientSecret   string    `json:"client_secret"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	PublishableKey string    `json:"publishable_key"`
}

type paymentStatusResponse struct {
	IntentID     string                 `json:"intent_id"`
	Status       database.PaymentStatus `json:"status"`
	AmountCents  int64                  `json:"amount_cents"`
	Currency     string                 `json:"currency"`
	OrderIDs     []uuid.UUID            `json:"order_ids"`
	TableNum     *int32                 `json:"table_num"`
	ReceiptURL   *string                `json:"receipt_url"`
	ErrorMessage *string                `json:"error_message"`
	PaidAt       *time.Time             `json:"paid_at"`
}

// --- Handlers ---

// Config handles GET /payments/config.
func (h *PaymentHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"publishable_key": h.publishableKey,
		"currency":        h.currency,
	})
}

// CreateIntent handles POST /payments/intents.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, http.StatusBadRequest, "order_ids are required")
		return
	}

	ids := make([]uuid.UUID, len(req.OrderIDs))
	for i, s := range req.OrderIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid order_ids")
			return
		}
		ids[i] = id
	}

	p, err := h.svc.CreateIntent(r.Context(), service.CreateIntentRequest{
		OrderIDs:   ids,
		PayerEmail: strings.TrimSpace(req.PayerEmail),
	})
	if err != nil {
		writeServiceError(w, "create payment intent", err)
		return
	}
	writeJSON(w, http.StatusCreated, intentResponse{
		PaymentID:      p.ID,
		IntentID:       p.ExternalIntentID,
		ClientSecret:   p.ClientSecret,
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		PublishableKey: h.publishableKey,
	})
}

// Webhook handles POST /payments/webhook. Deliveries for unknown intents
// are acknowledged so the gateway stops retrying them; other failures
// answer 500 so it retries.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	ev, err := h.events.ParseEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Printf("WARN: rejected webhook: %v", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.svc.HandleEvent(r.Context(), ev); err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			log.Printf("WARN: webhook %s for unknown intent %s", ev.Kind, ev.IntentID)
			writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		log.Printf("ERROR: handle webhook %s for %s: %v", ev.Kind, ev.IntentID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// Status handles GET /payments/status/{intentID}.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		writeError(w, http.StatusBadRequest, "invalid intent ID")
		return
	}

	p, err := h.svc.Status(r.Context(), intentID)
	if err != nil {
		writeServiceError(w, "get payment status", err)
		return
	}

	resp := paymentStatusResponse{
		IntentID:     p.ExternalIntentID,
		Status:       p.Status,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		OrderIDs:     p.OrderIDs,
		ReceiptURL:   textPtr(p.ReceiptURL),
		ErrorMessage: textPtr(p.ErrorMessage),
		PaidAt:       timestampPtr(p.PaidAt),
	}
	if resp.OrderIDs == nil {
		resp.OrderIDs = []uuid.UUID{}
	}
	if p.TableNum.Valid {
		resp.TableNum = &p.TableNum.Int32
	}
	writeJSON(w, http.StatusOK, resp)
}
