// Package payment adapts Stripe PaymentIntents to the service.Gateway
// interface and verifies Stripe webhook deliveries.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/servizo/api/internal/enum"
	"github.com/servizo/api/internal/service"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/charge"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails signature
// verification or cannot be parsed.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Stripe talks to the PaymentIntents and Charges APIs.
type Stripe struct {
	intents       paymentintent.Client
	charges       charge.Client
	webhookSecret string
}

// NewStripe creates a Stripe gateway. A nil backend uses the live Stripe API.
func NewStripe(secretKey, webhookSecret string, backend stripe.Backend) *Stripe {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{
		intents:       paymentintent.Client{B: backend, Key: secretKey},
		charges:       charge.Client{B: backend, Key: secretKey},
		webhookSecret: webhookSecret,
	}
}

// CreateIntent opens a PaymentIntent with automatic payment methods.
func (s *Stripe) CreateIntent(ctx context.Context, req service.IntentRequest) (service.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return service.Intent{}, err
	}
	return service.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// CancelIntent cancels an open PaymentIntent.
func (s *Stripe) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{CancellationReason: stripe.String("abandoned")}
	params.Context = ctx
	_, err := s.intents.Cancel(intentID, params)
	return err
}

// ParseEvent verifies a webhook payload against its Stripe-Signature header
// and converts it to a service event. Event types other than the three
// PaymentIntent outcomes come back with their Stripe type as Kind, which the
// reconciler ignores.
//
// Webhooks carry latest_charge as a bare id, so for succeeded intents the
// charge is fetched to read its receipt URL. A failed lookup only loses the
// receipt.
func (s *Stripe) ParseEvent(ctx context.Context, payload []byte, signature string) (service.ExternalEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return service.ExternalEvent{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	var kind string
	switch ev.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		kind = enum.PaymentEventSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		kind = enum.PaymentEventFailed
	case stripe.EventTypePaymentIntentCanceled:
		kind = enum.PaymentEventCanceled
	default:
		return service.ExternalEvent{Kind: string(ev.Type)}, nil
	}

	if ev.Data == nil {
		return service.ExternalEvent{}, fmt.Errorf("%w: event %s has no data", ErrInvalidSignature, ev.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return service.ExternalEvent{}, fmt.Errorf("%w: decode payment intent: %w", ErrInvalidSignature, err)
	}

	out := service.ExternalEvent{Kind: kind, IntentID: pi.ID}
	if pi.LatestCharge != nil {
		out.ReceiptURL = pi.LatestCharge.ReceiptURL
		if out.ReceiptURL == "" && kind == enum.PaymentEventSucceeded && pi.LatestCharge.ID != "" {
			out.ReceiptURL = s.receiptURL(ctx, pi.LatestCharge.ID)
		}
	}
	if pi.LastPaymentError != nil {
		out.ErrorMessage = pi.LastPaymentError.Msg
	}
	return out, nil
}

func (s *Stripe) receiptURL(ctx context.Context, chargeID string) string {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := s.charges.Get(chargeID, params)
	if err != nil {
		log.Printf("WARN: fetch charge %s for receipt: %v", chargeID, err)
		return ""
	}
	return ch.ReceiptURL
}
