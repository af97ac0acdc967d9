package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"urbana/config"
	"urbana/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeAdapter uses PaymentIntents. The intent is created at initialization and verified by id.
type StripeAdapter struct {
	keys   config.ProcessorKeys
	api    *client.API
	logger *zap.Logger
}

// NewStripeAdapter builds a client bound to the given key set. Passing nil backends uses Stripe's
// default endpoints.
func NewStripeAdapter(keys config.ProcessorKeys, backends *stripe.Backends, logger *zap.Logger) *StripeAdapter {
	api := &client.API{}
	api.Init(keys.SecretKey, backends)
	return &StripeAdapter{keys: keys, api: api, logger: logger}
}

func (s *StripeAdapter) Name() models.Processor { return models.ProcessorStripe }

func (s *StripeAdapter) PublicKey() string { return s.keys.PublicKey }

func (s *StripeAdapter) Succeeded(tx *Transaction) bool {
	return tx != nil && tx.Status == string(stripe.PaymentIntentStatusSucceeded)
}

func (s *StripeAdapter) Verify(ctx context.Context, intentID string) Result {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			return Result{Status: VerifyDeclined, Message: stripeErr.Msg}
		}
		s.logger.Warn("stripe verify request failed", zap.String("intent_id", intentID), zap.Error(err))
		return Result{Status: VerifyError, Message: err.Error()}
	}

	raw, _ := json.Marshal(intent)
	return Result{
		Status:  VerifySuccess,
		Message: "Verification successful",
		Data: &Transaction{
			ID:        intent.ID,
			Reference: intent.Metadata["attempt_reference"],
			Status:    string(intent.Status),
			Amount:    intent.Amount,
			Currency:  strings.ToUpper(string(intent.Currency)),
			Metadata:  intent.Metadata,
			Raw:       raw,
		},
	}
}

// CreateIntent creates a PaymentIntent for an attempt. The attempt reference is the idempotency
// key so a retried initialization cannot create a second intent.
func (s *StripeAdapter) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("invoice_id", req.InvoiceID)
	params.AddMetadata("attempt_reference", req.AttemptReference)
	params.AddMetadata("user_id", req.UserID)
	params.SetIdempotencyKey("attempt-" + req.AttemptReference)

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	s.logger.Info("stripe payment intent created",
		zap.String("intent_id", intent.ID), zap.String("attempt_reference", req.AttemptReference))
	return &Intent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// VerifySignature validates the Stripe-Signature header against the endpoint secret.
func (s *StripeAdapter) VerifySignature(body []byte, header http.Header) error {
	sig := header.Get("Stripe-Signature")
	if sig == "" || s.keys.WebhookSecret == "" {
		return ErrInvalidSignature
	}
	_, err := webhook.ConstructEventWithOptions(body, sig, s.keys.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func (s *StripeAdapter) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	ev := &WebhookEvent{Type: string(event.Type), Kind: EventOther}
	if !strings.HasPrefix(ev.Type, "payment_intent.") || event.Data == nil {
		return ev, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, err
	}
	ev.Kind = EventCharge
	ev.Reference = intent.Metadata["attempt_reference"]
	ev.Amount = intent.Amount
	ev.Currency = strings.ToUpper(string(intent.Currency))
	ev.ProcessorPaymentID = intent.ID
	ev.Succeeded = event.Type == "payment_intent.succeeded"
	return ev, nil
}
