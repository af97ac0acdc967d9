package processor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"urbana/config"
	"urbana/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStripe(t *testing.T, handler http.HandlerFunc) *StripeAdapter {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(ts.URL),
		HTTPClient:        ts.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	keys := config.ProcessorKeys{PublicKey: "pk_test_1", SecretKey: "sk_test_1", WebhookSecret: "whsec_test"}
	return NewStripeAdapter(keys, backends, zap.NewNop())
}

func TestStripeVerify(t *testing.T) {
	s := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"pi_123","object":"payment_intent","amount":4200,"currency":"usd",
			"status":"succeeded","metadata":{"attempt_reference":"ref-1","invoice_id":"inv-1"}}`)
	})

	res := s.Verify(context.Background(), "pi_123")
	require.Equal(t, VerifySuccess, res.Status)
	assert.Equal(t, "pi_123", res.Data.ID)
	assert.Equal(t, int64(4200), res.Data.Amount)
	assert.Equal(t, "USD", res.Data.Currency)
	assert.Equal(t, "ref-1", res.Data.Reference)
	assert.True(t, s.Succeeded(res.Data))
}

func TestStripeVerify_RequiresAction(t *testing.T) {
	s := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"pi_9","object":"payment_intent","amount":100,"currency":"usd","status":"requires_action"}`)
	})

	res := s.Verify(context.Background(), "pi_9")
	require.Equal(t, VerifySuccess, res.Status)
	assert.False(t, s.Succeeded(res.Data))
}

func TestStripeVerify_MissingIntentIsDeclined(t *testing.T) {
	s := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent: 'pi_x'"}}`)
	})

	res := s.Verify(context.Background(), "pi_x")
	assert.Equal(t, VerifyDeclined, res.Status)
	assert.Contains(t, res.Message, "No such payment_intent")
}

func TestStripeVerify_ServerErrorIsAmbiguous(t *testing.T) {
	s := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"type":"api_error","message":"boom"}}`)
	})

	assert.Equal(t, VerifyError, s.Verify(context.Background(), "pi_1").Status)
}

func TestStripeCreateIntent(t *testing.T) {
	s := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "attempt-ref-7", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "4200", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "ref-7", r.PostForm.Get("metadata[attempt_reference]"))
		assert.Equal(t, "inv-7", r.PostForm.Get("metadata[invoice_id]"))
		_, _ = io.WriteString(w, `{"id":"pi_7","object":"payment_intent","client_secret":"pi_7_secret_abc","amount":4200,"currency":"usd","status":"requires_payment_method"}`)
	})

	intent, err := s.CreateIntent(context.Background(), IntentRequest{
		Amount: 4200, Currency: "USD", InvoiceID: "inv-7", AttemptReference: "ref-7", UserID: "u-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_7", intent.ID)
	assert.Equal(t, "pi_7_secret_abc", intent.ClientSecret)
}

func TestStripeWebhook(t *testing.T) {
	s := NewStripeAdapter(config.ProcessorKeys{WebhookSecret: "whsec_test"}, nil, zap.NewNop())
	body := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2023-10-16",
		"data":{"object":{"id":"pi_1","object":"payment_intent","amount":5000,"currency":"usd","status":"succeeded",
		"metadata":{"attempt_reference":"ref-1"}}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: "whsec_test"})
	header := http.Header{}
	header.Set("Stripe-Signature", signed.Header)
	require.NoError(t, s.VerifySignature(body, header))

	header.Set("Stripe-Signature", "t=1,v1=bad")
	assert.ErrorIs(t, s.VerifySignature(body, header), ErrInvalidSignature)

	ev, err := s.ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, EventCharge, ev.Kind)
	assert.True(t, ev.Succeeded)
	assert.Equal(t, "ref-1", ev.Reference)
	assert.Equal(t, int64(5000), ev.Amount)
	assert.Equal(t, "pi_1", ev.ProcessorPaymentID)
}

func TestRegistry(t *testing.T) {
	p := NewPaystackAdapter(config.ProcessorKeys{}, nil, zap.NewNop())
	s := NewStripeAdapter(config.ProcessorKeys{}, nil, zap.NewNop())
	reg := NewRegistry(p, s)

	a, err := reg.Get(models.ProcessorPaystack)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessorPaystack, a.Name())

	_, err = reg.Get(models.ProcessorFlutterwave)
	assert.ErrorIs(t, err, ErrUnknownProcessor)

	_, err = reg.Transferer(models.ProcessorPaystack)
	assert.NoError(t, err)
	_, err = reg.Transferer(models.ProcessorStripe)
	assert.ErrorIs(t, err, ErrTransfersDisabled)

	_, err = reg.AccountResolver(models.ProcessorPaystack)
	assert.NoError(t, err)
}
