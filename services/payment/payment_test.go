package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"urbana/config"
	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"
	"urbana/services/processor"
	"urbana/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stripe/stripe-go/v76"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	paystackSecret  = "sk_test_payments"
	flutterwaveHash = "flw-hash"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *recordingQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: uuid.New().String(), Type: task.Type()}, nil
}

func (q *recordingQueue) types() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.Type())
	}
	return out
}

// harness wires the service to the in-memory ledger and processor adapters pointed at local test
// servers. The processor's answers are swapped per test through the handler fields.
type harness struct {
	svc    *DefaultPaymentService
	ledger *ledgerRepo.MemoryLedgerRepo
	queue  *recordingQueue

	mu          sync.Mutex
	paystack    http.HandlerFunc
	flutterwave http.HandlerFunc
	stripe      http.HandlerFunc
}

func (h *harness) serve(pick func() http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		handler := pick()
		h.mu.Unlock()
		if handler == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		handler(w, r)
	}
}

func (h *harness) onPaystack(fn http.HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paystack = fn
}

func (h *harness) onFlutterwave(fn http.HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flutterwave = fn
}

func (h *harness) onStripe(fn http.HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stripe = fn
}

func newHarness(t *testing.T, cache *redis.Client) *harness {
	t.Helper()
	h := &harness{ledger: ledgerRepo.NewMemoryLedgerRepo(), queue: &recordingQueue{}}

	ps := httptest.NewServer(h.serve(func() http.HandlerFunc { return h.paystack }))
	fw := httptest.NewServer(h.serve(func() http.HandlerFunc { return h.flutterwave }))
	st := httptest.NewServer(h.serve(func() http.HandlerFunc { return h.stripe }))
	t.Cleanup(ps.Close)
	t.Cleanup(fw.Close)
	t.Cleanup(st.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(st.URL),
		HTTPClient:        st.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})

	logger := zap.NewNop()
	registry := processor.NewRegistry(
		processor.NewPaystackAdapter(config.ProcessorKeys{PublicKey: "pk_test", SecretKey: paystackSecret, BaseURL: ps.URL}, ps.Client(), logger),
		processor.NewFlutterwaveAdapter(config.ProcessorKeys{PublicKey: "FLWPUBK", SecretKey: "FLWSECK", WebhookSecret: flutterwaveHash, BaseURL: fw.URL}, fw.Client(), logger),
		processor.NewStripeAdapter(config.ProcessorKeys{PublicKey: "pk_stripe", SecretKey: "sk_stripe", WebhookSecret: "whsec_test"},
			&stripe.Backends{API: backend, Connect: backend, Uploads: backend}, logger),
	)
	h.svc = NewDefaultPaymentService(h.ledger, registry, h.queue, cache, logger, Options{})
	return h
}

func (h *harness) invoice(t *testing.T, userID string, amount int64, currency string) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		ID:       uuid.New().String(),
		UserID:   userID,
		Amount:   amount,
		Currency: currency,
		Purpose:  "Order #1042",
	}
	require.NoError(t, h.ledger.CreateInvoice(context.Background(), inv))
	return inv
}

func (h *harness) attempt(t *testing.T, p models.Processor, reference string) *models.PaymentAttempt {
	t.Helper()
	a, err := h.ledger.FindAttempt(context.Background(), p, reference)
	require.NoError(t, err)
	return a
}

func customer(id string) Customer {
	return Customer{ID: id, Email: id + "@example.com", Name: "Ada Obi"}
}

func paystackVerified(reference string, amount int64, status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"status":true,"message":"Verification successful",
			"data":{"id":4099260516,"status":%q,"reference":%q,"amount":%d,"currency":"NGN"}}`, status, reference, amount)
	}
}

func signPaystack(body []byte) http.Header {
	mac := hmac.New(sha512.New, []byte(paystackSecret))
	mac.Write(body)
	h := http.Header{}
	h.Set("x-paystack-signature", hex.EncodeToString(mac.Sum(nil)))
	return h
}

func flutterwaveHeader() http.Header {
	h := http.Header{}
	h.Set("verif-hash", flutterwaveHash)
	return h
}

func TestInitialize_Paystack(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")

	resp, err := h.svc.Initialize(ctx, InitRequest{
		Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "pk_test", resp.PublicKey)
	assert.Equal(t, "NGN", resp.Currency)
	assert.Equal(t, int64(5000), resp.Amount)
	assert.Equal(t, "u-1@example.com", resp.Email)
	assert.Len(t, resp.Reference, 16)

	a := h.attempt(t, models.ProcessorPaystack, resp.Reference)
	assert.Equal(t, models.StatusInitialized, a.Status)
	assert.Equal(t, int64(5000), a.Amount)

	got, err := h.ledger.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, got.PaymentAttemptIDs)
	assert.False(t, got.Settled())
}

func TestInitialize_RepeatedCallsCreateSeparateAttempts(t *testing.T) {
	h := newHarness(t, nil)
	inv := h.invoice(t, "u-1", 5000, "NGN")
	req := InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")}

	first, err := h.svc.Initialize(context.Background(), req)
	require.NoError(t, err)
	second, err := h.svc.Initialize(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Reference, second.Reference)

	got, err := h.ledger.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Len(t, got.PaymentAttemptIDs, 2)
}

func TestInitialize_Validation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")

	deletedID := uuid.New().String()
	require.NoError(t, h.ledger.CreateInvoice(ctx, &models.Invoice{ID: deletedID, UserID: "u-1", Amount: 5000, Currency: "NGN", IsDeleted: true}))

	tests := []struct {
		name string
		req  InitRequest
		want error
	}{
		{"missing invoice id", InitRequest{Amount: 5000}, nil},
		{"zero amount", InitRequest{InvoiceID: inv.ID}, nil},
		{"unknown invoice", InitRequest{InvoiceID: "nope", Amount: 5000}, ErrInvoiceNotFound},
		{"deleted invoice", InitRequest{InvoiceID: deletedID, Amount: 5000}, ErrInvoiceNotFound},
		{"another user's invoice", InitRequest{InvoiceID: inv.ID, Amount: 5000, User: customer("u-2")}, ErrInvoiceNotFound},
		{"amount mismatch", InitRequest{InvoiceID: inv.ID, Amount: 4999}, ErrAmountMismatch},
		{"currency mismatch", InitRequest{InvoiceID: inv.ID, Amount: 5000, Currency: "usd"}, ErrCurrencyMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Processor = models.ProcessorPaystack
			if tt.req.User.ID == "" {
				tt.req.User = customer("u-1")
			}
			_, err := h.svc.Initialize(ctx, tt.req)
			require.Error(t, err)
			if tt.want == nil {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	got, err := h.ledger.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PaymentAttemptIDs, "rejected requests must not record attempts")
}

func TestInitialize_UnknownProcessor(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Initialize(context.Background(), InitRequest{Processor: models.ProcessorManual, InvoiceID: "x", Amount: 1})
	assert.ErrorIs(t, err, processor.ErrUnknownProcessor)
}

func TestInitialize_PaidInvoice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")
	resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	require.NoError(t, err)

	h.onPaystack(paystackVerified(resp.Reference, 5000, "success"))
	_, err = h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
	require.NoError(t, err)

	_, err = h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	assert.ErrorIs(t, err, ErrInvoiceAlreadyPaid)
}

func TestInitialize_FlutterwaveDisplayFields(t *testing.T) {
	h := newHarness(t, nil)
	inv := h.invoice(t, "u-1", 150050, "NGN")

	resp, err := h.svc.Initialize(context.Background(), InitRequest{
		Processor: models.ProcessorFlutterwave, InvoiceID: inv.ID, Amount: 150050, User: customer("u-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1500.50", resp.DisplayAmount)
	assert.Equal(t, "Ada Obi", resp.CustomerName)
	assert.Equal(t, "Order #1042", resp.Description)
	assert.Equal(t, "FLWPUBK", resp.PublicKey)
}

func TestInitialize_StripeCreatesIntent(t *testing.T) {
	h := newHarness(t, nil)
	inv := h.invoice(t, "u-1", 4200, "USD")
	h.onStripe(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "4200", r.PostForm.Get("amount"))
		assert.Equal(t, inv.ID, r.PostForm.Get("metadata[invoice_id]"))
		_, _ = io.WriteString(w, `{"id":"pi_42","object":"payment_intent","client_secret":"pi_42_secret","amount":4200,"currency":"usd","status":"requires_payment_method"}`)
	})

	resp, err := h.svc.Initialize(context.Background(), InitRequest{
		Processor: models.ProcessorStripe, InvoiceID: inv.ID, Amount: 4200, User: customer("u-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_42_secret", resp.ClientSecret)
	assert.Equal(t, "pi_42", h.attempt(t, models.ProcessorStripe, resp.Reference).ExternalReference)
}

func TestInitialize_StripeIntentFailureFailsAttempt(t *testing.T) {
	h := newHarness(t, nil)
	inv := h.invoice(t, "u-1", 4200, "USD")
	h.onStripe(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"type":"api_error","message":"boom"}}`)
	})

	attached := &capturingLedger{MemoryLedgerRepo: h.ledger}
	h.svc.ledger = attached

	_, err := h.svc.Initialize(context.Background(), InitRequest{
		Processor: models.ProcessorStripe, InvoiceID: inv.ID, Amount: 4200, User: customer("u-1"),
	})
	require.ErrorIs(t, err, ErrProcessorUnavailable)

	require.NotNil(t, attached.last)
	a := h.attempt(t, models.ProcessorStripe, attached.last.Reference)
	assert.Equal(t, models.StatusFailed, a.Status)
	assert.Empty(t, a.ExternalReference)
}

// capturingLedger remembers the last attempt recorded through it.
type capturingLedger struct {
	*ledgerRepo.MemoryLedgerRepo
	last *models.PaymentAttempt
}

func (c *capturingLedger) AttachAttempt(ctx context.Context, invoiceID string, attempt *models.PaymentAttempt) error {
	c.last = attempt
	return c.MemoryLedgerRepo.AttachAttempt(ctx, invoiceID, attempt)
}

func TestConfirm_SettlesOnceAndIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")

	resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	require.NoError(t, err)
	h.onPaystack(paystackVerified(resp.Reference, 5000, "success"))

	first, err := h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "Paystack payment verified successfully", first.Message)
	assert.Equal(t, []string{inv.ID}, first.InvoiceIDs)

	a := h.attempt(t, models.ProcessorPaystack, resp.Reference)
	assert.Equal(t, models.StatusSuccess, a.Status)
	assert.Equal(t, "4099260516", a.ProcessorPaymentID)

	got, err := h.ledger.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, got.PaymentID)
	assert.True(t, got.IsActive)
	assert.NotNil(t, got.ExpiryDate)

	second, err := h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.PaymentID, second.PaymentID)

	payments, err := h.svc.ListPayments(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, []string{tasks.TypePaymentReceipt}, h.queue.types())

	p, err := h.svc.GetPayment(ctx, "u-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, p.ID)
	_, err = h.svc.GetPayment(ctx, "u-2", inv.ID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestConfirm_UnknownAttempt(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Confirm(context.Background(), ConfirmRequest{Processor: models.ProcessorPaystack, Reference: "NOPE"})
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	_, err = h.svc.Confirm(context.Background(), ConfirmRequest{Processor: models.ProcessorPaystack})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestConfirm_OnlyOwnAttempts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")
	resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	require.NoError(t, err)
	h.onPaystack(paystackVerified(resp.Reference, 5000, "success"))

	_, err = h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, UserID: "u-2", Reference: resp.Reference})
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	assert.Equal(t, models.StatusInitialized, h.attempt(t, models.ProcessorPaystack, resp.Reference).Status)

	res, err := h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, UserID: "u-1", Reference: resp.Reference})
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestConfirm_DeclinedMarksAttemptFailed(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")
	resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	require.NoError(t, err)

	h.onPaystack(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":false,"message":"Transaction reference not found"}`)
	})
	_, err = h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, err.Error(), "Transaction reference not found")
	assert.Equal(t, models.StatusFailed, h.attempt(t, models.ProcessorPaystack, resp.Reference).Status)

	got, err := h.ledger.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, got.Settled())
	assert.Empty(t, h.queue.types())
}

func TestConfirm_RejectsMismatchedTransaction(t *testing.T) {
	tests := []struct {
		name    string
		handler func(ref string) http.HandlerFunc
		reason  string
	}{
		{"amount tampered", func(ref string) http.HandlerFunc { return paystackVerified(ref, 100, "success") }, "Amount mismatch"},
		{"abandoned", func(ref string) http.HandlerFunc { return paystackVerified(ref, 5000, "abandoned") }, "not successful"},
		{"other reference", func(string) http.HandlerFunc { return paystackVerified("SOMEONE-ELSE", 5000, "success") }, "does not belong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			ctx := context.Background()
			inv := h.invoice(t, "u-1", 5000, "NGN")
			resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
			require.NoError(t, err)

			h.onPaystack(tt.handler(resp.Reference))
			_, err = h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
			require.ErrorIs(t, err, ErrVerificationFailed)
			assert.Contains(t, err.Error(), tt.reason)
			assert.Equal(t, models.StatusFailed, h.attempt(t, models.ProcessorPaystack, resp.Reference).Status)
		})
	}
}

func TestConfirm_AmbiguousVerificationLeavesAttempt(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")
	resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	require.NoError(t, err)

	h.onPaystack(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})
	_, err = h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
	require.ErrorIs(t, err, ErrProcessorUnavailable)
	assert.Equal(t, models.StatusInitialized, h.attempt(t, models.ProcessorPaystack, resp.Reference).Status)

	// The client retries once the processor is back.
	h.onPaystack(paystackVerified(resp.Reference, 5000, "success"))
	res, err := h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestConfirm_FlutterwaveNeedsTransactionID(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")
	resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorFlutterwave, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	require.NoError(t, err)

	_, err = h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorFlutterwave, Reference: resp.Reference})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "transaction_id", verr.Field)

	h.onFlutterwave(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/288200108/verify", r.URL.Path)
		_, _ = fmt.Fprintf(w, `{"status":"success","data":{"id":288200108,"tx_ref":%q,"amount":50,"currency":"NGN","status":"successful"}}`, resp.Reference)
	})
	res, err := h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorFlutterwave, Reference: resp.Reference, TransactionID: "288200108"})
	require.NoError(t, err)
	assert.Equal(t, "Flutterwave payment verified successfully", res.Message)
	assert.Equal(t, "288200108", h.attempt(t, models.ProcessorFlutterwave, resp.Reference).ProcessorPaymentID)
}

// orphanLedger simulates a successful attempt whose invoice link is gone.
type orphanLedger struct {
	*ledgerRepo.MemoryLedgerRepo
}

func (orphanLedger) Finalize(ctx context.Context, params ledgerRepo.FinalizeParams) (*models.FinalizeResult, error) {
	return nil, ledgerRepo.ErrOrphanAttempt
}

func TestConfirm_OrphanAttempt(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")
	resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	require.NoError(t, err)

	h.svc.ledger = orphanLedger{h.ledger}
	h.onPaystack(paystackVerified(resp.Reference, 5000, "success"))
	_, err = h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
	assert.ErrorIs(t, err, ErrOrphanAttempt)
	assert.Empty(t, h.queue.types())
}

func TestConfirmAndWebhookRace(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inv := h.invoice(t, "u-1", 5000, "NGN")
	resp, err := h.svc.Initialize(ctx, InitRequest{Processor: models.ProcessorPaystack, InvoiceID: inv.ID, Amount: 5000, User: customer("u-1")})
	require.NoError(t, err)
	h.onPaystack(paystackVerified(resp.Reference, 5000, "success"))

	body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"id":4099260516,"status":"success","reference":%q,"amount":5000,"currency":"NGN"}}`, resp.Reference))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.svc.Confirm(ctx, ConfirmRequest{Processor: models.ProcessorPaystack, Reference: resp.Reference})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			out := h.svc.HandleWebhook(ctx, models.ProcessorPaystack, body, signPaystack(body))
			assert.Equal(t, http.StatusOK, out.StatusCode)
		}()
	}
	wg.Wait()

	payments, err := h.ledger.ListPaymentsByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, inv.ID, payments[0].Reference)
	assert.Equal(t, []string{tasks.TypePaymentReceipt}, h.queue.types())
}

func TestGetInvoice_Ownership(t *testing.T) {
	h := newHarness(t, nil)
	inv := h.invoice(t, "u-1", 5000, "NGN")

	got, err := h.svc.GetInvoice(context.Background(), "u-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)

	_, err = h.svc.GetInvoice(context.Background(), "u-2", inv.ID)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
	_, err = h.svc.GetInvoice(context.Background(), "u-1", "missing")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	list, err := h.svc.ListInvoices(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateInvoice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	inv, err := h.svc.CreateInvoice(ctx, InvoiceRequest{ID: "ORD-1042", UserID: "u-1", Amount: 250000, Purpose: "Order #1042"})
	require.NoError(t, err)
	assert.Equal(t, "NGN", inv.Currency)
	assert.False(t, inv.Settled())

	got, err := h.svc.GetInvoice(ctx, "u-1", "ORD-1042")
	require.NoError(t, err)
	assert.Equal(t, int64(250000), got.Amount)

	_, err = h.svc.CreateInvoice(ctx, InvoiceRequest{ID: "ORD-1042", UserID: "u-1", Amount: 1})
	assert.ErrorIs(t, err, ErrInvoiceExists)

	generated, err := h.svc.CreateInvoice(ctx, InvoiceRequest{UserID: "u-2", Amount: 700, Currency: "usd"})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID)
	assert.Equal(t, "USD", generated.Currency)

	var verr *ValidationError
	_, err = h.svc.CreateInvoice(ctx, InvoiceRequest{UserID: "u-1"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)
	_, err = h.svc.CreateInvoice(ctx, InvoiceRequest{Amount: 10})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_id", verr.Field)
}
