package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"urbana/config"
	"urbana/models"

	"go.uber.org/zap"
)

var (
	ErrUnknownProcessor  = errors.New("unknown payment processor")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrTransfersDisabled = errors.New("processor does not support transfers")
)

// VerifyStatus classifies a verification call. Declined is a definitive negative answer from the
// processor; Error means the outcome is unknown and the attempt must be left untouched.
type VerifyStatus string

const (
	VerifySuccess  VerifyStatus = "success"
	VerifyDeclined VerifyStatus = "declined"
	VerifyError    VerifyStatus = "error"
)

// Transaction is a processor transaction normalized to one shape. Amount is in minor units.
type Transaction struct {
	ID            string
	Reference     string
	TransactionID string
	ClientID      string
	Status        string
	Amount        int64
	Currency      string
	Metadata      map[string]string
	Raw           []byte
}

// ProcessorPaymentID picks the id the processor knows this payment by.
func (t *Transaction) ProcessorPaymentID(fallback string) string {
	for _, id := range []string{t.ID, t.Reference, t.TransactionID, t.ClientID} {
		if id != "" {
			return id
		}
	}
	return fallback
}

// Result is what Verify returns. Verify never returns a Go error; transport failures are reported
// with Status == VerifyError.
type Result struct {
	Status  VerifyStatus
	Message string
	Data    *Transaction
}

// EventKind groups webhook events by what they settle.
type EventKind string

const (
	EventCharge   EventKind = "charge"
	EventTransfer EventKind = "transfer"
	EventOther    EventKind = "other"
)

// WebhookEvent is a parsed webhook body. Reference is our reference: the attempt reference for
// charges and the withdrawal reference for transfers.
type WebhookEvent struct {
	Type               string
	Kind               EventKind
	Reference          string
	Succeeded          bool
	Amount             int64
	Currency           string
	ProcessorPaymentID string
	TransferState      TransferState
}

// Adapter hides one processor's API behind a uniform surface.
type Adapter interface {
	Name() models.Processor
	PublicKey() string
	Verify(ctx context.Context, id string) Result
	// Succeeded is the processor-specific success predicate on a verified transaction.
	Succeeded(tx *Transaction) bool
	// VerifySignature authenticates a raw webhook body. Returns ErrInvalidSignature on mismatch.
	VerifySignature(body []byte, header http.Header) error
	ParseWebhook(body []byte) (*WebhookEvent, error)
}

// IntentRequest asks the processor to prepare a client-side payment.
type IntentRequest struct {
	Amount           int64
	Currency         string
	InvoiceID        string
	AttemptReference string
	UserID           string
}

// Intent is a processor-side payment object created at initialization.
type Intent struct {
	ID           string
	ClientSecret string
}

// IntentCreator is implemented by processors that need a server-side object before checkout.
type IntentCreator interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

type TransferState string

const (
	TransferPending  TransferState = "pending"
	TransferSuccess  TransferState = "success"
	TransferFailed   TransferState = "failed"
	TransferReversed TransferState = "reversed"
)

// Terminal reports whether no further status change is expected.
func (s TransferState) Terminal() bool {
	return s == TransferSuccess || s == TransferFailed || s == TransferReversed
}

// TransferRequest pays out to a bank account. Reference doubles as the idempotency key.
type TransferRequest struct {
	Reference     string
	Amount        int64
	Currency      string
	BankCode      string
	AccountNumber string
	AccountName   string
	Narration     string
}

type Transfer struct {
	ID        string
	Reference string
	State     TransferState
	Message   string
}

// Transferer is implemented by processors that can pay out to bank accounts.
type Transferer interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	FetchTransfer(ctx context.Context, id string) (*Transfer, error)
}

type BankAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankCode      string `json:"bank_code"`
}

// AccountResolver looks a bank account up by number.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*BankAccount, error)
}

// Registry holds one adapter per processor.
type Registry struct {
	adapters map[models.Processor]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Processor]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(p models.Processor) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, p)
	}
	return a, nil
}

func (r *Registry) Transferer(p models.Processor) (Transferer, error) {
	a, err := r.Get(p)
	if err != nil {
		return nil, err
	}
	t, ok := a.(Transferer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransfersDisabled, p)
	}
	return t, nil
}

func (r *Registry) AccountResolver(p models.Processor) (AccountResolver, error) {
	a, err := r.Get(p)
	if err != nil {
		return nil, err
	}
	ar, ok := a.(AccountResolver)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot resolve accounts", ErrUnknownProcessor, p)
	}
	return ar, nil
}

// NewRegistryFromConfig wires the three processors with the key sets of the running environment.
func NewRegistryFromConfig(cfg config.Config, logger *zap.Logger) *Registry {
	return NewRegistry(
		NewPaystackAdapter(cfg.PaystackKeys(), nil, logger.Named("paystack")),
		NewFlutterwaveAdapter(cfg.FlutterwaveKeys(), nil, logger.Named("flutterwave")),
		NewStripeAdapter(cfg.StripeKeys(), nil, logger.Named("stripe")),
	)
}
