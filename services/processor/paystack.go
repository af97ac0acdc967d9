package processor

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"urbana/config"
	"urbana/models"

	"go.uber.org/zap"
)

const paystackDefaultBase = "https://api.paystack.co"

// PaystackAdapter verifies charges, pays out transfers and resolves bank accounts on Paystack.
// Paystack amounts are already in kobo.
type PaystackAdapter struct {
	keys   config.ProcessorKeys
	base   string
	client *http.Client
	logger *zap.Logger
}

func NewPaystackAdapter(keys config.ProcessorKeys, client *http.Client, logger *zap.Logger) *PaystackAdapter {
	base := strings.TrimRight(keys.BaseURL, "/")
	if base == "" {
		base = paystackDefaultBase
	}
	return &PaystackAdapter{keys: keys, base: base, client: newHTTPClient(client), logger: logger}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	ID        flexID          `json:"id"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Metadata  json.RawMessage `json:"metadata"`
}

type paystackTransfer struct {
	ID           flexID `json:"id"`
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}

func (p *PaystackAdapter) Name() models.Processor { return models.ProcessorPaystack }

func (p *PaystackAdapter) PublicKey() string { return p.keys.PublicKey }

func (p *PaystackAdapter) Succeeded(tx *Transaction) bool {
	return tx != nil && tx.Status == "success"
}

func (p *PaystackAdapter) Verify(ctx context.Context, reference string) Result {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", p.base, url.PathEscape(reference))
	code, raw, err := doJSON(ctx, p.client, http.MethodGet, endpoint, p.keys.SecretKey, nil)
	if err != nil {
		p.logger.Warn("paystack verify request failed", zap.String("reference", reference), zap.Error(err))
		return Result{Status: VerifyError, Message: err.Error()}
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{Status: VerifyError, Message: fmt.Sprintf("paystack returned %d with a non-JSON body", code)}
	}
	if code >= http.StatusInternalServerError {
		return Result{Status: VerifyError, Message: env.Message}
	}
	if code != http.StatusOK || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = "Verification failed"
		}
		return Result{Status: VerifyDeclined, Message: msg}
	}

	var data paystackTransaction
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Result{Status: VerifyError, Message: "paystack returned malformed transaction data"}
	}
	return Result{
		Status:  VerifySuccess,
		Message: env.Message,
		Data: &Transaction{
			ID:        string(data.ID),
			Reference: data.Reference,
			Status:    data.Status,
			Amount:    data.Amount,
			Currency:  data.Currency,
			Metadata:  metadataMap(data.Metadata),
			Raw:       env.Data,
		},
	}
}

// VerifySignature checks x-paystack-signature, an HMAC-SHA512 of the body keyed with the secret key.
func (p *PaystackAdapter) VerifySignature(body []byte, header http.Header) error {
	sig := header.Get("x-paystack-signature")
	if sig == "" || p.keys.SecretKey == "" {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha512.New, []byte(p.keys.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrInvalidSignature
	}
	return nil
}

func (p *PaystackAdapter) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var payload struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	ev := &WebhookEvent{Type: payload.Event, Kind: EventOther}

	switch {
	case strings.HasPrefix(payload.Event, "charge."):
		var tx paystackTransaction
		if err := json.Unmarshal(payload.Data, &tx); err != nil {
			return nil, err
		}
		ev.Kind = EventCharge
		ev.Reference = tx.Reference
		ev.Amount = tx.Amount
		ev.Currency = tx.Currency
		ev.ProcessorPaymentID = string(tx.ID)
		ev.Succeeded = payload.Event == "charge.success" && tx.Status == "success"
	case strings.HasPrefix(payload.Event, "transfer."):
		var tr paystackTransfer
		if err := json.Unmarshal(payload.Data, &tr); err != nil {
			return nil, err
		}
		ev.Kind = EventTransfer
		ev.Reference = tr.Reference
		ev.ProcessorPaymentID = tr.TransferCode
		switch payload.Event {
		case "transfer.success":
			ev.TransferState = TransferSuccess
		case "transfer.failed":
			ev.TransferState = TransferFailed
		case "transfer.reversed":
			ev.TransferState = TransferReversed
		default:
			ev.TransferState = TransferPending
		}
		ev.Succeeded = ev.TransferState == TransferSuccess
	}
	return ev, nil
}

// CreateTransfer registers a nuban recipient and initiates a balance transfer to it.
func (p *PaystackAdapter) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*defaultTimeout)
	defer cancel()

	recipient := map[string]any{
		"type":           "nuban",
		"name":           req.AccountName,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       req.Currency,
	}
	var rcp struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := p.call(ctx, http.MethodPost, "/transferrecipient", recipient, &rcp); err != nil {
		return nil, fmt.Errorf("paystack: create recipient: %w", err)
	}

	transfer := map[string]any{
		"source":    "balance",
		"amount":    req.Amount,
		"recipient": rcp.RecipientCode,
		"reason":    req.Narration,
		"reference": req.Reference,
		"currency":  req.Currency,
	}
	var tr paystackTransfer
	if err := p.call(ctx, http.MethodPost, "/transfer", transfer, &tr); err != nil {
		return nil, fmt.Errorf("paystack: initiate transfer: %w", err)
	}
	p.logger.Info("paystack transfer initiated",
		zap.String("reference", req.Reference), zap.String("transfer_code", tr.TransferCode), zap.String("status", tr.Status))
	return tr.toTransfer(), nil
}

func (p *PaystackAdapter) FetchTransfer(ctx context.Context, id string) (*Transfer, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tr paystackTransfer
	if err := p.call(ctx, http.MethodGet, "/transfer/"+url.PathEscape(id), nil, &tr); err != nil {
		return nil, fmt.Errorf("paystack: fetch transfer: %w", err)
	}
	return tr.toTransfer(), nil
}

func (p *PaystackAdapter) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*BankAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("bank_code", bankCode)
	var acct BankAccount
	if err := p.call(ctx, http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &acct); err != nil {
		return nil, fmt.Errorf("paystack: resolve account: %w", err)
	}
	acct.BankCode = bankCode
	return &acct, nil
}

// call performs a request and decodes data on status == true.
func (p *PaystackAdapter) call(ctx context.Context, method, path string, in, out any) error {
	code, raw, err := doJSON(ctx, p.client, method, p.base+path, p.keys.SecretKey, in)
	if err != nil {
		return err
	}
	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &apiError{StatusCode: code, Body: string(raw)}
	}
	if code < 200 || code > 299 || !env.Status {
		return &apiError{StatusCode: code, Body: env.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.New("malformed data in paystack response")
	}
	return nil
}

func (t paystackTransfer) toTransfer() *Transfer {
	id := t.TransferCode
	if id == "" {
		id = string(t.ID)
	}
	var state TransferState
	switch t.Status {
	case "success":
		state = TransferSuccess
	case "failed", "abandoned", "rejected":
		state = TransferFailed
	case "reversed":
		state = TransferReversed
	default:
		state = TransferPending
	}
	return &Transfer{ID: id, Reference: t.Reference, State: state, Message: t.Reason}
}

// metadataMap flattens processor metadata to strings. Paystack sends an empty string instead of
// an object when no metadata was attached.
func metadataMap(raw json.RawMessage) map[string]string {
	var m map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
