package processor

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"urbana/config"
	"urbana/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const flutterwaveDefaultBase = "https://api.flutterwave.com/v3"

// FlutterwaveAdapter talks to the Flutterwave v3 API. Flutterwave amounts are major units and are
// converted at this boundary.
type FlutterwaveAdapter struct {
	keys   config.ProcessorKeys
	base   string
	client *http.Client
	logger *zap.Logger
}

func NewFlutterwaveAdapter(keys config.ProcessorKeys, client *http.Client, logger *zap.Logger) *FlutterwaveAdapter {
	base := strings.TrimRight(keys.BaseURL, "/")
	if base == "" {
		base = flutterwaveDefaultBase
	}
	return &FlutterwaveAdapter{keys: keys, base: base, client: newHTTPClient(client), logger: logger}
}

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flutterwaveTransaction struct {
	ID       flexID          `json:"id"`
	TxRef    string          `json:"tx_ref"`
	FlwRef   string          `json:"flw_ref"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Meta     json.RawMessage `json:"meta"`
}

type flutterwaveTransfer struct {
	ID              flexID `json:"id"`
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	CompleteMessage string `json:"complete_message"`
}

func (f *FlutterwaveAdapter) Name() models.Processor { return models.ProcessorFlutterwave }

func (f *FlutterwaveAdapter) PublicKey() string { return f.keys.PublicKey }

func (f *FlutterwaveAdapter) Succeeded(tx *Transaction) bool {
	return tx != nil && tx.Status == "successful"
}

func (f *FlutterwaveAdapter) Verify(ctx context.Context, transactionID string) Result {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/transactions/%s/verify", f.base, url.PathEscape(transactionID))
	code, raw, err := doJSON(ctx, f.client, http.MethodGet, endpoint, f.keys.SecretKey, nil)
	if err != nil {
		f.logger.Warn("flutterwave verify request failed", zap.String("transaction_id", transactionID), zap.Error(err))
		return Result{Status: VerifyError, Message: err.Error()}
	}

	var env flutterwaveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Result{Status: VerifyError, Message: fmt.Sprintf("flutterwave returned %d with a non-JSON body", code)}
	}
	if code >= http.StatusInternalServerError {
		return Result{Status: VerifyError, Message: env.Message}
	}
	if code != http.StatusOK || env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = "Verification failed"
		}
		return Result{Status: VerifyDeclined, Message: msg}
	}

	var data flutterwaveTransaction
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Result{Status: VerifyError, Message: "flutterwave returned malformed transaction data"}
	}
	return Result{
		Status:  VerifySuccess,
		Message: env.Message,
		Data: &Transaction{
			ID:            string(data.ID),
			Reference:     data.TxRef,
			TransactionID: data.FlwRef,
			Status:        data.Status,
			Amount:        ToMinorUnits(data.Amount, data.Currency),
			Currency:      data.Currency,
			Metadata:      metadataMap(data.Meta),
			Raw:           env.Data,
		},
	}
}

// VerifySignature compares the verif-hash header with the secret hash configured on the dashboard.
func (f *FlutterwaveAdapter) VerifySignature(body []byte, header http.Header) error {
	got := header.Get("verif-hash")
	if got == "" || f.keys.WebhookSecret == "" {
		return ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(f.keys.WebhookSecret)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func (f *FlutterwaveAdapter) ParseWebhook(body []byte) (*WebhookEvent, error) {
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
		var tx flutterwaveTransaction
		if err := json.Unmarshal(payload.Data, &tx); err != nil {
			return nil, err
		}
		ev.Kind = EventCharge
		ev.Reference = tx.TxRef
		ev.Amount = ToMinorUnits(tx.Amount, tx.Currency)
		ev.Currency = tx.Currency
		ev.ProcessorPaymentID = string(tx.ID)
		ev.Succeeded = payload.Event == "charge.completed" && tx.Status == "successful"
	case strings.HasPrefix(payload.Event, "transfer."):
		var tr flutterwaveTransfer
		if err := json.Unmarshal(payload.Data, &tr); err != nil {
			return nil, err
		}
		ev.Kind = EventTransfer
		ev.Reference = tr.Reference
		ev.ProcessorPaymentID = string(tr.ID)
		ev.TransferState = flutterwaveTransferState(tr.Status)
		ev.Succeeded = ev.TransferState == TransferSuccess
	}
	return ev, nil
}

func (f *FlutterwaveAdapter) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	body := map[string]any{
		"account_bank":   req.BankCode,
		"account_number": req.AccountNumber,
		"amount":         ToMajorUnits(req.Amount, req.Currency).InexactFloat64(),
		"currency":       req.Currency,
		"debit_currency": req.Currency,
		"narration":      req.Narration,
		"reference":      req.Reference,
	}
	var tr flutterwaveTransfer
	if err := f.call(ctx, http.MethodPost, "/transfers", body, &tr); err != nil {
		return nil, fmt.Errorf("flutterwave: create transfer: %w", err)
	}
	f.logger.Info("flutterwave transfer queued",
		zap.String("reference", req.Reference), zap.String("transfer_id", string(tr.ID)), zap.String("status", tr.Status))
	return tr.toTransfer(), nil
}

func (f *FlutterwaveAdapter) FetchTransfer(ctx context.Context, id string) (*Transfer, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tr flutterwaveTransfer
	if err := f.call(ctx, http.MethodGet, "/transfers/"+url.PathEscape(id), nil, &tr); err != nil {
		return nil, fmt.Errorf("flutterwave: fetch transfer: %w", err)
	}
	return tr.toTransfer(), nil
}

func (f *FlutterwaveAdapter) call(ctx context.Context, method, path string, in, out any) error {
	code, raw, err := doJSON(ctx, f.client, method, f.base+path, f.keys.SecretKey, in)
	if err != nil {
		return err
	}
	var env flutterwaveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &apiError{StatusCode: code, Body: string(raw)}
	}
	if code < 200 || code > 299 || env.Status != "success" {
		return &apiError{StatusCode: code, Body: env.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.New("malformed data in flutterwave response")
	}
	return nil
}

func (t flutterwaveTransfer) toTransfer() *Transfer {
	return &Transfer{
		ID:        string(t.ID),
		Reference: t.Reference,
		State:     flutterwaveTransferState(t.Status),
		Message:   t.CompleteMessage,
	}
}

func flutterwaveTransferState(status string) TransferState {
	switch strings.ToUpper(status) {
	case "SUCCESSFUL":
		return TransferSuccess
	case "FAILED":
		return TransferFailed
	default:
		return TransferPending
	}
}
