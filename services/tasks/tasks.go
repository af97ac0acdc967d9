package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeTransferDispatch = "transfer:dispatch"
	TypeTransferPoll     = "transfer:poll"
	TypeTransferSweep    = "transfer:sweep"
	TypePaymentReceipt   = "payment:receipt"
)

// Enqueuer is the part of *asynq.Client the services use.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type TransferPayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	Attempt      int    `json:"attempt"`
}

type ReceiptPayload struct {
	PaymentID  string   `json:"payment_id"`
	UserID     string   `json:"user_id"`
	Amount     int64    `json:"amount"`
	Currency   string   `json:"currency"`
	InvoiceIDs []string `json:"invoice_ids"`
}

// NewTransferDispatchTask sends a processing withdrawal to the transfer processor. The task id is
// derived from the withdrawal so a duplicate enqueue is rejected by the queue.
func NewTransferDispatchTask(withdrawalID string) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(TransferPayload{WithdrawalID: withdrawalID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeTransferDispatch, b)
	opts := []asynq.Option{
		asynq.TaskID("dispatch:" + withdrawalID),
		asynq.MaxRetry(5),
	}
	return task, opts, nil
}

// NewTransferPollTask checks a dispatched transfer after delay.
func NewTransferPollTask(withdrawalID string, attempt int, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(TransferPayload{WithdrawalID: withdrawalID, Attempt: attempt})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeTransferPoll, b)
	opts := []asynq.Option{asynq.ProcessIn(delay), asynq.MaxRetry(3)}
	return task, opts, nil
}

func NewPaymentReceiptTask(payload ReceiptPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypePaymentReceipt, b)
	opts := []asynq.Option{asynq.TaskID("receipt:" + payload.PaymentID), asynq.MaxRetry(3)}
	return task, opts, nil
}

// NewTransferSweepTask is the periodic recheck of withdrawals stuck in processing. It carries no
// payload and is never retried: the next tick runs it again.
func NewTransferSweepTask() (*asynq.Task, []asynq.Option) {
	return asynq.NewTask(TypeTransferSweep, nil), []asynq.Option{asynq.MaxRetry(0), asynq.Timeout(2 * time.Minute)}
}
