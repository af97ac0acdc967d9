package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"urbana/services/notification"
	"urbana/services/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockTransfers struct {
	mock.Mock
}

func (m *mockTransfers) Dispatch(ctx context.Context, withdrawalID string) error {
	return m.Called(withdrawalID).Error(0)
}

func (m *mockTransfers) Poll(ctx context.Context, withdrawalID string, attempt int) error {
	return m.Called(withdrawalID, attempt).Error(0)
}

func (m *mockTransfers) SweepStalledTransfers(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

type mockReceipts struct {
	mock.Mock
}

func (m *mockReceipts) NotifyPaymentReceipt(ctx context.Context, r notification.Receipt) error {
	return m.Called(r).Error(0)
}

func TestTransferTasks(t *testing.T) {
	transfers := &mockTransfers{}
	mux := NewServeMux(transfers, &mockReceipts{}, zap.NewNop())
	ctx := context.Background()

	transfers.On("Dispatch", "w-1").Return(nil).Once()
	task, _, err := tasks.NewTransferDispatchTask("w-1")
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, task))

	transfers.On("Poll", "w-1", 3).Return(errors.New("processor down")).Once()
	task, _, err = tasks.NewTransferPollTask("w-1", 3, 0)
	require.NoError(t, err)
	err = mux.ProcessTask(ctx, task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "outages must be retried")

	transfers.AssertExpectations(t)
}

func TestTransferSweepTask(t *testing.T) {
	transfers := &mockTransfers{}
	mux := NewServeMux(transfers, &mockReceipts{}, zap.NewNop())
	task, _ := tasks.NewTransferSweepTask()

	transfers.On("SweepStalledTransfers").Return(2, nil).Once()
	require.NoError(t, mux.ProcessTask(context.Background(), task))

	transfers.On("SweepStalledTransfers").Return(0, errors.New("ledger unavailable")).Once()
	assert.Error(t, mux.ProcessTask(context.Background(), task))
	transfers.AssertExpectations(t)
}

func TestPaymentReceiptTask(t *testing.T) {
	receipts := &mockReceipts{}
	mux := NewServeMux(&mockTransfers{}, receipts, zap.NewNop())

	receipts.On("NotifyPaymentReceipt", notification.Receipt{
		PaymentID: "pay-1", UserID: "u-1", Amount: 5000, Currency: "NGN", InvoiceIDs: []string{"inv-1"},
	}).Return(nil).Once()

	task, _, err := tasks.NewPaymentReceiptTask(tasks.ReceiptPayload{
		PaymentID: "pay-1", UserID: "u-1", Amount: 5000, Currency: "NGN", InvoiceIDs: []string{"inv-1"},
	})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	receipts.AssertExpectations(t)
}

func TestInvalidPayloadsSkipRetry(t *testing.T) {
	transfers := &mockTransfers{}
	receipts := &mockReceipts{}
	mux := NewServeMux(transfers, receipts, zap.NewNop())

	empty, _ := json.Marshal(tasks.TransferPayload{})
	for _, task := range []*asynq.Task{
		asynq.NewTask(tasks.TypeTransferDispatch, []byte("{bad")),
		asynq.NewTask(tasks.TypeTransferPoll, empty),
		asynq.NewTask(tasks.TypePaymentReceipt, []byte(`{"payment_id":"p"}`)),
	} {
		err := mux.ProcessTask(context.Background(), task)
		assert.ErrorIs(t, err, asynq.SkipRetry, task.Type())
	}
	transfers.AssertNotCalled(t, "Dispatch", mock.Anything)
	receipts.AssertNotCalled(t, "NotifyPaymentReceipt", mock.Anything)
}
