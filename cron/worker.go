package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"urbana/config"
	"urbana/services/notification"
	"urbana/services/tasks"
	"urbana/utils"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TransferRunner moves withdrawals through the transfer processor.
type TransferRunner interface {
	Dispatch(ctx context.Context, withdrawalID string) error
	Poll(ctx context.Context, withdrawalID string, attempt int) error
	SweepStalledTransfers(ctx context.Context) (int, error)
}

// ReceiptNotifier sends payment receipts.
type ReceiptNotifier interface {
	NotifyPaymentReceipt(ctx context.Context, receipt notification.Receipt) error
}

// NewServeMux routes every task type the payment backend enqueues.
func NewServeMux(transfers TransferRunner, receipts ReceiptNotifier, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeTransferDispatch, handleTransferDispatch(transfers, logger))
	mux.HandleFunc(tasks.TypeTransferPoll, handleTransferPoll(transfers, logger))
	mux.HandleFunc(tasks.TypePaymentReceipt, handlePaymentReceipt(receipts, logger))
	mux.HandleFunc(tasks.TypeTransferSweep, handleTransferSweep(transfers, logger))
	return mux
}

// InitTransferWorker starts the queue worker in the background. The returned server is shut down by
// the caller.
func InitTransferWorker(ctx context.Context, transfers TransferRunner, receipts ReceiptNotifier) *asynq.Server {
	logger := utils.GetLogger().With(zap.String("component", "worker"))

	srv := asynq.NewServer(
		utils.QueueRedisOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar(),
		},
	)
	mux := NewServeMux(transfers, receipts, logger)

	go monitorRedisConnection(ctx, logger)

	go func() {
		logger.Info("Starting async worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := srv.Start(mux)
			if err == nil {
				return
			}
			logger.Warn("Failed to start worker", zap.Int("attempt", attempts), zap.Int("max_attempts", maxAttempts), zap.Error(err))
			if attempts == maxAttempts {
				logger.Fatal("Max worker start attempts reached")
			}
			time.Sleep(time.Duration(attempts*2) * time.Second)
		}
	}()
	return srv
}

func handleTransferDispatch(transfers TransferRunner, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.TransferPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil || p.WithdrawalID == "" {
			logger.Error("Invalid transfer dispatch payload", zap.ByteString("payload", task.Payload()))
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}
		if err := transfers.Dispatch(ctx, p.WithdrawalID); err != nil {
			logger.Warn("Transfer dispatch failed", zap.String("withdrawal_id", p.WithdrawalID), zap.Error(err))
			return err
		}
		return nil
	}
}

func handleTransferPoll(transfers TransferRunner, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.TransferPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil || p.WithdrawalID == "" {
			logger.Error("Invalid transfer poll payload", zap.ByteString("payload", task.Payload()))
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}
		if err := transfers.Poll(ctx, p.WithdrawalID, p.Attempt); err != nil {
			logger.Warn("Transfer poll failed",
				zap.String("withdrawal_id", p.WithdrawalID), zap.Int("attempt", p.Attempt), zap.Error(err))
			return err
		}
		return nil
	}
}

func handleTransferSweep(transfers TransferRunner, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := transfers.SweepStalledTransfers(ctx)
		if err != nil {
			logger.Warn("Stalled transfer sweep failed", zap.Error(err))
			return err
		}
		logger.Debug("Stalled transfer sweep done", zap.Int("rechecked", n))
		return nil
	}
}

// InitTransferScheduler enqueues the stalled transfer sweep on a fixed interval. The returned scheduler
// is shut down by the caller.
func InitTransferScheduler(interval time.Duration) (*asynq.Scheduler, error) {
	logger := utils.GetLogger().With(zap.String("component", "scheduler"))
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	scheduler := asynq.NewScheduler(utils.QueueRedisOpt(), &asynq.SchedulerOpts{
		Logger:   logger.Sugar(),
		Location: time.UTC,
	})
	task, opts := tasks.NewTransferSweepTask()
	schedule := fmt.Sprintf("@every %s", interval)
	if _, err := scheduler.Register(schedule, task, opts...); err != nil {
		return nil, fmt.Errorf("failed to register transfer sweep: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}
	logger.Info("Transfer sweep scheduled", zap.String("schedule", schedule))
	return scheduler, nil
}

func handlePaymentReceipt(receipts ReceiptNotifier, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.ReceiptPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil || p.UserID == "" {
			logger.Error("Invalid payment receipt payload", zap.ByteString("payload", task.Payload()))
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}
		err := receipts.NotifyPaymentReceipt(ctx, notification.Receipt{
			PaymentID:  p.PaymentID,
			UserID:     p.UserID,
			Amount:     p.Amount,
			Currency:   p.Currency,
			InvoiceIDs: p.InvoiceIDs,
		})
		if err != nil {
			logger.Warn("Failed to send payment receipt", zap.String("payment_id", p.PaymentID), zap.Error(err))
		}
		return err
	}
}

// monitorRedisConnection pings the queue's Redis periodically to detect failures at runtime.
func monitorRedisConnection(ctx context.Context, logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("Queue Redis connection lost", zap.Error(err))
			}
		}
	}
}
