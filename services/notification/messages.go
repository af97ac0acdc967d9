package notification

import (
	"context"
	"fmt"
	"strings"

	"urbana/models"
	"urbana/services/processor"
)

// Receipt describes a settled payment.
type Receipt struct {
	PaymentID  string
	UserID     string
	Amount     int64
	Currency   string
	InvoiceIDs []string
}

func (s *DefaultNotificationService) NotifyPaymentReceipt(ctx context.Context, r Receipt) error {
	return s.Send(ctx, models.Notification{
		UserID: r.UserID,
		Type:   "payment_receipt",
		Title:  "Payment received",
		Body: fmt.Sprintf("We received your payment of %s %s. Thank you for shopping with us!",
			r.Currency, processor.DisplayAmount(r.Amount, r.Currency)),
		Data: map[string]string{
			"payment_id":  r.PaymentID,
			"invoice_ids": strings.Join(r.InvoiceIDs, ","),
		},
	})
}

// NotifyWithdrawal tells the user their payout reached a terminal state. Other states are not pushed.
func (s *DefaultNotificationService) NotifyWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	amount := fmt.Sprintf("%s %s", w.Currency, processor.DisplayAmount(w.Amount, w.Currency))
	var title, body string
	switch w.Status {
	case models.WithdrawalCompleted:
		title = "Withdrawal successful"
		body = fmt.Sprintf("%s has been sent to your %s account ending %s.", amount, w.BankName, lastDigits(w.AccountNumber))
	case models.WithdrawalFailed:
		title = "Withdrawal failed"
		body = fmt.Sprintf("We could not send %s to your bank. The funds are back in your wallet.", amount)
	case models.WithdrawalRejected:
		title = "Withdrawal declined"
		body = fmt.Sprintf("Your withdrawal of %s was declined.", amount)
		if w.FailureReason != "" {
			body += " Reason: " + w.FailureReason
		}
	default:
		return nil
	}
	return s.Send(ctx, models.Notification{
		UserID: w.UserID,
		Type:   "withdrawal_" + string(w.Status),
		Title:  title,
		Body:   body,
		Data: map[string]string{
			"withdrawal_id": w.ID,
			"reference":     w.Reference,
		},
	})
}

func lastDigits(account string) string {
	if len(account) <= 4 {
		return account
	}
	return account[len(account)-4:]
}
