package models

import "time"

// Invoice is a payable obligation produced by checkout. It is settled by at most one Payment.
type Invoice struct {
	ID                     string     `bson:"id" json:"id" db:"id"`
	UserID                 string     `bson:"user_id" json:"user_id" db:"user_id"`
	Amount                 int64      `bson:"amount" json:"amount" db:"amount"` // minor units
	Currency               string     `bson:"currency" json:"currency" db:"currency"`
	Purpose                string     `bson:"purpose" json:"purpose" db:"purpose"`
	StartDate              *time.Time `bson:"start_date,omitempty" json:"start_date,omitempty" db:"start_date"`
	ExpiryDate             *time.Time `bson:"expiry_date,omitempty" json:"expiry_date,omitempty" db:"expiry_date"`
	IsActive               bool       `bson:"is_active" json:"is_active" db:"is_active"`
	IsExpired              bool       `bson:"is_expired" json:"is_expired" db:"is_expired"`
	IsUsed                 bool       `bson:"is_used" json:"is_used" db:"is_used"`
	IsDeleted              bool       `bson:"is_deleted" json:"is_deleted" db:"is_deleted"`
	ExpireNotificationSent bool       `bson:"expire_notification_sent" json:"expire_notification_sent" db:"expire_notification_sent"`
	PaymentID              string     `bson:"payment_id,omitempty" json:"payment_id,omitempty" db:"payment_id"`  // settling payment
	PaymentAttemptIDs      []string   `bson:"payment_attempt_ids" json:"payment_attempt_ids" db:"-"`            // every attempt ever made
	CreatedAt              time.Time  `bson:"created_at" json:"created_at" db:"created_at"`
}

// Settled reports whether a payment has already been linked to the invoice.
func (i *Invoice) Settled() bool {
	return i.PaymentID != ""
}

// Activate flips the invoice into its paid state. Start and expiry dates default to the paid date
// and a 30 day window when checkout did not set them.
func (i *Invoice) Activate(paymentID string, paidAt time.Time) {
	i.PaymentID = paymentID
	i.IsActive = true
	i.IsExpired = false
	i.IsUsed = false
	if i.StartDate == nil {
		start := paidAt
		i.StartDate = &start
	}
	if i.ExpiryDate == nil {
		expiry := i.StartDate.AddDate(0, 0, InvoiceValidityDays)
		i.ExpiryDate = &expiry
	}
}

// InvoiceValidityDays is the default validity window of an activated invoice.
const InvoiceValidityDays = 30
