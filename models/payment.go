package models

import "time"

// PaymentAttempt is one try at paying an invoice through one processor.
// Reference is the client-facing idempotency key and never changes once set.
type PaymentAttempt struct {
	ID                 string        `bson:"id" json:"id" db:"id"`
	UserID             string        `bson:"user_id" json:"user_id" db:"user_id"`
	Amount             int64         `bson:"amount" json:"amount" db:"amount"`
	Currency           string        `bson:"currency" json:"currency" db:"currency"`
	Processor          Processor     `bson:"processor" json:"processor" db:"processor"`
	ProcessorPaymentID string        `bson:"processor_payment_id" json:"processor_payment_id" db:"processor_payment_id"` // set only on success
	ExternalReference  string        `bson:"external_reference" json:"external_reference" db:"external_reference"`       // e.g. stripe PaymentIntent id
	Reference          string        `bson:"reference" json:"reference" db:"reference"`
	Status             AttemptStatus `bson:"status" json:"status" db:"status"`
	IsSuccessful       bool          `bson:"is_successful" json:"is_successful" db:"is_successful"`
	CreatedAt          time.Time     `bson:"created_at" json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `bson:"updated_at" json:"updated_at" db:"updated_at"`
}

// Payment is the canonical record of money received. Reference holds the id of the first invoice it
// settles and is unique, which makes get-or-create by invoice safe under concurrent finalization.
type Payment struct {
	ID                 string        `bson:"id" json:"id" db:"id"`
	UserID             string        `bson:"user_id" json:"user_id" db:"user_id"`
	Amount             int64         `bson:"amount" json:"amount" db:"amount"`
	Currency           string        `bson:"currency" json:"currency" db:"currency"`
	Reference          string        `bson:"reference" json:"reference" db:"reference"`
	Processor          Processor     `bson:"processor" json:"processor" db:"processor"`
	ProcessorPaymentID string        `bson:"processor_payment_id" json:"processor_payment_id" db:"processor_payment_id"`
	Status             AttemptStatus `bson:"status" json:"status" db:"status"`
	IsPaid             bool          `bson:"is_paid" json:"is_paid" db:"is_paid"`
	DateTimePaid       *time.Time    `bson:"date_time_paid,omitempty" json:"date_time_paid,omitempty" db:"date_time_paid"`
	CreatedAt          time.Time     `bson:"created_at" json:"created_at" db:"created_at"`
}

// FinalizeResult is what a successful finalization produced.
type FinalizeResult struct {
	Payment  *Payment
	Invoices []Invoice
	Created  bool // false when the payment already existed
}
