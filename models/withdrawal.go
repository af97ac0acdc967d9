package models

import "time"

// Withdrawal moves available wallet funds to a bank account through an external transfer.
type Withdrawal struct {
	ID                string           `bson:"id" json:"id" db:"id"`
	WalletID          string           `bson:"wallet_id" json:"wallet_id" db:"wallet_id"`
	UserID            string           `bson:"user_id" json:"user_id" db:"user_id"`
	Amount            int64            `bson:"amount" json:"amount" db:"amount"`
	Currency          string           `bson:"currency" json:"currency" db:"currency"`
	Status            WithdrawalStatus `bson:"status" json:"status" db:"status"`
	Reference         string           `bson:"reference" json:"reference" db:"reference"`
	TransferProcessor Processor        `bson:"transfer_processor" json:"transfer_processor" db:"transfer_processor"`
	TransferID        string           `bson:"transfer_id" json:"transfer_id" db:"transfer_id"`
	TransferStatus    string           `bson:"transfer_status" json:"transfer_status" db:"transfer_status"`
	FailureReason     string           `bson:"failure_reason,omitempty" json:"failure_reason,omitempty" db:"failure_reason"`
	BankName          string           `bson:"bank_name" json:"bank_name" db:"bank_name"`
	BankCode          string           `bson:"bank_code" json:"bank_code" db:"bank_code"`
	AccountNumber     string           `bson:"account_number" json:"account_number" db:"account_number"`
	AccountName       string           `bson:"account_name" json:"account_name" db:"account_name"`
	CreatedAt         time.Time        `bson:"created_at" json:"created_at" db:"created_at"`
	ProcessedAt       *time.Time       `bson:"processed_at,omitempty" json:"processed_at,omitempty" db:"processed_at"`
	CompletedAt       *time.Time       `bson:"completed_at,omitempty" json:"completed_at,omitempty" db:"completed_at"`
}

func (w *Withdrawal) DebitReference() string    { return "WDR-" + w.ID }
func (w *Withdrawal) ReversalReference() string { return "WDR-REV-" + w.ID }
