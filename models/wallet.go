package models

import "time"

// Wallet is a user's internal balance. AvailableBalance never goes negative.
type Wallet struct {
	ID               string    `bson:"id" json:"id" db:"id"`
	UserID           string    `bson:"user_id" json:"user_id" db:"user_id"`
	Currency         string    `bson:"currency" json:"currency" db:"currency"`
	AvailableBalance int64     `bson:"available_balance" json:"available_balance" db:"available_balance"`
	PendingBalance   int64     `bson:"pending_balance" json:"pending_balance" db:"pending_balance"`
	IsLocked         bool      `bson:"is_locked" json:"is_locked" db:"is_locked"` // a withdrawal is in flight
	CreatedAt        time.Time `bson:"created_at" json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updated_at" db:"updated_at"`
}

// WalletTransaction is an immutable ledger entry. Amount is always positive; the type decides the
// direction.
type WalletTransaction struct {
	ID               string            `bson:"id" json:"id" db:"id"`
	WalletID         string            `bson:"wallet_id" json:"wallet_id" db:"wallet_id"`
	UserID           string            `bson:"user_id" json:"user_id" db:"user_id"`
	Type             TransactionType   `bson:"transaction_type" json:"transaction_type" db:"transaction_type"`
	Status           TransactionStatus `bson:"status" json:"status" db:"status"`
	Amount           int64             `bson:"amount" json:"amount" db:"amount"`
	Reference        string            `bson:"reference" json:"reference" db:"reference"`
	Description      string            `bson:"description" json:"description" db:"description"`
	RelatedPaymentID string            `bson:"related_payment_id,omitempty" json:"related_payment_id,omitempty" db:"related_payment_id"`
	RelatedOrderID   string            `bson:"related_order_id,omitempty" json:"related_order_id,omitempty" db:"related_order_id"`
	CreatedAt        time.Time         `bson:"created_at" json:"created_at" db:"created_at"`
	CompletedAt      *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty" db:"completed_at"`
}

// Reconcile recomputes available and pending balances from ledger entries.
func Reconcile(txs []WalletTransaction) (available, pending int64) {
	for _, tx := range txs {
		switch {
		case tx.Status == TxCompleted && tx.Type.IsCredit():
			available += tx.Amount
		case tx.Status == TxCompleted && tx.Type.IsDebit():
			available -= tx.Amount
		case tx.Status == TxPending && tx.Type == TxEscrowHold:
			pending += tx.Amount
		}
	}
	return available, pending
}
