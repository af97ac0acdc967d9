package models

import "time"

// Escrow holds a customer's funds for one order until the designer is paid out or the customer is
// refunded. Status only moves held→released or held→refunded.
type Escrow struct {
	ID                 string       `bson:"id" json:"id" db:"id"`
	OrderID            string       `bson:"order_id" json:"order_id" db:"order_id"`
	PaymentID          string       `bson:"payment_id" json:"payment_id" db:"payment_id"`
	CustomerID         string       `bson:"customer_id" json:"customer_id" db:"customer_id"`
	DesignerID         string       `bson:"designer_id" json:"designer_id" db:"designer_id"`
	Currency           string       `bson:"currency" json:"currency" db:"currency"`
	Amount             int64        `bson:"amount" json:"amount" db:"amount"`
	PlatformCommission int64        `bson:"platform_commission" json:"platform_commission" db:"platform_commission"`
	Status             EscrowStatus `bson:"status" json:"status" db:"status"`
	CreatedAt          time.Time    `bson:"created_at" json:"created_at" db:"created_at"`
	ReleasedAt         *time.Time   `bson:"released_at,omitempty" json:"released_at,omitempty" db:"released_at"`
	RefundedAt         *time.Time   `bson:"refunded_at,omitempty" json:"refunded_at,omitempty" db:"refunded_at"`
}

// DesignerShare is what the designer receives on release.
func (e *Escrow) DesignerShare() int64 {
	return e.Amount - e.PlatformCommission
}

// Ledger references derived from the escrow id.
func (e *Escrow) HoldReference() string       { return "HOLD-" + e.ID }
func (e *Escrow) ReleaseReference() string    { return "ESCROW-" + e.ID }
func (e *Escrow) CommissionReference() string { return "COMMISSION-" + e.ID }
func (e *Escrow) RefundReference() string     { return "REFUND-" + e.ID }
