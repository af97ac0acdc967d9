package models

// Processor identifies an external payment gateway.
type Processor string

const (
	ProcessorPaystack    Processor = "paystack"
	ProcessorFlutterwave Processor = "flutterwave"
	ProcessorStripe      Processor = "stripe"
	ProcessorManual      Processor = "manual"
)

// ParseProcessor maps a path parameter to a known gateway.
func ParseProcessor(s string) (Processor, bool) {
	switch p := Processor(s); p {
	case ProcessorPaystack, ProcessorFlutterwave, ProcessorStripe:
		return p, true
	}
	return "", false
}

type AttemptStatus string

const (
	StatusPending     AttemptStatus = "pending"
	StatusInitialized AttemptStatus = "initialized"
	StatusSuccess     AttemptStatus = "success"
	StatusFailed      AttemptStatus = "failed"
)

type TransactionType string

const (
	TxEscrowHold    TransactionType = "escrow_hold"
	TxEscrowRelease TransactionType = "escrow_release"
	TxWithdrawal    TransactionType = "withdrawal"
	TxCommission    TransactionType = "commission"
	TxRefund        TransactionType = "refund"
)

// IsCredit reports whether a completed transaction of this type adds to the available balance.
func (t TransactionType) IsCredit() bool {
	return t == TxEscrowRelease || t == TxCommission || t == TxRefund
}

// IsDebit reports whether a completed transaction of this type subtracts from the available balance.
func (t TransactionType) IsDebit() bool {
	return t == TxWithdrawal
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
)
