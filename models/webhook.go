package models

import "time"

// PaymentWebhookLog is the audit row written for every inbound webhook call.
type PaymentWebhookLog struct {
	ID          string     `bson:"id" json:"id" db:"id"`
	Processor   Processor  `bson:"processor" json:"processor" db:"processor"`
	EventType   string     `bson:"event_type" json:"event_type" db:"event_type"`
	Reference   string     `bson:"reference" json:"reference" db:"reference"`
	RawPayload  string     `bson:"raw_payload" json:"raw_payload" db:"raw_payload"`
	StatusCode  int        `bson:"status_code" json:"status_code" db:"status_code"`
	Processed   bool       `bson:"processed" json:"processed" db:"processed"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty" db:"processed_at"`
}
