package models

import "time"

// PushDevice is the latest FCM registration for a user. One per user; re-registering replaces it.
type PushDevice struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	FCMToken  string    `bson:"fcm_token" json:"fcm_token"`
	Platform  string    `bson:"platform" json:"platform"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
