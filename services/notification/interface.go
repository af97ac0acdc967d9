package notification

import (
	"context"
	"errors"
	"fmt"

	deviceRepo "urbana/database/repository/device"
	"urbana/models"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// Sender delivers one FCM message. *messaging.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NotificationService pushes payment and payout updates to users.
type NotificationService interface {
	RegisterDevice(ctx context.Context, device *models.PushDevice) error
	Send(ctx context.Context, n models.Notification) error
	NotifyPaymentReceipt(ctx context.Context, receipt Receipt) error
	NotifyWithdrawal(ctx context.Context, w *models.Withdrawal) error
}

// DefaultNotificationService sends through FCM. Without a sender it only logs, which is how it runs
// when no Firebase credentials are configured.
type DefaultNotificationService struct {
	devices deviceRepo.DeviceRepository
	sender  Sender
	logger  *zap.Logger
}

func NewDefaultNotificationService(devices deviceRepo.DeviceRepository, sender Sender, logger *zap.Logger) (*DefaultNotificationService, error) {
	if devices == nil {
		return nil, fmt.Errorf("notification service initialization error: device repository is nil")
	}
	return &DefaultNotificationService{devices: devices, sender: sender, logger: logger}, nil
}

func (s *DefaultNotificationService) RegisterDevice(ctx context.Context, device *models.PushDevice) error {
	if device.UserID == "" || device.FCMToken == "" {
		return fmt.Errorf("user id and fcm token are required")
	}
	return s.devices.Upsert(ctx, device)
}

// Send looks up the user's FCM token and pushes the notification. Users without a registered device
// are skipped silently.
func (s *DefaultNotificationService) Send(ctx context.Context, n models.Notification) error {
	logger := s.logger.With(zap.String("user_id", n.UserID), zap.String("type", n.Type))
	if s.sender == nil {
		logger.Info("Push delivery disabled, notification logged", zap.String("title", n.Title), zap.String("body", n.Body))
		return nil
	}

	device, err := s.devices.GetByUser(ctx, n.UserID)
	if errors.Is(err, deviceRepo.ErrNoDevice) {
		logger.Debug("No push device registered, skipping notification")
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load device for user %s: %w", n.UserID, err)
	}

	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data["type"] = n.Type

	msg := &messaging.Message{
		Token: device.FCMToken,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "payments",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}

	id, err := s.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	logger.Info("Push notification sent", zap.String("message_id", id))
	return nil
}

var _ NotificationService = (*DefaultNotificationService)(nil)
