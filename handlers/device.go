package handlers

import (
	"net/http"
	"strings"
	"time"

	"urbana/models"
	"urbana/services/notification"

	"github.com/gin-gonic/gin"
)

type DeviceHandler struct {
	Notifications notification.NotificationService
}

func NewDeviceHandler(notifications notification.NotificationService) *DeviceHandler {
	return &DeviceHandler{Notifications: notifications}
}

type fcmTokenInput struct {
	FCMToken string `json:"fcm_token"`
	Platform string `json:"platform"`
}

// UpdateFCMTokenHandler registers the device that payment receipts and payout updates are pushed to.
func (h *DeviceHandler) UpdateFCMTokenHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var input fcmTokenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(input.FCMToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fcm_token is required"})
		return
	}

	err := h.Notifications.RegisterDevice(c.Request.Context(), &models.PushDevice{
		UserID:    userID,
		FCMToken:  strings.TrimSpace(input.FCMToken),
		Platform:  strings.ToLower(input.Platform),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "FCM token updated successfully"})
}
