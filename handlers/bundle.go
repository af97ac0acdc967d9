package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all your endpoint handlers into one struct.
type HandlerBundle struct {
	// Payment endpoints
	InitializePaymentHandler gin.HandlerFunc
	ConfirmPaymentHandler    gin.HandlerFunc
	WebhookHandler           gin.HandlerFunc
	GetInvoiceHandler        gin.HandlerFunc
	ListInvoicesHandler      gin.HandlerFunc
	ListPaymentsHandler      gin.HandlerFunc
	GetPaymentHandler        gin.HandlerFunc

	// Wallet endpoints
	WalletDashboardHandler    gin.HandlerFunc
	WalletTransactionsHandler gin.HandlerFunc
	WithdrawHandler           gin.HandlerFunc
	ListWithdrawalsHandler    gin.HandlerFunc
	CheckAccountNumberHandler gin.HandlerFunc

	// Device endpoints
	UpdateFCMTokenHandler gin.HandlerFunc

	// Admin endpoints
	AdminHandler *AdminHandler
}

// NewHandlerBundle wires every handler group into the bundle the router consumes.
func NewHandlerBundle(ph *PaymentHandler, wh *WalletHandler, dh *DeviceHandler, ah *AdminHandler) *HandlerBundle {
	return &HandlerBundle{
		InitializePaymentHandler: ph.InitializePaymentHandler,
		ConfirmPaymentHandler:    ph.ConfirmPaymentHandler,
		WebhookHandler:           ph.WebhookHandler,
		GetInvoiceHandler:        ph.GetInvoiceHandler,
		ListInvoicesHandler:      ph.ListInvoicesHandler,
		ListPaymentsHandler:      ph.ListPaymentsHandler,
		GetPaymentHandler:        ph.GetPaymentHandler,

		WalletDashboardHandler:    wh.DashboardHandler,
		WalletTransactionsHandler: wh.TransactionsHandler,
		WithdrawHandler:           wh.WithdrawHandler,
		ListWithdrawalsHandler:    wh.ListWithdrawalsHandler,
		CheckAccountNumberHandler: wh.CheckAccountNumberHandler,

		UpdateFCMTokenHandler: dh.UpdateFCMTokenHandler,

		AdminHandler: ah,
	}
}
