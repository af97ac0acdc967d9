package routes

import (
	"net/http"
	"time"

	"urbana/handlers"
	"urbana/middleware"
	"urbana/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterPaymentRoutes registers the customer payment endpoints. The webhook is the only route
// without a bearer token; processors authenticate by signature.
func RegisterPaymentRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/pay")
	{
		api.POST("/webhook/:processor", hb.WebhookHandler)

		// Protected routes (Require Authentication)
		protected := api.Group("")
		protected.Use(middleware.JWTAuthUserMiddleware())
		protected.POST("/init/:processor", hb.InitializePaymentHandler)
		protected.POST("/confirm/:processor", hb.ConfirmPaymentHandler)
		protected.GET("/invoices", hb.ListInvoicesHandler)
		protected.GET("/invoices/:id", hb.GetInvoiceHandler)
		protected.GET("/payments", hb.ListPaymentsHandler)
		protected.GET("/payments/:reference", hb.GetPaymentHandler)
	}
}

// RegisterWalletRoutes registers wallet and withdrawal endpoints.
func RegisterWalletRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/pay")
	{
		api.Use(middleware.JWTAuthUserMiddleware())
		api.GET("/wallet", hb.WalletDashboardHandler)
		api.GET("/wallet/transactions", hb.WalletTransactionsHandler)
		api.POST("/withdraw", hb.WithdrawHandler)
		api.GET("/withdrawals", hb.ListWithdrawalsHandler)
		api.POST("/check-account-number", hb.CheckAccountNumberHandler)
	}
}

// RegisterDeviceRoutes registers push device endpoints.
func RegisterDeviceRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/devices")
	{
		api.Use(middleware.JWTAuthUserMiddleware())
		api.PUT("/fcm-token", hb.UpdateFCMTokenHandler)
	}
}

// RegisterAdminRoutes sets up endpoints for admin operations.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	adminGroup := r.Group("/api/admin")
	{
		adminGroup.Use(middleware.JWTAuthAdminMiddleware())
		adminGroup.POST("/invoices", hb.AdminHandler.CreateInvoiceHandler)
		adminGroup.POST("/escrows", hb.AdminHandler.HoldEscrowHandler)
		adminGroup.GET("/escrows/:id", hb.AdminHandler.GetEscrowHandler)
		adminGroup.POST("/escrows/:id/release", hb.AdminHandler.ReleaseEscrowHandler)
		adminGroup.POST("/escrows/:id/refund", hb.AdminHandler.RefundEscrowHandler)
		adminGroup.POST("/withdrawals/:id/reject", hb.AdminHandler.RejectWithdrawalHandler)
		adminGroup.POST("/withdrawals/:id/recheck", hb.AdminHandler.RecheckWithdrawalHandler)
		adminGroup.GET("/webhooks", hb.AdminHandler.ListWebhooksHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint backed by the latest monitor snapshot.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		status := utils.GetHealthStatus()
		code := http.StatusOK
		if !status.Healthy && !status.CheckedAt.IsZero() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "message": "Hi, I'm Urbana Pay"})
	})
}

func RegisterMetricsRoute(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterPaymentRoutes(r, hb)
	RegisterWalletRoutes(r, hb)
	RegisterDeviceRoutes(r, hb)
	RegisterAdminRoutes(r, hb)
	RegisterHealthRoute(r)
	RegisterMetricsRoute(r)
}
