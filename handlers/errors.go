package handlers

import (
	"errors"
	"net/http"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/services/payment"
	"urbana/services/processor"
	"urbana/services/settlement"
	"urbana/services/withdrawal"
	"urbana/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps a service error onto its HTTP status. Anything unrecognized is a 500 and the
// cause stays in the log.
func respondError(c *gin.Context, err error) {
	var (
		payErr    *payment.ValidationError
		escrowErr *settlement.ValidationError
		wdrErr    *withdrawal.ValidationError
	)
	switch {
	case errors.As(err, &payErr):
		utils.JSONError(c, http.StatusBadRequest, payErr.Message, payErr.Field)
	case errors.As(err, &escrowErr):
		utils.JSONError(c, http.StatusBadRequest, escrowErr.Message, escrowErr.Field)
	case errors.As(err, &wdrErr):
		utils.JSONError(c, http.StatusBadRequest, wdrErr.Message, wdrErr.Field)

	case errors.Is(err, processor.ErrUnknownProcessor),
		errors.Is(err, processor.ErrTransfersDisabled),
		errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrCurrencyMismatch),
		errors.Is(err, payment.ErrVerificationFailed),
		errors.Is(err, withdrawal.ErrInsufficientBalance):
		utils.JSONError(c, http.StatusBadRequest, err.Error(), "")

	case errors.Is(err, payment.ErrInvoiceNotFound),
		errors.Is(err, payment.ErrAttemptNotFound),
		errors.Is(err, payment.ErrPaymentNotFound),
		errors.Is(err, payment.ErrOrphanAttempt),
		errors.Is(err, settlement.ErrPaymentNotFound),
		errors.Is(err, settlement.ErrEscrowNotFound),
		errors.Is(err, withdrawal.ErrWithdrawalNotFound):
		utils.JSONError(c, http.StatusNotFound, err.Error(), "")

	case errors.Is(err, payment.ErrInvoiceAlreadyPaid),
		errors.Is(err, payment.ErrInvoiceExists),
		errors.Is(err, ledgerRepo.ErrInvoiceSettled),
		errors.Is(err, settlement.ErrPaymentNotPaid),
		errors.Is(err, settlement.ErrEscrowProcessed),
		errors.Is(err, withdrawal.ErrWithdrawalInProgress),
		errors.Is(err, withdrawal.ErrInvalidState):
		utils.JSONError(c, http.StatusConflict, err.Error(), "")

	case errors.Is(err, payment.ErrProcessorUnavailable):
		utils.JSONError(c, http.StatusBadGateway, err.Error(), "")

	default:
		utils.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Internal server error", "")
	}
}

// badRequest answers a body that did not bind.
func badRequest(c *gin.Context, err error) {
	utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
}

// currentUserID reads the caller set by JWTAuthUserMiddleware.
func currentUserID(c *gin.Context) (string, bool) {
	rawUserID, exists := c.Get("userID")
	if !exists || rawUserID == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User ID not found in context"})
		return "", false
	}
	userID, ok := rawUserID.(string)
	if !ok || userID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID in context"})
		return "", false
	}
	return userID, true
}
