package handlers

import (
	"errors"
	"net/http"

	"urbana/services/processor"
	"urbana/services/withdrawal"
	"urbana/utils"

	"github.com/gin-gonic/gin"
)

// WalletHandler serves designer wallets and payouts.
type WalletHandler struct {
	Withdrawals withdrawal.WithdrawalService
}

func NewWalletHandler(withdrawals withdrawal.WithdrawalService) *WalletHandler {
	return &WalletHandler{Withdrawals: withdrawals}
}

type checkAccountInput struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
}

func (h *WalletHandler) DashboardHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dashboard, err := h.Withdrawals.Dashboard(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *WalletHandler) TransactionsHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	txs, err := h.Withdrawals.ListTransactions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// WithdrawHandler debits the wallet and queues the bank transfer. The response is 202 because the
// transfer settles later.
func (h *WalletHandler) WithdrawHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req withdrawal.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.UserID = userID

	w, err := h.Withdrawals.Request(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, w)
}

func (h *WalletHandler) ListWithdrawalsHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	withdrawals, err := h.Withdrawals.ListWithdrawals(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": withdrawals})
}

// CheckAccountNumberHandler resolves the account holder's name so the user can confirm it.
func (h *WalletHandler) CheckAccountNumberHandler(c *gin.Context) {
	var input checkAccountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	account, err := h.Withdrawals.ResolveAccount(c.Request.Context(), input.BankCode, input.AccountNumber)
	if err != nil {
		var verr *withdrawal.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(c, err)
		case processor.IsRejection(err):
			utils.JSONError(c, http.StatusBadRequest, "Could not resolve account number", err.Error())
		default:
			utils.JSONError(c, http.StatusBadGateway, "Account lookup unavailable", err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, account)
}
