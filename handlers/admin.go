package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"
	"urbana/services/payment"
	"urbana/services/settlement"
	"urbana/services/withdrawal"
	"urbana/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler encapsulates the back-office operations: checkout's invoice hook, escrow decisions and
// payout moderation.
type AdminHandler struct {
	Payments    payment.PaymentService
	Settlement  settlement.SettlementService
	Withdrawals withdrawal.WithdrawalService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ps payment.PaymentService, ss settlement.SettlementService, ws withdrawal.WithdrawalService) *AdminHandler {
	return &AdminHandler{
		Payments:    ps,
		Settlement:  ss,
		Withdrawals: ws,
	}
}

type rejectWithdrawalInput struct {
	Reason string `json:"reason"`
}

// CreateInvoiceHandler records an invoice for a checked-out order.
func (ah *AdminHandler) CreateInvoiceHandler(c *gin.Context) {
	var req payment.InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	inv, err := ah.Payments.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// HoldEscrowHandler parks an order's funds until delivery is confirmed.
func (ah *AdminHandler) HoldEscrowHandler(c *gin.Context) {
	var req settlement.HoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	escrow, err := ah.Settlement.Hold(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, escrow)
}

func (ah *AdminHandler) GetEscrowHandler(c *gin.Context) {
	escrow, err := ah.Settlement.GetEscrow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

func (ah *AdminHandler) ReleaseEscrowHandler(c *gin.Context) {
	escrow, err := ah.Settlement.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

func (ah *AdminHandler) RefundEscrowHandler(c *gin.Context) {
	escrow, err := ah.Settlement.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

// RejectWithdrawalHandler declines a withdrawal before any money moved.
func (ah *AdminHandler) RejectWithdrawalHandler(c *gin.Context) {
	var input rejectWithdrawalInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
	}
	if strings.TrimSpace(input.Reason) == "" {
		input.Reason = "Rejected by admin"
	}
	w, err := ah.Withdrawals.Reject(c.Request.Context(), c.Param("id"), input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// RecheckWithdrawalHandler recovers a processing withdrawal: a lost dispatch is re-run and an existing
// transfer is fetched and settled. A transfer still pending at the processor is returned unchanged.
func (ah *AdminHandler) RecheckWithdrawalHandler(c *gin.Context) {
	id := c.Param("id")
	if err := ah.Withdrawals.Recheck(c.Request.Context(), id); err != nil {
		if errors.Is(err, withdrawal.ErrWithdrawalNotFound) {
			respondError(c, err)
			return
		}
		utils.GetLogger().Warn("Manual transfer recheck failed", zap.String("withdrawal_id", id), zap.Error(err))
		utils.JSONError(c, http.StatusBadGateway, "Transfer recheck failed", err.Error())
		return
	}
	w, err := ah.Withdrawals.GetWithdrawal(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// ListWebhooksHandler returns the webhook audit trail, newest first. Filters: processor, reference,
// limit.
func (ah *AdminHandler) ListWebhooksHandler(c *gin.Context) {
	filter := ledgerRepo.WebhookFilter{
		Processor: models.Processor(strings.ToLower(c.Query("processor"))),
		Reference: c.Query("reference"),
		Limit:     100,
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			utils.JSONError(c, http.StatusBadRequest, "limit must be a positive integer", raw)
			return
		}
		filter.Limit = limit
	}
	logs, err := ah.Payments.ListWebhookLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": logs})
}
