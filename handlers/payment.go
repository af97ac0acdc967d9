package handlers

import (
	"io"
	"net/http"
	"strings"

	"urbana/models"
	"urbana/services/payment"
	"urbana/services/processor"
	"urbana/utils"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds what a processor may post to the webhook endpoint.
const maxWebhookBody = 1 << 20

// PaymentHandler serves the customer side of the payment core.
type PaymentHandler struct {
	Payments payment.PaymentService
}

func NewPaymentHandler(payments payment.PaymentService) *PaymentHandler {
	return &PaymentHandler{Payments: payments}
}

type initPaymentInput struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type confirmPaymentInput struct {
	Reference     string `json:"reference"`
	TransactionID string `json:"transaction_id"`
}

// processorParam resolves the :processor path segment. Unknown names answer 400.
func processorParam(c *gin.Context) (models.Processor, bool) {
	p, ok := models.ParseProcessor(strings.ToLower(c.Param("processor")))
	if !ok {
		utils.JSONError(c, http.StatusBadRequest, processor.ErrUnknownProcessor.Error(), c.Param("processor"))
		return "", false
	}
	return p, true
}

// InitializePaymentHandler opens a payment attempt against an invoice.
func (h *PaymentHandler) InitializePaymentHandler(c *gin.Context) {
	p, ok := processorParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var input initPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.Payments.Initialize(c.Request.Context(), payment.InitRequest{
		Processor: p,
		InvoiceID: input.Reference,
		Amount:    input.Amount,
		Currency:  input.Currency,
		User: payment.Customer{
			ID:    userID,
			Email: c.GetString("email"),
			Name:  c.GetString("name"),
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ConfirmPaymentHandler verifies a payment the client reports as complete.
func (h *PaymentHandler) ConfirmPaymentHandler(c *gin.Context) {
	p, ok := processorParam(c)
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var input confirmPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.Payments.Confirm(c.Request.Context(), payment.ConfirmRequest{
		Processor:     p,
		UserID:        userID,
		Reference:     input.Reference,
		TransactionID: input.TransactionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// WebhookHandler hands the raw body to the payment core. Signatures are computed over these exact
// bytes, so the body is never bound.
func (h *PaymentHandler) WebhookHandler(c *gin.Context) {
	p := models.Processor(strings.ToLower(c.Param("processor")))
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Could not read payload", err.Error())
		return
	}

	out := h.Payments.HandleWebhook(c.Request.Context(), p, body, c.Request.Header)
	c.JSON(out.StatusCode, out)
}

func (h *PaymentHandler) GetInvoiceHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	inv, err := h.Payments.GetInvoice(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *PaymentHandler) ListInvoicesHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	invoices, err := h.Payments.ListInvoices(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (h *PaymentHandler) ListPaymentsHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	payments, err := h.Payments.ListPayments(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *PaymentHandler) GetPaymentHandler(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	p, err := h.Payments.GetPayment(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
