package ledgerRepo

import (
	"sort"
	"time"

	"urbana/models"

	"github.com/google/uuid"
)

// Shared by all backends so every store settles the same way.

// sortInvoices orders invoices oldest first. The first one keys the settling Payment.
func sortInvoices(invoices []models.Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		if invoices[i].CreatedAt.Equal(invoices[j].CreatedAt) {
			return invoices[i].ID < invoices[j].ID
		}
		return invoices[i].CreatedAt.Before(invoices[j].CreatedAt)
	})
}

// newSettlingPayment builds the paid Payment for a finalization keyed by the first invoice.
func newSettlingPayment(first models.Invoice, params FinalizeParams) *models.Payment {
	paidAt := params.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	return &models.Payment{
		ID:                 uuid.New().String(),
		UserID:             first.UserID,
		Amount:             first.Amount,
		Currency:           first.Currency,
		Reference:          first.ID,
		Processor:          params.Processor,
		ProcessorPaymentID: params.ProcessorPaymentID,
		Status:             models.StatusSuccess,
		IsPaid:             true,
		DateTimePaid:       &paidAt,
		CreatedAt:          time.Now().UTC(),
	}
}
