package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"
	"urbana/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HoldRequest places part of a paid order in escrow for a designer. A nil Commission means the
// platform default rate applies.
type HoldRequest struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	CustomerID string `json:"customer_id"`
	DesignerID string `json:"designer_id"`
	Amount     int64  `json:"amount"`
	Commission *int64 `json:"commission,omitempty"`
}

// Hold creates a held escrow and credits the designer's pending balance with their share.
func (s *DefaultSettlementService) Hold(ctx context.Context, req HoldRequest) (*models.Escrow, error) {
	if err := validateHold(req); err != nil {
		return nil, err
	}

	payment, err := s.ledger.GetPayment(ctx, req.PaymentID)
	if errors.Is(err, ledgerRepo.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !payment.IsPaid {
		return nil, ErrPaymentNotPaid
	}
	if req.Amount > payment.Amount {
		return nil, &ValidationError{Field: "amount", Message: "escrow amount exceeds the payment"}
	}

	commission := s.commission(req.Amount)
	if req.Commission != nil {
		commission = *req.Commission
	}
	if commission < 0 || commission > req.Amount {
		return nil, &ValidationError{Field: "commission", Message: "commission must be between 0 and the escrow amount"}
	}

	customerID := req.CustomerID
	if customerID == "" {
		customerID = payment.UserID
	}

	escrow := &models.Escrow{
		ID:                 uuid.New().String(),
		OrderID:            req.OrderID,
		PaymentID:          payment.ID,
		CustomerID:         customerID,
		DesignerID:         req.DesignerID,
		Currency:           payment.Currency,
		Amount:             req.Amount,
		PlatformCommission: commission,
	}
	if err := s.ledger.HoldEscrow(ctx, escrow); err != nil {
		return nil, fmt.Errorf("failed to hold escrow: %w", err)
	}
	utils.RecordEscrow("hold")
	s.logger.Info("Escrow held",
		zap.String("escrow_id", escrow.ID),
		zap.String("order_id", escrow.OrderID),
		zap.Int64("amount", escrow.Amount),
		zap.Int64("commission", escrow.PlatformCommission))
	return escrow, nil
}

// Release pays the designer their share and the platform its commission.
func (s *DefaultSettlementService) Release(ctx context.Context, escrowID string) (*models.Escrow, error) {
	escrow, err := s.ledger.ReleaseEscrow(ctx, escrowID, s.opts.PlatformUserID)
	if err != nil {
		return nil, mapEscrowError(err)
	}
	utils.RecordEscrow("release")
	s.logger.Info("Escrow released",
		zap.String("escrow_id", escrow.ID),
		zap.String("designer_id", escrow.DesignerID),
		zap.Int64("designer_share", escrow.DesignerShare()))
	return escrow, nil
}

// Refund returns the full escrow amount to the customer.
func (s *DefaultSettlementService) Refund(ctx context.Context, escrowID string) (*models.Escrow, error) {
	escrow, err := s.ledger.RefundEscrow(ctx, escrowID)
	if err != nil {
		return nil, mapEscrowError(err)
	}
	utils.RecordEscrow("refund")
	s.logger.Info("Escrow refunded",
		zap.String("escrow_id", escrow.ID),
		zap.String("customer_id", escrow.CustomerID),
		zap.Int64("amount", escrow.Amount))
	return escrow, nil
}

func (s *DefaultSettlementService) GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	escrow, err := s.ledger.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, mapEscrowError(err)
	}
	return escrow, nil
}

// commission applies the platform rate in basis points, rounding down.
func (s *DefaultSettlementService) commission(amount int64) int64 {
	if s.opts.CommissionBPS <= 0 {
		return 0
	}
	return amount * s.opts.CommissionBPS / 10000
}

func validateHold(req HoldRequest) error {
	switch {
	case strings.TrimSpace(req.OrderID) == "":
		return &ValidationError{Field: "order_id", Message: "order_id is required"}
	case strings.TrimSpace(req.PaymentID) == "":
		return &ValidationError{Field: "payment_id", Message: "payment_id is required"}
	case strings.TrimSpace(req.DesignerID) == "":
		return &ValidationError{Field: "designer_id", Message: "designer_id is required"}
	case req.Amount <= 0:
		return &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	return nil
}

func mapEscrowError(err error) error {
	switch {
	case errors.Is(err, ledgerRepo.ErrNotFound):
		return ErrEscrowNotFound
	case errors.Is(err, ledgerRepo.ErrEscrowNotHeld):
		return ErrEscrowProcessed
	}
	return err
}
