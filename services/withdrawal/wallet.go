package withdrawal

import (
	"context"
	"fmt"
	"strings"

	"urbana/models"
	"urbana/services/processor"
)

const dashboardTransactions = 5

// Dashboard is the wallet overview screen.
type Dashboard struct {
	Wallet             *models.Wallet             `json:"wallet"`
	RecentTransactions []models.WalletTransaction `json:"recent_transactions"`
}

func (s *DefaultWithdrawalService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	wallet, err := s.ledger.GetOrCreateWallet(ctx, userID, s.opts.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	txs, err := s.ledger.ListWalletTransactions(ctx, wallet.ID, dashboardTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if txs == nil {
		txs = []models.WalletTransaction{}
	}
	return &Dashboard{Wallet: wallet, RecentTransactions: txs}, nil
}

func (s *DefaultWithdrawalService) ListTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error) {
	wallet, err := s.ledger.GetOrCreateWallet(ctx, userID, s.opts.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return s.ledger.ListWalletTransactions(ctx, wallet.ID, 0)
}

func (s *DefaultWithdrawalService) GetWithdrawal(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	w, err := s.ledger.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	return w, nil
}

func (s *DefaultWithdrawalService) ListWithdrawals(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	return s.ledger.ListWithdrawalsByUser(ctx, userID)
}

// ResolveAccount confirms the account holder's name before a withdrawal is requested.
func (s *DefaultWithdrawalService) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*processor.BankAccount, error) {
	bankCode, accountNumber = strings.TrimSpace(bankCode), strings.TrimSpace(accountNumber)
	if bankCode == "" {
		return nil, &ValidationError{Field: "bank_code", Message: "bank_code is required"}
	}
	if accountNumber == "" {
		return nil, &ValidationError{Field: "account_number", Message: "account_number is required"}
	}
	resolver, err := s.processors.AccountResolver(models.ProcessorPaystack)
	if err != nil {
		return nil, err
	}
	return resolver.ResolveAccount(ctx, bankCode, accountNumber)
}
