package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ticketera/backend/internal/models"
	"gorm.io/gorm"
)

var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// Service is the wallet ledger. The balance is never written directly:
// every mutation appends a WalletEntry tied to a transaction, in the same
// database transaction as the caller's bookkeeping.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx}
}

// Credit adds amount to the user's balance, creating the wallet row on
// first use.
func (s *Service) Credit(ctx context.Context, userID, transactionID uuid.UUID, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("wallet credit amount must be positive")
	}

	wallet, err := s.lockedWallet(ctx, userID)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&models.WalletBalance{}).
		Where("id = ? AND balance = ?", wallet.ID, wallet.Balance).
		Update("balance", wallet.Balance.Add(amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("wallet %s changed concurrently", wallet.ID)
	}

	return s.append(ctx, wallet.ID, transactionID, models.WalletAdd, amount)
}

// Debit subtracts amount, failing when the balance cannot cover it.
func (s *Service) Debit(ctx context.Context, userID, transactionID uuid.UUID, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("wallet debit amount must be positive")
	}

	wallet, err := s.lockedWallet(ctx, userID)
	if err != nil {
		return err
	}
	if wallet.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	res := s.db.WithContext(ctx).Model(&models.WalletBalance{}).
		Where("id = ? AND balance = ?", wallet.ID, wallet.Balance).
		Update("balance", wallet.Balance.Sub(amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("wallet %s changed concurrently", wallet.ID)
	}

	return s.append(ctx, wallet.ID, transactionID, models.WalletSubtract, amount)
}

// Balance returns the user's current balance, zero if no wallet exists yet.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var wallet models.WalletBalance
	err := s.db.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

func (s *Service) lockedWallet(ctx context.Context, userID uuid.UUID) (*models.WalletBalance, error) {
	var wallet models.WalletBalance
	err := s.db.WithContext(ctx).
		Where(models.WalletBalance{UserID: userID}).
		Attrs(models.WalletBalance{Balance: decimal.Zero}).
		FirstOrCreate(&wallet).Error
	if err != nil {
		return nil, fmt.Errorf("load wallet for user %s: %w", userID, err)
	}
	return &wallet, nil
}

func (s *Service) append(ctx context.Context, walletID, transactionID uuid.UUID, direction models.WalletEntryDirection, amount decimal.Decimal) error {
	entry := models.WalletEntry{
		WalletID:      walletID,
		TransactionID: transactionID,
		Direction:     direction,
		Amount:        amount,
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}
