package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WalletEntryDirection string

const (
	WalletAdd      WalletEntryDirection = "ADD"
	WalletSubtract WalletEntryDirection = "SUBTRACT"
)

// WalletBalance is only ever mutated together with a WalletEntry in the
// same database transaction.
type WalletBalance struct {
	gorm.Model
	ID      uuid.UUID       `gorm:"type:uuid;primary_key"`
	UserID  uuid.UUID       `gorm:"type:uuid;unique;not null"`
	Balance decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

func (wallet *WalletBalance) BeforeCreate(tx *gorm.DB) (err error) {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	return
}

type WalletEntry struct {
	gorm.Model
	ID            uuid.UUID            `gorm:"type:uuid;primary_key"`
	WalletID      uuid.UUID            `gorm:"type:uuid;not null;index"`
	TransactionID uuid.UUID            `gorm:"type:uuid;not null;index"`
	Direction     WalletEntryDirection `gorm:"type:varchar(8);not null"`
	Amount        decimal.Decimal      `gorm:"type:numeric(12,2);not null"`
}

func (entry *WalletEntry) BeforeCreate(tx *gorm.DB) (err error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return
}
