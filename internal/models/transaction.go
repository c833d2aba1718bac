package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionRefunded:
		return true
	}
	return false
}

type TransactionType string

const (
	TransactionPurchase TransactionType = "PURCHASE"
	TransactionRefund   TransactionType = "REFUND"
	TransactionAdmin    TransactionType = "ADMIN"
)

// Transaction groups the tickets of one financial operation. A refund
// transaction references exactly one original purchase through
// OriginalTransactionID.
type Transaction struct {
	gorm.Model
	ID                    uuid.UUID         `gorm:"type:uuid;primary_key"`
	UserID                uuid.UUID         `gorm:"type:uuid;not null;index"`
	User                  *User             `gorm:"foreignKey:UserID"`
	PaymentMethod         string            `gorm:"not null"`
	Status                TransactionStatus `gorm:"type:varchar(16);not null;index"`
	StatusDetail          string
	Type                  TransactionType `gorm:"type:varchar(16);not null;default:'PURCHASE'"`
	Total                 decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ExternalRef           string          `gorm:"index:idx_transactions_external_ref,unique,where:external_ref <> ''"`
	IsRefund              bool            `gorm:"not null;default:false"`
	Refunded              bool            `gorm:"not null;default:false"`
	OriginalTransactionID *uuid.UUID      `gorm:"type:uuid;index"`
	ProviderRefundID      string
	WalletFallback        bool `gorm:"not null;default:false"`
	ProviderError         string
	Details               []TransactionDetail `gorm:"foreignKey:TransactionID"`
}

func (txn *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return
}

type TransactionDetail struct {
	gorm.Model
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	TransactionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	TicketID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Ticket        *Ticket         `gorm:"foreignKey:TicketID"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

func (detail *TransactionDetail) BeforeCreate(tx *gorm.DB) (err error) {
	if detail.ID == uuid.Nil {
		detail.ID = uuid.New()
	}
	return
}
