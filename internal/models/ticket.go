package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TicketStatus string

const (
	TicketAvailable TicketStatus = "AVAILABLE"
	TicketReserved  TicketStatus = "RESERVED"
	TicketSold      TicketStatus = "SOLD"
	TicketUsed      TicketStatus = "USED"
	TicketCanceled  TicketStatus = "CANCELED"
	TicketExpired   TicketStatus = "EXPIRED"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketAvailable, TicketReserved, TicketSold, TicketUsed, TicketCanceled, TicketExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave the status.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketUsed, TicketCanceled, TicketExpired:
		return true
	}
	return false
}

// Ticket is one admission unit. Rows are never deleted: cancellation and
// expiry are status transitions so the financial trail stays intact.
type Ticket struct {
	gorm.Model
	ID                 uuid.UUID    `gorm:"type:uuid;primary_key"`
	EventID            uuid.UUID    `gorm:"type:uuid;not null;index:idx_tickets_section_status,priority:1"`
	Event              Event        `gorm:"foreignKey:EventID"`
	SectionID          uuid.UUID    `gorm:"type:uuid;not null;index:idx_tickets_section_status,priority:2"`
	Section            Section      `gorm:"foreignKey:SectionID"`
	Status             TicketStatus `gorm:"type:varchar(16);not null;index:idx_tickets_section_status,priority:3"`
	Price              decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IdentificationCode string          `gorm:"unique;not null"`
	QrCode             string          `gorm:"unique;not null"`
	UserID             *uuid.UUID      `gorm:"type:uuid;index"`
	AttendeeName       string
	AttendeeDni        string
	PurchasedAt        *time.Time
	UsedAt             *time.Time
	PromotionID        *uuid.UUID `gorm:"type:uuid"`
	IsGift             bool       `gorm:"not null;default:false"`
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}
