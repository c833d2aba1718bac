package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventStatus string

const (
	EventDraft    EventStatus = "DRAFT"
	EventOnSale   EventStatus = "ON_SALE"
	EventFinished EventStatus = "FINISHED"
	EventCanceled EventStatus = "CANCELED"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventDraft, EventOnSale, EventFinished, EventCanceled:
		return true
	}
	return false
}

type Event struct {
	gorm.Model
	ID             uuid.UUID   `gorm:"type:uuid;primary_key"`
	Title          string      `gorm:"not null"`
	Description    string
	Status         EventStatus `gorm:"type:varchar(16);not null;default:'DRAFT'"`
	SalesStartDate time.Time   `gorm:"not null"`
	SalesEndDate   time.Time   `gorm:"not null"`
	StartsAt       time.Time   `gorm:"not null"`
	OrganizerID    uuid.UUID   `gorm:"type:uuid;index"`
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}

// OnSaleAt reports whether tickets for the event can be purchased at the
// given instant.
func (event *Event) OnSaleAt(now time.Time) bool {
	return event.Status == EventOnSale &&
		!now.Before(event.SalesStartDate) &&
		!now.After(event.SalesEndDate)
}
