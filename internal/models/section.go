package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Section struct {
	gorm.Model
	ID       uuid.UUID       `gorm:"type:uuid;primary_key"`
	EventID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Event    Event           `gorm:"foreignKey:EventID"`
	Name     string          `gorm:"not null"`
	Capacity int             `gorm:"not null"`
	Price    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

func (section *Section) BeforeCreate(tx *gorm.DB) (err error) {
	if section.ID == uuid.Nil {
		section.ID = uuid.New()
	}
	return
}
