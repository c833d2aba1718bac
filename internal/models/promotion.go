package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Promotion struct {
	gorm.Model
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	EventID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name            string          `gorm:"not null"`
	Active          bool            `gorm:"not null;default:true"`
	StartDate       time.Time       `gorm:"not null"`
	EndDate         time.Time       `gorm:"not null"`
	MinimumQuantity int             `gorm:"not null;default:1"`
	Discount        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ApplyToTotal    bool            `gorm:"not null;default:false"`
	IsGift          bool            `gorm:"not null;default:false"`
}

func (promotion *Promotion) BeforeCreate(tx *gorm.DB) (err error) {
	if promotion.ID == uuid.Nil {
		promotion.ID = uuid.New()
	}
	return
}

// ValidFor reports whether the promotion applies to a purchase of the given
// quantity at the given instant.
func (promotion *Promotion) ValidFor(quantity int, now time.Time) bool {
	return promotion.Active &&
		!now.Before(promotion.StartDate) &&
		!now.After(promotion.EndDate) &&
		quantity >= promotion.MinimumQuantity
}
