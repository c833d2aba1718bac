package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationError string

const (
	VerificationAlreadyUsed VerificationError = "ALREADY_USED"
	VerificationInvalidCode VerificationError = "INVALID_CODE"
	VerificationWrongEvent  VerificationError = "WRONG_EVENT"
	VerificationNotSold     VerificationError = "NOT_SOLD"
)

// TicketVerification is an append-only audit row. Failed attempts are
// recorded the same as successful ones.
type TicketVerification struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	TicketID    uuid.UUID `gorm:"type:uuid;not null;index"`
	EventID     uuid.UUID `gorm:"type:uuid;not null;index"`
	AccessPoint string    `gorm:"not null"`
	VerifierID  uuid.UUID `gorm:"type:uuid;not null"`
	VerifiedAt  time.Time `gorm:"not null"`
	Success     bool      `gorm:"not null"`
	ErrorCode   VerificationError
	CreatedAt   time.Time
}

func (verification *TicketVerification) BeforeCreate(tx *gorm.DB) (err error) {
	if verification.ID == uuid.Nil {
		verification.ID = uuid.New()
	}
	return
}
