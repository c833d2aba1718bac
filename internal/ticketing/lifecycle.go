package ticketing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/models"
	"gorm.io/gorm"
)

// reserveAttempts bounds the number of select-then-flip rounds a single
// Reserve call makes when racing other purchasers for the same rows.
const reserveAttempts = 3

// Lifecycle owns every ticket status mutation. All transitions are
// conditional updates guarded by the current status, so concurrent
// purchasers, webhooks and the sweeper cannot interleave into an illegal
// state.
type Lifecycle struct {
	db     *gorm.DB
	signer *helpers.QRSigner
}

func NewLifecycle(db *gorm.DB, signer *helpers.QRSigner) *Lifecycle {
	return &Lifecycle{db: db, signer: signer}
}

// WithTx returns a Lifecycle bound to an open transaction, for callers that
// need ticket transitions and their own bookkeeping to commit as one unit.
func (l *Lifecycle) WithTx(tx *gorm.DB) *Lifecycle {
	return &Lifecycle{db: tx, signer: l.signer}
}

// PublishSection materializes the section's capacity as AVAILABLE ticket
// rows. Identification and QR codes are issued here and never change.
func (l *Lifecycle) PublishSection(ctx context.Context, section *models.Section) error {
	tickets := make([]models.Ticket, 0, section.Capacity)
	for i := 0; i < section.Capacity; i++ {
		id := uuid.New()
		code := uuid.NewString()
		tickets = append(tickets, models.Ticket{
			ID:                 id,
			EventID:            section.EventID,
			SectionID:          section.ID,
			Status:             models.TicketAvailable,
			Price:              section.Price,
			IdentificationCode: code,
			QrCode:             l.signer.Payload(id, section.EventID, code),
		})
	}
	if err := l.db.WithContext(ctx).CreateInBatches(tickets, 200).Error; err != nil {
		return fmt.Errorf("publish section %s: %w", section.ID, err)
	}
	return nil
}

// Reserve atomically flips count AVAILABLE tickets in the section to
// RESERVED for the buyer. All-or-nothing: a partial grab is rolled back and
// retried, and ErrInsufficientInventory is returned once the section cannot
// cover the request.
func (l *Lifecycle) Reserve(ctx context.Context, eventID, sectionID uuid.UUID, count int, buyerID uuid.UUID) ([]uuid.UUID, error) {
	if count <= 0 {
		return nil, fmt.Errorf("reserve: count must be positive")
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ids, err := l.flipAvailable(ctx, eventID, sectionID, count, map[string]interface{}{
			"status":  models.TicketReserved,
			"user_id": buyerID,
		})
		if err == errFlipConflict {
			continue
		}
		return ids, err
	}
	return nil, ErrInsufficientInventory
}

// SellDirect flips AVAILABLE tickets straight to SOLD for promotional and
// gift issuance, which bypasses payment but still respects capacity.
func (l *Lifecycle) SellDirect(ctx context.Context, eventID, sectionID uuid.UUID, count int, buyerID uuid.UUID, promotionID *uuid.UUID, gift bool) ([]uuid.UUID, error) {
	if count <= 0 {
		return nil, fmt.Errorf("sell direct: count must be positive")
	}

	now := time.Now().UTC()
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ids, err := l.flipAvailable(ctx, eventID, sectionID, count, map[string]interface{}{
			"status":       models.TicketSold,
			"user_id":      buyerID,
			"promotion_id": promotionID,
			"is_gift":      gift,
			"purchased_at": now,
		})
		if err == errFlipConflict {
			continue
		}
		return ids, err
	}
	return nil, ErrInsufficientInventory
}

var errFlipConflict = fmt.Errorf("ticket rows changed underneath, retry")

func (l *Lifecycle) flipAvailable(ctx context.Context, eventID, sectionID uuid.UUID, count int, values map[string]interface{}) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids = ids[:0]
		if err := tx.Model(&models.Ticket{}).
			Where("event_id = ? AND section_id = ? AND status = ?", eventID, sectionID, models.TicketAvailable).
			Limit(count).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) < count {
			return ErrInsufficientInventory
		}

		res := tx.Model(&models.Ticket{}).
			Where("id IN ? AND status = ?", ids, models.TicketAvailable).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(count) {
			// Another purchaser flipped some of the selected rows first.
			return errFlipConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AssignAttendee stamps the attendee identity on a ticket the buyer holds
// reserved. Legal only while the reservation is alive.
func (l *Lifecycle) AssignAttendee(ctx context.Context, ticketID uuid.UUID, name, dni string) error {
	res := l.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, models.TicketReserved).
		Updates(map[string]interface{}{"attendee_name": name, "attendee_dni": dni})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("assign attendee to ticket %s: %w", ticketID, ErrInvalidTransition)
	}
	return nil
}

// Finalize promotes RESERVED tickets to SOLD on payment confirmation.
// Idempotent for webhook retries: tickets already SOLD under the same
// transaction count as finalized.
func (l *Lifecycle) Finalize(ctx context.Context, ticketIDs []uuid.UUID, transactionID uuid.UUID) error {
	if len(ticketIDs) == 0 {
		return nil
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Ticket{}).
			Where("id IN ? AND status = ?", ticketIDs, models.TicketReserved).
			Updates(map[string]interface{}{"status": models.TicketSold, "purchased_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == int64(len(ticketIDs)) {
			return nil
		}

		var alreadySold int64
		err := tx.Model(&models.TransactionDetail{}).
			Joins("JOIN tickets ON tickets.id = transaction_details.ticket_id").
			Where("transaction_details.transaction_id = ? AND transaction_details.ticket_id IN ? AND tickets.status = ?",
				transactionID, ticketIDs, models.TicketSold).
			Count(&alreadySold).Error
		if err != nil {
			return err
		}
		if res.RowsAffected+alreadySold >= int64(len(ticketIDs)) {
			return nil
		}
		return fmt.Errorf("finalize %d tickets for transaction %s: %w", len(ticketIDs), transactionID, ErrInvalidTransition)
	})
}

// Release returns RESERVED tickets to AVAILABLE (rollback and sweeper path).
// Rows no longer reserved are silently skipped: the count of rows actually
// released is returned.
func (l *Lifecycle) Release(ctx context.Context, ticketIDs []uuid.UUID) (int64, error) {
	if len(ticketIDs) == 0 {
		return 0, nil
	}

	res := l.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id IN ? AND status = ?", ticketIDs, models.TicketReserved).
		Updates(map[string]interface{}{
			"status":        models.TicketAvailable,
			"user_id":       nil,
			"attendee_name": "",
			"attendee_dni":  "",
			"promotion_id":  nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Cancel moves SOLD tickets to CANCELED. Strict: every ticket must be SOLD
// or the whole transition fails, so refund bookkeeping never splits.
func (l *Lifecycle) Cancel(ctx context.Context, ticketIDs []uuid.UUID) error {
	if len(ticketIDs) == 0 {
		return nil
	}

	res := l.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id IN ? AND status = ?", ticketIDs, models.TicketSold).
		Update("status", models.TicketCanceled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ticketIDs)) {
		return fmt.Errorf("cancel %d tickets, %d were SOLD: %w", len(ticketIDs), res.RowsAffected, ErrInvalidTransition)
	}
	return nil
}

// MarkUsed consumes a SOLD ticket at an access point, exactly once.
func (l *Lifecycle) MarkUsed(ctx context.Context, ticketID uuid.UUID) error {
	now := time.Now().UTC()
	res := l.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, models.TicketSold).
		Updates(map[string]interface{}{"status": models.TicketUsed, "used_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark ticket %s used: %w", ticketID, ErrInvalidTransition)
	}
	return nil
}

// MarkExpired retires a SOLD ticket for an event that already happened.
// Administrative transition.
func (l *Lifecycle) MarkExpired(ctx context.Context, ticketID uuid.UUID) error {
	res := l.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, models.TicketSold).
		Update("status", models.TicketExpired)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark ticket %s expired: %w", ticketID, ErrInvalidTransition)
	}
	return nil
}

// Get loads a ticket by id.
func (l *Lifecycle) Get(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := l.db.WithContext(ctx).First(&ticket, "id = ?", ticketID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}
