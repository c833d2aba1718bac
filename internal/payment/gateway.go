package payment

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/ticketera/backend/internal/metrics"
	"github.com/ticketera/backend/internal/models"
	"github.com/ticketera/backend/internal/notify"
	"github.com/ticketera/backend/internal/ticketing"
	"gorm.io/gorm"
)

// Gateway reconciles asynchronous provider callbacks with internal state.
// Processing is idempotent by external reference: webhook delivery may be
// duplicated, out of order or delayed, and replays of a settled transaction
// are success no-ops.
type Gateway struct {
	db        *gorm.DB
	lifecycle *ticketing.Lifecycle
	notifier  notify.Notifier
}

func NewGateway(db *gorm.DB, lifecycle *ticketing.Lifecycle, notifier notify.Notifier) *Gateway {
	return &Gateway{db: db, lifecycle: lifecycle, notifier: notifier}
}

type WebhookResult struct {
	Outcome     Outcome
	Transaction *models.Transaction
	Duplicate   bool
}

// HandleWebhook applies one provider callback. The ticket transitions and
// the transaction status change commit as a single database transaction.
func (g *Gateway) HandleWebhook(ctx context.Context, providerPaymentID, status, statusDetail string) (WebhookResult, error) {
	var txn models.Transaction
	err := g.db.WithContext(ctx).Preload("Details").
		First(&txn, "external_ref = ?", providerPaymentID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return WebhookResult{}, fmt.Errorf("webhook for payment %s: %w", providerPaymentID, ErrTransactionNotFound)
		}
		return WebhookResult{}, err
	}

	outcome := Normalize(status, statusDetail)
	result := WebhookResult{Outcome: outcome, Transaction: &txn}

	if txn.Status != models.TransactionPending {
		// Already settled (completed, failed or refunded). Replays and
		// late callbacks must not double-finalize or resurrect inventory.
		result.Duplicate = true
		metrics.WebhooksTotal.WithLabelValues("duplicate").Inc()
		log.Printf("webhook replay for transaction %s (status %s): %v", txn.ID, txn.Status, ErrDuplicateWebhook)
		return result, nil
	}

	ticketIDs := make([]uuid.UUID, 0, len(txn.Details))
	for _, detail := range txn.Details {
		ticketIDs = append(ticketIDs, detail.TicketID)
	}

	switch outcome.Decision {
	case Deliver:
		err = g.deliver(ctx, &txn, ticketIDs, statusDetail)
	case Reject:
		err = g.reject(ctx, &txn, ticketIDs, outcome)
	case Hold:
		// Leave tickets RESERVED and the transaction PENDING. The
		// reservation TTL is not extended; the sweeper remains the
		// safety net if confirmation never arrives.
		err = g.db.WithContext(ctx).Model(&txn).Update("status_detail", statusDetail).Error
	}
	if err != nil {
		return result, err
	}

	metrics.WebhooksTotal.WithLabelValues(outcome.Decision.String()).Inc()
	return result, nil
}

func (g *Gateway) deliver(ctx context.Context, txn *models.Transaction, ticketIDs []uuid.UUID, statusDetail string) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := g.lifecycle.WithTx(tx).Finalize(ctx, ticketIDs, txn.ID); err != nil {
			return err
		}

		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", txn.ID, models.TransactionPending).
			Updates(map[string]interface{}{
				"status":        models.TransactionCompleted,
				"status_detail": statusDetail,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent delivery won; fine, the outcome is the same.
			return ErrDuplicateWebhook
		}
		return nil
	})
	if err == ErrDuplicateWebhook {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deliver transaction %s: %w", txn.ID, err)
	}

	g.notifier.Publish(notify.Message{
		Event:         notify.EventTicketDelivered,
		UserID:        txn.UserID.String(),
		TransactionID: txn.ID.String(),
	})
	return nil
}

func (g *Gateway) reject(ctx context.Context, txn *models.Transaction, ticketIDs []uuid.UUID, outcome Outcome) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := g.lifecycle.WithTx(tx).Release(ctx, ticketIDs); err != nil {
			return err
		}

		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", txn.ID, models.TransactionPending).
			Updates(map[string]interface{}{
				"status":        models.TransactionFailed,
				"status_detail": outcome.Subcode,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateWebhook
		}
		return nil
	})
	if err == ErrDuplicateWebhook {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reject transaction %s: %w", txn.ID, err)
	}

	g.notifier.Publish(notify.Message{
		Event:         notify.EventPaymentRejected,
		UserID:        txn.UserID.String(),
		TransactionID: txn.ID.String(),
		Detail:        outcome.Subcode,
	})
	return nil
}
