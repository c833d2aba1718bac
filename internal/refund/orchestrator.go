package refund

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ticketera/backend/internal/metrics"
	"github.com/ticketera/backend/internal/models"
	"github.com/ticketera/backend/internal/notify"
	"github.com/ticketera/backend/internal/payment"
	"github.com/ticketera/backend/internal/ticketing"
	"github.com/ticketera/backend/internal/wallet"
	"gorm.io/gorm"
)

var (
	// ErrNotRefundable means the transaction is not COMPLETED or is already
	// fully refunded.
	ErrNotRefundable = errors.New("transaction not refundable")

	// ErrExceedsRefundable means the requested tickets sum past the
	// refundable remainder.
	ErrExceedsRefundable = errors.New("refund exceeds refundable remainder")
)

const (
	providerAttempts = 3
	providerBackoff  = 500 * time.Millisecond
)

type Request struct {
	TransactionID uuid.UUID
	Reason        string
	// TicketIDs limits the refund to a subset. Empty means every ticket of
	// the transaction that is still SOLD.
	TicketIDs []uuid.UUID
}

type Result struct {
	RefundTransaction *models.Transaction
	Amount            decimal.Decimal
	WalletFallback    bool
}

// Orchestrator attempts a provider-side refund and falls back to crediting
// the buyer's wallet when the provider leg fails. From the buyer's
// perspective a refund always succeeds; only the settlement leg varies.
type Orchestrator struct {
	db        *gorm.DB
	lifecycle *ticketing.Lifecycle
	provider  payment.Provider
	wallets   *wallet.Service
	notifier  notify.Notifier
}

func NewOrchestrator(db *gorm.DB, lifecycle *ticketing.Lifecycle, provider payment.Provider, wallets *wallet.Service, notifier notify.Notifier) *Orchestrator {
	return &Orchestrator{db: db, lifecycle: lifecycle, provider: provider, wallets: wallets, notifier: notifier}
}

func (o *Orchestrator) Refund(ctx context.Context, req Request) (*Result, error) {
	original, details, err := o.loadRefundable(ctx, req)
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	ticketIDs := make([]uuid.UUID, 0, len(details))
	for _, detail := range details {
		amount = amount.Add(detail.UnitPrice)
		ticketIDs = append(ticketIDs, detail.TicketID)
	}

	remainder, err := o.refundableRemainder(ctx, original)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(remainder) {
		return nil, ErrExceedsRefundable
	}

	// Provider leg first, outside any database transaction.
	providerRefundID, providerErr := o.providerRefund(ctx, original, amount)

	refundTxn := &models.Transaction{
		UserID:                original.UserID,
		PaymentMethod:         original.PaymentMethod,
		Status:                models.TransactionRefunded,
		StatusDetail:          req.Reason,
		Type:                  models.TransactionRefund,
		Total:                 amount,
		IsRefund:              true,
		OriginalTransactionID: &original.ID,
	}
	if providerErr == nil {
		refundTxn.ProviderRefundID = providerRefundID
	} else {
		refundTxn.WalletFallback = true
		refundTxn.ProviderError = providerErr.Error()
	}

	// Ticket cancellation and the financial record are one atomic unit:
	// a bookkeeping failure rolls back everything, so tickets are never
	// CANCELED without a matching record.
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.lifecycle.WithTx(tx).Cancel(ctx, ticketIDs); err != nil {
			return err
		}
		if err := tx.Create(refundTxn).Error; err != nil {
			return err
		}
		for _, detail := range details {
			line := models.TransactionDetail{
				TransactionID: refundTxn.ID,
				TicketID:      detail.TicketID,
				UnitPrice:     detail.UnitPrice,
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
		}
		if refundTxn.WalletFallback {
			if err := o.wallets.WithTx(tx).Credit(ctx, original.UserID, refundTxn.ID, amount); err != nil {
				return err
			}
		}
		if amount.Equal(remainder) {
			if err := tx.Model(original).Update("refunded", true).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refund bookkeeping for transaction %s: %w", original.ID, err)
	}

	leg := "provider"
	if refundTxn.WalletFallback {
		leg = "wallet"
	}
	metrics.RefundsTotal.WithLabelValues(leg).Inc()

	o.notifier.Publish(notify.Message{
		Event:         notify.EventRefundProcessed,
		UserID:        original.UserID.String(),
		TransactionID: refundTxn.ID.String(),
		Detail:        leg,
	})

	return &Result{RefundTransaction: refundTxn, Amount: amount, WalletFallback: refundTxn.WalletFallback}, nil
}

func (o *Orchestrator) loadRefundable(ctx context.Context, req Request) (*models.Transaction, []models.TransactionDetail, error) {
	var original models.Transaction
	err := o.db.WithContext(ctx).Preload("Details").First(&original, "id = ?", req.TransactionID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, payment.ErrTransactionNotFound
		}
		return nil, nil, err
	}
	if original.Status != models.TransactionCompleted || original.Refunded || original.IsRefund {
		return nil, nil, ErrNotRefundable
	}

	if len(req.TicketIDs) == 0 {
		// Tickets canceled by earlier partial refunds (or already used) are
		// excluded, so "refund the rest" works after a partial refund.
		allIDs := make([]uuid.UUID, 0, len(original.Details))
		for _, detail := range original.Details {
			allIDs = append(allIDs, detail.TicketID)
		}
		var soldIDs []uuid.UUID
		err := o.db.WithContext(ctx).Model(&models.Ticket{}).
			Where("id IN ? AND status = ?", allIDs, models.TicketSold).
			Pluck("id", &soldIDs).Error
		if err != nil {
			return nil, nil, err
		}
		sold := make(map[uuid.UUID]bool, len(soldIDs))
		for _, id := range soldIDs {
			sold[id] = true
		}

		var details []models.TransactionDetail
		for _, detail := range original.Details {
			if sold[detail.TicketID] {
				details = append(details, detail)
			}
		}
		if len(details) == 0 {
			return nil, nil, ErrNotRefundable
		}
		return &original, details, nil
	}

	requested := make(map[uuid.UUID]bool, len(req.TicketIDs))
	for _, id := range req.TicketIDs {
		requested[id] = true
	}
	var details []models.TransactionDetail
	for _, detail := range original.Details {
		if requested[detail.TicketID] {
			details = append(details, detail)
		}
	}
	if len(details) != len(req.TicketIDs) {
		return nil, nil, fmt.Errorf("refund: some tickets do not belong to transaction %s", original.ID)
	}
	return &original, details, nil
}

// refundableRemainder is the original total minus all refunds already
// recorded against it.
func (o *Orchestrator) refundableRemainder(ctx context.Context, original *models.Transaction) (decimal.Decimal, error) {
	var previous []models.Transaction
	err := o.db.WithContext(ctx).
		Where("original_transaction_id = ? AND is_refund = ?", original.ID, true).
		Find(&previous).Error
	if err != nil {
		return decimal.Zero, err
	}

	remainder := original.Total
	for _, refund := range previous {
		remainder = remainder.Sub(refund.Total)
	}
	return remainder, nil
}

// providerRefund tries the provider leg with bounded backoff. Any final
// failure is returned for the wallet fallback to preserve in the audit
// trail; it never aborts the refund.
func (o *Orchestrator) providerRefund(ctx context.Context, original *models.Transaction, amount decimal.Decimal) (string, error) {
	if original.ExternalRef == "" {
		return "", fmt.Errorf("no provider payment reference on transaction %s", original.ID)
	}

	var lastErr error
	for attempt := 0; attempt < providerAttempts; attempt++ {
		result, err := o.provider.RefundPayment(ctx, original.ExternalRef, amount)
		if err == nil {
			return result.RefundID, nil
		}
		lastErr = err
		if !errors.Is(err, payment.ErrProviderUnavailable) || attempt == providerAttempts-1 {
			break
		}
		log.Printf("provider refund attempt %d for transaction %s: %v", attempt+1, original.ID, err)
		select {
		case <-time.After(providerBackoff << attempt):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}
