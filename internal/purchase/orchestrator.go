package purchase

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

// ErrEventNotPurchasable means the event is not on sale, outside its sales
// window, or sold out. Business rule, user-facing.
var ErrEventNotPurchasable = errors.New("event not purchasable")

const (
	MethodCard         = "card"
	MethodWallet       = "wallet"
	MethodBankTransfer = "bank_transfer"
)

type Line struct {
	SectionID    uuid.UUID
	AttendeeName string
	AttendeeDni  string
	PromotionID  *uuid.UUID
}

type Request struct {
	EventID       uuid.UUID
	BuyerID       uuid.UUID
	PayerEmail    string
	PaymentMethod string
	Lines         []Line
}

// Receipt is what the buyer gets back. Pending means the provider has not
// confirmed yet: tickets stay reserved and are delivered on the webhook.
type Receipt struct {
	Transaction *models.Transaction
	TicketIDs   []uuid.UUID
	Pending     bool
	Message     string
}

// Orchestrator coordinates validate, reserve, charge and finalize/rollback.
// Database mutations are atomic units; the provider call happens between
// them, never inside, and is reconciled by external reference.
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

// Purchase runs the full flow. The work is detached from the caller's
// context after validation: a client disconnect during the provider call
// must not strand a charge, so completion or rollback happens regardless.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (*Receipt, error) {
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("purchase: at least one line required")
	}

	now := time.Now().UTC()
	event, sections, promotions, err := o.loadCatalog(ctx, req)
	if err != nil {
		return nil, err
	}
	if !event.OnSaleAt(now) {
		return nil, ErrEventNotPurchasable
	}

	// From here on the purchase must finish independently of the caller.
	ctx = context.WithoutCancel(ctx)

	ticketIDs, perTicket, err := o.reserveAll(ctx, req)
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues("insufficient_inventory").Inc()
		return nil, err
	}

	// perTicket mirrors ticketIDs ordering, so price lines from it.
	prices, total := priceLines(sections, promotions, perTicket, now)
	txn, err := o.createPendingTransaction(ctx, req, ticketIDs, prices, total)
	if err != nil {
		o.rollbackReservation(ctx, ticketIDs)
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	for i, ticketID := range ticketIDs {
		if err := o.lifecycle.AssignAttendee(ctx, ticketID, perTicket[i].AttendeeName, perTicket[i].AttendeeDni); err != nil {
			o.failTransaction(ctx, txn, "ASSIGN")
			o.rollbackReservation(ctx, ticketIDs)
			return nil, err
		}
	}

	switch req.PaymentMethod {
	case MethodWallet:
		return o.chargeWallet(ctx, txn, ticketIDs, total)
	default:
		return o.chargeProvider(ctx, req, txn, ticketIDs, total)
	}
}

func (o *Orchestrator) loadCatalog(ctx context.Context, req Request) (*models.Event, map[uuid.UUID]*models.Section, map[uuid.UUID]*models.Promotion, error) {
	var event models.Event
	if err := o.db.WithContext(ctx).First(&event, "id = ?", req.EventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, nil, ErrEventNotPurchasable
		}
		return nil, nil, nil, err
	}

	sections := make(map[uuid.UUID]*models.Section)
	promotions := make(map[uuid.UUID]*models.Promotion)
	for _, line := range req.Lines {
		if _, ok := sections[line.SectionID]; !ok {
			var section models.Section
			if err := o.db.WithContext(ctx).First(&section, "id = ? AND event_id = ?", line.SectionID, req.EventID).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return nil, nil, nil, ticketing.ErrSectionNotFound
				}
				return nil, nil, nil, err
			}
			sections[line.SectionID] = &section
		}
		if line.PromotionID != nil {
			if _, ok := promotions[*line.PromotionID]; !ok {
				var promo models.Promotion
				if err := o.db.WithContext(ctx).First(&promo, "id = ? AND event_id = ?", *line.PromotionID, req.EventID).Error; err == nil {
					promotions[promo.ID] = &promo
				}
			}
		}
	}
	return &event, sections, promotions, nil
}

// reserveAll reserves one ticket per line, grouped by section. If any group
// fails, everything reserved so far in this request is released before
// returning.
func (o *Orchestrator) reserveAll(ctx context.Context, req Request) ([]uuid.UUID, []Line, error) {
	bySection := make(map[uuid.UUID][]Line)
	order := make([]uuid.UUID, 0)
	for _, line := range req.Lines {
		if _, ok := bySection[line.SectionID]; !ok {
			order = append(order, line.SectionID)
		}
		bySection[line.SectionID] = append(bySection[line.SectionID], line)
	}

	var ticketIDs []uuid.UUID
	var perTicket []Line
	for _, sectionID := range order {
		lines := bySection[sectionID]
		ids, err := o.lifecycle.Reserve(ctx, req.EventID, sectionID, len(lines), req.BuyerID)
		if err != nil {
			o.rollbackReservation(ctx, ticketIDs)
			return nil, nil, err
		}
		ticketIDs = append(ticketIDs, ids...)
		perTicket = append(perTicket, lines...)
	}
	return ticketIDs, perTicket, nil
}

func (o *Orchestrator) createPendingTransaction(ctx context.Context, req Request, ticketIDs []uuid.UUID, prices []linePrice, total decimal.Decimal) (*models.Transaction, error) {
	txn := &models.Transaction{
		UserID:        req.BuyerID,
		PaymentMethod: req.PaymentMethod,
		Status:        models.TransactionPending,
		Type:          models.TransactionPurchase,
		Total:         total,
	}

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		for i, ticketID := range ticketIDs {
			detail := models.TransactionDetail{
				TransactionID: txn.ID,
				TicketID:      ticketID,
				UnitPrice:     prices[i].UnitPrice,
			}
			if err := tx.Create(&detail).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (o *Orchestrator) chargeWallet(ctx context.Context, txn *models.Transaction, ticketIDs []uuid.UUID, total decimal.Decimal) (*Receipt, error) {
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.wallets.WithTx(tx).Debit(ctx, txn.UserID, txn.ID, total); err != nil {
			return err
		}
		if err := o.lifecycle.WithTx(tx).Finalize(ctx, ticketIDs, txn.ID); err != nil {
			return err
		}
		return tx.Model(txn).Updates(map[string]interface{}{
			"status":        models.TransactionCompleted,
			"status_detail": "wallet",
		}).Error
	})
	if err != nil {
		o.rollbackReservation(ctx, ticketIDs)
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			o.failTransaction(ctx, txn, payment.SubcodeFund)
			metrics.PurchasesTotal.WithLabelValues("rejected").Inc()
			return nil, &payment.RejectionError{
				Subcode:   payment.SubcodeFund,
				Detail:    "wallet balance too low",
				Message:   "Payment rejected: insufficient wallet balance.",
				Retryable: true,
			}
		}
		// FUND is reserved for actual balance rejections.
		o.failTransaction(ctx, txn, "WALLET")
		return nil, err
	}

	metrics.PurchasesTotal.WithLabelValues("completed").Inc()
	o.notifier.Publish(notify.Message{
		Event:         notify.EventTicketDelivered,
		UserID:        txn.UserID.String(),
		TransactionID: txn.ID.String(),
	})
	return &Receipt{Transaction: txn, TicketIDs: ticketIDs, Message: "Payment approved."}, nil
}

func (o *Orchestrator) chargeProvider(ctx context.Context, req Request, txn *models.Transaction, ticketIDs []uuid.UUID, total decimal.Decimal) (*Receipt, error) {
	result, err := o.provider.CreatePayment(ctx, payment.PaymentRequest{
		Amount:      total,
		Currency:    "EUR",
		Method:      req.PaymentMethod,
		Reference:   txn.ID.String(),
		PayerID:     req.BuyerID.String(),
		PayerEmail:  req.PayerEmail,
		Description: fmt.Sprintf("tickets for event %s", req.EventID),
	})
	if err != nil {
		// Ambiguous: the charge may or may not exist provider-side.
		// Tickets stay RESERVED with the sweeper TTL as the safety net,
		// and a late webhook can still settle the transaction.
		metrics.PurchasesTotal.WithLabelValues("provider_unavailable").Inc()
		log.Printf("provider call failed for transaction %s: %v", txn.ID, err)
		return nil, err
	}

	outcome := payment.Normalize(result.Status, result.StatusDetail)

	if result.ProviderPaymentID != "" {
		if uerr := o.db.WithContext(ctx).Model(txn).Update("external_ref", result.ProviderPaymentID).Error; uerr != nil {
			if outcome.Decision == payment.Hold {
				// A held charge settles through the webhook lookup by
				// external reference. Without the reference on record the
				// confirmation can never match, so the hold cannot proceed;
				// tickets stay RESERVED under the sweeper TTL.
				metrics.PurchasesTotal.WithLabelValues("provider_unavailable").Inc()
				return nil, fmt.Errorf("record external ref %s on transaction %s: %w", result.ProviderPaymentID, txn.ID, uerr)
			}
			log.Printf("record external ref %s on transaction %s: %v", result.ProviderPaymentID, txn.ID, uerr)
		}
	}

	switch outcome.Decision {
	case payment.Deliver:
		err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := o.lifecycle.WithTx(tx).Finalize(ctx, ticketIDs, txn.ID); err != nil {
				return err
			}
			return tx.Model(txn).Updates(map[string]interface{}{
				"status":        models.TransactionCompleted,
				"status_detail": result.StatusDetail,
			}).Error
		})
		if err != nil {
			return nil, fmt.Errorf("finalize transaction %s: %w", txn.ID, err)
		}
		metrics.PurchasesTotal.WithLabelValues("completed").Inc()
		o.notifier.Publish(notify.Message{
			Event:         notify.EventTicketDelivered,
			UserID:        txn.UserID.String(),
			TransactionID: txn.ID.String(),
		})
		return &Receipt{Transaction: txn, TicketIDs: ticketIDs, Message: outcome.Message}, nil

	case payment.Reject:
		err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := o.lifecycle.WithTx(tx).Release(ctx, ticketIDs); err != nil {
				return err
			}
			return tx.Model(txn).Updates(map[string]interface{}{
				"status":        models.TransactionFailed,
				"status_detail": outcome.Subcode,
			}).Error
		})
		if err != nil {
			return nil, fmt.Errorf("roll back transaction %s: %w", txn.ID, err)
		}
		metrics.PurchasesTotal.WithLabelValues("rejected").Inc()
		o.notifier.Publish(notify.Message{
			Event:         notify.EventPaymentRejected,
			UserID:        txn.UserID.String(),
			TransactionID: txn.ID.String(),
			Detail:        outcome.Subcode,
		})
		return nil, &payment.RejectionError{
			Subcode:   outcome.Subcode,
			Detail:    result.StatusDetail,
			Message:   outcome.Message,
			Retryable: outcome.Retryable,
		}

	default: // Hold
		metrics.PurchasesTotal.WithLabelValues("pending").Inc()
		return &Receipt{Transaction: txn, TicketIDs: ticketIDs, Pending: true, Message: outcome.Message}, nil
	}
}

// IssueGift creates SOLD tickets directly under an administrative
// transaction, bypassing payment. Capacity is still enforced. The status
// flip and the financial record commit as one unit, so a bookkeeping
// failure never leaves sold tickets without a transaction.
func (o *Orchestrator) IssueGift(ctx context.Context, eventID, sectionID uuid.UUID, count int, recipientID uuid.UUID, promotionID *uuid.UUID) (*Receipt, error) {
	txn := &models.Transaction{
		UserID:        recipientID,
		PaymentMethod: "none",
		Status:        models.TransactionCompleted,
		Type:          models.TransactionAdmin,
		Total:         decimal.Zero,
	}
	var ticketIDs []uuid.UUID
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := o.lifecycle.WithTx(tx).SellDirect(ctx, eventID, sectionID, count, recipientID, promotionID, true)
		if err != nil {
			return err
		}
		ticketIDs = ids

		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		for _, ticketID := range ticketIDs {
			detail := models.TransactionDetail{
				TransactionID: txn.ID,
				TicketID:      ticketID,
				UnitPrice:     decimal.Zero,
			}
			if err := tx.Create(&detail).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("issue gift: %w", err)
	}

	o.notifier.Publish(notify.Message{
		Event:         notify.EventTicketDelivered,
		UserID:        recipientID.String(),
		TransactionID: txn.ID.String(),
	})
	return &Receipt{Transaction: txn, TicketIDs: ticketIDs, Message: "Tickets issued."}, nil
}

func (o *Orchestrator) rollbackReservation(ctx context.Context, ticketIDs []uuid.UUID) {
	if len(ticketIDs) == 0 {
		return
	}
	if _, err := o.lifecycle.Release(ctx, ticketIDs); err != nil {
		log.Printf("release %d tickets on rollback: %v", len(ticketIDs), err)
	}
}

func (o *Orchestrator) failTransaction(ctx context.Context, txn *models.Transaction, detail string) {
	err := o.db.WithContext(ctx).Model(txn).
		Where("status = ?", models.TransactionPending).
		Updates(map[string]interface{}{
			"status":        models.TransactionFailed,
			"status_detail": detail,
		}).Error
	if err != nil {
		log.Printf("mark transaction %s failed: %v", txn.ID, err)
	}
}
