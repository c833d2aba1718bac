package refund

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/models"
	"github.com/ticketera/backend/internal/notify"
	"github.com/ticketera/backend/internal/payment"
	"github.com/ticketera/backend/internal/ticketing"
	"github.com/ticketera/backend/internal/wallet"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeRefundProvider struct {
	result payment.RefundResult
	err    error
	calls  int
}

func (p *fakeRefundProvider) CreatePayment(ctx context.Context, req payment.PaymentRequest) (payment.PaymentResult, error) {
	return payment.PaymentResult{}, errors.New("not scripted")
}

func (p *fakeRefundProvider) RefundPayment(ctx context.Context, providerPaymentID string, amount decimal.Decimal) (payment.RefundResult, error) {
	p.calls++
	return p.result, p.err
}

type fixture struct {
	db           *gorm.DB
	lifecycle    *ticketing.Lifecycle
	provider     *fakeRefundProvider
	wallets      *wallet.Service
	orchestrator *Orchestrator
}

func setupRefund(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ticketera.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Event{},
		&models.Section{},
		&models.Ticket{},
		&models.Transaction{},
		&models.TransactionDetail{},
		&models.WalletBalance{},
		&models.WalletEntry{},
	))

	lifecycle := ticketing.NewLifecycle(db, helpers.NewQRSigner("test-secret"))
	provider := &fakeRefundProvider{}
	wallets := wallet.NewService(db)
	return &fixture{
		db:           db,
		lifecycle:    lifecycle,
		provider:     provider,
		wallets:      wallets,
		orchestrator: NewOrchestrator(db, lifecycle, provider, wallets, notify.Nop{}),
	}
}

// seedCompletedPurchase creates a settled card purchase of the given number
// of SOLD tickets at 60 each.
func seedCompletedPurchase(t *testing.T, f *fixture, count int, externalRef string) (*models.Transaction, []uuid.UUID) {
	t.Helper()

	event := models.Event{Title: "Test Event", Status: models.EventOnSale}
	require.NoError(t, f.db.Create(&event).Error)
	section := models.Section{
		EventID: event.ID, Name: "General",
		Capacity: count, Price: decimal.NewFromInt(60),
	}
	require.NoError(t, f.db.Create(&section).Error)
	require.NoError(t, f.lifecycle.PublishSection(context.Background(), &section))

	buyer := uuid.New()
	ids, err := f.lifecycle.Reserve(context.Background(), event.ID, section.ID, count, buyer)
	require.NoError(t, err)

	txn := models.Transaction{
		UserID: buyer, PaymentMethod: "card",
		Status: models.TransactionCompleted, Type: models.TransactionPurchase,
		Total: decimal.NewFromInt(60).Mul(decimal.NewFromInt(int64(count))), ExternalRef: externalRef,
	}
	require.NoError(t, f.db.Create(&txn).Error)
	for _, id := range ids {
		require.NoError(t, f.db.Create(&models.TransactionDetail{
			TransactionID: txn.ID,
			TicketID:      id,
			UnitPrice:     decimal.NewFromInt(60),
		}).Error)
	}
	require.NoError(t, f.lifecycle.Finalize(context.Background(), ids, txn.ID))
	return &txn, ids
}

func TestRefundViaProvider(t *testing.T) {
	f := setupRefund(t)
	original, ids := seedCompletedPurchase(t, f, 2, "prov-5001")
	f.provider.result = payment.RefundResult{RefundID: "ref-1", Status: "approved"}

	result, err := f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
		Reason:        "event date changed",
	})
	require.NoError(t, err)
	assert.False(t, result.WalletFallback)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, "ref-1", result.RefundTransaction.ProviderRefundID)
	assert.Equal(t, 1, f.provider.calls)

	for _, id := range ids {
		var ticket models.Ticket
		require.NoError(t, f.db.First(&ticket, "id = ?", id).Error)
		assert.Equal(t, models.TicketCanceled, ticket.Status)
	}

	var reloaded models.Transaction
	require.NoError(t, f.db.First(&reloaded, "id = ?", original.ID).Error)
	assert.True(t, reloaded.Refunded, "a full refund marks the original")

	// No wallet movement on the provider leg.
	balance, err := f.wallets.Balance(context.Background(), original.UserID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestRefundWalletFallback(t *testing.T) {
	f := setupRefund(t)
	original, ids := seedCompletedPurchase(t, f, 1, "prov-5002")
	f.provider.err = errors.New("refund rejected by acquirer")

	result, err := f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
		Reason:        "customer request",
	})
	require.NoError(t, err, "the buyer always gets the refund, only the leg varies")
	assert.True(t, result.WalletFallback)
	assert.Equal(t, "refund rejected by acquirer", result.RefundTransaction.ProviderError)
	assert.Empty(t, result.RefundTransaction.ProviderRefundID)
	assert.Equal(t, 1, f.provider.calls, "non-transient provider errors are not retried")

	balance, err := f.wallets.Balance(context.Background(), original.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(60)))

	var ticket models.Ticket
	require.NoError(t, f.db.First(&ticket, "id = ?", ids[0]).Error)
	assert.Equal(t, models.TicketCanceled, ticket.Status)

	var entry models.WalletEntry
	require.NoError(t, f.db.First(&entry, "transaction_id = ?", result.RefundTransaction.ID).Error)
	assert.Equal(t, models.WalletAdd, entry.Direction)
}

func TestRefundWithoutExternalRefGoesToWallet(t *testing.T) {
	f := setupRefund(t)
	original, _ := seedCompletedPurchase(t, f, 1, "")

	result, err := f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
		Reason:        "wallet purchase",
	})
	require.NoError(t, err)
	assert.True(t, result.WalletFallback)
	assert.Equal(t, 0, f.provider.calls, "no provider reference, no provider call")

	balance, err := f.wallets.Balance(context.Background(), original.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(60)))
}

func TestPartialRefundThenRemainder(t *testing.T) {
	f := setupRefund(t)
	original, ids := seedCompletedPurchase(t, f, 3, "prov-5003")
	f.provider.result = payment.RefundResult{RefundID: "ref-p", Status: "approved"}

	first, err := f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
		TicketIDs:     ids[:1],
	})
	require.NoError(t, err)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(60)))

	var reloaded models.Transaction
	require.NoError(t, f.db.First(&reloaded, "id = ?", original.ID).Error)
	assert.False(t, reloaded.Refunded, "a partial refund leaves the original open")

	second, err := f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
		TicketIDs:     ids[1:],
	})
	require.NoError(t, err)
	assert.True(t, second.Amount.Equal(decimal.NewFromInt(120)))

	require.NoError(t, f.db.First(&reloaded, "id = ?", original.ID).Error)
	assert.True(t, reloaded.Refunded)

	_, err = f.orchestrator.Refund(context.Background(), Request{TransactionID: original.ID})
	assert.ErrorIs(t, err, ErrNotRefundable)
}

// After a partial refund, an empty ticket list means "refund whatever is
// still SOLD", not the full original set.
func TestPartialRefundThenRemainderViaEmptyList(t *testing.T) {
	f := setupRefund(t)
	original, ids := seedCompletedPurchase(t, f, 2, "prov-5008")
	f.provider.result = payment.RefundResult{RefundID: "ref-e", Status: "approved"}

	first, err := f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
		TicketIDs:     ids[:1],
	})
	require.NoError(t, err)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(60)))

	second, err := f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
	})
	require.NoError(t, err)
	assert.True(t, second.Amount.Equal(decimal.NewFromInt(60)),
		"only the remaining SOLD ticket is refunded")

	var reloaded models.Transaction
	require.NoError(t, f.db.First(&reloaded, "id = ?", original.ID).Error)
	assert.True(t, reloaded.Refunded)

	for _, id := range ids {
		var ticket models.Ticket
		require.NoError(t, f.db.First(&ticket, "id = ?", id).Error)
		assert.Equal(t, models.TicketCanceled, ticket.Status)
	}
}

func TestRefundTicketOutsideTransaction(t *testing.T) {
	f := setupRefund(t)
	original, _ := seedCompletedPurchase(t, f, 1, "prov-5004")

	_, err := f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
		TicketIDs:     []uuid.UUID{uuid.New()},
	})
	assert.Error(t, err)
}

func TestRefundRequiresCompletedTransaction(t *testing.T) {
	f := setupRefund(t)

	pending := models.Transaction{
		UserID: uuid.New(), PaymentMethod: "card",
		Status: models.TransactionPending, Type: models.TransactionPurchase,
		Total: decimal.NewFromInt(60),
	}
	require.NoError(t, f.db.Create(&pending).Error)

	_, err := f.orchestrator.Refund(context.Background(), Request{TransactionID: pending.ID})
	assert.ErrorIs(t, err, ErrNotRefundable)

	_, err = f.orchestrator.Refund(context.Background(), Request{TransactionID: uuid.New()})
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)
}

func TestRefundOfRefundRejected(t *testing.T) {
	f := setupRefund(t)
	original, _ := seedCompletedPurchase(t, f, 1, "prov-5005")
	f.provider.result = payment.RefundResult{RefundID: "ref-r", Status: "approved"}

	result, err := f.orchestrator.Refund(context.Background(), Request{TransactionID: original.ID})
	require.NoError(t, err)

	_, err = f.orchestrator.Refund(context.Background(), Request{
		TransactionID: result.RefundTransaction.ID,
	})
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestRefundUsedTicketFails(t *testing.T) {
	f := setupRefund(t)
	original, ids := seedCompletedPurchase(t, f, 1, "prov-5006")
	require.NoError(t, f.lifecycle.MarkUsed(context.Background(), ids[0]))

	// With no SOLD tickets left, an open-ended request has nothing to refund.
	_, err := f.orchestrator.Refund(context.Background(), Request{TransactionID: original.ID})
	require.ErrorIs(t, err, ErrNotRefundable)

	// Naming the used ticket explicitly reaches the cancellation guard.
	_, err = f.orchestrator.Refund(context.Background(), Request{
		TransactionID: original.ID,
		TicketIDs:     ids,
	})
	require.ErrorIs(t, err, ticketing.ErrInvalidTransition)

	// The atomic unit rolled back: no refund record, no wallet credit.
	var count int64
	require.NoError(t, f.db.Model(&models.Transaction{}).
		Where("is_refund = ?", true).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	balance, err := f.wallets.Balance(context.Background(), original.UserID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestProviderRefundRetriesTransientFailures(t *testing.T) {
	if testing.Short() {
		t.Skip("backoff sleeps")
	}

	f := setupRefund(t)
	original, _ := seedCompletedPurchase(t, f, 1, "prov-5007")
	f.provider.err = payment.ErrProviderUnavailable

	start := time.Now()
	result, err := f.orchestrator.Refund(context.Background(), Request{TransactionID: original.ID})
	require.NoError(t, err)
	assert.True(t, result.WalletFallback)
	assert.Equal(t, providerAttempts, f.provider.calls)
	assert.GreaterOrEqual(t, time.Since(start), providerBackoff)
}
