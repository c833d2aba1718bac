package ticketing

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ticketera.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Section{},
		&models.Ticket{},
		&models.Transaction{},
		&models.TransactionDetail{},
		&models.Promotion{},
		&models.TicketVerification{},
		&models.WalletBalance{},
		&models.WalletEntry{},
	))
	return db
}

func setupLifecycle(t *testing.T) (*gorm.DB, *Lifecycle) {
	t.Helper()
	db := setupTestDB(t)
	return db, NewLifecycle(db, helpers.NewQRSigner("test-secret"))
}

func seedSection(t *testing.T, db *gorm.DB, lifecycle *Lifecycle, capacity int) *models.Section {
	t.Helper()

	event := models.Event{Title: "Test Event", Status: models.EventOnSale}
	require.NoError(t, db.Create(&event).Error)

	section := models.Section{
		EventID:  event.ID,
		Name:     "General",
		Capacity: capacity,
		Price:    decimal.NewFromInt(50),
	}
	require.NoError(t, db.Create(&section).Error)
	require.NoError(t, lifecycle.PublishSection(context.Background(), &section))
	return &section
}

func TestPublishSectionMaterializesCapacity(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 5)

	counts, err := lifecycle.SectionInventory(context.Background(), section.EventID, section.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Capacity)
	assert.Equal(t, 5, counts.Available())
}

func TestReserveAllOrNothing(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 2)
	buyer := uuid.New()

	_, err := lifecycle.Reserve(context.Background(), section.EventID, section.ID, 3, buyer)
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	counts, err := lifecycle.SectionInventory(context.Background(), section.EventID, section.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Available(), "a failed reservation must not leak partial holds")
}

func TestReserveFlipsTicketsToReserved(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 3)
	buyer := uuid.New()

	ids, err := lifecycle.Reserve(context.Background(), section.EventID, section.ID, 2, buyer)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	var tickets []models.Ticket
	require.NoError(t, db.Where("id IN ?", ids).Find(&tickets).Error)
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketReserved, ticket.Status)
		require.NotNil(t, ticket.UserID)
		assert.Equal(t, buyer, *ticket.UserID)
	}

	counts, err := lifecycle.SectionInventory(context.Background(), section.EventID, section.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Available())
	assert.Equal(t, 2, counts.ByStatus[models.TicketReserved])
}

func TestConcurrentReserveSingleSeat(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 1)

	const purchasers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	failures := 0

	for i := 0; i < purchasers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lifecycle.Reserve(context.Background(), section.EventID, section.ID, 1, uuid.New())

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one purchaser may win the last seat")
	assert.Equal(t, purchasers-1, failures)

	counts, err := lifecycle.SectionInventory(context.Background(), section.EventID, section.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Available())
	assert.Equal(t, 1, counts.ByStatus[models.TicketReserved])
}

func TestFinalizeOnlyFromReserved(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 1)

	var ticket models.Ticket
	require.NoError(t, db.First(&ticket, "section_id = ?", section.ID).Error)

	err := lifecycle.Finalize(context.Background(), []uuid.UUID{ticket.ID}, uuid.New())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFinalizeIdempotentForSameTransaction(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 1)
	buyer := uuid.New()

	ids, err := lifecycle.Reserve(context.Background(), section.EventID, section.ID, 1, buyer)
	require.NoError(t, err)

	txn := models.Transaction{
		UserID:        buyer,
		PaymentMethod: "card",
		Status:        models.TransactionPending,
		Type:          models.TransactionPurchase,
		Total:         decimal.NewFromInt(50),
	}
	require.NoError(t, db.Create(&txn).Error)
	require.NoError(t, db.Create(&models.TransactionDetail{
		TransactionID: txn.ID,
		TicketID:      ids[0],
		UnitPrice:     decimal.NewFromInt(50),
	}).Error)

	require.NoError(t, lifecycle.Finalize(context.Background(), ids, txn.ID))
	// Webhook retry: finalizing again under the same transaction is a no-op.
	require.NoError(t, lifecycle.Finalize(context.Background(), ids, txn.ID))

	// A different transaction claiming the same ticket is an invariant
	// violation.
	err = lifecycle.Finalize(context.Background(), ids, uuid.New())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReleaseSkipsNonReserved(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 2)
	buyer := uuid.New()

	ids, err := lifecycle.Reserve(context.Background(), section.EventID, section.ID, 2, buyer)
	require.NoError(t, err)

	txn := models.Transaction{
		UserID: buyer, PaymentMethod: "card",
		Status: models.TransactionPending, Type: models.TransactionPurchase,
		Total: decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(&txn).Error)
	require.NoError(t, lifecycle.Finalize(context.Background(), ids[:1], txn.ID))

	released, err := lifecycle.Release(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released, "sold tickets are silently skipped")

	var sold models.Ticket
	require.NoError(t, db.First(&sold, "id = ?", ids[0]).Error)
	assert.Equal(t, models.TicketSold, sold.Status)

	var available models.Ticket
	require.NoError(t, db.First(&available, "id = ?", ids[1]).Error)
	assert.Equal(t, models.TicketAvailable, available.Status)
	assert.Nil(t, available.UserID, "release clears the holder")
}

func TestCancelRequiresSold(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 1)
	buyer := uuid.New()

	ids, err := lifecycle.Reserve(context.Background(), section.EventID, section.ID, 1, buyer)
	require.NoError(t, err)

	err = lifecycle.Cancel(context.Background(), ids)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	txn := models.Transaction{
		UserID: buyer, PaymentMethod: "card",
		Status: models.TransactionPending, Type: models.TransactionPurchase,
		Total: decimal.NewFromInt(50),
	}
	require.NoError(t, db.Create(&txn).Error)
	require.NoError(t, lifecycle.Finalize(context.Background(), ids, txn.ID))
	require.NoError(t, lifecycle.Cancel(context.Background(), ids))

	var ticket models.Ticket
	require.NoError(t, db.First(&ticket, "id = ?", ids[0]).Error)
	assert.Equal(t, models.TicketCanceled, ticket.Status)
}

func TestMarkUsedExactlyOnce(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 1)
	buyer := uuid.New()

	ids, err := lifecycle.Reserve(context.Background(), section.EventID, section.ID, 1, buyer)
	require.NoError(t, err)

	txn := models.Transaction{
		UserID: buyer, PaymentMethod: "card",
		Status: models.TransactionPending, Type: models.TransactionPurchase,
		Total: decimal.NewFromInt(50),
	}
	require.NoError(t, db.Create(&txn).Error)
	require.NoError(t, lifecycle.Finalize(context.Background(), ids, txn.ID))

	require.NoError(t, lifecycle.MarkUsed(context.Background(), ids[0]))
	err = lifecycle.MarkUsed(context.Background(), ids[0])
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var ticket models.Ticket
	require.NoError(t, db.First(&ticket, "id = ?", ids[0]).Error)
	assert.Equal(t, models.TicketUsed, ticket.Status)
	assert.NotNil(t, ticket.UsedAt)
}

func TestSectionInventorySumsToCapacity(t *testing.T) {
	db, lifecycle := setupLifecycle(t)
	section := seedSection(t, db, lifecycle, 4)
	buyer := uuid.New()

	ids, err := lifecycle.Reserve(context.Background(), section.EventID, section.ID, 2, buyer)
	require.NoError(t, err)

	txn := models.Transaction{
		UserID: buyer, PaymentMethod: "card",
		Status: models.TransactionPending, Type: models.TransactionPurchase,
		Total: decimal.NewFromInt(100),
	}
	require.NoError(t, db.Create(&txn).Error)
	require.NoError(t, lifecycle.Finalize(context.Background(), ids[:1], txn.ID))

	counts, err := lifecycle.SectionInventory(context.Background(), section.EventID, section.ID)
	require.NoError(t, err)

	total := 0
	for _, n := range counts.ByStatus {
		total += n
	}
	assert.Equal(t, counts.Capacity, total)
	assert.Equal(t, 2, counts.Available())
	assert.LessOrEqual(t,
		counts.ByStatus[models.TicketSold]+counts.ByStatus[models.TicketReserved],
		counts.Capacity)
}
