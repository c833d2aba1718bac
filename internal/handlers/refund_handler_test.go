package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/middleware"
	"github.com/ticketera/backend/internal/models"
	"github.com/ticketera/backend/internal/notify"
	"github.com/ticketera/backend/internal/payment"
	"github.com/ticketera/backend/internal/refund"
	"github.com/ticketera/backend/internal/ticketing"
	"github.com/ticketera/backend/internal/wallet"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubProvider struct{}

func (stubProvider) CreatePayment(ctx context.Context, req payment.PaymentRequest) (payment.PaymentResult, error) {
	return payment.PaymentResult{Status: "approved"}, nil
}

func (stubProvider) RefundPayment(ctx context.Context, providerPaymentID string, amount decimal.Decimal) (payment.RefundResult, error) {
	return payment.RefundResult{RefundID: "ref-h", Status: "approved"}, nil
}

// refundRouter wires the refund route the way the server does, with the
// JWT layer replaced by a fixed user id.
func refundRouter(t *testing.T, asUser uuid.UUID) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	wallets := wallet.NewService(db)
	engine := &middleware.Engine{
		Lifecycle: lifecycle,
		Refunds:   refund.NewOrchestrator(db, lifecycle, stubProvider{}, wallets, notify.Nop{}),
		Wallets:   wallets,
	}

	router := gin.New()
	router.Use(middleware.DatabaseMiddleware(db))
	router.Use(middleware.EngineMiddleware(engine))
	router.Use(func(c *gin.Context) {
		c.Set("user_id", asUser)
		c.Next()
	})
	router.POST("/v1/refunds", CreateRefund)
	return router, db
}

func seedRefundableTransaction(t *testing.T, db *gorm.DB, buyer uuid.UUID) *models.Transaction {
	t.Helper()

	event := models.Event{Title: "Test Event", Status: models.EventOnSale}
	require.NoError(t, db.Create(&event).Error)
	section := models.Section{
		EventID: event.ID, Name: "General",
		Capacity: 1, Price: decimal.NewFromInt(60),
	}
	require.NoError(t, db.Create(&section).Error)

	lifecycle := ticketing.NewLifecycle(db, helpers.NewQRSigner("test-secret"))
	require.NoError(t, lifecycle.PublishSection(context.Background(), &section))

	ids, err := lifecycle.Reserve(context.Background(), event.ID, section.ID, 1, buyer)
	require.NoError(t, err)

	txn := models.Transaction{
		UserID: buyer, PaymentMethod: "card",
		Status: models.TransactionCompleted, Type: models.TransactionPurchase,
		Total: decimal.NewFromInt(60), ExternalRef: "prov-h1",
	}
	require.NoError(t, db.Create(&txn).Error)
	require.NoError(t, db.Create(&models.TransactionDetail{
		TransactionID: txn.ID,
		TicketID:      ids[0],
		UnitPrice:     decimal.NewFromInt(60),
	}).Error)
	require.NoError(t, lifecycle.Finalize(context.Background(), ids, txn.ID))
	return &txn
}

func postRefund(router *gin.Engine, transactionID uuid.UUID) *httptest.ResponseRecorder {
	body, _ := json.Marshal(gin.H{
		"transaction_id": transactionID,
		"reason":         "customer request",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/refunds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRefundRequiresOwnership(t *testing.T) {
	stranger := uuid.New()
	router, db := refundRouter(t, stranger)
	buyer := uuid.New()
	txn := seedRefundableTransaction(t, db, buyer)

	rec := postRefund(router, txn.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Nothing moved: the transaction is untouched and no refund exists.
	var reloaded models.Transaction
	require.NoError(t, db.First(&reloaded, "id = ?", txn.ID).Error)
	assert.Equal(t, models.TransactionCompleted, reloaded.Status)
	assert.False(t, reloaded.Refunded)

	var refunds int64
	require.NoError(t, db.Model(&models.Transaction{}).
		Where("is_refund = ?", true).Count(&refunds).Error)
	assert.Equal(t, int64(0), refunds)
}

func TestCreateRefundByOwner(t *testing.T) {
	buyer := uuid.New()
	router, db := refundRouter(t, buyer)
	txn := seedRefundableTransaction(t, db, buyer)

	rec := postRefund(router, txn.ID)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var reloaded models.Transaction
	require.NoError(t, db.First(&reloaded, "id = ?", txn.ID).Error)
	assert.True(t, reloaded.Refunded)
}

func TestCreateRefundUnknownTransaction(t *testing.T) {
	router, _ := refundRouter(t, uuid.New())

	rec := postRefund(router, uuid.New())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
