package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/middleware"
	"github.com/ticketera/backend/internal/models"
	"github.com/ticketera/backend/internal/payment"
	"github.com/ticketera/backend/internal/refund"
	"gorm.io/gorm"
)

type RefundRequest struct {
	TransactionID uuid.UUID   `json:"transaction_id" binding:"required"`
	Reason        string      `json:"reason" binding:"required"`
	TicketIDs     []uuid.UUID `json:"ticket_ids"`
}

func CreateRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var txn models.Transaction
	if err := gormDB.First(&txn, "id = ?", req.TransactionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Transaction not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving transaction.")
		return
	}
	if txn.UserID != userID.(uuid.UUID) {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to refund this transaction.")
		return
	}

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	result, err := engine.Refunds.Refund(c.Request.Context(), refund.Request{
		TransactionID: req.TransactionID,
		Reason:        req.Reason,
		TicketIDs:     req.TicketIDs,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrTransactionNotFound):
			helpers.RespondWithError(c, http.StatusNotFound, "Transaction not found.")
		case errors.Is(err, refund.ErrNotRefundable):
			helpers.RespondWithCode(c, http.StatusUnprocessableEntity, "NOT_REFUNDABLE", "This transaction cannot be refunded.")
		case errors.Is(err, refund.ErrExceedsRefundable):
			helpers.RespondWithCode(c, http.StatusUnprocessableEntity, "EXCEEDS_REFUNDABLE", "Requested amount exceeds the refundable remainder.")
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to process refund.")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":               "Refund processed.",
		"refund_transaction_id": result.RefundTransaction.ID,
		"amount":                result.Amount,
		"wallet_fallback":       result.WalletFallback,
	})
}
