package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/middleware"
	"github.com/ticketera/backend/internal/payment"
	"github.com/ticketera/backend/internal/purchase"
	"github.com/ticketera/backend/internal/ticketing"
)

type PurchaseLineRequest struct {
	SectionID    uuid.UUID  `json:"section_id" binding:"required"`
	AttendeeName string     `json:"attendee_name" binding:"required"`
	AttendeeDni  string     `json:"attendee_dni" binding:"required"`
	PromotionID  *uuid.UUID `json:"promotion_id"`
}

type PurchaseRequest struct {
	EventID       uuid.UUID             `json:"event_id" binding:"required"`
	PaymentMethod string                `json:"payment_method" binding:"required"`
	PayerEmail    string                `json:"payer_email"`
	Lines         []PurchaseLineRequest `json:"lines" binding:"required,min=1,dive"`
}

func CreatePurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	buyerID := userID.(uuid.UUID)

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	lines := make([]purchase.Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, purchase.Line{
			SectionID:    line.SectionID,
			AttendeeName: line.AttendeeName,
			AttendeeDni:  line.AttendeeDni,
			PromotionID:  line.PromotionID,
		})
	}

	receipt, err := engine.Purchases.Purchase(c.Request.Context(), purchase.Request{
		EventID:       req.EventID,
		BuyerID:       buyerID,
		PayerEmail:    req.PayerEmail,
		PaymentMethod: req.PaymentMethod,
		Lines:         lines,
	})
	if err != nil {
		var rejection *payment.RejectionError
		switch {
		case errors.Is(err, purchase.ErrEventNotPurchasable):
			helpers.RespondWithCode(c, http.StatusUnprocessableEntity, "EVENT_NOT_PURCHASABLE", "This event is not available for purchase.")
		case errors.Is(err, ticketing.ErrInsufficientInventory):
			helpers.RespondWithCode(c, http.StatusConflict, "INSUFFICIENT_INVENTORY", "Not enough tickets available in the requested section.")
		case errors.Is(err, ticketing.ErrSectionNotFound):
			helpers.RespondWithError(c, http.StatusNotFound, "Section not found.")
		case errors.As(err, &rejection):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":     helpers.HTTPStatusText(http.StatusPaymentRequired),
				"code":      "PAYMENT_REJECTED",
				"subcode":   rejection.Subcode,
				"retryable": rejection.Retryable,
				"message":   rejection.Message,
			})
		case errors.Is(err, payment.ErrProviderUnavailable):
			helpers.RespondWithCode(c, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", "Payment could not be processed right now. Please try again.")
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to process purchase.")
		}
		return
	}

	status := http.StatusCreated
	if receipt.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"message":        receipt.Message,
		"transaction_id": receipt.Transaction.ID,
		"status":         receipt.Transaction.Status,
		"total":          receipt.Transaction.Total,
		"ticket_ids":     receipt.TicketIDs,
		"pending":        receipt.Pending,
	})
}

type GiftRequest struct {
	EventID     uuid.UUID  `json:"event_id" binding:"required"`
	SectionID   uuid.UUID  `json:"section_id" binding:"required"`
	RecipientID uuid.UUID  `json:"recipient_id" binding:"required"`
	Count       int        `json:"count" binding:"required,min=1"`
	PromotionID *uuid.UUID `json:"promotion_id"`
}

// IssueGift creates sold tickets directly under an administrative
// transaction, without payment.
func IssueGift(c *gin.Context) {
	var req GiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	receipt, err := engine.Purchases.IssueGift(c.Request.Context(), req.EventID, req.SectionID, req.Count, req.RecipientID, req.PromotionID)
	if err != nil {
		if errors.Is(err, ticketing.ErrInsufficientInventory) {
			helpers.RespondWithCode(c, http.StatusConflict, "INSUFFICIENT_INVENTORY", "Not enough tickets available in the requested section.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to issue tickets.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":        receipt.Message,
		"transaction_id": receipt.Transaction.ID,
		"ticket_ids":     receipt.TicketIDs,
	})
}
