package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/middleware"
	"github.com/ticketera/backend/internal/verification"
)

type VerificationRequest struct {
	// TicketID may be omitted when the scanner only has the QR payload;
	// it is then extracted from the payload itself.
	TicketID    uuid.UUID `json:"ticket_id"`
	QRData      string    `json:"qr_data" binding:"required"`
	EventID     uuid.UUID `json:"event_id" binding:"required"`
	AccessPoint string    `json:"access_point" binding:"required"`
}

// VerifyTicket validates a ticket at an access point. Expected rejections
// (already used, wrong event, bad code) come back as structured 200
// responses; only infrastructure failures are errors.
func VerifyTicket(c *gin.Context) {
	var req VerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	verifierID := userID.(uuid.UUID)

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	if req.TicketID == uuid.Nil {
		ticketID, err := engine.Signer.ExtractTicketID(req.QRData)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid QR code format.")
			return
		}
		req.TicketID = ticketID
	}

	result, err := engine.Verifier.Verify(c.Request.Context(), verification.Request{
		TicketID:    req.TicketID,
		QRPayload:   req.QRData,
		EventID:     req.EventID,
		AccessPoint: req.AccessPoint,
		VerifierID:  verifierID,
	})
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to verify ticket.")
		return
	}

	if !result.Success {
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"code":  result.ErrorCode,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":         true,
		"ticket_id":     result.Ticket.ID,
		"attendee_name": result.Ticket.AttendeeName,
	})
}

func ListTicketVerifications(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	rows, err := engine.Verifier.History(c.Request.Context(), ticketID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving verifications.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"verifications": rows})
}
