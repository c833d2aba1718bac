package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/middleware"
	"github.com/ticketera/backend/internal/models"
	"github.com/ticketera/backend/internal/ticketing"
	"gorm.io/gorm"
)

// TriggerSweep runs one reservation expiry sweep on demand, outside the
// periodic schedule.
func TriggerSweep(c *gin.Context) {
	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	released, err := engine.Sweeper.RunOnce(c.Request.Context())
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Sweep failed.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Sweep completed.",
		"released": released,
	})
}

// PreviewSweep lists the reservations the next sweep would reclaim.
func PreviewSweep(c *gin.Context) {
	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	tickets, err := engine.Sweeper.PreviewExpiring(c.Request.Context())
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving expiring reservations.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(tickets),
		"tickets": tickets,
	})
}

// TicketStats aggregates ticket counts by status for one event.
func TicketStats(c *gin.Context) {
	eventID, err := uuid.Parse(c.Query("event_id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid or missing event_id.")
		return
	}

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	stats, err := engine.Lifecycle.EventStats(c.Request.Context(), eventID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving statistics.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":  eventID,
		"by_status": stats,
	})
}

// ExpireTicket retires a single SOLD ticket for an event that already
// happened.
func ExpireTicket(c *gin.Context) {
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

	if err := engine.Lifecycle.MarkExpired(c.Request.Context(), ticketID); err != nil {
		if errors.Is(err, ticketing.ErrInvalidTransition) {
			helpers.RespondWithCode(c, http.StatusConflict, "INVALID_TRANSITION", "Ticket is not in a state that can be expired.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to expire ticket.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ticket expired."})
}

type SectionRequest struct {
	EventID  uuid.UUID       `json:"event_id" binding:"required"`
	Name     string          `json:"name" binding:"required"`
	Capacity int             `json:"capacity" binding:"required,min=1"`
	Price    decimal.Decimal `json:"price" binding:"required"`
}

// CreateSection provisions a section and materializes its capacity as
// available ticket rows.
func CreateSection(c *gin.Context) {
	var req SectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	var event models.Event
	if err := gormDB.First(&event, "id = ?", req.EventID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	section := models.Section{
		EventID:  req.EventID,
		Name:     req.Name,
		Capacity: req.Capacity,
		Price:    req.Price,
	}
	if err := gormDB.Create(&section).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create section.")
		return
	}

	if err := engine.Lifecycle.PublishSection(c.Request.Context(), &section); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to publish section inventory.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Section created and inventory published.",
		"section_id": section.ID,
	})
}
