package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/middleware"
	"github.com/ticketera/backend/internal/models"
	"github.com/ticketera/backend/internal/ticketing"
	"gorm.io/gorm"
)

func GetEvent(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return
	}

	c.JSON(http.StatusOK, event)
}

func ListEventSections(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var sections []models.Section
	if err := gormDB.Where("event_id = ?", eventID).Find(&sections).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving sections.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

// GetSectionAvailability exposes the derived inventory aggregate for one
// section.
func GetSectionAvailability(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}
	sectionID, err := uuid.Parse(c.Param("sectionId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid section ID.")
		return
	}

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	counts, err := engine.Lifecycle.SectionInventory(c.Request.Context(), eventID, sectionID)
	if err != nil {
		if errors.Is(err, ticketing.ErrSectionNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Section not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving availability.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":   counts.EventID,
		"section_id": counts.SectionID,
		"capacity":   counts.Capacity,
		"by_status":  counts.ByStatus,
		"available":  counts.Available(),
	})
}
