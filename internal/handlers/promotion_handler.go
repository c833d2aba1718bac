package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/models"
	"gorm.io/gorm"
)

type PromotionRequest struct {
	EventID         uuid.UUID       `json:"event_id" binding:"required"`
	Name            string          `json:"name" binding:"required"`
	Active          *bool           `json:"active"`
	StartDate       time.Time       `json:"start_date" binding:"required"`
	EndDate         time.Time       `json:"end_date" binding:"required"`
	MinimumQuantity int             `json:"minimum_quantity" binding:"required,min=1"`
	Discount        decimal.Decimal `json:"discount" binding:"required"`
	ApplyToTotal    bool            `json:"apply_to_total"`
	IsGift          bool            `json:"is_gift"`
}

func CreatePromotion(c *gin.Context) {
	var req PromotionRequest
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

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	promotion := models.Promotion{
		EventID:         req.EventID,
		Name:            req.Name,
		Active:          active,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		MinimumQuantity: req.MinimumQuantity,
		Discount:        req.Discount,
		ApplyToTotal:    req.ApplyToTotal,
		IsGift:          req.IsGift,
	}

	if err := gormDB.Create(&promotion).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create promotion.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "Promotion created successfully.",
		"promotion_id": promotion.ID,
	})
}

func GetPromotion(c *gin.Context) {
	promotionID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var promotion models.Promotion
	if err := gormDB.Where("id = ?", promotionID).First(&promotion).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Promotion not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving promotion.")
		return
	}

	c.JSON(http.StatusOK, promotion)
}

func ListPromotions(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	page := c.DefaultQuery("page", "1")
	limit := c.DefaultQuery("limit", "10")

	pageNum, err := helpers.StringToInt(page)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid page number.")
		return
	}

	limitNum, err := helpers.StringToInt(limit)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
		return
	}

	query := gormDB.Model(&models.Promotion{})
	if eventID := c.Query("event_id"); eventID != "" {
		query = query.Where("event_id = ?", eventID)
	}

	var totalCount int64
	query.Count(&totalCount)

	var promotions []models.Promotion
	offset := (pageNum - 1) * limitNum
	err = query.Offset(offset).Limit(limitNum).Order("created_at DESC").Find(&promotions).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving promotions.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"promotions":  promotions,
		"total":       totalCount,
		"page":        pageNum,
		"limit":       limitNum,
		"total_pages": (totalCount + int64(limitNum) - 1) / int64(limitNum),
	})
}
