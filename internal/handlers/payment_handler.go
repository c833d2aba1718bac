package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/middleware"
	"github.com/ticketera/backend/internal/payment"
)

type WebhookRequest struct {
	ProviderPaymentID string `json:"id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
}

// PaymentWebhook receives the provider's asynchronous payment callbacks.
// Delivery is at-least-once and possibly out of order; the gateway keeps
// processing idempotent, so expected outcomes always answer 200.
func PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Unable to read request body.")
		return
	}

	if secret := os.Getenv("PROVIDER_WEBHOOK_SECRET"); secret != "" {
		signature := c.GetHeader("Signature")
		if !helpers.VerifyWebhookSignature(secret, string(body), signature) {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid webhook signature.")
			return
		}
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil || req.ProviderPaymentID == "" || req.Status == "" {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid webhook payload.")
		return
	}

	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not found.")
		return
	}

	result, err := engine.Gateway.HandleWebhook(c.Request.Context(), req.ProviderPaymentID, req.Status, req.StatusDetail)
	if err != nil {
		if errors.Is(err, payment.ErrTransactionNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Unknown payment reference.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to process webhook.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":   result.Outcome.Decision.String(),
		"duplicate": result.Duplicate,
	})
}
