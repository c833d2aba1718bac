package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/payment"
	"github.com/ticketera/backend/internal/purchase"
	"github.com/ticketera/backend/internal/refund"
	"github.com/ticketera/backend/internal/ticketing"
	"github.com/ticketera/backend/internal/verification"
	"github.com/ticketera/backend/internal/wallet"
)

// Engine bundles the ticket engine services handed to handlers through the
// gin context.
type Engine struct {
	Lifecycle *ticketing.Lifecycle
	Sweeper   *ticketing.Sweeper
	Purchases *purchase.Orchestrator
	Refunds   *refund.Orchestrator
	Gateway   *payment.Gateway
	Verifier  *verification.Service
	Wallets   *wallet.Service
	Signer    *helpers.QRSigner
}

func EngineMiddleware(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("engine", engine)
		c.Next()
	}
}

func GetEngine(c *gin.Context) *Engine {
	engine, exists := c.Get("engine")
	if !exists {
		return nil
	}
	return engine.(*Engine)
}
