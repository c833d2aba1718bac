package server

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ticketera/backend/config"
	"github.com/ticketera/backend/internal/handlers"
	"github.com/ticketera/backend/internal/helpers"
	"github.com/ticketera/backend/internal/middleware"
	"github.com/ticketera/backend/internal/notify"
	"github.com/ticketera/backend/internal/payment"
	"github.com/ticketera/backend/internal/purchase"
	"github.com/ticketera/backend/internal/refund"
	"github.com/ticketera/backend/internal/ticketing"
	"github.com/ticketera/backend/internal/verification"
	"github.com/ticketera/backend/internal/wallet"
	"gorm.io/gorm"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	engineCfg, err := config.LoadEngineConfig()
	if err != nil {
		return fmt.Errorf("failed to load engine config: %v", err)
	}

	providerCfg, err := config.LoadProviderConfig()
	if err != nil {
		return fmt.Errorf("failed to load provider config: %v", err)
	}

	pubnubCfg, err := config.LoadPubNubConfig()
	if err != nil {
		return fmt.Errorf("failed to load pubnub config: %v", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if pubnubCfg.PublishKey != "" {
		notifier = notify.NewPubNubNotifier(pubnubCfg.PublishKey, pubnubCfg.SubscribeKey, "ticketera-core", pubnubCfg.Channel)
	}

	signer := helpers.NewQRSigner(os.Getenv("JWT_SECRET"))
	provider := payment.NewHTTPProvider(providerCfg.BaseURL, providerCfg.ClientID, providerCfg.SecretKey)

	lifecycle := ticketing.NewLifecycle(db, signer)
	wallets := wallet.NewService(db)
	sweeper := ticketing.NewSweeper(db, engineCfg.ReservationTTL, engineCfg.SweepInterval)

	engine := &middleware.Engine{
		Lifecycle: lifecycle,
		Sweeper:   sweeper,
		Purchases: purchase.NewOrchestrator(db, lifecycle, provider, wallets, notifier),
		Refunds:   refund.NewOrchestrator(db, lifecycle, provider, wallets, notifier),
		Gateway:   payment.NewGateway(db, lifecycle, notifier),
		Verifier:  verification.NewService(db, lifecycle),
		Wallets:   wallets,
		Signer:    signer,
	}

	sweeper.Start()
	defer sweeper.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	r := gin.Default()
	setupRoutes(r, db, engine, engineCfg)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(":" + port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-quit:
		return nil
	}
}

func setupRoutes(r *gin.Engine, db *gorm.DB, engine *middleware.Engine, engineCfg *config.EngineConfig) {
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.EngineMiddleware(engine))

	redisClient := config.InitRedisClient()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/v1")
	{
		public.POST("/payments/webhook", handlers.PaymentWebhook)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("/:id", handlers.GetEvent)
			eventPublic.GET("/:id/sections", handlers.ListEventSections)
			eventPublic.GET("/:id/sections/:sectionId/availability", handlers.GetSectionAvailability)
		}

		public.GET("/promotions", handlers.ListPromotions)
		public.GET("/promotions/:id", handlers.GetPromotion)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.POST("/purchases",
			middleware.RateLimitMiddleware(redisClient, engineCfg.RateLimit, engineCfg.RateLimitWindow),
			handlers.CreatePurchase)
		protected.POST("/refunds", handlers.CreateRefund)
		protected.POST("/verifications", handlers.VerifyTicket)
		protected.GET("/wallet", handlers.GetWalletBalance)

		ticketProtected := protected.Group("/tickets")
		{
			ticketProtected.GET("", handlers.ListMyTickets)
			ticketProtected.GET("/:id", handlers.GetTicket)
			ticketProtected.GET("/:id/qr", handlers.GenerateTicketQR)
			ticketProtected.GET("/:id/verifications", handlers.ListTicketVerifications)
		}

		admin := protected.Group("/admin")
		{
			admin.POST("/sweep", handlers.TriggerSweep)
			admin.GET("/sweep/preview", handlers.PreviewSweep)
			admin.GET("/tickets/stats", handlers.TicketStats)
			admin.POST("/tickets/:id/expire", handlers.ExpireTicket)
			admin.POST("/sections", handlers.CreateSection)
			admin.POST("/promotions", handlers.CreatePromotion)
			admin.POST("/gifts", handlers.IssueGift)
		}
	}
}
