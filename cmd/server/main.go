package main

import (
	"context"

	"convogate/internal/api"
	"convogate/internal/automation"
	"convogate/internal/campaign"
	"convogate/internal/config"
	"convogate/internal/contingency"
	"convogate/internal/database"
	"convogate/internal/dispatch"
	"convogate/internal/inbound"
	"convogate/internal/media"
	"convogate/internal/storage"
	"convogate/internal/templates"
	"convogate/internal/webhook"
	"convogate/internal/whatsapp"
	"convogate/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()
	database.Init(cfg)
	db := database.DB

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	whatsappClient := whatsapp.NewClient(cfg)

	var transfer *media.Transfer
	if cfg.S3Bucket != "" {
		store, err := storage.NewS3Store(context.Background(), cfg.S3Bucket, cfg.S3Region, cfg.S3BaseURL)
		if err != nil {
			logrus.WithError(err).Fatal("failed to initialize object storage")
		}
		transfer = media.NewTransfer(whatsappClient, store)
	} else {
		logrus.Warn("S3_BUCKET not set, media re-hosting disabled, proxy references only")
	}

	hub := ws.NewHub()
	go hub.Run()

	dispatcher := dispatch.NewDispatcher(db, whatsappClient, cfg.PhoneNumberID, hub)
	queue := contingency.NewQueue(db, dispatcher)

	schedule := automation.NewSchedule(cfg.BusinessTimezone, cfg.BusinessOpenHour, cfg.BusinessCloseHour)
	engine := automation.NewEngine(db, dispatcher, queue, schedule, cfg.WelcomeMessage)
	engine.Replies = automation.AwayReplier{AwayMessage: cfg.AwayMessage}

	builder := templates.NewBuilder(db)
	catalog := templates.NewCatalog(whatsappClient, redisClient, db)
	runner := campaign.NewRunner(db, dispatcher, builder, catalog, queue, cfg.CampaignWorkers)

	processor := inbound.NewProcessor(db, transfer, engine, hub, cfg.PublicBaseURL)
	proxy := media.NewProxy(whatsappClient)

	webhookHandler := webhook.NewHandler(cfg, processor)
	sendHandler := api.NewSendHandler(dispatcher, builder, catalog)
	campaignHandler := api.NewCampaignHandler(runner, db)
	messageHandler := api.NewMessageHandler(db)
	templateHandler := api.NewTemplateHandler(catalog, db)

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleEvents)

	// Dashboard feed
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/send", sendHandler.SendMessage)
		apiGroup.POST("/send/template", sendHandler.SendTemplate)

		apiGroup.GET("/conversations", messageHandler.GetConversations)
		apiGroup.GET("/messages", messageHandler.GetMessages)

		apiGroup.GET("/templates", templateHandler.GetTemplates)
		apiGroup.GET("/templates/local", templateHandler.GetLocalTemplates)
		apiGroup.POST("/templates/sync", templateHandler.SyncTemplates)

		apiGroup.POST("/campaigns/template", campaignHandler.RunTemplateCampaign)
		apiGroup.POST("/campaigns/broadcast", campaignHandler.RunBroadcast)
		apiGroup.GET("/contingency", campaignHandler.GetContingentJobs)

		apiGroup.GET("/media/:id/proxy", proxy.Handle)
	}

	logrus.WithField("port", cfg.Port).Info("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("failed to run server: %v", err)
	}
}
