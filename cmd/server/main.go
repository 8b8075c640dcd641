package main

import (
	"log"
	"time"

	"campaign-gateway/internal/api"
	"campaign-gateway/internal/campaign"
	"campaign-gateway/internal/config"
	"campaign-gateway/internal/database"
	"campaign-gateway/internal/llm"
	"campaign-gateway/internal/scheduler"
	"campaign-gateway/internal/store"
	"campaign-gateway/internal/telephony"
	"campaign-gateway/internal/tts"
	"campaign-gateway/internal/voice"
	"campaign-gateway/internal/webhook"
	"campaign-gateway/internal/whatsapp"
	"campaign-gateway/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()
	database.Init(cfg)

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

	hub := ws.NewHub()
	go hub.Run()

	whatsappClient := whatsapp.NewClient(cfg)
	twilioClient := telephony.NewClient(cfg)
	dialogEngine := llm.NewEngine(cfg.OllamaURL, cfg.OllamaModel)
	synthesizer := tts.New(database.DB, cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.AudioDir, cfg.AudioRetentionHours)
	convStore := store.New(database.DB)

	manager := campaign.NewManager(database.DB, convStore, whatsappClient, twilioClient, dialogEngine, hub, campaign.DefaultConfig())
	if err := manager.Load(); err != nil {
		log.Fatalf("Failed to load contacts: %v", err)
	}

	webhookHandler := webhook.NewHandler(cfg, manager)
	campaignHandler := api.NewCampaignHandler(manager)
	contactHandler := api.NewContactHandler(manager, convStore)
	dashboardHandler := api.NewDashboardHandler(whatsappClient, convStore)
	voiceHandler := voice.NewHandler(manager, convStore, dialogEngine, synthesizer, cfg.PublicBaseURL)

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)

	// Call-Control Routes (fetched by the telephony provider)
	r.POST("/voice/answer", voiceHandler.Answer)
	r.POST("/voice/gather", voiceHandler.GatherResult)
	r.GET("/audio/:filename", voiceHandler.ServeAudio)

	// Dashboard API Routes
	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/campaign/import", campaignHandler.Import)
		apiGroup.GET("/contacts", contactHandler.GetContacts)
		apiGroup.GET("/history/:number", contactHandler.GetHistory)
		apiGroup.POST("/send", dashboardHandler.SendMessage)
	}

	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	followUp := scheduler.New(manager, time.Hour)
	followUp.Start()

	cleanupStop := make(chan struct{})
	go synthesizer.CleanupLoop(cleanupStop)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
