package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"callpilot/config"
	"callpilot/handlers"
	"callpilot/routes"
	"callpilot/services/calendar"
	"callpilot/services/distance"
	"callpilot/services/providers"
	"callpilot/services/swarm"
	"callpilot/store"
	"callpilot/telephony"
	"callpilot/utils"
	"callpilot/voice"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	cfg := config.AppConfig

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	if cfg.AllowAllCORS {
		router.Use(cors.Default())
	}

	// State and collaborators.
	campaignStore := store.New()
	providerService := providers.NewDefaultService(cfg)
	distanceService := distance.GetService(cfg)
	calendarService := calendar.GetService(cfg)
	modeDefault := swarm.NewModeDefault(cfg.SimulatedCalls)
	dialer := telephony.NewTwilioDialer(cfg, campaignStore)

	swarmService := swarm.NewDefaultService(
		campaignStore,
		providerService,
		distanceService,
		calendarService,
		modeDefault,
		swarm.NewRealCaller(dialer, campaignStore),
		cfg,
	)

	// Handler collaborators.
	handlers.CampaignStore = campaignStore
	handlers.SwarmService = swarmService
	handlers.CalendarService = calendarService
	handlers.ModeDefault = modeDefault
	handlers.ToolRegistry = voice.NewRegistry()
	handlers.DistanceService = distanceService
	handlers.ProviderService = providerService

	routes.RegisterCampaignRoutes(router)
	routes.RegisterSettingsRoutes(router)
	routes.RegisterTwilioRoutes(router)
	routes.RegisterHealthRoutes(router)

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
