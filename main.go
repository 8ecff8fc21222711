package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Govind-619/paysync/app"
	"github.com/Govind-619/paysync/config"
	"github.com/Govind-619/paysync/routes"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config:", err)
	}

	// Initialize logger
	if err := utils.InitLogger(cfg.LogDir, cfg.LogStdout); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	if cfg.JWTSecret == "" || cfg.WebhookSecret == "" {
		utils.LogError("JWT_SECRET and WEBHOOK_SECRET must be set")
		log.Fatal("JWT_SECRET and WEBHOOK_SECRET must be set")
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg)
	if err != nil {
		utils.LogError("Failed to initialize services: %v", err)
		log.Fatal("Failed to initialize services:", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			utils.LogError("Shutdown cleanup failed: %v", err)
		}
	}()

	// The scheduler stops with ctx; the server is shut down explicitly below
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		services.Poller.Run(ctx)
	}()

	router := routes.SetupRouter(services.PaymentController(), cfg.JWTSecret)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.LogInfo("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.LogError("Error starting server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	utils.LogInfo("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.LogError("Server shutdown failed: %v", err)
	}
	<-schedulerDone
	utils.LogInfo("Server stopped")
}
