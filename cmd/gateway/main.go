package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kioskwatch/backend/config"
	"github.com/kioskwatch/backend/internal/auth"
	"github.com/kioskwatch/backend/internal/cache"
	"github.com/kioskwatch/backend/internal/gateway"
	"github.com/kioskwatch/backend/internal/registry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis; the gateway degrades to a local replay set without it
	redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Running without Redis - token replay protection is per-process")
		redis = nil
	} else {
		defer redis.Close()
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours, cfg.JWT.StreamTokenTTL)

	// The gateway keeps its own camera table: it needs RTSP URLs to spawn
	// transcoders, and those never leave this process
	store := registry.NewMemoryStore()

	supervisor := gateway.NewSupervisor(store, gateway.WorkerConfig{
		FFmpegPath:       cfg.Gateway.FFmpegPath,
		MaxViewers:       cfg.Gateway.MaxViewersPerCamera,
		AutoRestartDelay: cfg.Gateway.AutoRestartDelay,
		MaxRestarts:      cfg.Gateway.MaxRestarts,
		HLSDir:           cfg.Gateway.HLSDir,
	}, cfg.Gateway.StreamTimeoutNoViewers)

	stop := make(chan struct{})
	go supervisor.Run(30*time.Second, stop)

	replay := gateway.NewReplaySet(redis)
	go replay.Run(5*time.Minute, stop)

	if cfg.Gateway.HealthCallbackURL != "" {
		reporter := gateway.NewHealthReporter(supervisor, cfg.Gateway.HealthCallbackURL,
			cfg.Gateway.GatewaySecret, cfg.Gateway.HealthCheckInterval)
		go reporter.Run(stop)
	}

	handler := gateway.NewHandler(jwtService, supervisor, store, replay, cfg.Gateway.GatewaySecret)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.GET("/health", handler.Health)
	router.POST("/validate-token", handler.ValidateToken)
	router.POST("/register-camera", handler.RegisterCamera)
	router.DELETE("/cameras/:id", handler.DeleteCamera)
	router.GET("/cameras", handler.ListCameras)
	router.POST("/cameras/:id/hls", handler.StartHLS)
	router.GET("/webrtc", handler.HandleViewer)

	// HLS fallback segments are served straight off disk
	if err := os.MkdirAll(cfg.Gateway.HLSDir, 0o755); err != nil {
		log.Printf("Warning: failed to create HLS directory %s: %v", cfg.Gateway.HLSDir, err)
	}
	router.Static("/hls", cfg.Gateway.HLSDir)

	// Stop transcoders cleanly on shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, stopping workers...", sig)
		close(stop)
		supervisor.StopAll()
		os.Exit(0)
	}()

	addr := ":" + cfg.Gateway.Port
	log.Printf("Starting stream gateway on %s (ffmpeg: %s)", addr, cfg.Gateway.FFmpegPath)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start gateway: %v", err)
	}
}
