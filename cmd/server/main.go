package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/kioskwatch/backend/config"
	"github.com/kioskwatch/backend/internal/auth"
	"github.com/kioskwatch/backend/internal/cache"
	"github.com/kioskwatch/backend/internal/database"
	"github.com/kioskwatch/backend/internal/handlers"
	"github.com/kioskwatch/backend/internal/hub"
	"github.com/kioskwatch/backend/internal/middleware"
	"github.com/kioskwatch/backend/internal/models"
	"github.com/kioskwatch/backend/internal/registry"
	"github.com/kioskwatch/backend/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Connect to Redis
	redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		log.Println("Running without Redis - presence mirroring disabled")
		redis = nil
	} else {
		defer redis.Close()
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours, cfg.JWT.StreamTokenTTL)

	// Initialize repositories
	operatorRepo := repository.NewOperatorRepository(db)
	cameraRepo := repository.NewCameraRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Seed a development monitor account so the dashboard can log in
	// before any operators exist
	if cfg.Server.Env != "production" {
		hash, err := auth.HashPassword("monitor123")
		if err == nil {
			if _, err := operatorRepo.EnsureOperator("monitor-1", models.RoleMonitor, "Development Monitor", hash); err != nil {
				log.Printf("Warning: failed to seed development operator: %v", err)
			}
		}
	}

	// Camera registry and stream token issuer
	registryService := registry.NewService(cameraRepo, auditRepo, jwtService)
	if cfg.Gateway.URL != "" {
		registryService.BindGateway(registry.NewGatewayClient(cfg.Gateway.URL, cfg.Gateway.GatewaySecret))
	}
	registryHandler := registry.NewHandler(registryService, cfg.Gateway.GatewaySecret)

	// Signaling hub
	sessions := hub.NewSessionStore(cfg.Hub.SessionTimeout)
	signalingHub := hub.NewHub(sessions, redis)
	go signalingHub.Run()
	go signalingHub.RunPresenceMirror()

	reapStop := make(chan struct{})
	defer close(reapStop)
	go sessions.Run(cfg.Hub.ReapInterval, reapStop)

	wsHandler := hub.NewHandler(signalingHub, jwtService, cfg.CORS.AllowedOrigins)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(operatorRepo, jwtService)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.Hub.RateLimitPerSec)
	rateLimiter.Cleanup()

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":       "ok",
			"onlineKiosks": len(signalingHub.OnlineKiosks()),
		})
	})

	// Public routes
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/login", authHandler.Login)
	}

	// WebSocket endpoint
	router.GET("/ws", wsHandler.HandleWebSocket)

	// Gateway callback: authenticated by shared secret, not a client token
	router.POST("/api/cctv/health-callback", registryHandler.HealthCallback)

	// Protected routes
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtService))
	{
		api.GET("/me", authHandler.GetMe)
		api.POST("/operators", middleware.RequireRole(models.RoleMonitor), authHandler.CreateOperator)
		api.GET("/online-kiosks", wsHandler.GetOnlineKiosks)
		api.GET("/kiosks/:id/presence", wsHandler.GetKioskPresence)

		cctv := api.Group("/cctv")
		{
			cctv.GET("/cameras", registryHandler.ListCameras)
			cctv.POST("/cameras", registryHandler.RegisterCamera)
			cctv.GET("/cameras/:id", registryHandler.GetCamera)
			cctv.DELETE("/cameras/:id", registryHandler.DeleteCamera)
			cctv.POST("/stream-token", middleware.RateLimitMiddleware(rateLimiter), registryHandler.GenerateStreamToken)
		}
	}

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Starting signaling server on %s (env: %s)", addr, cfg.Server.Env)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
