package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"sweet-shop/internal/config"
	"sweet-shop/internal/events"
	custommiddleware "sweet-shop/internal/middleware"
	"sweet-shop/internal/repository"
	"sweet-shop/internal/service"
	"sweet-shop/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	producer    *events.Producer
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, redisClient *redis.Client, producer *events.Producer) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(nil, cfg.Server.Env == "development"))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	sweetRepo := repository.NewSweetRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT.Secret)
	sweetService := service.NewSweetService(sweetRepo)

	var publisher service.PurchasePublisher
	if producer != nil {
		publisher = producer
	}
	purchaseService := service.NewPurchaseService(
		purchaseRepo,
		publisher,
		logger,
		cfg.Purchase.MaxPerOrder,
		cfg.Purchase.MaxAttempts,
	)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger)
	sweetHandler := transport.NewSweetHandler(sweetService, logger)
	purchaseHandler := transport.NewPurchaseHandler(purchaseService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminMiddleware := custommiddleware.RequireAdmin(logger)

	// Rate limit the purchase endpoint per authenticated client
	purchaseRateLimit := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 30,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:purchase",
	}, logger)

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware)
	sweetHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	purchaseHandler.RegisterRoutes(router, authMiddleware, purchaseRateLimit)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		producer:    producer,
	}

	return server
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.Error("Failed to close event producer", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
