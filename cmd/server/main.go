package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/auth"
	"github.com/AndesTrek-Travel/service-payments/internal/config"
	"github.com/AndesTrek-Travel/service-payments/internal/coupons"
	"github.com/AndesTrek-Travel/service-payments/internal/database"
	"github.com/AndesTrek-Travel/service-payments/internal/handler"
	"github.com/AndesTrek-Travel/service-payments/internal/health"
	"github.com/AndesTrek-Travel/service-payments/internal/logger"
	"github.com/AndesTrek-Travel/service-payments/internal/middleware"
	"github.com/AndesTrek-Travel/service-payments/internal/notify"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
	"github.com/AndesTrek-Travel/service-payments/internal/provider/paypal"
	"github.com/AndesTrek-Travel/service-payments/internal/provider/wompi"
	"github.com/AndesTrek-Travel/service-payments/internal/queue"
	"github.com/AndesTrek-Travel/service-payments/internal/rates"
	"github.com/AndesTrek-Travel/service-payments/internal/reconciliation"
	"github.com/AndesTrek-Travel/service-payments/internal/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "service-payments"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting service-payments",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.AppEnv),
	)

	// Connect to database
	db, err := database.Connect(cfg.DBConfig.DSN(), zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(
			&repository.PaymentModel{},
			&repository.RefundModel{},
			&repository.WebhookEventModel{},
			&repository.BookingModel{},
			&repository.InventoryLockModel{},
			&repository.AgentAgreementModel{},
			&repository.CommissionModel{},
			&repository.SlotModel{},
		); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DBConfig.URL(), "migrations", zapLogger); err != nil {
			zapLogger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTSecret,
		15*time.Minute,
		7*24*time.Hour,
	)

	// Initialize Kafka collaborators
	groupID := cfg.KafkaConfig.GroupPrefix + serviceName
	transport := queue.NewKafkaTransport(cfg.KafkaConfig.Brokers, groupID, zapLogger)
	defer transport.Close()

	notifier := notify.NewKafkaNotifier(cfg.KafkaConfig.Brokers, serviceName, zapLogger)
	defer notifier.Close()

	couponService := coupons.NewKafkaCouponService(cfg.KafkaConfig.Brokers, serviceName, zapLogger)
	defer couponService.Close()

	// Initialize gateway adapters
	production := cfg.IsProduction()
	providers := provider.NewFactory(
		wompi.NewAdapter(cfg.WompiConfig, production, zapLogger),
		paypal.NewAdapter(cfg.PayPalConfig, production, zapLogger),
	)

	// Initialize application services
	txManager := repository.NewTxManager(db)
	rateService := rates.NewTableService(cfg.ExchangeRates)
	confirmationService := application.NewConfirmationService(couponService, notifier, cfg.PlatformCommissionBps, zapLogger)
	refundService := application.NewRefundService(
		txManager,
		providers,
		notifier,
		time.Duration(cfg.RefundWindowHours)*time.Hour,
		zapLogger,
	)
	paymentService := application.NewPaymentService(
		txManager,
		providers,
		rateService,
		confirmationService,
		refundService,
		production,
		cfg.PaymentExpiry,
		zapLogger,
	)
	capacityService := application.NewCapacityService(txManager, zapLogger)

	// Start reconciliation loops
	reconCtx, reconCancel := context.WithCancel(context.Background())
	defer reconCancel()

	producer := reconciliation.NewProducer(txManager, transport, cfg.Reconciliation, zapLogger)
	consumer := reconciliation.NewConsumer(paymentService, transport, cfg.Reconciliation, zapLogger)
	go producer.Run(reconCtx)
	go consumer.Run(reconCtx)

	// Initialize HTTP handlers
	paymentHandler := handler.NewPaymentHandler(paymentService, refundService)
	webhookHandler := handler.NewWebhookHandler(paymentService, providers, zapLogger)
	adminHandler := handler.NewAdminHandler(paymentService)
	capacityHandler := handler.NewCapacityHandler(capacityService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, serviceName)
	healthHandler.RegisterRoutes(router)

	// Register API routes
	apiV1 := router.Group("/api/v1")
	paymentHandler.RegisterRoutes(apiV1, jwtManager)
	webhookHandler.RegisterRoutes(apiV1)
	adminHandler.RegisterRoutes(apiV1, jwtManager)
	capacityHandler.RegisterRoutes(apiV1, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down service-payments...")

	// Stop reconciliation loops
	reconCancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("service-payments stopped")
}
