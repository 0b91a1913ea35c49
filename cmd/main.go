package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/mstgnz/pesapay/infra/auth"
	"github.com/mstgnz/pesapay/infra/config"
	"github.com/mstgnz/pesapay/infra/logger"
	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/opensearch"
	"github.com/mstgnz/pesapay/infra/response"
	"github.com/mstgnz/pesapay/infra/validate"
	"github.com/mstgnz/pesapay/provider"
	"github.com/mstgnz/pesapay/router"
	v1 "github.com/mstgnz/pesapay/router/v1"
)

var (
	PORT             string
	openSearchLogger *opensearch.Logger
)

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using process environment")
	}
	// init conf
	_ = config.App()
	validate.CustomValidate()

	PORT = config.GetEnv("APP_PORT", "9999")

	// Initialize OpenSearch client and logger
	cfg := config.GetAppConfig()
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}

	logger.InitGlobalLogger(openSearchLogger)
}

func main() {
	cfg := config.GetAppConfig()

	// Merchant accounts, provider configurations and payment history all
	// live in one SQLite database.
	storage, err := config.NewSQLiteStorage(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open SQLite storage at %s: %v", cfg.SQLitePath, err)
	}
	defer storage.Close()
	db := storage.DB()

	jwtService := auth.NewJWTService()
	merchantService, err := auth.NewMerchantService(db, jwtService)
	if err != nil {
		log.Fatalf("Failed to initialize merchant service: %v", err)
	}

	var paymentLogger provider.PaymentLogger
	if sqliteLogger, err := provider.NewSQLitePaymentLoggerFromDB(db); err != nil {
		log.Printf("Failed to initialize payment history store: %v", err)
		log.Println("Continuing without payment history...")
	} else {
		paymentLogger = sqliteLogger
	}
	paymentService := provider.NewPaymentService(paymentLogger)

	providerConfig := config.NewProviderConfig(storage)

	// Seed default configurations from the environment, then register every
	// provider that ended up with one (environment or persisted).
	for _, providerName := range provider.GetProviderNames() {
		envConfig := providerConfig.LoadFromEnv(providerName)
		if len(envConfig) == 0 {
			continue
		}
		if err := providerConfig.SetDefaultConfig(providerName, envConfig); err != nil {
			log.Printf("Failed to store configuration for provider %s: %v", providerName, err)
		}
	}
	for _, providerName := range providerConfig.GetAvailableProviders() {
		providerCfg, err := providerConfig.GetConfig(providerName)
		if err != nil {
			log.Printf("Failed to get configuration for provider %s: %v", providerName, err)
			continue
		}
		if err := paymentService.AddProvider(providerName, providerCfg); err != nil {
			log.Printf("Failed to register provider %s: %v", providerName, err)
			continue
		}
		log.Printf("Registered payment provider: %s", providerName)
	}

	merchantRateLimiter := middle.NewMerchantRateLimiter()

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))

	// Security Middleware
	rateLimiter := middle.NewRateLimiter()
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.IPWhitelistMiddleware())
	r.Use(middle.RateLimitMiddleware(rateLimiter))
	r.Use(middle.RequestValidationMiddleware())

	// OpenSearch Logging Middleware (add before authentication to log all requests)
	if openSearchLogger != nil {
		r.Use(middle.PaymentLoggingMiddleware(openSearchLogger))
		r.Use(middle.LoggingStatsMiddleware(openSearchLogger))
		log.Println("Payment logging middleware enabled")
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Timestamp", "Hash", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length", "Access-Control-Allow-Origin"},
		AllowCredentials: true,
		MaxAge:           300, // Preflight cache time (second)
	}))

	// Health check, gateway return routes and the versioned API
	router.Routes(r, v1.Services{
		DB:              db,
		PaymentService:  paymentService,
		ProviderConfig:  providerConfig,
		MerchantService: merchantService,
		JWTService:      jwtService,
		RateLimiter:     merchantRateLimiter,
		Logger:          openSearchLogger,
	})

	// Not Found
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusNotFound, response.Response{Success: false, Message: "Not Found"})
	})

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", PORT),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err.Error())
		}
	}()

	log.Println("API is running on", PORT)

	// Block until a signal is received
	<-ctx.Done()

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
