package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/app/store"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/config"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/files"
	http_store "github.com/MusawenkosiMagagula/caps-resources-website/internal/handler/http/store"
	kafka_handler "github.com/MusawenkosiMagagula/caps-resources-website/internal/handler/kafka"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/infrastructure/database"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/infrastructure/kafka"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/mailer"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/payfast"
	postgres_order_repo "github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/order_repo/postgres"
	postgres_outbox_repo "github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/outbox_repo/postgres"
	postgres_product_repo "github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/product_repo/postgres"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/token"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	appLogger.Info("CAPS Resources store starting...")

	appLogger.Info("Waiting for database to be available...")
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.DBHost,
		Port:     cfg.DBConfig.DBPort,
		User:     cfg.DBConfig.DBUser,
		Password: cfg.DBConfig.DBPassword,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.DBSSLMode,
	}

	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}

	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		}
	}()

	appLogger.Info("Running database migrations...")
	migrateDSN := "postgres://" + cfg.GetDBMigrationConnectionString()
	m, err := migrate.New("file://migrations", migrateDSN)
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	kafkaProducer, err := kafka.NewProducer(cfg.GetKafkaBrokers(), appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	orderRepository := postgres_order_repo.NewOrderRepository(db, appLogger)
	productRepository := postgres_product_repo.NewProductRepository(db, appLogger)
	outboxRepository := postgres_outbox_repo.NewOutboxRepository(db, appLogger)

	codec := payfast.NewCodec()
	payfastClient := payfast.NewClient(payfast.Config{
		MerchantID:      cfg.PayFastMerchantID,
		MerchantKey:     cfg.PayFastMerchantKey,
		Passphrase:      cfg.PayFastPassphrase,
		Sandbox:         cfg.PayFastSandbox,
		ReturnURL:       cfg.FrontendURL + "/payment/success",
		CancelURL:       cfg.FrontendURL + "/payment/cancel",
		NotifyURL:       cfg.BackendURL + "/payment/webhook",
		ValidateTimeout: cfg.PayFastValidateTimeout,
	}, codec, appLogger.With(zap.String("component", "PayFastClient")))
	verifier := payfast.NewVerifier(codec, cfg.PayFastPassphrase, payfastClient,
		appLogger.With(zap.String("component", "PaymentWebhookVerifier")))

	clock := token.SystemClock()
	issuer := token.NewIssuer(clock, token.CryptoRand(), cfg.DownloadWindow, cfg.DownloadQuota)
	locator := files.NewDiskLocator(cfg.PDFStoragePath)

	storeService := store.NewStoreService(
		orderRepository,
		productRepository,
		outboxRepository,
		verifier,
		payfastClient,
		issuer,
		clock,
		locator,
		kafkaProducer,
		cfg.KafkaGrantTopic,
		appLogger,
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	go func() {
		ticker := time.NewTicker(cfg.OutboxPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(rootCtx, cfg.OutboxPollTimeout)
				if err := storeService.ProcessOutbox(ctx); err != nil {
					appLogger.Error("Error processing outbox", zap.Error(err))
				}
				cancel()
			}
		}
	}()
	appLogger.Info("Transactional Outbox sender started.")

	purchaseMailer := mailer.NewSMTPMailer(mailer.Config{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPassword,
		From:        cfg.SMTPUser,
		FrontendURL: cfg.FrontendURL,
	}, appLogger.With(zap.String("component", "Mailer")))

	grantConsumer := kafka_handler.NewGrantNotificationConsumer(purchaseMailer, appLogger)
	kafka.StartConsumer(
		rootCtx,
		cfg.GetKafkaBrokers(),
		cfg.KafkaGrantTopic,
		cfg.KafkaConsumerGroup,
		grantConsumer.HandleMessage,
		appLogger,
	)
	appLogger.Info("Kafka grant notification consumer started!")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	http_store.RegisterRoutes(r, storeService, appLogger)

	serverAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	appLogger.Info("CAPS Resources store started", zap.String("address", serverAddr))

	<-sigChan

	appLogger.Info("Shutting down CAPS Resources store...")
	rootCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Fatal("Graceful shutdown failed", zap.Error(err))
	}
	appLogger.Info("CAPS Resources store stopped.")
}
