package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akwaba/rentpay/internal"
	"github.com/akwaba/rentpay/internal/auth"
	"github.com/akwaba/rentpay/internal/core/events"
	"github.com/akwaba/rentpay/internal/gateway"
	"github.com/akwaba/rentpay/internal/intent"
	intentPostgres "github.com/akwaba/rentpay/internal/intent/postgres"
	"github.com/akwaba/rentpay/internal/reconcile"
	reconcilePostgres "github.com/akwaba/rentpay/internal/reconcile/postgres"
	"github.com/akwaba/rentpay/internal/sideeffect"
	sideeffectPostgres "github.com/akwaba/rentpay/internal/sideeffect/postgres"
	"github.com/akwaba/rentpay/internal/transport/rest"
	"github.com/akwaba/rentpay/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and the settlement callback ingress`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config        *internal.Config
	DB            *sqlx.DB
	Gorm          *gorm.DB
	Router        *chi.Mux
	EventBus      *events.EventBus
	GatewayClient *gateway.Client
	Sweeper       *reconcile.Sweeper
	Logger        *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go deps.Sweeper.Run(sweepCtx)

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		stopSweeper()
		deps.GatewayClient.Shutdown()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		stopSweeper()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	eventBus := events.NewEventBus(appLogger)
	verifier := reconcile.NewSignatureVerifier(config.Security.WebhookSecret)

	// Repositories
	intentRepo := intentPostgres.NewIntentRepository(gormDB)
	callbackRepo := reconcilePostgres.NewCallbackRepository(gormDB)
	receiptRepo := sideeffectPostgres.NewReceiptRepository(gormDB)

	// Side-effect pipeline subscribed to confirmation events
	documentClient := sideeffect.NewDocumentClient(sideeffect.CollaboratorConfig{
		BaseURL:        config.Gateway.BaseURL,
		APIKey:         config.Gateway.APIKey,
		RequestTimeout: config.Gateway.RequestTimeout,
	}, appLogger)
	esignClient := sideeffect.NewESignClient(sideeffect.CollaboratorConfig{
		BaseURL:        config.Gateway.BaseURL,
		APIKey:         config.Gateway.APIKey,
		RequestTimeout: config.Gateway.RequestTimeout,
	}, appLogger)
	pipeline := sideeffect.NewPipeline(receiptRepo, intentRepo, documentClient, esignClient, appLogger)
	sideeffect.NewEventHandler(pipeline, appLogger).RegisterEventHandlers(eventBus)

	// Reconciliation engine and sweeps
	engine := reconcile.NewEngine(intentRepo, callbackRepo, eventBus, appLogger)
	sweeper := reconcile.NewSweeper(engine, intentRepo, callbackRepo, eventBus, reconcile.SweeperConfig{
		ExpiryHorizon:  config.Sweep.ExpiryHorizon,
		ExpiryInterval: config.Sweep.ExpiryInterval,
		ReplayInterval: config.Sweep.ReplayInterval,
		BatchSize:      config.Sweep.BatchSize,
	}, appLogger)

	// Gateway client and intent service
	gatewayClient := gateway.NewClient(config.Gateway, verifier, appLogger)
	intentService := intent.NewService(intentRepo, intentRepo, gatewayClient, intent.ServiceConfig{
		GatewayBaseURL: config.Gateway.BaseURL,
		CallbackURL:    config.Gateway.CallbackURL,
		ReturnURL:      config.Gateway.ReturnURL,
		USSDShortCode:  config.Gateway.USSDShortCode,
		GatewayTimeout: config.Gateway.RequestTimeout,
	}, appLogger)

	// Handlers and router
	intentHandler := intent.NewHandler(intentService, appLogger)
	webhookHandler := reconcile.NewWebhookHandler(engine, verifier, appLogger)
	authMiddleware := auth.NewMiddleware(auth.NewJWTValidator(config.Security.JWTSecret), appLogger)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, authMiddleware, intentHandler, webhookHandler, config.Server.AllowedOrigins, appLogger)

	return &Dependencies{
		Config:        config,
		DB:            db,
		Gorm:          gormDB,
		Router:        router,
		EventBus:      eventBus,
		GatewayClient: gatewayClient,
		Sweeper:       sweeper,
		Logger:        appLogger,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm wraps the existing connection pool. TranslateError is required so
// unique-constraint violations surface as gorm.ErrDuplicatedKey, which the
// reference generator and receipt issuance rely on.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormPostgres.New(gormPostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{
		TranslateError: true,
	})
}
