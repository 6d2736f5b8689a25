package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gatewayDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/gateway"
	"github.com/akwaba/rentpay/internal/core/events"
	"github.com/akwaba/rentpay/internal/gateway"
	intentPostgres "github.com/akwaba/rentpay/internal/intent/postgres"
	"github.com/akwaba/rentpay/internal/reconcile"
	reconcilePostgres "github.com/akwaba/rentpay/internal/reconcile/postgres"
	"github.com/akwaba/rentpay/internal/sideeffect"
	sideeffectPostgres "github.com/akwaba/rentpay/internal/sideeffect/postgres"
	"github.com/akwaba/rentpay/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers: reconciliation sweeps, gateway simulation.`,
}

// Sweep worker command
var sweepWorkerCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Start the reconciliation sweeps",
	Long:  `Run the expiry and replay sweeps against the database until interrupted`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweepWorker()
	},
}

// Gateway simulation worker command
var gatewayWorkerCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start a simulated mobile-money gateway",
	Long:  `Run a local stand-in for the gateway's collection API that posts signed settlement callbacks`,
	Run: func(cmd *cobra.Command, args []string) {
		startGatewayWorker()
	},
}

var (
	gatewayListenPort int
)

func startSweepWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	eventBus := events.NewEventBus(log)

	intentRepo := intentPostgres.NewIntentRepository(gormDB)
	callbackRepo := reconcilePostgres.NewCallbackRepository(gormDB)
	receiptRepo := sideeffectPostgres.NewReceiptRepository(gormDB)

	documentClient := sideeffect.NewDocumentClient(sideeffect.CollaboratorConfig{
		BaseURL:        config.Gateway.BaseURL,
		APIKey:         config.Gateway.APIKey,
		RequestTimeout: config.Gateway.RequestTimeout,
	}, log)
	esignClient := sideeffect.NewESignClient(sideeffect.CollaboratorConfig{
		BaseURL:        config.Gateway.BaseURL,
		APIKey:         config.Gateway.APIKey,
		RequestTimeout: config.Gateway.RequestTimeout,
	}, log)
	pipeline := sideeffect.NewPipeline(receiptRepo, intentRepo, documentClient, esignClient, log)
	sideeffect.NewEventHandler(pipeline, log).RegisterEventHandlers(eventBus)

	engine := reconcile.NewEngine(intentRepo, callbackRepo, eventBus, log)
	sweeper := reconcile.NewSweeper(engine, intentRepo, callbackRepo, eventBus, reconcile.SweeperConfig{
		ExpiryHorizon:  config.Sweep.ExpiryHorizon,
		ExpiryInterval: config.Sweep.ExpiryInterval,
		ReplayInterval: config.Sweep.ReplayInterval,
		BatchSize:      config.Sweep.BatchSize,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	go sweeper.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("sweep worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Info("received signal, shutting down sweep worker", "signal", sig)
	cancel()
	log.Info("sweep worker shutdown complete")
}

func startGatewayWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.LoggerWrapper()

	gatewayCfg := config.Gateway
	gatewayCfg.Simulate = true

	verifier := reconcile.NewSignatureVerifier(config.Security.WebhookSecret)
	client := gateway.NewClient(gatewayCfg, verifier, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/collections", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req gatewayDatamodel.InitiationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp, err := client.Initiate(r.Context(), &req)
		if err != nil {
			log.Error("simulated initiation failed", "error", err, "reference", req.Reference)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)
	})

	addr := fmt.Sprintf(":%d", gatewayListenPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("simulated gateway listening", "address", addr, "callback_url", gatewayCfg.CallbackURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("simulated gateway failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received signal, shutting down simulated gateway", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("simulated gateway shutdown error", "error", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		client.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info("simulated gateway shutdown complete")
	case <-ctx.Done():
		log.Warn("shutdown timeout reached, forcing exit")
	}
}

func init() {
	gatewayWorkerCmd.Flags().IntVar(&gatewayListenPort, "port", 9090, "Port for the simulated gateway to listen on")

	workerCmd.AddCommand(sweepWorkerCmd)
	workerCmd.AddCommand(gatewayWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
