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

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sdms/payment-core/internal"
	"github.com/sdms/payment-core/internal/core/events"
	"github.com/sdms/payment-core/internal/gateway"
	"github.com/sdms/payment-core/internal/gateway/paystack"
	"github.com/sdms/payment-core/internal/ledger"
	ledgerpostgres "github.com/sdms/payment-core/internal/ledger/postgres"
	"github.com/sdms/payment-core/internal/notification"
	"github.com/sdms/payment-core/internal/order"
	"github.com/sdms/payment-core/internal/payment"
	"github.com/sdms/payment-core/internal/transport"
	"github.com/sdms/payment-core/internal/transport/rest"
	"github.com/sdms/payment-core/internal/webhook"
	webhookpostgres "github.com/sdms/payment-core/internal/webhook/postgres"
	"github.com/sdms/payment-core/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle payment API requests and gateway webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Router     *chi.Mux
	Logger     *slog.Logger
	Dispatcher *notification.Dispatcher
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.Dispatcher.Shutdown()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm connection: %w", err)
	}

	eventBus := events.NewEventBus(lg)

	registry := gateway.NewRegistry(lg, buildAdapters(config, lg)...)

	ledgerService := ledger.NewService(ledgerpostgres.NewPaymentRepository(gormDB), lg)

	ingestor := webhook.NewIngestor(registry, ledgerService, webhookpostgres.NewEventRepository(gormDB), eventBus, lg)

	paymentService := payment.NewService(ledgerService, registry, eventBus, config.Payment.CallbackBaseURL, lg)

	var notifier order.Notifier
	if config.Order.NotifyURL != "" {
		notifier = order.NewHTTPNotifier(config.Order.NotifyURL, config.Order.RequestTimeout, lg)
	} else {
		notifier = order.NewLogNotifier(lg)
	}
	order.NewEventHandler(notifier, lg).RegisterEventHandlers(eventBus)

	dispatcher := notification.NewDispatcher(notification.Config{
		MaxWorkers:   config.Notification.MaxWorkers,
		JobQueueSize: config.Notification.JobQueueSize,
	}, &notification.LogSender{Logger: lg}, lg)
	notification.NewEventHandler(dispatcher, lg).RegisterEventHandlers(eventBus)

	baseHandler := transport.NewBaseHandler(lg)
	paymentHandler := payment.NewHandler(baseHandler, paymentService, lg)
	webhookHandler := webhook.NewHandler(baseHandler, ingestor, lg)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, paymentHandler, webhookHandler, lg)

	return &Dependencies{
		Config:     config,
		DB:         db,
		Router:     router,
		Logger:     lg,
		Dispatcher: dispatcher,
	}, nil
}

// buildAdapters wires one adapter per enabled gateway in configuration.
func buildAdapters(config *internal.Config, lg *slog.Logger) []gateway.Adapter {
	var adapters []gateway.Adapter
	for name, gwCfg := range config.Payment.Gateways {
		if !gwCfg.Enabled {
			continue
		}
		switch name {
		case paystack.GatewayName:
			adapters = append(adapters, paystack.New(paystack.Config{
				BaseURL:        gwCfg.BaseURL,
				SecretKey:      gwCfg.SecretKey,
				CallbackURL:    config.Payment.CallbackBaseURL,
				RequestTimeout: config.Payment.RequestTimeoutOrDefault(),
			}, lg))
		default:
			lg.Warn("no adapter implementation for configured gateway", "gateway", name)
		}
	}
	return adapters
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

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
