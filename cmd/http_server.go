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

	"github.com/frahmantamala/momo-settlement/internal"
	"github.com/frahmantamala/momo-settlement/internal/core/events"
	"github.com/frahmantamala/momo-settlement/internal/gateway"
	"github.com/frahmantamala/momo-settlement/internal/notification"
	"github.com/frahmantamala/momo-settlement/internal/settlement"
	settlementpg "github.com/frahmantamala/momo-settlement/internal/settlement/postgres"
	"github.com/frahmantamala/momo-settlement/internal/transport/rest"
	"github.com/frahmantamala/momo-settlement/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server and the settlement reconciliation loop`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Router     *chi.Mux
	Reconciler *settlement.Reconciler
	Logger     *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	// Pick up any records a previous process left in flight before accepting
	// traffic; callbacks for them may already be on the way.
	if err := deps.Reconciler.Resume(context.Background()); err != nil {
		deps.Logger.Error("failed to resume in-flight reconciliation", "error", err)
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
		deps.Reconciler.Shutdown()
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
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Reuse the pgx pool underneath gorm instead of opening a second one.
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	eventBus := events.NewEventBus(log)
	notifier := notification.NewEventNotifier(eventBus, log)
	gatewayClient := gateway.NewClient(config.Gateway, log)
	repo := settlementpg.NewPaymentRepository(gormDB)

	service := settlement.NewService(repo, gatewayClient, notifier, eventBus, log)
	reconciler := settlement.NewReconciler(
		repo,
		config.Reconciliation.IntervalOrDefault(),
		config.Reconciliation.MaxAttemptsOrDefault(),
		log,
	)
	service.SetMonitor(reconciler)
	reconciler.Bind(service)

	paymentHandler := settlement.NewHandler(log, service)
	webhookHandler := settlement.NewWebhookHandler(log, service)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, paymentHandler, webhookHandler, log)

	return &Dependencies{
		Config:     config,
		Logger:     log,
		DB:         db,
		Router:     router,
		Reconciler: reconciler,
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
