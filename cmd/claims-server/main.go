package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/claimflow/claimflow/internal/config"
	"github.com/claimflow/claimflow/internal/domain/billables"
	"github.com/claimflow/claimflow/internal/domain/claims"
	"github.com/claimflow/claimflow/internal/domain/payer"
	"github.com/claimflow/claimflow/internal/platform/blobstore"
	"github.com/claimflow/claimflow/internal/platform/db"
	"github.com/claimflow/claimflow/internal/platform/integration"
	"github.com/claimflow/claimflow/internal/platform/jobs"
	"github.com/claimflow/claimflow/internal/platform/middleware"
	"github.com/claimflow/claimflow/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "claims-server",
		Short: "Claims lifecycle API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(workerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the claims API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background job runner without the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			engine := buildEngine(cfg, pool, logger)
			runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().Msg("worker started")
			engine.runner.Start(runCtx)
			logger.Info().Msg("worker stopped")
			return nil
		},
	}
}

// engine bundles the fully wired claims stack.
type engine struct {
	payers    *payer.Service
	billables *billables.Service
	claims    *claims.Service
	runner    *jobs.Runner
}

func buildEngine(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *engine {
	notifier := notification.NewLogNotifier(logger)
	blobs := blobstore.NewInMemoryBlobStore()
	clearinghouse := integration.NewHTTPClient("clearinghouse", cfg.ClearinghouseURL, cfg.ClearinghouseKey)
	adapterOpts := claims.DispatcherOptions{
		Timeout:    cfg.AdapterTimeout(),
		MaxRetries: cfg.AdapterMaxRetries,
		RetryDelay: cfg.AdapterRetryInterval(),
	}

	runner := jobs.NewRunner(logger, notifier,
		jobs.WithPollInterval(time.Duration(cfg.WorkerPollSec)*time.Second))

	payerRepo := payer.NewRepo(pool)
	payerSvc := payer.NewService(payerRepo)

	billableRepo := billables.NewRepo(pool)
	billableSvc := billables.NewService(billableRepo)

	claimRepo := claims.NewRepo(pool)
	historyRepo := claims.NewHistoryRepo(pool)
	lineRepo := claims.NewLineRepo(pool)
	uow := claims.NewUnitOfWork(pool)
	machine := claims.NewStateMachine(claimRepo, historyRepo, uow)
	validator := claims.NewValidator(claimRepo, lineRepo, payerSvc, billableSvc, machine, cfg.DefaultBatchMethod, logger)
	dispatcher := claims.NewDispatcher(claimRepo, lineRepo, payerSvc, machine, uow, clearinghouse, blobs, adapterOpts, logger)
	tracker := claims.NewTracker(claimRepo, historyRepo, payerSvc, machine, clearinghouse, nil, notifier, adapterOpts, logger)
	batch := claims.NewBatchProcessor(claimRepo, payerSvc, validator, dispatcher, tracker,
		clearinghouse, runner, adapterOpts, cfg.DefaultBatchMethod, cfg.RefreshDelay(), cfg.RecheckDelay(), logger)

	claimSvc := claims.NewService(claims.ServiceDeps{
		Claims:     claimRepo,
		Lines:      lineRepo,
		History:    historyRepo,
		Payers:     payerSvc,
		Catalog:    billableSvc,
		Machine:    machine,
		Validator:  validator,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Batch:      batch,
		UoW:        uow,
		Scheduler:  runner,
	}, claims.ServicePolicy{
		AutoSubmit:   cfg.AutoSubmit,
		RefreshDelay: cfg.RefreshDelay(),
	}, logger)
	claimSvc.RegisterJobHandlers(runner)

	return &engine{
		payers:    payerSvc,
		billables: billableSvc,
		claims:    claimSvc,
		runner:    runner,
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	eng := buildEngine(cfg, pool, logger)
	payer.NewHandler(eng.payers).RegisterRoutes(apiV1)
	billables.NewHandler(eng.billables).RegisterRoutes(apiV1)
	claims.NewHandler(eng.claims).RegisterRoutes(apiV1)

	// Run the job runner alongside the HTTP server.
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go eng.runner.Start(runCtx)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-runCtx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
