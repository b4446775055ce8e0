package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mediledger/nexus/internal/config"
	"github.com/mediledger/nexus/internal/domain/consent"
	"github.com/mediledger/nexus/internal/domain/emergency"
	"github.com/mediledger/nexus/internal/domain/registry"
	"github.com/mediledger/nexus/internal/domain/research"
	"github.com/mediledger/nexus/internal/domain/vault"
	"github.com/mediledger/nexus/internal/platform/auth"
	"github.com/mediledger/nexus/internal/platform/clock"
	"github.com/mediledger/nexus/internal/platform/db"
	"github.com/mediledger/nexus/internal/platform/events"
	"github.com/mediledger/nexus/internal/platform/middleware"
	"github.com/mediledger/nexus/internal/platform/notification"
	"github.com/mediledger/nexus/internal/platform/payment"
)

// devIdentity is the caller assumed by the dev auth middleware when no
// X-Debug-Identity header is present.
var devIdentity = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func main() {
	rootCmd := &cobra.Command{
		Use:   "nexus-server",
		Short: "Health record access and settlement API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(bootstrapCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Shared platform wiring. The registry service doubles as the
	// authorizer consumed by the vault and emergency engines.
	clk := clock.System()
	sink := events.NewPGSink(pool)
	ledger := payment.NewPGLedger(pool)
	txRunner := db.PoolTxRunner{Pool: pool}
	dispatcher := notification.NewDispatcher(notification.LogNotifier{Logger: logger})

	registrySvc := registry.NewService(registry.NewRepoPG(pool), sink, clk)
	vaultSvc := vault.NewService(
		vault.NewRecordRepoPG(pool),
		vault.NewGrantRepoPG(pool),
		registrySvc,
		sink, clk, txRunner,
	)
	consentSvc := consent.NewService(
		consent.NewAgreementRepoPG(pool),
		consent.NewSubGrantRepoPG(pool),
		ledger,
		sink, clk, txRunner,
	)
	researchSvc := research.NewService(
		research.NewStudyRepoPG(pool),
		research.NewParticipantRepoPG(pool),
		research.NewContributionRepoPG(pool),
		ledger,
		sink, clk, txRunner,
	)
	emergencySvc := emergency.NewService(
		emergency.NewProfileRepoPG(pool),
		emergency.NewAccessRecordRepoPG(pool),
		emergency.NewRequestRepoPG(pool),
		registrySvc,
		dispatcher,
		sink, clk, txRunner,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Debug-Identity"},
	}))

	e.GET("/health", db.HealthHandler(pool))

	api := e.Group("/api/v1")
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware(devIdentity))
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.JWTSigningKey),
		}))
	}

	registry.NewHandler(registrySvc).RegisterRoutes(api)
	payment.NewHandler(ledger).RegisterRoutes(api)
	vault.NewHandler(vaultSvc).RegisterRoutes(api)
	consent.NewHandler(consentSvc).RegisterRoutes(api)
	research.NewHandler(researchSvc).RegisterRoutes(api)
	emergency.NewHandler(emergencySvc).RegisterRoutes(api)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
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
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if dir == "" {
					dir = cfg.MigrationsDir
				}
				count, err := db.NewMigrator(pool, dir).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s).\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default from config)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if dir == "" {
					dir = cfg.MigrationsDir
				}
				statuses, err := db.NewMigrator(pool, dir).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default from config)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// bootstrapCmd sets the registry owner. It runs once against a fresh
// database; the owner cannot be changed afterwards.
func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap <owner-uuid>",
		Short: "Set the registry owner identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid owner identity: %w", err)
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				svc := registry.NewService(registry.NewRepoPG(pool), events.NewPGSink(pool), clock.System())
				if err := svc.Bootstrap(ctx, owner); err != nil {
					return err
				}
				fmt.Printf("Registry owner set to %s.\n", owner)
				return nil
			})
		},
	}
}

// withPool loads config, opens the pool and runs fn, closing the pool after.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
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
	return fn(ctx, cfg, pool)
}
