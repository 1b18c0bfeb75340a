package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinops/clinops/internal/config"
	"github.com/clinops/clinops/internal/domain/audit"
	"github.com/clinops/clinops/internal/domain/clinical"
	"github.com/clinops/clinops/internal/domain/identity"
	"github.com/clinops/clinops/internal/domain/lifecycle"
	"github.com/clinops/clinops/internal/domain/patientaccess"
	"github.com/clinops/clinops/internal/domain/plan"
	"github.com/clinops/clinops/internal/domain/scheduling"
	"github.com/clinops/clinops/internal/platform/auth"
	"github.com/clinops/clinops/internal/platform/breakglass"
	"github.com/clinops/clinops/internal/platform/correlation"
	"github.com/clinops/clinops/internal/platform/db"
	"github.com/clinops/clinops/internal/platform/errs"
	"github.com/clinops/clinops/internal/platform/middleware"
	"github.com/clinops/clinops/internal/platform/obs"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinops-server",
		Short: "Clinical operations governance API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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
			if dir == "" {
				dir = cfg.MigrationsDir
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
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
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
			if dir == "" {
				dir = cfg.MigrationsDir
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
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

	// Redis (break-glass grant store)
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	logger.Info().Msg("connected to redis")

	// Audit trail
	eventRepo := audit.NewRepoPG(pool)
	recorder := audit.NewRecorder(eventRepo, logger)
	if len(cfg.KafkaBrokers) > 0 {
		publisher := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		recorder.SetPublisher(publisher)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).
			Msg("event stream publisher enabled")
	}

	// Identity and access
	resolver := identity.NewResolver(identity.NewRepoPG(pool), recorder, logger)
	overrideStore := breakglass.NewStore(redisClient, cfg.BreakGlassTTL)
	accessRepo := patientaccess.NewRepoPG(pool)
	validator := patientaccess.NewValidator(accessRepo, resolver, overrideStore, recorder, logger)

	// Lifecycle guard with every governed entity registered
	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithinTx(ctx, pool, fn)
	}
	guard := lifecycle.NewGuard(resolver, recorder, txRunner, logger)

	schedRepo := scheduling.NewRepoPG(pool)
	guard.Register(scheduling.Transitions(), schedRepo)
	schedSvc := scheduling.NewService(schedRepo, validator, guard, logger)

	planRepo := plan.NewRepoPG(pool)
	guard.Register(plan.Transitions(), planRepo)
	planSvc := plan.NewService(planRepo, validator, schedRepo, guard, logger)

	clinicalSvc := clinical.NewService(clinical.NewRepoPG(pool), validator, resolver, recorder, txRunner, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errs.HTTPErrorHandler(e.DefaultHTTPErrorHandler)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(correlation.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Correlation-ID"},
	}))

	// Metrics
	obs.Init()
	e.Use(obs.Instrument())
	e.GET("/metrics", obs.Handler())

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API routes
	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	adminOnly := auth.RequireRole(resolver, identity.RoleAdmin)

	identity.NewHandler(resolver).RegisterRoutes(api)
	patientaccess.NewHandler(validator, accessRepo, resolver).RegisterRoutes(api)
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)
	plan.NewHandler(planSvc).RegisterRoutes(api)
	clinical.NewHandler(clinicalSvc).RegisterRoutes(api)
	audit.NewHandler(recorder).RegisterRoutes(api, adminOnly)
	breakglass.NewHandler(overrideStore, recorder, logger).RegisterRoutes(api, adminOnly)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
