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

	"github.com/clinicore/api/internal/config"
	"github.com/clinicore/api/internal/domain/admin"
	"github.com/clinicore/api/internal/domain/appointment"
	"github.com/clinicore/api/internal/domain/audit"
	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/billing"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/domain/medrecord"
	"github.com/clinicore/api/internal/domain/visit"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/internal/platform/db"
	"github.com/clinicore/api/internal/platform/events"
	"github.com/clinicore/api/internal/platform/middleware"
)

// overdueSweepInterval is how often issued invoices past their due date are
// moved to OVERDUE.
const overdueSweepInterval = time.Hour

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic practice management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedAdminCmd())

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

	// migrate up
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

	// migrate status
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

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

func seedAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			identitySvc := newIdentityService(cfg, pool, logger)
			user, err := identitySvc.Register(ctx, identity.RegisterInput{
				Email:    email,
				Password: password,
				Role:     auth.RoleAdmin,
			})
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}

			fmt.Printf("Created admin user %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Admin email address")
	cmd.Flags().String("password", "", "Admin password (min 8 characters)")
	return cmd
}

// newIdentityService wires the identity service with its full dependency
// set. Shared between serve and seed-admin.
func newIdentityService(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *identity.Service {
	visitRepo := visit.NewRepoPG(pool)
	policy := authz.NewPolicy(visitRepo)
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL)
	runner := db.NewRunner(pool)
	auditSvc := audit.NewService(audit.NewRepoPG(pool), logger)

	return identity.NewService(
		identity.NewUserRepoPG(pool),
		identity.NewPatientRepoPG(pool),
		identity.NewDoctorRepoPG(pool),
		policy, tokens, runner, auditSvc,
	)
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config. Load validates; a production config without a real JWT
	// secret never gets this far.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	runner := db.NewRunner(pool)

	// Repositories
	userRepo := identity.NewUserRepoPG(pool)
	patientRepo := identity.NewPatientRepoPG(pool)
	doctorRepo := identity.NewDoctorRepoPG(pool)
	apptRepo := appointment.NewRepoPG(pool)
	visitRepo := visit.NewRepoPG(pool)
	recordRepo := medrecord.NewRepoPG(pool)
	billingRepo := billing.NewRepoPG(pool)
	auditRepo := audit.NewRepoPG(pool)

	// The visit store doubles as the treatment-relationship lookup the
	// policy consults for doctor access to unrelated patients.
	policy := authz.NewPolicy(visitRepo)

	auditSvc := audit.NewService(auditRepo, logger)
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL)
	bus := events.NewBus(logger)

	// Services
	identitySvc := identity.NewService(userRepo, patientRepo, doctorRepo, policy, tokens, runner, auditSvc)
	apptSvc := appointment.NewService(apptRepo, patientRepo, doctorRepo, policy, auditSvc)
	visitSvc := visit.NewService(visitRepo, patientRepo, doctorRepo, policy, bus, auditSvc, runner, cfg.DefaultCurrency, cfg.InvoiceMaxAmount)
	recordSvc := medrecord.NewService(recordRepo, visitRepo, policy, auditSvc)
	billingSvc := billing.NewService(billingRepo, patientRepo, policy, auditSvc, runner, cfg.DefaultCurrency, cfg.InvoiceMaxAmount)
	adminSvc := admin.NewService(admin.NewRepoPG(pool), cfg.DefaultCurrency)

	// Completed visits draft their invoice through the in-process bus.
	bus.Subscribe(visit.EventCompleted, billingSvc.HandleVisitCompleted)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Audit entries carry the caller's address.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := audit.WithClientIP(c.Request().Context(), c.RealIP())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	// API groups. Registration and login are reachable without a token;
	// everything else requires one.
	public := e.Group("/api/v1")
	api := e.Group("/api/v1")
	if cfg.IsDev() && cfg.JWTSecret == "" {
		devUserID := uuid.NewString()
		logger.Warn().Str("user_id", devUserID).Msg("dev auth active, all requests run as admin")
		api.Use(auth.DevAuthMiddleware(devUserID))
	} else {
		api.Use(auth.JWTMiddleware([]byte(cfg.JWTSecret), cfg.JWTIssuer))
	}

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	public.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Domain routes
	identity.NewHandler(identitySvc).RegisterRoutes(public, api)
	appointment.NewHandler(apptSvc, identitySvc).RegisterRoutes(api)
	visit.NewHandler(visitSvc, identitySvc).RegisterRoutes(api)
	medrecord.NewHandler(recordSvc, identitySvc).RegisterRoutes(api)
	billing.NewHandler(billingSvc, identitySvc).RegisterRoutes(api)
	audit.NewHandler(auditSvc).RegisterRoutes(api)
	admin.NewHandler(adminSvc, identitySvc).RegisterRoutes(api)

	// Periodic sweep of issued invoices past their due date.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(overdueSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				n, err := billingSvc.SweepOverdue(sweepCtx)
				if err != nil {
					logger.Error().Err(err).Msg("overdue invoice sweep failed")
				} else if n > 0 {
					logger.Info().Int("count", n).Msg("marked invoices overdue")
				}
			}
		}
	}()

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
