package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/config"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/admission"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/bed"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/scheduling"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/domain/surgery"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/auth"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/db"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/lock"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/middleware"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/notification"
	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/telemetry"
	"github.com/ACW-Developers/urological-patient-mis-sub001/migrations"
	"github.com/ACW-Developers/urological-patient-mis-sub001/pkg/clock"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pathway-server",
		Short: "Surgical care-pathway API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(bedsCmd())

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

func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2, MinConns: 1, ApplicationName: "pathway-cli"})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
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
			to, _ := cmd.Flags().GetInt("to")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).UpTo(ctx, to)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
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
	})

	return cmd
}

func bedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beds",
		Short: "Inspect the resource catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every bed and room with occupancy restored from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			beds, err := newBedPool(cfg)
			if err != nil {
				return err
			}
			coord := admission.NewCoordinator(beds, admission.NewRepoPG(pool), surgery.NewSurgeryRepoPG(pool))
			if _, err := coord.RestoreOccupancy(ctx); err != nil {
				return err
			}
			printBoard(cmd.OutOrStdout(), beds)
			return nil
		},
	})
	return cmd
}

func printBoard(w io.Writer, beds *bed.Pool) {
	fmt.Fprintf(w, "%-16s %-12s %s\n", "POOL", "NAME", "OCCUPANT")
	for _, kind := range beds.Kinds() {
		for _, r := range beds.Snapshot(kind) {
			occupant := "-"
			if r.OccupantID != nil {
				occupant = r.OccupantID.String()
			}
			fmt.Fprintf(w, "%-16s %-12s %s\n", kind, r.Name, occupant)
		}
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newBedPool(cfg *config.Config) (*bed.Pool, error) {
	catalogs, err := cfg.Catalogs()
	if err != nil {
		return nil, err
	}
	byKind := make(map[bed.Kind][]string, len(catalogs))
	for k, names := range catalogs {
		byKind[bed.Kind(k)] = names
	}
	return bed.NewPool(byKind)
}

func schedulingConfig(cfg *config.Config, loc *time.Location) scheduling.Config {
	return scheduling.Config{
		Granularity:  time.Duration(cfg.SlotGranularityMinutes) * time.Minute,
		HorizonDays:  cfg.SlotHorizonDays,
		DefaultOpen:  cfg.DefaultOpenTime,
		DefaultClose: cfg.DefaultCloseTime,
		Location:     loc,
	}
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.NewMetrics()
	}

	beds, err := newBedPool(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid resource catalog")
	}
	beds.OnChange(func(kind bed.Kind, total, occupied int) {
		metrics.SetPoolOccupancy(string(kind), total, occupied)
	})

	var checks []db.Check

	// Locks: shared through Redis when several instances run, in-process otherwise
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		rl := lock.NewRedisLocker(client, "pathway", logger)
		checks = append(checks, db.Check{Name: "redis", Ping: rl.Ping})
		locker = rl
		logger.Info().Msg("using redis locks")
	}

	// Notifications
	var publishers []notification.Publisher
	if cfg.AMQPURL != "" {
		ch, closeAMQP, err := notification.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		defer closeAMQP()
		publishers = append(publishers, notification.NewAMQPPublisher(ch, cfg.AMQPExchange, logger))
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing notifications")
	}
	clk := clock.System()
	inbox := notification.NewManager(clk, publishers...)
	notifier := notification.Observed(inbox, metrics.NotificationFailed)

	txRunner := db.NewTxRunner(pool)

	// Care pathway
	surgeryRepo := surgery.NewSurgeryRepoPG(pool)
	gate := surgery.NewChecklistGate(surgery.NewChecklistRepoPG(pool), clk)
	coord := admission.NewCoordinator(beds, admission.NewRepoPG(pool), surgeryRepo,
		admission.WithTxRunner(txRunner),
		admission.WithLocker(locker),
		admission.WithNotifier(notifier),
		admission.WithMetrics(metrics),
		admission.WithClock(clk),
		admission.WithLogger(logger.With().Str("component", "admission").Logger()),
	)
	surgerySvc := surgery.NewService(surgeryRepo, gate, coord, coord,
		surgery.WithTxRunner(txRunner),
		surgery.WithLocker(locker),
		surgery.WithNotifier(notifier),
		surgery.WithMetrics(metrics),
		surgery.WithClock(clk),
		surgery.WithLogger(logger.With().Str("component", "surgery").Logger()),
		surgery.WithRooms(surgery.RoomCatalogFunc(func(name string) bool {
			return beds.Has(bed.KindOperatingRoom, name)
		})),
	)
	schedSvc := scheduling.NewService(
		scheduling.NewAvailabilityRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		schedulingConfig(cfg, loc),
		scheduling.WithLocker(locker),
		scheduling.WithNotifier(notifier),
		scheduling.WithMetrics(metrics),
		scheduling.WithClock(clk),
		scheduling.WithLogger(logger.With().Str("component", "scheduling").Logger()),
	)

	restored, err := coord.RestoreOccupancy(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to restore bed occupancy")
	}
	logger.Info().Int("beds", restored).Msg("bed occupancy restored")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if metrics != nil {
		e.Use(metrics.Middleware())
		e.GET("/metrics", metrics.Handler())
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	// API routes
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	apiV1.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second))
	apiV1.Use(middleware.Audit(logger))

	surgery.NewHandler(surgerySvc).RegisterRoutes(apiV1)
	admission.NewHandler(coord).RegisterRoutes(apiV1)
	bed.NewHandler(beds).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)
	notification.NewHandler(inbox).RegisterRoutes(apiV1)

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
