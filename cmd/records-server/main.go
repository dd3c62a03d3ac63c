package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/domain/identity"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/document"
	"github.com/ehr/records/internal/platform/events"
	"github.com/ehr/records/internal/platform/middleware"
	"github.com/ehr/records/internal/server"
	"github.com/ehr/records/internal/storage/memory"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "records-server",
		Short:        "Clinic records API server",
		Version:      server.Version,
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(userCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the records API server",
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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, dir, schema).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir, schema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migration status for schema: %s\n", schema)
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.DateTime)
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	deactivateCmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate an account and its patient record",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			if email == "" {
				return fmt.Errorf("--email is required")
			}

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repos := server.PostgresRepositories(pool)
			svc := identity.NewService(repos.Tx, repos.Identities, repos.Patients, repos.Doctors, nil, nil,
				identity.Options{Logger: newLogger("", io.Discard)})
			u, err := svc.DeactivateByEmail(ctx, email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	deactivateCmd.Flags().String("email", "", "Email of the account to deactivate")
	cmd.AddCommand(deactivateCmd)

	return cmd
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
}

func newLogger(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// loginCounter returns a Redis-backed counter when REDIS_URL is set and an
// in-process one otherwise.
func loginCounter(cfg *config.Config, logger zerolog.Logger) (middleware.AttemptCounter, func(), error) {
	if cfg.RedisURL == "" {
		return middleware.NewMemoryAttemptCounter(time.Now), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	logger.Info().Str("addr", opts.Addr).Msg("login throttle backed by redis")
	return middleware.NewRedisAttemptCounter(client, "records:"), func() { _ = client.Close() }, nil
}

func eventPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return events.NewLogPublisher(logger), nil
	}
	p, err := events.NewKafkaPublisher(brokers, cfg.KafkaTopic, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	return p, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	key, generated, err := cfg.SigningKey()
	if err != nil {
		return err
	}
	if generated {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, using a random key; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenService(cfg.TokenConfig(key), time.Now)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	signupRoles, err := cfg.RegistrationRoles()
	if err != nil {
		return err
	}

	ctx := context.Background()
	opts := server.Options{
		Tokens:        tokens,
		Logger:        logger,
		Renderer:      document.NewPDFRenderer(),
		Clock:         time.Now,
		SignupRoles:   signupRoles,
		LoginThrottle: middleware.LoginThrottleConfig{MaxAttempts: cfg.LoginMaxAttempts, Window: cfg.LoginWindow},
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			ExpiresIn:         3 * time.Minute,
		},
		CORSOrigins: cfg.CORSOrigins,
		BodyLimit:   cfg.BodyLimit,
		Timeout:     cfg.RequestTimeout,
	}

	switch cfg.Storage {
	case config.StorageMemory:
		opts.Repos = server.MemoryRepositories(memory.New(time.Now))
		logger.Warn().Msg("using in-memory storage; data is lost on exit")
	default:
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to database")
			return err
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		opts.Pool = pool
		opts.Repos = server.PostgresRepositories(pool)
	}

	counter, closeCounter, err := loginCounter(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCounter()
	opts.LoginCounter = counter

	publisher, err := eventPublisher(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start event publisher")
		return err
	}
	defer publisher.Close()
	opts.Events = publisher

	e := server.New(opts)

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("storage", cfg.Storage).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
