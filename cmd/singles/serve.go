package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"singles-table-backend/pkg/booking"
	"singles-table-backend/pkg/config"
	"singles-table-backend/pkg/database"
	customMiddleware "singles-table-backend/pkg/middleware"
	"singles-table-backend/pkg/notify"
	"singles-table-backend/pkg/server"
	"singles-table-backend/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port   string
	NoSeed bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

Tables are seeded on startup when the store has none (SEED_TABLES).
Pairing notifications are printed and, when REDIS_ADDR is set, pushed to Redis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "override PORT")
	cmd.Flags().BoolVar(&opts.NoSeed, "no-seed", false, "skip seeding tables on startup")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if !opts.NoSeed {
		if _, err := database.SeedTables(ctx, db, cfg.SeedTables); err != nil {
			return fmt.Errorf("seed tables: %w", err)
		}
	}

	sink, closeSink, err := buildNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	dispatcher := notify.NewDispatcher(sink, notify.DispatcherOptions{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			fmt.Printf("⚠️  Notification queue not drained: %v\n", err)
		}
	}()

	engine := booking.NewEngine(db, dispatcher, booking.Options{
		LockTimeout: cfg.LockTimeout,
		MaxAttempts: cfg.MaxAttempts,
	})

	limiter := customMiddleware.NewLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartJanitor(ctx)

	handler := server.NewRouter(server.Deps{
		Config:        cfg,
		DB:            db,
		Engine:        engine,
		JWT:           utils.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Limiter:       limiter,
		Notifications: dispatcher,
	})

	fmt.Printf("✅ Config: env=%s db=%s rate=%.2f/s burst=%d lockTimeout=%s\n",
		cfg.Environment, cfg.DBDriver, cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.LockTimeout)
	return server.New(cfg.Port, handler).Run(ctx)
}

// buildNotifier returns the log sink, fanned out to Redis when configured.
func buildNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, func(), error) {
	sinks := notify.Multi{notify.LogNotifier{}}
	if cfg.RedisAddr == "" {
		return sinks, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	fmt.Printf("📮 Publishing notifications to redis %s (list=%s channel=%s)\n", cfg.RedisAddr, cfg.NotifyList, cfg.NotifyChannel)

	sinks = append(sinks, notify.NewRedisNotifier(rdb,
		notify.WithList(cfg.NotifyList),
		notify.WithChannel(cfg.NotifyChannel),
	))
	return sinks, func() { _ = rdb.Close() }, nil
}
