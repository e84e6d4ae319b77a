// Package main is the entry point for the REST API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/homelab-api/internal/config"
	"github.com/vyrodovalexey/homelab-api/internal/handler"
	"github.com/vyrodovalexey/homelab-api/internal/server"
	"github.com/vyrodovalexey/homelab-api/internal/service"
	"github.com/vyrodovalexey/homelab-api/internal/store"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the server command. Flags override APP_* environment
// variables, which override defaults.
func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:          "homelab-api",
		Short:        "Serve the item CRUD REST API",
		Version:      handler.Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(v)
			if err != nil {
				return err
			}

			logger, err := initLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", config.DefaultServerPort, "API listen port")
	flags.Int("probe-port", config.DefaultProbePort, "health/readiness/metrics port, 0 serves them on the API port")
	flags.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	flags.String("store", config.DefaultStoreDriver, "item store backend: memory or sqlite")

	if err := bindFlags(v, flags); err != nil {
		panic(err)
	}

	return cmd
}

// bindFlags maps command line flags onto configuration keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		config.KeyServerPort:  "port",
		config.KeyProbePort:   "probe-port",
		config.KeyLogLevel:    "log-level",
		config.KeyStoreDriver: "store",
	}

	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	return nil
}

// run serves until ctx is canceled or the server fails, then shuts down
// within cfg.ShutdownTimeout.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.Int("probe_port", cfg.ProbePort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("seed_enabled", cfg.SeedEnabled),
		zap.Strings("cors_allowed_origins", cfg.CORSAllowedOrigins),
	)

	itemStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := itemStore.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	ws := handler.NewWebSocketHandler(logger)
	svc := service.NewItemService(itemStore, logger, ws)
	srv := server.New(cfg, logger, svc, ws)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received", zap.Error(context.Cause(ctx)))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	if err := <-serverErrors; err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// errUnknownStoreDriver is returned for a driver Validate would reject.
var errUnknownStoreDriver = errors.New("unknown store driver")

// newStore opens the configured store and loads the fixture items when
// seeding is enabled.
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	var (
		s   store.Store
		err error
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		s = store.NewMemoryStore()
	case config.StoreDriverSQLite:
		s, err = store.NewSQLiteStore(ctx, cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("creating store: %w", err)
		}
	default:
		return nil, fmt.Errorf("creating store: %w: %s", errUnknownStoreDriver, cfg.StoreDriver)
	}

	if cfg.SeedEnabled {
		if err := store.Seed(ctx, s, store.DefaultSeed()); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("seeding store: %w", err)
		}
	}

	logger.Info("store ready",
		zap.String("driver", cfg.StoreDriver),
		zap.Bool("seeded", cfg.SeedEnabled),
	)

	return s, nil
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}
