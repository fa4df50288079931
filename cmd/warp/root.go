package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/backend"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/ckg/cache"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/config"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/plan"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/scope"
	"github.com/juanbermudez/warp-agent-system-sub000/internal/service"
)

var (
	configFile string
	homeDir    string
)

var rootCmd = &cobra.Command{
	Use:   "warp",
	Short: "Warp - knowledge coordination core for agent teams",
	Long: `Warp serves the shared knowledge graph agent teams coordinate
through: typed entities, scoped configuration, lifecycle history, and
dependency-aware execution planning.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default $WARP_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Warp home directory (default $WARP_HOME or ~/.warp)")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

func resolveHome() string {
	if homeDir != "" {
		return homeDir
	}
	if env := os.Getenv("WARP_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warp"
	}
	return filepath.Join(home, ".warp")
}

func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = filepath.Join(resolveHome(), "config.yaml")
	}
	return config.NewLoader(config.NewValidator()).LoadWithDefaults(path)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// buildService assembles the full engine stack from configuration. The
// returned cleanup closes the store.
func buildService(ctx context.Context) (*service.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Logging)

	be, err := backend.Select(ctx, cfg.Backend, logger)
	if err != nil {
		return nil, nil, err
	}

	var store ckg.Store = ckg.NewStore(be, ckg.WithLogger(logger))
	if cfg.Tracing.Enabled {
		store = ckg.NewTracedStore(store, otel.Tracer("warp.ckg"))
	}

	resolver := scope.NewResolver(store, scope.WithLogger(logger))
	planner := plan.NewPlanner(store, resolver, plan.WithLogger(logger))

	opts := []service.ServiceOption{
		service.WithLogger(logger),
		service.WithDefaultTTL(cfg.Cache.DefaultTTL),
	}
	if cfg.Cache.Enabled {
		switch cfg.Cache.Kind {
		case "redis":
			redisCache, err := cache.NewRedisCache(cfg.Cache.Redis)
			if err != nil {
				logger.Warn("redis cache unavailable, falling back to in-memory cache", "error", err)
				opts = append(opts, service.WithCache(cache.NewMemoryCache()))
			} else {
				opts = append(opts, service.WithCache(redisCache))
			}
		default:
			opts = append(opts, service.WithCache(cache.NewMemoryCache()))
		}
	}

	svc := service.NewService(store, resolver, planner, opts...)
	cleanup := func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}
	return svc, cleanup, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	encoded, err := marshalIndent(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	cmd.Println(string(encoded))
	return nil
}
