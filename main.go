package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/procpool/cmd"
	"github.com/smazurov/procpool/internal/api"
	"github.com/smazurov/procpool/internal/config"
	"github.com/smazurov/procpool/internal/events"
	"github.com/smazurov/procpool/internal/logging"
	"github.com/smazurov/procpool/internal/metrics"
	"github.com/smazurov/procpool/internal/process"
	"github.com/smazurov/procpool/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Pool settings
	PoolLimit         int    `help:"Maximum number of simultaneously running processes" default:"4" toml:"pool.limit" env:"POOL_LIMIT"`
	PoolExecutable    string `help:"Executable every pooled process runs" default:"rclone" toml:"pool.executable" env:"POOL_EXECUTABLE"`
	PoolGlobalOptions string `help:"Options placed before every process's own arguments" default:"" toml:"pool.global_options" env:"POOL_GLOBAL_OPTIONS"`

	// Metrics settings
	MetricsEnabled bool `help:"Expose Prometheus metrics at /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingProcess string `help:"Process logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingPool    string `help:"Pool logging level" default:"info" toml:"logging.pool" env:"LOGGING_POOL"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"process": opts.LoggingProcess,
				"pool":    opts.LoggingPool,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Subcommands share this callback, so the pool is only built when serving.
		var mu sync.Mutex
		var running *app

		hooks.OnStart(func() {
			a, err := newApp(opts, loggingConfig, logger)
			if err != nil {
				logger.Error("Failed to start", "error", err)
				os.Exit(1)
			}
			mu.Lock()
			running = a
			mu.Unlock()

			if sent, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			} else if sent {
				logger.Debug("Notified systemd readiness")
			}

			logger.Info("Starting HTTP server", "port", opts.Port, "limit", opts.PoolLimit, "executable", opts.PoolExecutable)
			if startErr := a.server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			mu.Lock()
			a := running
			mu.Unlock()
			if a == nil {
				return
			}
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			a.stop(logger)
		})
	})

	cli.Root().Use = "procpool"
	cli.Root().Version = version.Long()
	cli.Root().AddCommand(cmd.CreateRunCmd())

	cli.Run()
}

// app holds the components of a running server.
type app struct {
	pool        *process.Pool
	server      *api.Server
	watcher     *config.Watcher[logging.Config]
	stopMetrics func()
}

func newApp(opts *Options, loggingConfig logging.Config, logger *slog.Logger) (*app, error) {
	if err := process.Initialize(opts.PoolExecutable); err != nil {
		return nil, fmt.Errorf("initialize executable %q: %w", opts.PoolExecutable, err)
	}
	if opts.PoolGlobalOptions != "" {
		globalOpts, err := process.SplitArgs(opts.PoolGlobalOptions)
		if err != nil {
			return nil, fmt.Errorf("invalid global options: %w", err)
		}
		process.AddGlobalOption(globalOpts...)
	}

	eventBus := events.New()

	poolOpts := &process.PoolOptions{Limit: opts.PoolLimit}
	events.AttachPool(eventBus, poolOpts)
	pool, err := process.NewPool(poolOpts)
	if err != nil {
		return nil, err
	}

	a := &app{pool: pool}

	apiOpts := &api.Options{
		AuthUsername: opts.AuthUsername,
		AuthPassword: opts.AuthPassword,
		Pool:         pool,
		EventBus:     eventBus,
	}
	if opts.MetricsEnabled {
		metrics.TrackPool(pool)
		a.stopMetrics = metrics.Observe(eventBus)
		apiOpts.MetricsHandler = metrics.Handler()
	}
	a.server = api.NewServer(apiOpts)

	// Log levels follow the config file without a restart
	a.watcher = config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logger)
	a.watcher.OnReload(func(cfg logging.Config) {
		logging.SetLevels(mergeLevels(loggingConfig, cfg))
		logger.Info("Logging levels reloaded", "level", cfg.Level)
	})
	if err := a.watcher.Start(); err != nil {
		logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
	}

	return a, nil
}

func (a *app) stop(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Stop(ctx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}

	// Processes go after the HTTP server stops accepting new ones
	a.pool.Close()

	if err := a.watcher.Stop(); err != nil {
		logger.Debug("Config watcher stop", "error", err)
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
}

// mergeLevels overlays levels read from the config file on the startup config.
func mergeLevels(base, reloaded logging.Config) logging.Config {
	merged := logging.Config{
		Level:   reloaded.Level,
		Format:  base.Format,
		Modules: make(map[string]string, len(base.Modules)+len(reloaded.Modules)),
	}
	for module, level := range base.Modules {
		merged.Modules[module] = level
	}
	for module, level := range reloaded.Modules {
		merged.Modules[module] = level
	}
	return merged
}
