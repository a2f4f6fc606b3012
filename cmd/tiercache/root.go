package main

import (
	"github.com/spf13/cobra"

	"github.com/objectfs/tiercache/internal/config"
	"github.com/objectfs/tiercache/internal/metrics"
	"github.com/objectfs/tiercache/pkg/cache"
	"github.com/objectfs/tiercache/pkg/utils"
)

// app carries everything a subcommand needs
type app struct {
	cfg       *config.Configuration
	logger    *utils.StructuredLogger
	collector *metrics.Collector
	manager   *cache.Manager[any]
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tiercache",
		Short:         "Inspect and maintain a two-tier cache directory",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to a YAML configuration file")
	flags.String("cache-dir", "", "cache directory (overrides configuration)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")

	root.AddCommand(
		newGetCmd(),
		newSetCmd(),
		newDeleteCmd(),
		newClearCmd(),
		newCleanupCmd(),
		newStatsCmd(),
		newReportCmd(),
		newServeCmd(),
	)
	return root
}

// loadConfig resolves defaults, file, environment and flags, in that order
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if val, _ := cmd.Flags().GetString("cache-dir"); val != "" {
		cfg.Cache.CacheDir = val
	}
	if val, _ := cmd.Flags().GetString("log-level"); val != "" {
		cfg.Global.LogLevel = val
	}
	if val, _ := cmd.Flags().GetString("log-format"); val != "" {
		cfg.Global.LogFormat = val
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads configuration and opens the cache. The caller must close it.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logger, err := utils.NewStructuredLogger(logCfg)
	if err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Port:      cfg.Metrics.Port,
		Path:      cfg.Metrics.Path,
		Namespace: cfg.Metrics.Namespace,
	}, logger)
	if err != nil {
		return nil, err
	}

	cacheCfg, err := cfg.ToCacheConfig()
	if err != nil {
		return nil, err
	}
	manager, err := cache.New[any](cacheCfg, cache.WithLogger(logger), cache.WithRecorder(collector))
	if err != nil {
		return nil, err
	}
	collector.SetStatsSource(manager.Stats)

	return &app{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		manager:   manager,
	}, nil
}

func (a *app) Close() error {
	return a.manager.Close()
}

// withApp opens the cache around fn
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.Close(); err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, args, a)
	}
}
