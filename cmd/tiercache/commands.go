package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/objectfs/tiercache/pkg/cache"
	"github.com/objectfs/tiercache/pkg/report"
)

// errNotFound makes get exit non-zero on a miss
var errNotFound = errors.New("key not found")

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the JSON value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			value, ok := a.manager.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", errNotFound, args[0])
			}
			return writeJSON(cmd, jsonSafe(value))
		}),
	}
}

func newSetCmd() *cobra.Command {
	var (
		ttl        time.Duration
		memoryOnly bool
	)

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a JSON VALUE under KEY",
		Long: "Store a JSON VALUE under KEY. VALUE is parsed as JSON; if it is not valid JSON " +
			"it is stored as a plain string.",
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			var value any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				value = args[1]
			}

			opts := []cache.SetOption{cache.WithTTL(ttl)}
			if memoryOnly {
				opts = append(opts, cache.MemoryOnly())
			}
			a.manager.Set(args[0], value, opts...)
			return nil
		}),
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live, 0 uses the configured default")
	cmd.Flags().BoolVar(&memoryOnly, "memory-only", false, "skip the file tier (lost when the command exits)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove KEY from both tiers",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if !a.manager.Delete(args[0]) {
				return fmt.Errorf("%w: %s", errNotFound, args[0])
			}
			return nil
		}),
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			a.manager.Clear()
			return nil
		}),
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			result := a.manager.CleanupExpired()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries (memory %d, file %d)\n",
				result.TotalCleaned, result.MemoryCleaned, result.FileCleaned)
			return err
		}),
	}
}

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			stats := a.manager.Stats()
			if asJSON {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			_, err := fmt.Fprintf(out, "memory: %d/%d entries\nfile:   %d entries, %d/%d bytes in %s\n",
				stats.Memory.EntryCount, stats.Memory.MaxEntries,
				stats.File.EntryCount, stats.File.TotalSizeBytes, stats.File.MaxSizeBytes, stats.File.Directory)
			return err
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print a markdown report with tuning suggestions",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), report.Generate(a.manager.Stats(), time.Now()))
			return err
		}),
	}
}

func newServeCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sweep expired entries periodically and serve metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if interval <= 0 {
				interval = a.cfg.Cache.CleanupInterval
			}
			return serve(ctx, a, interval)
		}),
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "sweep interval, 0 uses cleanup_interval")
	return cmd
}

func serve(ctx context.Context, a *app, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	sweeper := cache.NewSweeper(a.manager, interval, a.logger)
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})

	if a.cfg.Metrics.Enabled {
		if err := a.collector.Start(ctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.collector.Stop(shutdownCtx)
		})
	}

	a.logger.Info("serving", map[string]interface{}{
		"cache_dir":       a.cfg.Cache.CacheDir,
		"sweep_interval":  interval.String(),
		"metrics_enabled": a.cfg.Metrics.Enabled,
	})
	return g.Wait()
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonSafe converts msgpack-decoded maps with interface keys into
// string-keyed maps encoding/json accepts.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonSafe(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonSafe(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonSafe(val)
		}
		return out
	default:
		return v
	}
}
