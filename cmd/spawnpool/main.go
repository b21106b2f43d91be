// Command spawnpool runs the pooling simulation and inspects its configuration.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/coachpo/spawnpool/config"
	"github.com/coachpo/spawnpool/internal/clock"
	"github.com/coachpo/spawnpool/internal/observability"
	"github.com/coachpo/spawnpool/internal/pool"
	"github.com/coachpo/spawnpool/internal/sim"
	"github.com/coachpo/spawnpool/internal/telemetry"
)

var version = "0.1.0"

const (
	telemetryShutdownTimeout = 5 * time.Second
	statsBuffer              = 16
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runFlags struct {
	configPath string
	duration   time.Duration
	timeScale  float64
	logLevel   string
	stats      bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	var flags runFlags

	root := &cobra.Command{
		Use:           "spawnpool",
		Short:         "Object pooling simulation",
		Long:          `spawnpool drives a frame loop that fires projectiles and impacts through a pool registry, tearing the world down at a fixed interval.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration (default: $SPAWNPOOL_CONFIG)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spawnpool v%s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			return config.Encode(cmd.OutOrStdout(), cfg)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation",
		Long: `Run the simulation until the configured duration elapses or a signal arrives.

Example:
  spawnpool run --duration 5s --time-scale 0.5 --stats`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			var opts []config.Option
			if cmd.Flags().Changed("duration") {
				opts = append(opts, config.WithDuration(flags.duration))
			}
			if cmd.Flags().Changed("time-scale") {
				opts = append(opts, config.WithTimeScale(flags.timeScale))
			}
			if cmd.Flags().Changed("log-level") {
				opts = append(opts, config.WithLogLevel(flags.logLevel))
			}
			cfg = config.Apply(cfg, opts...)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), cfg, flags.stats)
		},
	}
	runCmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "How long to run, in unscaled time")
	runCmd.Flags().Float64Var(&flags.timeScale, "time-scale", 1, "Scaled-time multiplier")
	runCmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&flags.stats, "stats", false, "Print pool stats as JSON lines while running")
	root.AddCommand(runCmd)

	return root
}

func runSimulation(ctx context.Context, out io.Writer, cfg config.Settings, printStats bool) error {
	logger, err := observability.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return err
	}
	observability.SetLogger(logger)
	if z, ok := logger.(*observability.ZapLogger); ok {
		defer func() { _ = z.Sync() }()
	}

	provider, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	metrics, err := telemetry.NewPoolMetrics(provider.Meter(telemetry.MeterName), provider.Environment())
	if err != nil {
		return fmt.Errorf("initialize pool metrics: %w", err)
	}

	s, err := sim.New(cfg, logger, metrics)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return err
	}

	logger.Info("simulation starting",
		observability.F("env", string(cfg.Environment)),
		observability.F("duration", cfg.Simulation.Duration),
		observability.F("timeScale", cfg.Clock.TimeScale),
		observability.F("pools", len(s.Registry().Pools())))

	// Snapshots are taken on the loop goroutine and written by the printer,
	// so only the loop touches the registry.
	snapshots := make(chan []pool.Stats, statsBuffer)
	var nextStats time.Duration
	var onFrame func(*sim.Simulation)
	if printStats {
		onFrame = func(s *sim.Simulation) {
			now := s.Clock().Now(clock.Unscaled)
			if now < nextStats {
				return
			}
			nextStats = now + cfg.Simulation.StatsInterval
			snapshots <- s.Registry().Snapshot()
		}
	}

	var summary sim.Summary
	var statsErr error
	var group conc.WaitGroup
	group.Go(func() {
		defer close(snapshots)
		summary = s.Run(ctx, onFrame)
	})
	group.Go(func() {
		for snap := range snapshots {
			if statsErr != nil {
				continue
			}
			statsErr = pool.WriteStats(out, snap)
		}
	})
	group.Wait()

	logger.Info("simulation finished",
		observability.F("frames", summary.Frames),
		observability.F("worlds", summary.Worlds),
		observability.F("fired", summary.Fired),
		observability.F("failures", summary.Failures))

	summaryErr := writeSummary(out, summary)
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	return observability.AggregateErrors(logger, "simulation", []error{
		statsErr,
		summaryErr,
		provider.Shutdown(shutdownCtx),
	})
}

func writeSummary(out io.Writer, summary sim.Summary) error {
	data, err := pool.EncodeJSON(summary)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
