package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/spawnpool/internal/simulation"
	"github.com/ajitpratap0/spawnpool/pkg/config"
	"github.com/ajitpratap0/spawnpool/pkg/errors"
	"github.com/ajitpratap0/spawnpool/pkg/logger"
	"github.com/ajitpratap0/spawnpool/pkg/metrics"
	"github.com/ajitpratap0/spawnpool/pkg/observability"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "spawnpool",
		Short: "spawnpool - keyed object pools driven by a frame loop",
		Long: `spawnpool runs pooled game entities through a simulated update loop and
reports how each capacity limit behavior reused, created and destroyed them.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "spawnpool v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newValidateCmd())
	root.AddCommand(newSimulateCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file and list its templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return printTemplates(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to the YAML configuration (defaults are used when empty)")
	bindFlags(v, cmd)
	return cmd
}

func newSimulateCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the frame loop over the configured templates",
		Long: `Run the frame loop over the configured templates and write a JSON report.

Flags override the configuration file, and environment variables prefixed
with SPAWNPOOL_ override both, e.g. SPAWNPOOL_SIMULATION_FRAMES=120.

Example:
  spawnpool simulate --config spawnpool.yaml --frames 300 --report -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), cfg, v.GetString("report"), v.GetString("metrics-dump"))
		},
	}
	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Path to the YAML configuration (defaults are used when empty)")
	flags.Int("frames", 0, "Number of frames to simulate")
	flags.Uint64("seed", 0, "Random seed of the run")
	flags.Int("sweep-interval", 0, "Dispose idle instances every N frames (0 disables)")
	flags.Duration("frame-duration", 0, "Pace frames at this interval (0 runs back to back)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("trace", "", "Tracing exporter (none, stdout)")
	flags.String("report", "-", "Where to write the JSON report (- for stdout, empty to skip)")
	flags.String("metrics-dump", "", "Write the Prometheus text exposition to this file after the run")
	bindFlags(v, cmd)
	return cmd
}

// flagKeys maps flags onto configuration keys, which are also the
// environment variable names after the SPAWNPOOL_ prefix.
var flagKeys = map[string]string{
	"frames":         "simulation.frames",
	"seed":           "simulation.seed",
	"sweep-interval": "simulation.sweep_interval",
	"frame-duration": "simulation.frame_duration",
	"log-level":      "logging.level",
	"trace":          "tracing.exporter",
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	v.SetEnvPrefix("SPAWNPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := f.Name
		if k, ok := flagKeys[f.Name]; ok {
			key = k
		}
		_ = v.BindPFlag(key, f)
	})
}

// loadConfig reads the configuration file, if any, over the defaults and
// applies flag and environment overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}

	if v.IsSet("simulation.frames") {
		cfg.Simulation.Frames = v.GetInt("simulation.frames")
	}
	if v.IsSet("simulation.seed") {
		cfg.Simulation.Seed = v.GetUint64("simulation.seed")
	}
	if v.IsSet("simulation.sweep_interval") {
		cfg.Simulation.SweepInterval = v.GetInt("simulation.sweep_interval")
	}
	if v.IsSet("simulation.frame_duration") {
		cfg.Simulation.FrameDuration = v.GetDuration("simulation.frame_duration")
	}
	if v.IsSet("logging.level") {
		cfg.Logging.Level = v.GetString("logging.level")
	}
	if v.IsSet("tracing.exporter") {
		cfg.Tracing.Exporter = v.GetString("tracing.exporter")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printTemplates(out io.Writer, cfg *config.Config) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEMPLATE\tCAPACITY\tBEHAVIOR\tSPAWN/FRAME\tLIFETIME")
	for _, t := range cfg.Templates {
		lifetime := fmt.Sprintf("%d", t.LifetimeFrames)
		if t.LifetimeJitter > 0 {
			lifetime = fmt.Sprintf("%d-%d", t.LifetimeFrames, t.LifetimeFrames+t.LifetimeJitter)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%g\t%s\n", t.Name, t.PoolCapacity, t.CapacityLimitBehavior, t.SpawnPerFrame, lifetime)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "configuration is valid: %d templates, %d frames\n", len(cfg.Templates), cfg.Simulation.Frames)
	return nil
}

// runSimulation executes one run of cfg and writes its report
func runSimulation(ctx context.Context, out io.Writer, cfg *config.Config, reportPath, metricsPath string) error {
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}

	tracing, err := observability.InitTracing(cfg.Tracing, observability.Options{
		ServiceVersion: version,
		Writer:         os.Stderr,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability shutdown failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	opts := []simulation.Option{
		simulation.WithLogger(logger.Get().Named("simulation")),
		simulation.WithTracer(tracing.Tracer()),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, simulation.WithMetrics(metrics.NewPoolMetrics(reg, cfg.Metrics.Namespace)))
	}

	sim, err := simulation.New(cfg, opts...)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, logger.RunIDKey, sim.RunID())
	log := logger.WithContext(ctx).With(zap.String("component", "spawnpool-cli"))

	report, err := sim.Run(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "simulation failed")
	}

	if err := writeReport(out, reportPath, report); err != nil {
		return err
	}
	if metricsPath != "" {
		if err := writeMetrics(metricsPath, reg); err != nil {
			return err
		}
		log.Info("metrics written", zap.String("path", metricsPath))
	}
	return nil
}

func writeReport(out io.Writer, path string, report *simulation.Report) error {
	switch path {
	case "":
		return nil
	case "-":
		return report.WriteJSON(out)
	}

	f, err := os.Create(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create report").WithDetail("path", path)
	}
	if err := report.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeMetrics writes every gathered family in the Prometheus text format
func writeMetrics(path string, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to gather metrics")
	}

	f, err := os.Create(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create metrics dump").WithDetail("path", path)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			_ = f.Close()
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode metrics")
		}
	}
	return f.Close()
}
