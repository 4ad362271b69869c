package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SomaLogic/Canopy/pkg/config"
	"github.com/SomaLogic/Canopy/pkg/errors"
	"github.com/SomaLogic/Canopy/pkg/logger"
	"github.com/SomaLogic/Canopy/pkg/metrics"
	"github.com/SomaLogic/Canopy/pkg/observability"
)

var version = "0.1.0"

// app carries the state shared by every subcommand once flags are parsed.
type app struct {
	configFile  string
	logLevel    string
	metricsFile string
	traceFile   string

	cfg       *config.Config
	log       *zap.Logger
	metrics   *metrics.Metrics
	tracer    *observability.Tracer
	traceSink *os.File
}

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A non-nil log replaces the logger
// built from the configuration.
func newRootCmd(log *zap.Logger) *cobra.Command {
	a := &app{log: log}

	root := &cobra.Command{
		Use:   "canopy",
		Short: "Canopy - read, write and lift ADAT files",
		Long: `Canopy reads and writes SomaScan ADAT files, lifts measurements between
assay signal spaces and exports records to Parquet, Arrow and Avro.`,
		SilenceUsage:       true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup(cmd) },
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	root.PersistentFlags().StringVar(&a.traceFile, "trace-file", "", "Write OpenTelemetry spans to this file as JSON")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Canopy v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(
		newInspectCmd(a),
		newConvertCmd(a),
		newLiftCmd(a),
		newExportCmd(a),
	)
	return root
}

// setup loads the configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.metricsFile != "" {
		cfg.Metrics.Textfile = a.metricsFile
	}
	if a.traceFile != "" {
		cfg.Tracing.File = a.traceFile
	}

	log := a.log
	if log == nil {
		if log, err = logger.New(cfg.Logging); err != nil {
			return err
		}
		logger.Set(log)
	}

	a.cfg = cfg
	a.log = log.With(zap.String("command", cmd.Name()))
	a.metrics = metrics.New()

	a.tracer = observability.Noop()
	if cfg.Tracing.File != "" {
		f, err := os.Create(cfg.Tracing.File)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create trace file").WithDetail("path", cfg.Tracing.File)
		}
		tracer, err := observability.NewTracer(cfg.TracerConfig(f, version))
		if err != nil {
			f.Close()
			return err
		}
		a.tracer, a.traceSink = tracer, f
	}
	return nil
}

// runE wraps a command so that traces and metrics are written whether or
// not it succeeds.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if terr := a.teardown(cmd.Context()); err == nil {
			err = terr
		}
		return err
	}
}

func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}

	var errs []error
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if a.traceSink != nil {
		if err := a.traceSink.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeFile, "failed to close trace file"))
		}
	}
	if a.cfg != nil && a.cfg.Metrics.Textfile != "" {
		errs = append(errs, a.metrics.WriteTextfile(a.cfg.Metrics.Textfile))
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
