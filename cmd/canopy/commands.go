package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/annotations"
	"github.com/SomaLogic/Canopy/pkg/compression"
	"github.com/SomaLogic/Canopy/pkg/errors"
	"github.com/SomaLogic/Canopy/pkg/formats/columnar"
	"github.com/SomaLogic/Canopy/pkg/lift"
)

func newConvertCmd(a *app) *cobra.Command {
	var noRound, v3SeqIDs bool

	cmd := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Read an ADAT file and write it back out",
		Long: `Read an ADAT file and write it back out. Compression of both files follows
the file suffix (.gz, .zst, .lz4, .sz, .s2).

Example:
  canopy convert study.adat study.adat.gz --no-round`,
		Args: cobra.ExactArgs(2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			rec, err := a.readADAT(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			opts, err := a.cfg.WriteOptions()
			if err != nil {
				return err
			}
			if noRound {
				opts.RoundRFU = false
			}
			if v3SeqIDs {
				opts.ConvertToV3SeqIDs = true
			}
			return a.writeADAT(cmd.Context(), args[1], rec, opts)
		}),
	}

	cmd.Flags().BoolVar(&noRound, "no-round", false, "Write measurements at full precision instead of one decimal place")
	cmd.Flags().BoolVar(&v3SeqIDs, "v3-seqids", false, "Write SeqIds in the V3 style (12345-6_7)")
	return cmd
}

func newLiftCmd(a *app) *cobra.Command {
	var target, indexCol string

	cmd := &cobra.Command{
		Use:   "lift IN ANNOTATIONS OUT",
		Short: "Lift measurements to another signal space",
		Long: `Scale every analyte of an ADAT file by the factors of an annotations table
and write the result in the target signal space.

Example:
  canopy lift study.adat annotations.csv study.v4.1.adat --to v4.1`,
		Args: cobra.ExactArgs(3),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			rec, err := a.readADAT(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			opts := a.cfg.AnnotationOptions(a.log)
			if cmd.Flags().Changed("index-col") {
				opts.IndexColumn = indexCol
			}
			table, err := a.readAnnotations(cmd.Context(), args[1], opts)
			if err != nil {
				return err
			}

			if target == "" {
				target = a.cfg.Lift.Target
			}
			lifted, err := a.liftRecord(cmd.Context(), rec, table, target)
			if err != nil {
				return err
			}

			wopts, err := a.cfg.WriteOptions()
			if err != nil {
				return err
			}
			return a.writeADAT(cmd.Context(), args[2], lifted, wopts)
		}),
	}

	cmd.Flags().StringVar(&target, "to", "", "Target signal space, e.g. v4.1 (default: lift.target from config or the first supported path)")
	cmd.Flags().StringVar(&indexCol, "index-col", adat.FieldSeqID, "Annotations column holding SeqIds; empty keeps SeqId as an ordinary column")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var format, codec string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "export IN OUT",
		Short: "Export an ADAT file to Parquet, Arrow or Avro",
		Long: `Export an ADAT file to a columnar format. One row is written per sample:
row metadata fields as strings followed by one float column per analyte.
Header and column metadata are kept in the file's key/value metadata.

The format is taken from --format, then from the OUT suffix, then from the
export section of the config file.

Example:
  canopy export study.adat study.parquet --compression zstd`,
		Args: cobra.ExactArgs(2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			cfg, err := a.cfg.ColumnarConfig()
			if err != nil {
				return err
			}
			switch {
			case format != "":
				if cfg.Format, err = columnar.ParseFormat(format); err != nil {
					return err
				}
			default:
				if f, err := columnar.ParseFormat(filepath.Ext(args[1])); err == nil {
					cfg.Format = f
				}
			}
			if cmd.Flags().Changed("compression") {
				cfg.Compression = codec
			} else if !columnar.GetFormatInfo(cfg.Format).Supports(cfg.Compression) {
				// the configured codec belongs to another format
				cfg.Compression = ""
			}
			if batchSize > 0 {
				cfg.BatchSize = batchSize
			}

			rec, err := a.readADAT(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.export(cmd.Context(), args[1], rec, cfg)
		}),
	}

	cmd.Flags().StringVar(&format, "format", "", "Output format: parquet, arrow or avro")
	cmd.Flags().StringVar(&codec, "compression", "", "Codec inside the columnar file (none, snappy, gzip, zstd, lz4, deflate)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per record batch or row group")
	return cmd
}

func (a *app) readADAT(ctx context.Context, path string) (*adat.Record, error) {
	log := a.log.With(zap.String("file", path))
	_, span := a.tracer.Start(ctx, "read")
	span.SetAttribute("file", path)
	rec, diags, err := adat.ReadFile(path, a.cfg.ReadOptions(log))
	for _, d := range diags {
		span.AddEvent(d.Message, attribute.String("kind", string(d.Kind)))
	}
	if err == nil {
		rows, cols := rec.Shape()
		span.SetAttribute("samples", rows)
		span.SetAttribute("analytes", cols)
		log.Debug("read adat", zap.Int("samples", rows), zap.Int("analytes", cols))
	}
	a.metrics.ObserveRead(span.End(err), diags, err)
	return rec, err
}

func (a *app) readAnnotations(ctx context.Context, path string, opts annotations.ReadOptions) (*annotations.Table, error) {
	_, span := a.tracer.Start(ctx, "read_annotations")
	span.SetAttribute("file", path)
	table, diags, err := annotations.ReadFile(path, opts)
	if err == nil {
		span.SetAttribute("analytes", table.Len())
	}
	a.metrics.ObserveRead(span.End(err), diags, err)
	return table, err
}

func (a *app) liftRecord(ctx context.Context, rec *adat.Record, table *annotations.Table, target string) (*adat.Record, error) {
	_, span := a.tracer.Start(ctx, "lift")
	span.SetAttribute("target", target)
	engine := lift.NewEngine(a.cfg.LiftPaths(), a.log)
	lifted, err := engine.Lift(rec, table, target)
	if err == nil {
		span.SetAttribute("signal_space", lift.SignalSpace(lifted.Header))
	}
	a.metrics.ObserveLift(span.End(err), err)
	return lifted, err
}

func (a *app) writeADAT(ctx context.Context, path string, rec *adat.Record, opts adat.WriteOptions) error {
	_, span := a.tracer.Start(ctx, "write")
	span.SetAttribute("file", path)
	err := adat.WriteFile(path, rec, opts)
	a.metrics.ObserveWrite("write", span.End(err), err)
	if err != nil {
		return err
	}
	a.log.Info("wrote adat",
		zap.String("file", path),
		zap.String("compression", string(compression.ForPath(path))))
	return nil
}

func (a *app) export(ctx context.Context, path string, rec *adat.Record, cfg *columnar.WriterConfig) (err error) {
	_, span := a.tracer.Start(ctx, "export")
	span.SetAttribute("file", path)
	span.SetAttribute("format", string(cfg.Format))
	defer func() { a.metrics.ObserveWrite("export", span.End(err), err) }()

	f, err := os.Create(path) //nolint:gosec // G304: path is supplied by the operator
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create export file").WithDetail("path", path)
	}
	n, err := columnar.Export(f, rec, cfg)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close export file").WithDetail("path", path)
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}

	span.SetAttribute("bytes", n)
	a.log.Info("exported record",
		zap.String("file", path),
		zap.String("format", string(cfg.Format)),
		zap.String("compression", cfg.Compression),
		zap.Int64("bytes", n))
	return nil
}
