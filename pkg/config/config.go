package config

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/annotations"
	"github.com/SomaLogic/Canopy/pkg/compression"
	"github.com/SomaLogic/Canopy/pkg/errors"
	"github.com/SomaLogic/Canopy/pkg/formats/columnar"
	"github.com/SomaLogic/Canopy/pkg/lift"
	"github.com/SomaLogic/Canopy/pkg/logger"
	"github.com/SomaLogic/Canopy/pkg/observability"
)

// Config is the complete Canopy configuration.
type Config struct {
	Reader      ReaderConfig      `yaml:"reader" mapstructure:"reader"`
	Writer      WriterConfig      `yaml:"writer" mapstructure:"writer"`
	Lift        LiftConfig        `yaml:"lift" mapstructure:"lift"`
	Annotations AnnotationsConfig `yaml:"annotations" mapstructure:"annotations"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	Logging     logger.Config     `yaml:"logging" mapstructure:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing" mapstructure:"tracing"`
}

// ReaderConfig controls ADAT parsing.
type ReaderConfig struct {
	// CompatibilityMode keeps ReportConfig as raw text
	CompatibilityMode bool `yaml:"compatibility_mode" mapstructure:"compatibility_mode"`
	// VerifyChecksum reports files whose !Checksum does not match
	VerifyChecksum bool `yaml:"verify_checksum" mapstructure:"verify_checksum"`
}

// WriterConfig controls ADAT serialization.
type WriterConfig struct {
	// RoundRFU writes measurements with one decimal place
	RoundRFU bool `yaml:"round_rfu" mapstructure:"round_rfu"`
	// ConvertToV3SeqIDs writes SeqIds as 12345-6_7
	ConvertToV3SeqIDs bool `yaml:"v3_seqids" mapstructure:"v3_seqids"`
	// Compression is the level for compressed outputs: fastest, default,
	// better or best
	Compression string `yaml:"compression" mapstructure:"compression"`
}

// PathConfig is one lift path.
type PathConfig struct {
	From   string `yaml:"from" mapstructure:"from"`
	To     string `yaml:"to" mapstructure:"to"`
	Matrix string `yaml:"matrix" mapstructure:"matrix"`
}

// LiftConfig controls the lifting engine.
type LiftConfig struct {
	// Target is the default target version. Empty picks the first path.
	Target string `yaml:"target" mapstructure:"target"`
	// Paths replaces the built-in path table when not empty.
	Paths []PathConfig `yaml:"paths,omitempty" mapstructure:"paths"`
}

// AnnotationsConfig controls scale factor table loading.
type AnnotationsConfig struct {
	IndexColumn string   `yaml:"index_column" mapstructure:"index_column"`
	SkipRows    int      `yaml:"skip_rows" mapstructure:"skip_rows"`
	ApprovedMD5 []string `yaml:"approved_md5" mapstructure:"approved_md5"`
}

// ExportConfig controls columnar export.
type ExportConfig struct {
	Format      string `yaml:"format" mapstructure:"format"`
	Compression string `yaml:"compression" mapstructure:"compression"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// MetricsConfig controls metrics output.
type MetricsConfig struct {
	// Textfile is written in the Prometheus text format on exit when set
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	// File receives OpenTelemetry spans as JSON when set
	File         string  `yaml:"file" mapstructure:"file"`
	SamplingRate float64 `yaml:"sampling_rate" mapstructure:"sampling_rate"`
	PrettyPrint  bool    `yaml:"pretty_print" mapstructure:"pretty_print"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	exp := columnar.DefaultWriterConfig()
	return &Config{
		Reader: ReaderConfig{},
		Writer: WriterConfig{
			RoundRFU:    true,
			Compression: "default",
		},
		Lift: LiftConfig{},
		Annotations: AnnotationsConfig{
			IndexColumn: adat.FieldSeqID,
			ApprovedMD5: annotations.DefaultApprovedMD5(),
		},
		Export: ExportConfig{
			Format:      string(exp.Format),
			Compression: exp.Compression,
			BatchSize:   exp.BatchSize,
		},
		Logging: logger.DefaultConfig(),
		Tracing: TracingConfig{SamplingRate: 1},
	}
}

// Validate checks that every section can be turned into component options.
func (c *Config) Validate() error {
	if _, err := compression.ParseLevel(c.Writer.Compression); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid writer.compression")
	}
	for i, p := range c.Lift.Paths {
		if p.From == "" || p.To == "" || p.Matrix == "" {
			return errors.Newf(errors.ErrorTypeConfig, "lift.paths[%d] needs from, to and matrix", i)
		}
	}
	if c.Annotations.SkipRows < 0 {
		return errors.New(errors.ErrorTypeConfig, "annotations.skip_rows must not be negative")
	}
	if _, err := c.ColumnarConfig(); err != nil {
		return err
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.Newf(errors.ErrorTypeConfig, "tracing.sampling_rate must be between 0 and 1, got %v", c.Tracing.SamplingRate)
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid logging.level")
		}
	}
	return nil
}

// ReadOptions returns the ADAT reader options.
func (c *Config) ReadOptions(log *zap.Logger) adat.ReadOptions {
	return adat.ReadOptions{
		CompatibilityMode: c.Reader.CompatibilityMode,
		VerifyChecksum:    c.Reader.VerifyChecksum,
		Logger:            log,
	}
}

// WriteOptions returns the ADAT writer options.
func (c *Config) WriteOptions() (adat.WriteOptions, error) {
	level, err := compression.ParseLevel(c.Writer.Compression)
	if err != nil {
		return adat.WriteOptions{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid writer.compression")
	}
	return adat.WriteOptions{
		RoundRFU:          c.Writer.RoundRFU,
		ConvertToV3SeqIDs: c.Writer.ConvertToV3SeqIDs,
		Level:             level,
	}, nil
}

// AnnotationOptions returns the annotations reader options.
func (c *Config) AnnotationOptions(log *zap.Logger) annotations.ReadOptions {
	return annotations.ReadOptions{
		IndexColumn: c.Annotations.IndexColumn,
		SkipRows:    c.Annotations.SkipRows,
		// An empty list disables the checksum check.
		ApprovedMD5: append([]string(nil), c.Annotations.ApprovedMD5...),
		Logger:      log,
	}
}

// LiftPaths returns the configured path table, or nil for the built-in one.
func (c *Config) LiftPaths() lift.PathTable {
	if len(c.Lift.Paths) == 0 {
		return nil
	}
	paths := make(lift.PathTable, len(c.Lift.Paths))
	for i, p := range c.Lift.Paths {
		paths[i] = lift.Path{From: p.From, To: p.To, Matrix: p.Matrix}
	}
	return paths
}

// TracerConfig returns the tracer configuration writing to out.
func (c *Config) TracerConfig(out io.Writer, version string) observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    "canopy",
		ServiceVersion: version,
		SamplingRate:   c.Tracing.SamplingRate,
		Output:         out,
		PrettyPrint:    c.Tracing.PrettyPrint,
	}
}

// ColumnarConfig returns the export writer configuration.
func (c *Config) ColumnarConfig() (*columnar.WriterConfig, error) {
	format, err := columnar.ParseFormat(c.Export.Format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid export.format")
	}
	return &columnar.WriterConfig{
		Format:      format,
		Compression: c.Export.Compression,
		BatchSize:   c.Export.BatchSize,
	}, nil
}
