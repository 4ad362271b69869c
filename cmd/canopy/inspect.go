package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/errors"
	"github.com/SomaLogic/Canopy/pkg/formats/columnar"
	"github.com/SomaLogic/Canopy/pkg/json"
	"github.com/SomaLogic/Canopy/pkg/lift"
)

// summary is the inspect report.
type summary struct {
	File         string        `json:"file"`
	Samples      int           `json:"samples"`
	Analytes     int           `json:"analytes"`
	SignalSpace  string        `json:"signal_space"`
	RowFields    []string      `json:"row_fields"`
	ColumnFields []string      `json:"column_fields"`
	Header       []headerEntry `json:"header"`
	Diagnostics  []diagnostic  `json:"diagnostics"`
}

type headerEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type diagnostic struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newInspectCmd(a *app) *cobra.Command {
	var asJSON, compat, rows bool

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the shape, fields, header and diagnostics of an ADAT file",
		Long: `Show the shape, fields, header and diagnostics of an ADAT file.

With --rows every sample is printed as one JSON object per line instead,
keyed by row metadata field names and SeqIds.

Example:
  canopy inspect study.adat --json`,
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.ReadOptions(a.log)
			if compat {
				opts.CompatibilityMode = true
			}

			_, span := a.tracer.Start(cmd.Context(), "inspect")
			span.SetAttribute("file", args[0])
			rec, diags, err := adat.ReadFile(args[0], opts)
			a.metrics.ObserveRead(span.End(err), diags, err)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case rows:
				return writeRows(out, rec)
			case asJSON:
				return json.MarshalToWriter(out, summarize(args[0], rec, diags), "  ")
			default:
				return writeSummary(out, summarize(args[0], rec, diags))
			}
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&compat, "compat", false, "Keep ReportConfig as raw text")
	cmd.Flags().BoolVar(&rows, "rows", false, "Print samples as JSON lines")
	return cmd
}

func summarize(path string, rec *adat.Record, diags adat.Diagnostics) summary {
	samples, analytes := rec.Shape()
	s := summary{
		File:         path,
		Samples:      samples,
		Analytes:     analytes,
		SignalSpace:  lift.SignalSpace(rec.Header),
		RowFields:    rec.RowMetadata.Names(),
		ColumnFields: rec.ColumnMetadata.Names(),
		Header:       []headerEntry{},
		Diagnostics:  []diagnostic{},
	}
	for _, key := range rec.Header.Keys() {
		v, _ := rec.Header.Get(key)
		s.Header = append(s.Header, headerEntry{Key: key, Value: v.Canonical()})
	}
	for _, d := range diags {
		s.Diagnostics = append(s.Diagnostics, diagnostic{Kind: string(d.Kind), Message: d.Message})
	}
	return s
}

func writeSummary(w io.Writer, s summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "File:          %s\n", s.File)
	fmt.Fprintf(&b, "Shape:         %d samples x %d analytes\n", s.Samples, s.Analytes)
	fmt.Fprintf(&b, "Signal space:  %s\n", s.SignalSpace)
	fmt.Fprintf(&b, "Row fields:    %s\n", strings.Join(s.RowFields, ", "))
	fmt.Fprintf(&b, "Column fields: %s\n", strings.Join(s.ColumnFields, ", "))
	b.WriteString("Header:\n")
	for _, h := range s.Header {
		fmt.Fprintf(&b, "  %s: %s\n", h.Key, h.Value)
	}
	if len(s.Diagnostics) > 0 {
		b.WriteString("Diagnostics:\n")
		for _, d := range s.Diagnostics {
			fmt.Fprintf(&b, "  %s: %s\n", d.Kind, d.Message)
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write report")
	}
	return nil
}

// writeRows prints one JSON object per sample.
func writeRows(w io.Writer, rec *adat.Record) error {
	schema, err := columnar.SchemaFor(rec)
	if err != nil {
		return err
	}
	enc, err := json.NewStreamingEncoder(w, false)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write rows")
	}
	for _, row := range columnar.Rows(rec, schema) {
		if err := enc.Encode(row); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write rows")
		}
	}
	return enc.Close()
}
