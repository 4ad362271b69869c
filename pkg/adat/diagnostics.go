package adat

import (
	"fmt"

	"go.uber.org/zap"
)

// DiagnosticKind classifies a recoverable condition met while reading.
type DiagnosticKind string

const (
	// MissingRowMetadata means data rows were short of metadata values and
	// were padded with empty strings.
	MissingRowMetadata DiagnosticKind = "missing_row_metadata"
	// LegacySeqID means V3 style SeqIds were split into SeqId and
	// SeqIdVersion.
	LegacySeqID DiagnosticKind = "legacy_seq_id"
	// HeaderDecode means a structured header field could not be decoded and
	// was kept as text.
	HeaderDecode DiagnosticKind = "header_decode"
	// ChecksumMismatch means the !Checksum line does not match the content.
	ChecksumMismatch DiagnosticKind = "checksum_mismatch"
	// UnknownAnnotations means an annotations file is not in the approved set.
	UnknownAnnotations DiagnosticKind = "unknown_annotations"
)

// Diagnostic is one recoverable condition. Message is the user-facing text.
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
	Count   int
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Diagnostics collects the conditions reported by one read.
type Diagnostics []Diagnostic

// Has reports whether any diagnostic of kind was recorded.
func (ds Diagnostics) Has(kind DiagnosticKind) bool {
	for _, d := range ds {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// Of returns the diagnostics of kind.
func (ds Diagnostics) Of(kind DiagnosticKind) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Messages returns the user-facing messages in order.
func (ds Diagnostics) Messages() []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Message
	}
	return out
}

// Log writes every diagnostic to log at warn level.
func (ds Diagnostics) Log(log *zap.Logger) {
	for _, d := range ds {
		fields := []zap.Field{zap.String("kind", string(d.Kind))}
		if d.Count > 0 {
			fields = append(fields, zap.Int("count", d.Count))
		}
		log.Warn(d.Message, fields...)
	}
}
