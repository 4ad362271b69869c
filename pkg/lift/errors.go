package lift

import (
	"fmt"
	"strings"
)

// The messages below are matched verbatim by downstream tooling.

// UnsupportedMatrixError reports a StudyMatrix no path covers.
type UnsupportedMatrixError struct {
	Matrix    string
	Supported []string
}

func (e *UnsupportedMatrixError) Error() string {
	return fmt.Sprintf("Unsupported matrix: %q. Supported matrices: %s.", e.Matrix, strings.Join(e.Supported, ", "))
}

// UnsupportedVersionError reports a source version, or a source and target
// pair, with no path.
type UnsupportedVersionError struct {
	From string
	// To is empty when no target was requested.
	To        string
	supported string
}

func (e *UnsupportedVersionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("Unsupported lifting from: %q. Supported lifting: %s.", e.From, e.supported)
	}
	return fmt.Sprintf("Unsupported lifting from %q to %q. Supported lifting: %s.", e.From, e.To, e.supported)
}

// AnalyteMismatchError reports that the record and the scale factor table
// do not cover exactly the same SeqIds.
type AnalyteMismatchError struct {
	// MissingFromTable lists record SeqIds the table lacks.
	MissingFromTable []string
	// MissingFromRecord lists table SeqIds the record lacks.
	MissingFromRecord []string
}

func (e *AnalyteMismatchError) Error() string {
	return "Unable to perform lifting due to analyte mismatch between adat & annotations. Has either file been modified?"
}

// IdentityNotLocatedError reports a scale factor table with no SeqId index
// or column.
type IdentityNotLocatedError struct {
	Field string
}

func (e *IdentityNotLocatedError) Error() string {
	return fmt.Sprintf("%s not found in either index or columns", e.Field)
}

// ScaleFactorError reports a missing scale factor column or a factor that
// is not a number.
type ScaleFactorError struct {
	Column string
	SeqID  string
	Value  string
}

func (e *ScaleFactorError) Error() string {
	if e.SeqID == "" {
		return fmt.Sprintf("Scale factor column %q not found in annotations", e.Column)
	}
	return fmt.Sprintf("Invalid scale factor %q for SeqId %q in column %q", e.Value, e.SeqID, e.Column)
}
