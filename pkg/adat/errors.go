package adat

import (
	"fmt"
)

// FormatError reports input that does not follow the ADAT layout and cannot
// be repaired. Line and Column are 1-based; zero means unknown.
type FormatError struct {
	Line   int
	Column int
	Msg    string
}

func (e *FormatError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("adat: line %d, column %d: %s", e.Line, e.Column, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("adat: line %d: %s", e.Line, e.Msg)
	default:
		return "adat: " + e.Msg
	}
}

func formatErrorf(line, col int, format string, args ...interface{}) *FormatError {
	return &FormatError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}
