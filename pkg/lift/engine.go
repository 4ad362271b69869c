// Package lift converts ADAT measurements between assay signal spaces.
//
// A lift multiplies every analyte column by a per-analyte scale factor read
// from an annotations table. Before touching any data the engine checks the
// sample matrix, the source and target versions, and that the record and the
// table describe exactly the same analytes. The input record is never
// modified; Lift returns a new record.
package lift

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/logger"
)

// ScaleFactorTable is the annotations data a lift needs. Column values are
// aligned with SeqIDs by position.
type ScaleFactorTable interface {
	// SeqIDs returns the analyte identities of the table, whether they are
	// stored as the index or as an ordinary column. It fails with
	// *IdentityNotLocatedError when neither holds them.
	SeqIDs() ([]string, error)
	// Column returns the values of the named column.
	Column(name string) ([]string, bool)
}

// Engine lifts records along a fixed set of paths. It is safe for
// concurrent use.
type Engine struct {
	paths  PathTable
	logger *zap.Logger
}

// NewEngine creates an engine. A nil table uses DefaultPaths and a nil
// logger uses the global logger.
func NewEngine(paths PathTable, log *zap.Logger) *Engine {
	if paths == nil {
		paths = DefaultPaths()
	}
	return &Engine{
		paths:  append(PathTable(nil), paths...),
		logger: logger.OrDefault(log).With(zap.String("component", "lift")),
	}
}

// Lift rescales rec with DefaultPaths. See (*Engine).Lift.
func Lift(rec *adat.Record, table ScaleFactorTable, target string) (*adat.Record, error) {
	return NewEngine(nil, nil).Lift(rec, table, target)
}

// Paths returns the engine's path table.
func (e *Engine) Paths() PathTable {
	return append(PathTable(nil), e.paths...)
}

// Resolve validates rec and target against the path table and returns the
// path a lift would take. An empty target selects the first path from the
// record's signal space.
func (e *Engine) Resolve(rec *adat.Record, target string) (Path, error) {
	rawMatrix, _ := rec.Header.Lookup(adat.KeyStudyMatrix)
	matrix := NormalizeMatrix(rawMatrix)
	if !e.paths.SupportsMatrix(matrix) {
		return Path{}, &UnsupportedMatrixError{Matrix: rawMatrix, Supported: e.paths.Matrices()}
	}

	from := SignalSpace(rec.Header)
	candidates := e.paths.From(from, matrix)
	if len(candidates) == 0 {
		return Path{}, &UnsupportedVersionError{From: from, supported: e.paths.describe()}
	}
	if target == "" {
		return candidates[0], nil
	}
	p, ok := e.paths.Find(from, target, matrix)
	if !ok {
		return Path{}, &UnsupportedVersionError{From: from, To: target, supported: e.paths.describe()}
	}
	return p, nil
}

// Lift returns a copy of rec converted to target. The copy's SignalSpace
// names the target, its !ProcessSteps records the conversion, and its
// SomaIds are refreshed from the table when it carries them.
func (e *Engine) Lift(rec *adat.Record, table ScaleFactorTable, target string) (*adat.Record, error) {
	path, err := e.Resolve(rec, target)
	if err != nil {
		e.logger.Debug("lift rejected", zap.Error(err))
		return nil, err
	}

	positions, err := alignAnalytes(rec, table)
	if err != nil {
		e.logger.Debug("lift rejected", zap.Error(err))
		return nil, err
	}

	column := path.ScalarColumn()
	raw, ok := table.Column(column)
	if !ok {
		return nil, &ScaleFactorError{Column: column}
	}
	seqIDs := rec.ColumnMetadata.Values(adat.FieldSeqID)
	factors := make([]float64, len(positions))
	for j, pos := range positions {
		if pos >= len(raw) {
			return nil, &ScaleFactorError{Column: column, SeqID: seqIDs[j]}
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw[pos]), 64)
		if err != nil {
			return nil, &ScaleFactorError{Column: column, SeqID: seqIDs[j], Value: raw[pos]}
		}
		factors[j] = f
	}

	out := rec.Clone()
	for j, f := range factors {
		out.Matrix.ScaleColumn(j, f)
	}
	out.Header.SetString(adat.KeySignalSpace, path.To)
	appendProcessStep(&out.Header, fmt.Sprintf("Lifting Bridge (%s -> %s)", path.From, path.To))
	refreshSomaIDs(out, table, positions)

	e.logger.Info("lifted record",
		zap.String("from", path.From),
		zap.String("to", path.To),
		zap.String("matrix", path.Matrix),
		zap.Int("analytes", len(factors)),
	)
	return out, nil
}

// RefreshColumnMetadata returns a copy of rec whose SomaId values are taken
// from table. SeqIds must match as for a lift.
func RefreshColumnMetadata(rec *adat.Record, table ScaleFactorTable) (*adat.Record, error) {
	positions, err := alignAnalytes(rec, table)
	if err != nil {
		return nil, err
	}
	out := rec.Clone()
	refreshSomaIDs(out, table, positions)
	return out, nil
}

// SignalSpace returns the signal space version of a header: SignalSpace,
// then !AssayVersion, then AssayVersion.
func SignalSpace(h adat.Header) string {
	for _, key := range []string{adat.KeySignalSpace, adat.KeyAssayVersionBang, adat.KeyAssayVersion} {
		if v, ok := h.Lookup(key); ok {
			return v
		}
	}
	return ""
}

// alignAnalytes returns, for every record column, the table position of its
// SeqId. The record and table must hold the same set of SeqIds.
func alignAnalytes(rec *adat.Record, table ScaleFactorTable) ([]int, error) {
	tableIDs, err := table.SeqIDs()
	if err != nil {
		return nil, err
	}
	recIDs := rec.ColumnMetadata.Values(adat.FieldSeqID)
	if !rec.ColumnMetadata.Has(adat.FieldSeqID) {
		return nil, &AnalyteMismatchError{MissingFromRecord: sortedUnique(tableIDs)}
	}

	index := make(map[string]int, len(tableIDs))
	for i, id := range tableIDs {
		if _, dup := index[id]; !dup {
			index[id] = i
		}
	}
	inRecord := make(map[string]bool, len(recIDs))
	var missingFromTable, missingFromRecord []string
	for _, id := range recIDs {
		inRecord[id] = true
		if _, ok := index[id]; !ok {
			missingFromTable = append(missingFromTable, id)
		}
	}
	for id := range index {
		if !inRecord[id] {
			missingFromRecord = append(missingFromRecord, id)
		}
	}
	if len(missingFromTable) > 0 || len(missingFromRecord) > 0 {
		return nil, &AnalyteMismatchError{
			MissingFromTable:  sortedUnique(missingFromTable),
			MissingFromRecord: sortedUnique(missingFromRecord),
		}
	}

	positions := make([]int, len(recIDs))
	for j, id := range recIDs {
		positions[j] = index[id]
	}
	return positions, nil
}

func refreshSomaIDs(rec *adat.Record, table ScaleFactorTable, positions []int) {
	somaIDs, ok := table.Column(adat.FieldSomaID)
	if !ok || !rec.ColumnMetadata.Has(adat.FieldSomaID) {
		return
	}
	values := make([]string, len(positions))
	for j, pos := range positions {
		if pos >= len(somaIDs) {
			return
		}
		values[j] = somaIDs[pos]
	}
	// Width equals the column count by construction.
	_ = rec.ColumnMetadata.Set(adat.FieldSomaID, values)
}

func appendProcessStep(h *adat.Header, step string) {
	existing, ok := h.Lookup(adat.KeyProcessSteps)
	if !ok || existing == "" {
		h.SetString(adat.KeyProcessSteps, step)
		return
	}
	h.SetString(adat.KeyProcessSteps, existing+", "+step)
}

func sortedUnique(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
