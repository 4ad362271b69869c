// Package annotations loads analyte annotation tables.
//
// An annotations table has one row per analyte and columns such as SeqId,
// SomaId, Target and the lifting scale factors
// ("Plasma Scalar v4.0 5K to v4.1 7K"). SeqId may be the table index or an
// ordinary column; lookups work either way. Tables satisfy
// lift.ScaleFactorTable.
package annotations

import (
	"bytes"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/compression"
	"github.com/SomaLogic/Canopy/pkg/errors"
	"github.com/SomaLogic/Canopy/pkg/lift"
	"github.com/SomaLogic/Canopy/pkg/logger"
)

// UnknownChecksumMessage is logged when a file is not in the approved set.
const UnknownChecksumMessage = "Unknown annotations file md5. Continuing with provided annotations. Features in this utility may not run as expected."

// DefaultApprovedMD5 returns the checksums of the published annotations
// releases.
func DefaultApprovedMD5() []string {
	return []string{
		"7d92666369d4e33364b11804f2d1f8ce", // v4 rev 2
		"5fa46834ed826eb1e8dba88698cf7a76", // v4.1 rev 2
		"26c9f22d083bc3eac871e2dd00586c31", // v4.1 plasma/serum rev 10
		"d93180bdd291af5d07faafec92823661", // v5.0 plasma/serum rev 7
	}
}

// ReadOptions controls table loading.
type ReadOptions struct {
	// IndexColumn, when set, is the column used as the table index.
	IndexColumn string
	// SkipRows is the number of preamble lines before the column names.
	SkipRows int
	// ApprovedMD5 lists known file checksums. A file outside the set is
	// still loaded but reported. Nil disables the check.
	ApprovedMD5 []string
	// Logger receives the unknown checksum warning. Nil uses the global
	// logger.
	Logger *zap.Logger
}

// DefaultReadOptions uses SeqId as the index and checks the published
// checksums.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		IndexColumn: adat.FieldSeqID,
		ApprovedMD5: DefaultApprovedMD5(),
	}
}

// Table is an analyte annotations table with an optional named index.
type Table struct {
	index   string
	keys    []string
	columns []string
	data    map[string][]string
	rows    int
}

// NewTable builds a table from column names and rows. When index is not
// empty that column becomes the index.
func NewTable(index string, columns []string, rows [][]string) (*Table, error) {
	t := &Table{data: make(map[string][]string, len(columns))}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, errors.Newf(errors.ErrorTypeFormat, "duplicate annotations column %q", c).WithDetail("column", c)
		}
		seen[c] = true
	}
	if index != "" && !seen[index] {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "index column %q not found", index).WithDetail("column", index)
	}

	for _, c := range columns {
		if c == index {
			t.index = c
			continue
		}
		t.columns = append(t.columns, c)
	}

	for i, row := range rows {
		if blank(row) {
			continue
		}
		if len(row) > len(columns) {
			return nil, errors.Newf(errors.ErrorTypeFormat, "annotations row %d has %d values, expected %d", i+1, len(row), len(columns))
		}
		for c, name := range columns {
			v := ""
			if c < len(row) {
				v = row[c]
			}
			if name == t.index {
				t.keys = append(t.keys, v)
			} else {
				t.data[name] = append(t.data[name], v)
			}
		}
		t.rows++
	}
	return t, nil
}

// ReadCSV loads a comma separated table and returns any diagnostics.
func ReadCSV(r io.Reader, opts ReadOptions) (*Table, adat.Diagnostics, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read annotations")
	}

	var diags adat.Diagnostics
	if opts.ApprovedMD5 != nil && !approved(raw, opts.ApprovedMD5) {
		diags = append(diags, adat.Diagnostic{Kind: adat.UnknownAnnotations, Message: UnknownChecksumMessage})
		logger.OrDefault(opts.Logger).Warn(UnknownChecksumMessage, zap.String("kind", string(adat.UnknownAnnotations)))
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1 // Allow variable number of fields
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to parse annotations csv")
	}
	if opts.SkipRows > len(records) {
		opts.SkipRows = len(records)
	}
	records = records[opts.SkipRows:]
	if len(records) == 0 {
		return nil, nil, errors.New(errors.ErrorTypeFormat, "annotations file has no column names")
	}

	columns := make([]string, len(records[0]))
	for i, c := range records[0] {
		columns[i] = strings.TrimSpace(c)
	}
	t, err := NewTable(opts.IndexColumn, columns, records[1:])
	if err != nil {
		return nil, nil, err
	}
	return t, diags, nil
}

// ReadFile loads the CSV table at path, decompressing by suffix. The
// checksum is taken over the decompressed content.
func ReadFile(path string, opts ReadOptions) (*Table, adat.Diagnostics, error) {
	rc, err := compression.OpenFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open annotations file").
			WithDetail("path", path)
	}
	defer rc.Close()

	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	opts.Logger = opts.Logger.With(zap.String("file", path))
	return ReadCSV(rc, opts)
}

// Index returns the index column name, or "".
func (t *Table) Index() string { return t.index }

// Columns returns the non-index column names in file order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// SeqIDs returns the SeqId of every row, from the index or a column.
func (t *Table) SeqIDs() ([]string, error) {
	ids, ok := t.Column(adat.FieldSeqID)
	if !ok {
		return nil, &lift.IdentityNotLocatedError{Field: adat.FieldSeqID}
	}
	return ids, nil
}

// Column returns a copy of the named column, including the index.
func (t *Table) Column(name string) ([]string, bool) {
	if t.index != "" && name == t.index {
		return append([]string(nil), t.keys...), true
	}
	v, ok := t.data[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), v...), true
}

// Lookup returns the value of column for the row with seqID.
func (t *Table) Lookup(seqID, column string) (string, bool) {
	ids, err := t.SeqIDs()
	if err != nil {
		return "", false
	}
	values, ok := t.Column(column)
	if !ok {
		return "", false
	}
	for i, id := range ids {
		if id == seqID {
			return values[i], true
		}
	}
	return "", false
}

// UpdateColumnMetadata returns a copy of rec with SomaIds taken from t.
func UpdateColumnMetadata(rec *adat.Record, t lift.ScaleFactorTable) (*adat.Record, error) {
	return lift.RefreshColumnMetadata(rec, t)
}

// Checksum returns the hex md5 of data, the form used by ApprovedMD5.
func Checksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func approved(data []byte, set []string) bool {
	sum := Checksum(data)
	for _, s := range set {
		if strings.EqualFold(s, sum) {
			return true
		}
	}
	return false
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
