package adat

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/SomaLogic/Canopy/pkg/compression"
	"github.com/SomaLogic/Canopy/pkg/errors"
	"github.com/SomaLogic/Canopy/pkg/json"
	"github.com/SomaLogic/Canopy/pkg/logger"
	cstrings "github.com/SomaLogic/Canopy/pkg/strings"
)

// Section markers.
const (
	markerHeader  = "^HEADER"
	markerColData = "^COL_DATA"
	markerRowData = "^ROW_DATA"
	markerTable   = "^TABLE_BEGIN"

	checksumKey = "!Checksum"
	namesKey    = "!Name"
	typesKey    = "!Type"
)

// Diagnostic messages. Their wording is relied on by downstream tooling.
const (
	missingRowMetadataMsg = "Row metadata has %d missing values. Filling missing entries with empty strings."
	legacySeqIDMsg        = "V3 style seqIds (i.e., 12345-6_7). Converting to V4 Style. The adat file writer has an option to write using the V3 style"
)

var legacySeqIDPattern = regexp.MustCompile(`^\d+-\d+_\d+$`)

// ReadOptions controls parsing.
type ReadOptions struct {
	// CompatibilityMode keeps ReportConfig as its raw string instead of
	// decoding it as a JSON document.
	CompatibilityMode bool
	// VerifyChecksum compares the !Checksum line against the content and
	// reports a ChecksumMismatch diagnostic when they differ.
	VerifyChecksum bool
	// Logger receives every diagnostic at warn level. Nil uses the global
	// logger.
	Logger *zap.Logger
}

// Parse reads an ADAT document from r.
//
// Recoverable conditions are returned as diagnostics and logged; anything
// that cannot be repaired is a *FormatError. The whole input is read into
// memory.
func Parse(r io.Reader, opts ReadOptions) (*Record, Diagnostics, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read adat")
	}

	p := &parser{opts: opts, intern: cstrings.NewIntern()}
	rec, err := p.parse(data)
	if err != nil {
		return nil, nil, err
	}
	p.diags.Log(logger.OrDefault(opts.Logger))
	return rec, p.diags, nil
}

// ReadFile parses the ADAT file at path, decompressing by file suffix.
func ReadFile(path string, opts ReadOptions) (*Record, Diagnostics, error) {
	rc, err := compression.OpenFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open adat file").
			WithDetail("path", path)
	}
	defer rc.Close()

	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	opts.Logger = opts.Logger.With(zap.String("file", path))

	rec, diags, err := Parse(rc, opts)
	if err != nil {
		var fe *errors.Error
		if errors.As(err, &fe) {
			fe.WithDetail("path", path)
		}
		return nil, nil, err
	}
	return rec, diags, nil
}

type line struct {
	num   int
	cells []string
	text  string
}

type parser struct {
	opts  ReadOptions
	diags Diagnostics
	// intern copies retained values out of the input buffer
	intern *cstrings.Intern

	header   Header
	colNames []string
	colTypes []string
	rowNames []string
	rowTypes []string
	table    []line
}

func (p *parser) parse(data []byte) (*Record, error) {
	lines := splitLines(data)
	p.header = NewHeader()

	i := 0
	for ; i < len(lines); i++ {
		l := lines[i]
		if l.text == "" {
			continue
		}
		if l.cells[0] == checksumKey {
			if p.opts.VerifyChecksum {
				p.verifyChecksum(data, l)
			}
			continue
		}
		if l.cells[0] != markerHeader {
			return nil, formatErrorf(l.num, 1, "expected %s, found %q", markerHeader, l.cells[0])
		}
		break
	}
	if i == len(lines) {
		return nil, formatErrorf(0, 0, "missing %s section", markerHeader)
	}

	section := markerHeader
	seen := map[string]bool{markerHeader: true}
	for i++; i < len(lines); i++ {
		l := lines[i]
		if section == markerTable {
			if l.text != "" {
				p.table = append(p.table, l)
			}
			continue
		}
		if l.text == "" {
			continue
		}
		if strings.HasPrefix(l.cells[0], "^") {
			next := l.cells[0]
			switch next {
			case markerColData, markerRowData, markerTable:
			default:
				return nil, formatErrorf(l.num, 1, "unknown section marker %q", next)
			}
			if seen[next] {
				return nil, formatErrorf(l.num, 1, "duplicate section %s", next)
			}
			seen[next] = true
			section = next
			continue
		}

		switch section {
		case markerHeader:
			p.header.SetString(p.intern.Get(l.cells[0]), cstrings.Clone(strings.Join(l.cells[1:], "\t")))
		case markerColData, markerRowData:
			if err := p.declaration(section, l); err != nil {
				return nil, err
			}
		}
	}
	if section != markerTable {
		return nil, formatErrorf(0, 0, "missing %s section", markerTable)
	}

	rec, err := p.buildTable()
	if err != nil {
		return nil, err
	}
	rec.Header = p.header
	p.splitLegacySeqIDs(rec)
	p.decodeStructured(rec)
	return rec, nil
}

func (p *parser) verifyChecksum(data []byte, l line) {
	declared := ""
	if len(l.cells) > 1 {
		declared = strings.ToLower(strings.TrimSpace(l.cells[1]))
	}
	body := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		body = data[idx+1:]
	}
	sum := sha1.Sum(body)
	actual := hex.EncodeToString(sum[:])
	if declared != actual {
		p.diags = append(p.diags, Diagnostic{
			Kind:    ChecksumMismatch,
			Message: fmt.Sprintf("Checksum mismatch: file declares %q, content hashes to %q", declared, actual),
		})
	}
}

func (p *parser) declaration(section string, l line) error {
	values := trimTrailingEmpty(l.cells[1:])
	switch {
	case l.cells[0] == namesKey && section == markerColData:
		p.colNames = p.intern.All(values)
	case l.cells[0] == typesKey && section == markerColData:
		p.colTypes = p.intern.All(values)
	case l.cells[0] == namesKey && section == markerRowData:
		p.rowNames = p.intern.All(values)
	case l.cells[0] == typesKey && section == markerRowData:
		p.rowTypes = p.intern.All(values)
	default:
		return formatErrorf(l.num, 1, "unexpected line %q in %s", l.cells[0], section)
	}
	return nil
}

// buildTable interprets the lines after ^TABLE_BEGIN.
//
// Column metadata rows start with W empty cells followed by the field name
// and one value per column. The first line whose first cell is non-empty
// names the row metadata fields. Every line after it is a sample: W
// metadata values, an empty separator cell, then one measurement per column.
func (p *parser) buildTable() (*Record, error) {
	rec := &Record{}
	if len(p.table) == 0 {
		return nil, formatErrorf(0, 0, "%s section is empty", markerTable)
	}

	width := -1
	ncols := -1
	var colFields []Field
	k := 0
	for ; k < len(p.table) && p.table[k].cells[0] == ""; k++ {
		l := p.table[k]
		if width < 0 {
			width = firstNonEmpty(l.cells)
			if width < 0 {
				return nil, formatErrorf(l.num, 0, "column metadata row has no field name")
			}
		}
		if len(l.cells) <= width {
			return nil, formatErrorf(l.num, 0, "column metadata row has %d cells, expected at least %d", len(l.cells), width+1)
		}
		for c := 0; c < width; c++ {
			if l.cells[c] != "" {
				return nil, formatErrorf(l.num, c+1, "expected an empty cell before the column metadata field name")
			}
		}
		name := l.cells[width]
		if name == "" {
			return nil, formatErrorf(l.num, width+1, "column metadata field name is empty")
		}
		values := l.cells[width+1:]
		if ncols < 0 {
			ncols = len(values)
		}
		switch {
		case len(values) > ncols:
			return nil, formatErrorf(l.num, width+1+ncols+1, "column metadata field %q has %d values, expected %d", name, len(values), ncols)
		case len(values) < ncols:
			padded := make([]string, ncols)
			copy(padded, values)
			values = padded
		}
		colFields = append(colFields, Field{Name: p.intern.Get(name), Values: p.intern.All(append([]string(nil), values...))})
	}

	if k == len(p.table) {
		return nil, formatErrorf(p.table[len(p.table)-1].num, 0, "missing row metadata names line")
	}
	names := p.table[k]
	if width < 0 {
		width = leadingNonEmpty(names.cells)
		ncols = len(names.cells) - width - 1
		if ncols < 0 {
			ncols = 0
		}
	}
	if len(names.cells) < width {
		return nil, formatErrorf(names.num, 0, "row metadata names line has %d cells, expected %d", len(names.cells), width)
	}
	for c := 0; c < width; c++ {
		if names.cells[c] == "" {
			return nil, formatErrorf(names.num, c+1, "row metadata field name is empty")
		}
	}
	for c := width; c < len(names.cells); c++ {
		if names.cells[c] != "" {
			return nil, formatErrorf(names.num, c+1, "unexpected value %q after row metadata names", names.cells[c])
		}
	}
	rowNames := names.cells[:width]

	if err := checkDeclared(p.colNames, fieldNames(colFields), "column", names.num); err != nil {
		return nil, err
	}
	if err := checkDeclared(p.rowNames, rowNames, "row", names.num); err != nil {
		return nil, err
	}

	samples := p.table[k+1:]
	rowValues := make([][]string, width)
	for c := range rowValues {
		rowValues[c] = make([]string, len(samples))
	}
	matrix := NewMatrix(len(samples), ncols)
	missing := 0
	for r, l := range samples {
		n := len(l.cells)
		if n < ncols+1 {
			return nil, formatErrorf(l.num, 0, "data row has %d cells, expected at least %d", n, ncols+1)
		}
		sep := n - ncols - 1
		if l.cells[sep] != "" {
			return nil, formatErrorf(l.num, sep+1, "expected an empty cell between row metadata and measurements, found %q", l.cells[sep])
		}
		if sep > width {
			return nil, formatErrorf(l.num, 0, "data row has %d metadata values, expected %d", sep, width)
		}
		missing += width - sep
		for c := 0; c < sep; c++ {
			rowValues[c][r] = p.intern.Get(l.cells[c])
		}
		for j := 0; j < ncols; j++ {
			cell := l.cells[sep+1+j]
			if cell == "" {
				return nil, formatErrorf(l.num, sep+2+j, "empty measurement")
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, formatErrorf(l.num, sep+2+j, "invalid measurement %q", cell)
			}
			matrix.Set(r, j, v)
		}
	}
	if missing > 0 {
		p.diags = append(p.diags, Diagnostic{
			Kind:    MissingRowMetadata,
			Message: fmt.Sprintf(missingRowMetadataMsg, missing),
			Count:   missing,
		})
	}

	for c, f := range colFields {
		f.Type = declaredType(p.colTypes, c)
		if err := rec.ColumnMetadata.Add(f); err != nil {
			return nil, formatErrorf(0, 0, "%v", err)
		}
	}
	for c, name := range rowNames {
		f := Field{Name: p.intern.Get(name), Type: declaredType(p.rowTypes, c), Values: rowValues[c]}
		if err := rec.RowMetadata.Add(f); err != nil {
			return nil, formatErrorf(names.num, c+1, "%v", err)
		}
	}
	rec.Matrix = matrix
	return rec, nil
}

// splitLegacySeqIDs converts "12345-6_7" style SeqIds into a SeqId and a
// SeqIdVersion field.
func (p *parser) splitLegacySeqIDs(rec *Record) {
	cm := &rec.ColumnMetadata
	idx := cm.Index(FieldSeqID)
	if idx < 0 || cm.Has(FieldSeqIDVersion) {
		return
	}
	seqIDs := cm.Values(FieldSeqID)
	found := false
	for _, s := range seqIDs {
		if legacySeqIDPattern.MatchString(s) {
			found = true
			break
		}
	}
	if !found {
		return
	}

	versions := make([]string, len(seqIDs))
	for i, s := range seqIDs {
		if !legacySeqIDPattern.MatchString(s) {
			continue
		}
		cut := strings.LastIndexByte(s, '_')
		seqIDs[i], versions[i] = s[:cut], s[cut+1:]
	}
	// Widths match by construction.
	_ = cm.Set(FieldSeqID, seqIDs)
	_ = cm.Insert(idx+1, Field{Name: FieldSeqIDVersion, Type: cm.At(idx).Type, Values: versions})

	p.diags = append(p.diags, Diagnostic{Kind: LegacySeqID, Message: legacySeqIDMsg, Count: len(seqIDs)})
}

// decodeStructured turns ReportConfig into a Document unless running in
// compatibility mode.
func (p *parser) decodeStructured(rec *Record) {
	if p.opts.CompatibilityMode {
		return
	}
	raw, ok := rec.Header.Lookup(KeyReportConfig)
	if !ok || raw == "" {
		return
	}
	doc, err := json.DecodeDocument(raw)
	if err != nil {
		p.diags = append(p.diags, Diagnostic{
			Kind:    HeaderDecode,
			Message: fmt.Sprintf("Unable to decode %s as JSON, keeping the raw text: %v", KeyReportConfig, err),
		})
		return
	}
	rec.Header.Set(KeyReportConfig, Document(raw, doc))
}

// splitLines splits data on LF, dropping a trailing CR from every line and
// the empty remainder after a final newline.
func splitLines(data []byte) []line {
	text := string(data)
	text = strings.TrimPrefix(text, "\ufeff")
	raw := strings.Split(text, "\n")
	if n := len(raw); n > 0 && raw[n-1] == "" {
		raw = raw[:n-1]
	}
	lines := make([]line, len(raw))
	for i, s := range raw {
		s = strings.TrimSuffix(s, "\r")
		lines[i] = line{num: i + 1, text: s, cells: strings.Split(s, "\t")}
	}
	return lines
}

func checkDeclared(declared, actual []string, kind string, lineNum int) error {
	if declared == nil {
		return nil
	}
	if len(declared) != len(actual) {
		return formatErrorf(lineNum, 0, "%s metadata fields %v do not match declared %s %v", kind, actual, namesKey, declared)
	}
	for i := range declared {
		if declared[i] != actual[i] {
			return formatErrorf(lineNum, 0, "%s metadata fields %v do not match declared %s %v", kind, actual, namesKey, declared)
		}
	}
	return nil
}

func declaredType(types []string, i int) string {
	if i < len(types) && types[i] != "" {
		return types[i]
	}
	return DefaultFieldType
}

func fieldNames(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func firstNonEmpty(cells []string) int {
	for i, c := range cells {
		if c != "" {
			return i
		}
	}
	return -1
}

func leadingNonEmpty(cells []string) int {
	for i, c := range cells {
		if c == "" {
			return i
		}
	}
	return len(cells)
}

func trimTrailingEmpty(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	return append([]string{}, cells[:n]...)
}
