package adat_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/errors"
	"github.com/SomaLogic/Canopy/pkg/testutil"
)

func readControl(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "control.adat"))
	require.NoError(t, err)
	return data
}

func parse(t *testing.T, data []byte, opts adat.ReadOptions) (*adat.Record, adat.Diagnostics) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testutil.TestLogger(t)
	}
	rec, diags, err := adat.Parse(bytes.NewReader(data), opts)
	require.NoError(t, err)
	return rec, diags
}

// crlfLines splits serialized output into lines without their endings.
func crlfLines(data []byte) []string {
	return strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
}

func joinCRLF(lines []string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestParseControlFile(t *testing.T) {
	rec, diags := parse(t, readControl(t), adat.ReadOptions{VerifyChecksum: true})
	assert.Empty(t, diags)

	rows, cols := rec.Shape()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)

	assert.Equal(t, []string{"AdatId", "!AssayVersion", "StudyMatrix", "ReportConfig", "RunNotes"}, rec.Header.Keys())
	v, _ := rec.Header.Lookup("StudyMatrix")
	assert.Equal(t, "EDTA Plasma", v)
	notes, ok := rec.Header.Lookup("RunNotes")
	assert.True(t, ok)
	assert.Equal(t, "", notes)

	assert.Equal(t, []string{"SeqId", "SeqIdVersion", "SomaId"}, rec.ColumnMetadata.Names())
	assert.Equal(t, []string{"10000-28", "10001-7", "10003-15"}, rec.ColumnMetadata.Values("SeqId"))
	assert.Equal(t, []string{"PlateId", "SampleId"}, rec.RowMetadata.Names())
	assert.Equal(t, []string{"Set 001", "Set 001"}, rec.RowMetadata.Values("PlateId"))

	assert.Equal(t, []float64{470.5, 1079.1, 437.2}, rec.Matrix.Row(0))
	assert.Equal(t, []float64{393.1, 846.3, 462.0}, rec.Matrix.Row(1))
}

func TestParseAcceptsLFLineEndings(t *testing.T) {
	data := bytes.ReplaceAll(readControl(t), []byte("\r\n"), []byte("\n"))
	rec, _ := parse(t, data, adat.ReadOptions{})

	crlf, _ := parse(t, readControl(t), adat.ReadOptions{})
	assert.True(t, crlf.Equal(rec))
}

func TestReportConfigDecoding(t *testing.T) {
	t.Run("structured by default", func(t *testing.T) {
		rec, _ := parse(t, readControl(t), adat.ReadOptions{})
		v, ok := rec.Header.Get("ReportConfig")
		require.True(t, ok)
		assert.Equal(t, adat.KindDocument, v.Kind())

		doc, ok := v.Decoded().(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "PASS", doc["qualityReport"])
		assert.Equal(t, `{"qualityReport":"PASS","steps":[1,2]}`, v.Canonical())
	})

	t.Run("raw in compatibility mode", func(t *testing.T) {
		rec, _ := parse(t, readControl(t), adat.ReadOptions{CompatibilityMode: true})
		v, ok := rec.Header.Get("ReportConfig")
		require.True(t, ok)
		assert.Equal(t, adat.KindString, v.Kind())
		assert.Equal(t, `{"qualityReport":"PASS","steps":[1,2]}`, v.Canonical())
	})

	t.Run("other fields untouched", func(t *testing.T) {
		data := bytes.Replace(readControl(t), []byte("AdatId\tGID-0001"), []byte(`AdatId	{"id": 1}`), 1)
		rec, _ := parse(t, data, adat.ReadOptions{})
		v, _ := rec.Header.Get("AdatId")
		assert.Equal(t, adat.KindString, v.Kind())
	})

	t.Run("undecodable stays text", func(t *testing.T) {
		data := bytes.Replace(readControl(t), []byte(`{"qualityReport":"PASS","steps":[1,2]}`), []byte("{'qualityReport': 'PASS'}"), 1)
		rec, diags := parse(t, data, adat.ReadOptions{})
		v, _ := rec.Header.Get("ReportConfig")
		assert.Equal(t, adat.KindString, v.Kind())
		assert.Equal(t, "{'qualityReport': 'PASS'}", v.Canonical())
		assert.True(t, diags.Has(adat.HeaderDecode))
	})
}

func TestMissingRowMetadata(t *testing.T) {
	data := testutil.SampleBytes(t)
	lines := crlfLines(data)

	// Drop the last three row metadata values of the final sample.
	last := strings.Split(lines[len(lines)-1], "\t")
	width := len(testutil.SampleRowMetadata())
	truncated := append(append([]string{}, last[:width-3]...), last[width:]...)
	lines[len(lines)-1] = strings.Join(truncated, "\t")

	log, logs := testutil.ObservedLogger(zapcore.WarnLevel)
	rec, diags := parse(t, joinCRLF(lines), adat.ReadOptions{Logger: log})

	require.Len(t, diags, 1)
	assert.Equal(t, adat.MissingRowMetadata, diags[0].Kind)
	assert.Equal(t, 3, diags[0].Count)
	assert.Contains(t, diags[0].Message, "Row metadata has 3 missing values. Filling missing entries with empty strings.")

	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "Row metadata has 3 missing values. Filling missing entries with empty strings.")

	want := testutil.SampleRecord(t)
	for i, f := range want.RowMetadata.Fields() {
		got := rec.RowMetadata.Values(f.Name)
		assert.Equal(t, f.Values[:2], got[:2], "field %s rows before the truncated one", f.Name)
		if i < width-3 {
			assert.Equal(t, f.Values[2], got[2])
		} else {
			assert.Equal(t, "", got[2], "field %s", f.Name)
		}
	}
	assert.True(t, want.Matrix.Equal(rec.Matrix))
}

func TestLegacySeqIDs(t *testing.T) {
	data, err := adat.Marshal(testutil.LegacySeqIDRecord(t), adat.DefaultWriteOptions())
	require.NoError(t, err)

	log, logs := testutil.ObservedLogger(zapcore.WarnLevel)
	rec, diags := parse(t, data, adat.ReadOptions{Logger: log})

	assert.Equal(t, []string{"SeqId", "SeqIdVersion", "Target"}, rec.ColumnMetadata.Names())
	assert.Equal(t, []string{"12345-6", "23456-7", "34567-8"}, rec.ColumnMetadata.Values("SeqId"))
	assert.Equal(t, []string{"7", "8", "9"}, rec.ColumnMetadata.Values("SeqIdVersion"))

	legacy := diags.Of(adat.LegacySeqID)
	require.Len(t, legacy, 1)
	assert.Contains(t, legacy[0].Message, "V3 style seqIds")
	assert.Equal(t, 1, logs.FilterMessageSnippet("V3 style seqIds").Len())

	v3 := adat.DefaultWriteOptions()
	v3.ConvertToV3SeqIDs = true
	again, err := adat.Marshal(rec, v3)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestLegacySeqIDsIgnoredWithVersionField(t *testing.T) {
	rec := testutil.SampleRecord(t)
	seqIDs := rec.ColumnMetadata.Values("SeqId")
	seqIDs[0] = "10000-28_3"
	require.NoError(t, rec.ColumnMetadata.Set("SeqId", seqIDs))

	data, err := adat.Marshal(rec, adat.DefaultWriteOptions())
	require.NoError(t, err)
	parsed, diags := parse(t, data, adat.ReadOptions{CompatibilityMode: true})

	assert.False(t, diags.Has(adat.LegacySeqID))
	assert.Equal(t, "10000-28_3", parsed.ColumnMetadata.Values("SeqId")[0])
}

func TestVerifyChecksum(t *testing.T) {
	data := bytes.Replace(readControl(t), []byte("470.5"), []byte("470.6"), 1)

	_, diags := parse(t, data, adat.ReadOptions{})
	assert.False(t, diags.Has(adat.ChecksumMismatch))

	_, diags = parse(t, data, adat.ReadOptions{VerifyChecksum: true})
	assert.True(t, diags.Has(adat.ChecksumMismatch))
}

func TestParseFormatErrors(t *testing.T) {
	control := string(readControl(t))

	tests := []struct {
		name    string
		input   string
		line    int
		message string
	}{
		{
			name:    "empty input",
			input:   "",
			message: "missing ^HEADER section",
		},
		{
			name:    "content before header",
			input:   "hello\r\n^HEADER\r\n",
			line:    1,
			message: "expected ^HEADER",
		},
		{
			name:    "no table",
			input:   "^HEADER\r\nAdatId\tx\r\n^COL_DATA\r\n",
			message: "missing ^TABLE_BEGIN section",
		},
		{
			name:    "unknown marker",
			input:   strings.Replace(control, "^ROW_DATA", "^ROWS", 1),
			line:    11,
			message: `unknown section marker "^ROWS"`,
		},
		{
			name:    "non-numeric measurement",
			input:   strings.Replace(control, "1079.1", "high", 1),
			line:    19,
			message: `invalid measurement "high"`,
		},
		{
			name:    "empty measurement",
			input:   strings.Replace(control, "\t846.3\t", "\t\t", 1),
			line:    20,
			message: "empty measurement",
		},
		{
			name:    "separator holds a value",
			input:   strings.Replace(control, "Set 001\t2\t\t", "Set 001\t2\tX\t", 1),
			line:    20,
			message: "expected an empty cell between row metadata and measurements",
		},
		{
			name:    "too many metadata values",
			input:   strings.Replace(control, "Set 001\t2\t\t", "Set 001\t2\textra\t\t", 1),
			line:    20,
			message: "data row has 3 metadata values, expected 2",
		},
		{
			name:    "too few cells",
			input:   strings.Replace(control, "Set 001\t2\t\t393.1\t846.3\t462.0", "462.0", 1),
			line:    20,
			message: "data row has 1 cells, expected at least 4",
		},
		{
			name:    "column metadata row too long",
			input:   strings.Replace(control, "SL019245", "SL019245\tSL000001", 1),
			line:    17,
			message: `column metadata field "SomaId" has 4 values, expected 3`,
		},
		{
			name:    "declared names disagree",
			input:   strings.Replace(control, "!Name\tSeqId\tSeqIdVersion\tSomaId", "!Name\tSeqId\tSomaId", 1),
			line:    18,
			message: "do not match declared !Name",
		},
		{
			name:    "unexpected declaration",
			input:   strings.Replace(control, "!Type\tString\tString\tString", "!Units\tRFU", 1),
			line:    10,
			message: `unexpected line "!Units" in ^COL_DATA`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := adat.Parse(strings.NewReader(tt.input), adat.ReadOptions{Logger: testutil.TestLogger(t)})
			require.Error(t, err)

			var fe *adat.FormatError
			require.True(t, errors.As(err, &fe), "got %T: %v", err, err)
			assert.Contains(t, fe.Error(), tt.message)
			assert.Equal(t, tt.line, fe.Line)
		})
	}
}

func TestColumnMetadataPadding(t *testing.T) {
	control := string(readControl(t))
	input := strings.Replace(control, "\t\tSomaId\tSL019233\tSL002564\tSL019245", "\t\tSomaId\tSL019233", 1)

	rec, _ := parse(t, []byte(input), adat.ReadOptions{})
	assert.Equal(t, []string{"SL019233", "", ""}, rec.ColumnMetadata.Values("SomaId"))
}

func TestReadFileCompressed(t *testing.T) {
	dir := t.TempDir()
	want := testutil.SampleRecord(t)

	for _, name := range []string{"sample.adat", "sample.adat.gz", "sample.adat.zst", "sample.adat.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, adat.WriteFile(path, want, adat.DefaultWriteOptions()))

			got, _, err := adat.ReadFile(path, adat.ReadOptions{CompatibilityMode: true, Logger: testutil.TestLogger(t)})
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	_, _, err := adat.ReadFile(filepath.Join(t.TempDir(), "absent.adat"), adat.ReadOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseSharesRepeatedValues(t *testing.T) {
	rec, _ := parse(t, testutil.SampleBytes(t), adat.ReadOptions{})

	plates := rec.RowMetadata.Values("PlateId")
	require.Len(t, plates, 3)
	assert.Equal(t, plates[0], plates[1])
	assert.Same(t, unsafe.StringData(plates[0]), unsafe.StringData(plates[1]))

	checks := rec.ColumnMetadata.Values("ColCheck")
	assert.Same(t, unsafe.StringData(checks[0]), unsafe.StringData(checks[1]))
}
