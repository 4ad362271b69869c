package lift_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/annotations"
	"github.com/SomaLogic/Canopy/pkg/lift"
	"github.com/SomaLogic/Canopy/pkg/testutil"
)

const (
	scalars = "SeqId,SomaId,Plasma Scalar v4.0 5K to v4.1 7K\n" +
		"54321-21,SL054321,0.8\n" +
		"12345-12,SL012345,1.1\n"
	newSomaIDs = "SeqId,SomaId,Plasma Scalar v4.0 5K to v4.1 7K\n" +
		"54321-21,SLNEW1,0.8\n" +
		"12345-12,SLNEW2,1.1\n"
	noSeqIDs = "SomaId,Plasma Scalar v4.0 5K to v4.1 7K\n" +
		"SL054321,0.8\n" +
		"SL012345,1.1\n"
	processSteps = "Raw RFU, Hyb Normalization, medNormInt (SampleId), plateScale, Calibration, anmlQC, qcCheck, anmlSMP"
)

func buildRecord(t *testing.T, seqIDs []string, rfu [][]float64) *adat.Record {
	t.Helper()
	n := len(seqIDs)
	somaIDs := []string{"SL012345", "SL054321", "SL023456"}[:n]
	versions := []string{"1", "2", "3"}[:n]
	checks := []string{"PASS", "FLAG", "PASS"}[:n]

	cols, err := adat.NewMetadata(
		adat.Field{Name: "SeqId", Values: seqIDs},
		adat.Field{Name: "SeqIdVersion", Values: versions},
		adat.Field{Name: "SomaId", Values: somaIDs},
		adat.Field{Name: "ColCheck", Values: checks},
	)
	require.NoError(t, err)
	rows, err := adat.NewMetadata(
		adat.Field{Name: "PlateId", Values: []string{"A12", "A12"}},
		adat.Field{Name: "Barcode", Values: []string{"SL1234", "SL1235"}},
	)
	require.NoError(t, err)

	h := adat.NewHeader()
	h.SetString("AdatId", "1a2b3c")
	h.SetString("!ProcessSteps", processSteps)
	h.SetString("StudyMatrix", "EDTA Plasma")
	h.SetString("!AssayVersion", "v4.0")

	rec, err := adat.FromFeatures(rfu, rows, cols, h)
	require.NoError(t, err)
	return rec
}

func sampleRecord(t *testing.T) *adat.Record {
	return buildRecord(t, []string{"12345-12", "54321-21"}, [][]float64{{1, 2}, {4, 5}})
}

func readTable(t *testing.T, content, index string) *annotations.Table {
	t.Helper()
	table, _, err := annotations.ReadCSV(strings.NewReader(content), annotations.ReadOptions{IndexColumn: index})
	require.NoError(t, err)
	return table
}

func TestLift(t *testing.T) {
	for _, index := range []string{"SeqId", ""} {
		name := "seqid as column"
		if index != "" {
			name = "seqid as index"
		}
		t.Run(name, func(t *testing.T) {
			rec := sampleRecord(t)
			original := rec.Clone()

			lifted, err := lift.Lift(rec, readTable(t, scalars, index), "v4.1")
			require.NoError(t, err)

			expected := [][]float64{{1.1, 1.6}, {4.4, 4}}
			for i := range expected {
				for j := range expected[i] {
					assert.InDelta(t, expected[i][j], lifted.Matrix.At(i, j), 0.05)
				}
			}

			space, _ := lifted.Header.Lookup("SignalSpace")
			assert.Equal(t, "v4.1", space)
			steps, _ := lifted.Header.Lookup("!ProcessSteps")
			assert.Equal(t, processSteps+", Lifting Bridge (v4.0 -> v4.1)", steps)

			assert.True(t, lifted.RowMetadata.Equal(rec.RowMetadata))
			assert.Equal(t, rec.ColumnMetadata.Values("SeqId"), lifted.ColumnMetadata.Values("SeqId"))
			assert.Equal(t, rec.ColumnMetadata.Values("ColCheck"), lifted.ColumnMetadata.Values("ColCheck"))
			assert.True(t, rec.Equal(original), "input record is unchanged")
		})
	}
}

func TestLiftRefreshesSomaIDs(t *testing.T) {
	rec := sampleRecord(t)

	lifted, err := lift.Lift(rec, readTable(t, newSomaIDs, "SeqId"), "v4.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"SLNEW2", "SLNEW1"}, lifted.ColumnMetadata.Values("SomaId"))
	assert.Equal(t, []string{"SL012345", "SL054321"}, rec.ColumnMetadata.Values("SomaId"))
}

func TestLiftSeqIDNotLocated(t *testing.T) {
	_, err := lift.Lift(sampleRecord(t), readTable(t, noSeqIDs, ""), "v4.1")
	require.Error(t, err)
	var notLocated *lift.IdentityNotLocatedError
	require.ErrorAs(t, err, &notLocated)
	assert.Equal(t, "SeqId not found in either index or columns", err.Error())
}

func TestLiftAnalyteMismatch(t *testing.T) {
	rec := buildRecord(t, []string{"12345-12", "54321-21", "23456-78"}, [][]float64{{1, 2, 3}, {4, 5, 6}})

	_, err := lift.Lift(rec, readTable(t, scalars, "SeqId"), "v4.1")
	require.Error(t, err)
	var mismatch *lift.AnalyteMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "Unable to perform lifting due to analyte mismatch between adat & annotations. Has either file been modified?", err.Error())
	assert.Equal(t, []string{"23456-78"}, mismatch.MissingFromTable)
	assert.Empty(t, mismatch.MissingFromRecord)

	short := "SeqId,SomaId,Plasma Scalar v4.0 5K to v4.1 7K\n12345-12,SL012345,1.1\n"
	_, err = lift.Lift(sampleRecord(t), readTable(t, short, "SeqId"), "v4.1")
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"54321-21"}, mismatch.MissingFromTable)
}

func TestLiftUnsupported(t *testing.T) {
	table := readTable(t, scalars, "SeqId")

	t.Run("target", func(t *testing.T) {
		_, err := lift.Lift(sampleRecord(t), table, "NotSupportedVersion")
		require.Error(t, err)
		var unsupported *lift.UnsupportedVersionError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, `Unsupported lifting from "v4.0" to "NotSupportedVersion". Supported lifting: from "v4.0" to "v4.1".`, err.Error())
	})

	for _, key := range []string{"SignalSpace", "!AssayVersion"} {
		t.Run("source "+key, func(t *testing.T) {
			rec := sampleRecord(t)
			rec.Header.SetString(key, "NotSupportedVersion")
			_, err := lift.Lift(rec, table, "v4.1")
			require.Error(t, err)
			assert.Equal(t, `Unsupported lifting from: "NotSupportedVersion". Supported lifting: from "v4.0" to "v4.1".`, err.Error())
		})
	}

	t.Run("matrix", func(t *testing.T) {
		rec := sampleRecord(t)
		rec.Header.SetString("StudyMatrix", "NotSupportedMatrix")
		_, err := lift.Lift(rec, table, "v4.1")
		require.Error(t, err)
		var unsupported *lift.UnsupportedMatrixError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, `Unsupported matrix: "NotSupportedMatrix". Supported matrices: Plasma.`, err.Error())
	})
}

func TestLiftScaleFactorErrors(t *testing.T) {
	missing := "SeqId,SomaId\n54321-21,SL054321\n12345-12,SL012345\n"
	_, err := lift.Lift(sampleRecord(t), readTable(t, missing, "SeqId"), "v4.1")
	var sfErr *lift.ScaleFactorError
	require.ErrorAs(t, err, &sfErr)
	assert.Equal(t, "Plasma Scalar v4.0 5K to v4.1 7K", sfErr.Column)
	assert.Empty(t, sfErr.SeqID)

	bad := "SeqId,SomaId,Plasma Scalar v4.0 5K to v4.1 7K\n54321-21,SL054321,n/a\n12345-12,SL012345,1.1\n"
	_, err = lift.Lift(sampleRecord(t), readTable(t, bad, "SeqId"), "v4.1")
	require.ErrorAs(t, err, &sfErr)
	assert.Equal(t, "54321-21", sfErr.SeqID)
	assert.Equal(t, "n/a", sfErr.Value)
}

func TestLiftCreatesProcessSteps(t *testing.T) {
	rec := sampleRecord(t)
	require.True(t, rec.Header.Delete("!ProcessSteps"))

	lifted, err := lift.Lift(rec, readTable(t, scalars, "SeqId"), "v4.1")
	require.NoError(t, err)
	steps, ok := lifted.Header.Lookup("!ProcessSteps")
	require.True(t, ok)
	assert.Equal(t, "Lifting Bridge (v4.0 -> v4.1)", steps)
}

func TestEngineResolve(t *testing.T) {
	engine := lift.NewEngine(nil, zap.NewNop())
	rec := sampleRecord(t)

	p, err := engine.Resolve(rec, "")
	require.NoError(t, err)
	assert.Equal(t, lift.Path{From: "v4.0", To: "v4.1", Matrix: "Plasma"}, p)

	rec.Header.SetString("SignalSpace", "v4.1")
	_, err = engine.Resolve(rec, "")
	var unsupported *lift.UnsupportedVersionError
	require.ErrorAs(t, err, &unsupported)
	assert.Empty(t, unsupported.To)
}

func TestEngineCustomPaths(t *testing.T) {
	paths := lift.PathTable{
		{From: "v4.1", To: "v5.0", Matrix: "Serum"},
	}
	log, logs := testutil.ObservedLogger(zapcore.InfoLevel)
	engine := lift.NewEngine(paths, log)
	paths[0].To = "changed"
	assert.Equal(t, "v5.0", engine.Paths()[0].To)

	rec := sampleRecord(t)
	rec.Header.SetString("StudyMatrix", "Serum")
	rec.Header.SetString("SignalSpace", "v4.1")
	table := readTable(t, "SeqId,Serum Scalar v4.1 7K to v5.0 11K\n12345-12,2\n54321-21,0.5\n", "")

	lifted, err := engine.Lift(rec, table, "v5.0")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, lifted.Matrix.Row(0))
	assert.Equal(t, []string{"SL012345", "SL054321"}, lifted.ColumnMetadata.Values("SomaId"), "no SomaId column in table")
	steps, _ := lifted.Header.Lookup("!ProcessSteps")
	assert.True(t, strings.HasSuffix(steps, ", Lifting Bridge (v4.1 -> v5.0)"))
	require.Equal(t, 1, logs.FilterMessage("lifted record").Len())

	_, err = engine.Lift(sampleRecord(t), table, "v5.0")
	var matrixErr *lift.UnsupportedMatrixError
	require.ErrorAs(t, err, &matrixErr)
	assert.Equal(t, `Unsupported matrix: "EDTA Plasma". Supported matrices: Serum.`, err.Error())
}

func TestSignalSpace(t *testing.T) {
	h := adat.NewHeader()
	assert.Equal(t, "", lift.SignalSpace(h))
	h.SetString("AssayVersion", "v3")
	assert.Equal(t, "v3", lift.SignalSpace(h))
	h.SetString("!AssayVersion", "v4.0")
	assert.Equal(t, "v4.0", lift.SignalSpace(h))
	h.SetString("SignalSpace", "v4.1")
	assert.Equal(t, "v4.1", lift.SignalSpace(h))
}

func TestRefreshColumnMetadata(t *testing.T) {
	rec := sampleRecord(t)
	updated, err := lift.RefreshColumnMetadata(rec, readTable(t, newSomaIDs, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"SLNEW2", "SLNEW1"}, updated.ColumnMetadata.Values("SomaId"))
	assert.True(t, updated.Matrix.Equal(rec.Matrix))
}
