// Package testutil provides testing utilities for Canopy
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/SomaLogic/Canopy/pkg/adat"
)

// SampleReportConfig is the ReportConfig header value of SampleRecord.
const SampleReportConfig = `{"analysisSteps":[{"stepType":"hybNormalization","referenceSource":"intraplate"},{"stepType":"plateScale"}],"qualityReport":"PASS"}`

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger returns a logger that records entries at level and above.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// SampleHeader returns the header used by SampleRecord.
func SampleHeader() adat.Header {
	h := adat.NewHeader()
	h.SetString("AdatId", "GID-1234-56-789-abcdef")
	h.SetString("Version", "1.2")
	h.SetString("AssayType", "PharmaServices")
	h.SetString("!AssayVersion", "v4.0")
	h.SetString("AssayRobot", "Fluent 1 L-307")
	h.SetString("Legal", "Experiment details and data have been processed to protect Personally Identifiable Information (PII) and comply with existing privacy laws.")
	h.SetString("CreatedBy", "PharmaServices")
	h.SetString("CreatedDate", "2020-07-24")
	h.SetString("EnteredBy", "Technician1")
	h.SetString("GeneratedBy", "Px (Build:  : ), Canopy_0.1.1")
	h.SetString("RunNotes", "2 columns ('Age' and 'Sex') have been added to this ADAT.")
	h.SetString("ProcessSteps", "Raw RFU, Hyb Normalization, medNormInt (SampleId), plateScale, Calibration, anmlQC, qcCheck, anmlSMP")
	h.SetString("!ProcessSteps", "Raw RFU, Hyb Normalization, medNormInt (SampleId), plateScale, Calibration, anmlQC, qcCheck, anmlSMP")
	h.SetString("StudyMatrix", "EDTA Plasma")
	h.SetString("!StudyMatrix", "EDTA Plasma")
	h.SetString("ReportConfig", SampleReportConfig)
	return h
}

// SampleRowMetadata returns three samples described by five fields.
func SampleRowMetadata() []adat.Field {
	return []adat.Field{
		{Name: "PlateId", Type: "String", Values: []string{"Example Adat Set001", "Example Adat Set001", "Example Adat Set002"}},
		{Name: "SlideId", Type: "Integer", Values: []string{"258495800012", "258495800004", "258495800010"}},
		{Name: "SampleId", Type: "String", Values: []string{"1", "2", "3"}},
		{Name: "SampleType", Type: "String", Values: []string{"Sample", "QC", "Calibrator"}},
		{Name: "Barcode", Type: "String", Values: []string{"J567890", "J567891", "J567892"}},
	}
}

// SampleColumnMetadata returns four analytes in the V4 layout.
func SampleColumnMetadata() []adat.Field {
	return []adat.Field{
		{Name: "SeqId", Type: "String", Values: []string{"10000-28", "10001-7", "10003-15", "10006-25"}},
		{Name: "SeqIdVersion", Type: "String", Values: []string{"3", "3", "1", "2"}},
		{Name: "SomaId", Type: "String", Values: []string{"SL019233", "SL002564", "SL019245", "SL019228"}},
		{Name: "Target", Type: "String", Values: []string{"Beta-crystallin B2", "RAF proto-oncogene serine/threonine-protein kinase", "Zinc finger protein 41", "ETS domain-containing protein Elk-1"}},
		{Name: "Dilution", Type: "String", Values: []string{"20", "20", "0.5", "20"}},
		{Name: "ColCheck", Type: "String", Values: []string{"PASS", "PASS", "FLAG", "PASS"}},
	}
}

// SampleMatrix returns measurements with one decimal place, matching what
// the writer emits by default.
func SampleMatrix() [][]float64 {
	return [][]float64{
		{470.5, 1079.1, 437.2, 2567.8},
		{393.1, 846.3, 462.0, 2006.4},
		{533.2, 1116.7, 408.9, 2453.3},
	}
}

// SampleRecord builds a small valid record.
func SampleRecord(t testing.TB) *adat.Record {
	t.Helper()
	rows, err := adat.NewMetadata(SampleRowMetadata()...)
	require.NoError(t, err)
	cols, err := adat.NewMetadata(SampleColumnMetadata()...)
	require.NoError(t, err)
	rec, err := adat.FromFeatures(SampleMatrix(), rows, cols, SampleHeader())
	require.NoError(t, err)
	return rec
}

// SampleBytes returns SampleRecord serialized with default options.
func SampleBytes(t testing.TB) []byte {
	t.Helper()
	data, err := adat.Marshal(SampleRecord(t), adat.DefaultWriteOptions())
	require.NoError(t, err)
	return data
}

// LegacySeqIDRecord builds a record whose SeqIds embed the version, with no
// SeqIdVersion field.
func LegacySeqIDRecord(t testing.TB) *adat.Record {
	t.Helper()
	rows, err := adat.NewMetadata(
		adat.Field{Name: "PlateId", Values: []string{"Set A", "Set A"}},
		adat.Field{Name: "SampleId", Values: []string{"1", "2"}},
	)
	require.NoError(t, err)
	cols, err := adat.NewMetadata(
		adat.Field{Name: "SeqId", Values: []string{"12345-6_7", "23456-7_8", "34567-8_9"}},
		adat.Field{Name: "Target", Values: []string{"A", "B", "C"}},
	)
	require.NoError(t, err)
	h := adat.NewHeader()
	h.SetString("AssayVersion", "V3")
	rec, err := adat.FromFeatures([][]float64{{1.5, 2.5, 3.5}, {4.5, 5.5, 6.5}}, rows, cols, h)
	require.NoError(t, err)
	return rec
}
