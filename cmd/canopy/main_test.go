package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/errors"
	"github.com/SomaLogic/Canopy/pkg/formats/columnar"
	"github.com/SomaLogic/Canopy/pkg/json"
	"github.com/SomaLogic/Canopy/pkg/lift"
	"github.com/SomaLogic/Canopy/pkg/logger"
	"github.com/SomaLogic/Canopy/pkg/testutil"
)

const liftAnnotations = "SeqId,SomaId,Plasma Scalar v4.0 5K to v4.1 7K\n" +
	"10000-28,SL019233,2.0\n" +
	"10001-7,SL002564,0.5\n" +
	"10003-15,SL019245,1.0\n" +
	"10006-25,SL019228,1.5\n"

type CLITestSuite struct {
	testutil.IntegrationTestSuite
}

func TestCLI(t *testing.T) {
	testutil.IntegrationTest(t)
	suite.Run(t, new(CLITestSuite))
}

func (s *CLITestSuite) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(logger.Get())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (s *CLITestSuite) path(name string) string {
	return filepath.Join(s.TempDir(), name)
}

func (s *CLITestSuite) TestVersion() {
	out, err := s.run("version")
	s.Require().NoError(err)
	s.Contains(out, "Canopy v"+version)
}

func (s *CLITestSuite) TestInspect() {
	in := s.CreateSampleADAT("inspect.adat")

	out, err := s.run("inspect", in)
	s.Require().NoError(err)
	s.Contains(out, "Shape:         3 samples x 4 analytes")
	s.Contains(out, "Signal space:  v4.0")
	s.Contains(out, "Row fields:    PlateId, SlideId, SampleId, SampleType, Barcode")
	s.Contains(out, "  StudyMatrix: EDTA Plasma")
	s.NotContains(out, "Diagnostics:")
}

func (s *CLITestSuite) TestInspectJSON() {
	in := s.CreateSampleADAT("inspect-json.adat")

	out, err := s.run("inspect", in, "--json")
	s.Require().NoError(err)

	var got summary
	s.Require().NoError(json.Unmarshal([]byte(out), &got))
	s.Equal(3, got.Samples)
	s.Equal(4, got.Analytes)
	s.Equal("v4.0", got.SignalSpace)
	s.Equal([]string{"SeqId", "SeqIdVersion", "SomaId", "Target", "Dilution", "ColCheck"}, got.ColumnFields)
	s.Equal("AdatId", got.Header[0].Key)
	s.Empty(got.Diagnostics)
}

func (s *CLITestSuite) TestInspectReportsDiagnostics() {
	data, err := adat.Marshal(testutil.LegacySeqIDRecord(s.T()), adat.DefaultWriteOptions())
	s.Require().NoError(err)
	in := s.CreateTempFile("legacy.adat", data)

	out, err := s.run("inspect", in, "--json")
	s.Require().NoError(err)

	var got summary
	s.Require().NoError(json.Unmarshal([]byte(out), &got))
	s.Require().Len(got.Diagnostics, 1)
	s.Equal(string(adat.LegacySeqID), got.Diagnostics[0].Kind)
	s.Contains(got.Diagnostics[0].Message, "V3 style seqIds")
	s.Equal(1, s.Logs().FilterMessageSnippet("V3 style seqIds").Len())
}

func (s *CLITestSuite) TestInspectRows() {
	in := s.CreateSampleADAT("rows.adat")

	out, err := s.run("inspect", in, "--rows")
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().Len(lines, 3)
	var row map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(lines[1]), &row))
	s.Equal("QC", row["SampleType"])
	s.Equal(846.3, row["10001-7"])
}

func (s *CLITestSuite) TestConvert() {
	in := s.CreateSampleADAT("convert.adat")
	out := s.path("convert.adat.gz")

	_, err := s.run("convert", in, out, "--v3-seqids")
	s.Require().NoError(err)

	rec, diags, err := adat.ReadFile(out, adat.ReadOptions{Logger: testutil.TestLogger(s.T())})
	s.Require().NoError(err)
	s.True(diags.Has(adat.LegacySeqID))
	s.Equal([]string{"10000-28", "10001-7", "10003-15", "10006-25"}, rec.ColumnMetadata.Values(adat.FieldSeqID))
	s.True(rec.Matrix.Equal(testutil.SampleRecord(s.T()).Matrix))
}

func (s *CLITestSuite) TestConvertMissingInput() {
	_, err := s.run("convert", s.path("missing.adat"), s.path("out.adat"))
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeFile))
	s.NoFileExists(s.path("out.adat"))
}

func (s *CLITestSuite) TestLift() {
	in := s.CreateSampleADAT("lift.adat")
	ann := s.CreateTempFile("annotations.csv", []byte(liftAnnotations))
	out := s.path("lift.v41.adat")

	_, err := s.run("lift", in, ann, out, "--to", "v4.1")
	s.Require().NoError(err)

	rec, _, err := adat.ReadFile(out, adat.ReadOptions{Logger: testutil.TestLogger(s.T())})
	s.Require().NoError(err)
	s.Equal("v4.1", lift.SignalSpace(rec.Header))
	s.InDelta(941.0, rec.Matrix.At(0, 0), 0.05)
	s.InDelta(539.55, rec.Matrix.At(0, 1), 0.06)
	s.InDelta(437.2, rec.Matrix.At(0, 2), 0.05)
	s.InDelta(3851.7, rec.Matrix.At(0, 3), 0.05)
	s.Equal(1, s.Logs().FilterMessageSnippet("lifted record").Len())
}

func (s *CLITestSuite) TestLiftUnsupportedTarget() {
	in := s.CreateSampleADAT("lift-bad.adat")
	ann := s.CreateTempFile("annotations-bad.csv", []byte(liftAnnotations))
	out := s.path("lift-bad.out.adat")

	_, err := s.run("lift", in, ann, out, "--to", "v9.9")
	s.Require().Error(err)
	var unsupported *lift.UnsupportedVersionError
	s.ErrorAs(err, &unsupported)
	s.NoFileExists(out)
}

func (s *CLITestSuite) TestExport() {
	in := s.CreateSampleADAT("export.adat")

	for _, name := range []string{"export.parquet", "export.arrow", "export.avro"} {
		out := s.path(name)
		_, err := s.run("export", in, out)
		s.Require().NoError(err, name)

		format, err := columnar.ParseFormat(filepath.Ext(name))
		s.Require().NoError(err)
		f, err := os.Open(out)
		s.Require().NoError(err)
		rec, err := columnar.ReadRecord(f, format)
		f.Close()
		s.Require().NoError(err, name)
		s.True(rec.Matrix.Equal(testutil.SampleRecord(s.T()).Matrix), name)
	}
}

func (s *CLITestSuite) TestExportRejectsCodec() {
	in := s.CreateSampleADAT("export-codec.adat")
	out := s.path("export-codec.bin")

	_, err := s.run("export", in, out, "--format", "avro", "--compression", "zstd")
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeConfig))
	s.NoFileExists(out)
}

func (s *CLITestSuite) TestConfigAndMetricsFile() {
	cfgPath := s.CreateTempFile("canopy.yaml", []byte("writer:\n  round_rfu: false\nexport:\n  format: arrow\n"))
	metricsPath := s.path("canopy.prom")
	in := s.CreateSampleADAT("metrics.adat")
	out := s.path("metrics.out")

	_, err := s.run("export", in, out, "--config", cfgPath, "--metrics-file", metricsPath)
	s.Require().NoError(err)

	f, err := os.Open(out)
	s.Require().NoError(err)
	defer f.Close()
	_, err = columnar.ReadRecord(f, columnar.Arrow)
	s.Require().NoError(err)

	data, err := os.ReadFile(metricsPath)
	s.Require().NoError(err)
	s.Contains(string(data), `canopy_files_read_total{result="success"} 1`)
	s.Contains(string(data), `canopy_files_written_total{result="success"} 1`)
}

func (s *CLITestSuite) TestTraceFile() {
	in := s.CreateSampleADAT("trace.adat")
	tracePath := s.path("trace.json")

	_, err := s.run("convert", in, s.path("trace.out.adat"), "--trace-file", tracePath)
	s.Require().NoError(err)

	data, err := os.ReadFile(tracePath)
	s.Require().NoError(err)
	s.Contains(string(data), `"Name":"read"`)
	s.Contains(string(data), `"Name":"write"`)
}

func (s *CLITestSuite) TestMetricsWrittenOnFailure() {
	metricsPath := s.path("failure.prom")

	_, err := s.run("inspect", s.path("absent.adat"), "--metrics-file", metricsPath)
	s.Require().Error(err)

	data, err := os.ReadFile(metricsPath)
	s.Require().NoError(err)
	s.Contains(string(data), `canopy_files_read_total{result="failure"} 1`)
}

func (s *CLITestSuite) TestBadConfig() {
	cfgPath := s.CreateTempFile("bad.yaml", []byte("writer:\n  compression: extreme\n"))
	_, err := s.run("version", "--config", cfgPath)
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeConfig))
}
