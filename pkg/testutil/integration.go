package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/logger"
)

// IntegrationTestSuite provides a scratch directory and an observed global
// logger for tests that drive whole commands.
type IntegrationTestSuite struct {
	suite.Suite
	tempDir   string
	startTime time.Time
	logs      *observer.ObservedLogs
	prevLog   *zap.Logger
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "canopy-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir

	s.T().Logf("Integration test suite started in %s", s.tempDir)
}

// SetupTest installs a fresh observed logger as the global logger.
func (s *IntegrationTestSuite) SetupTest() {
	s.prevLog = logger.Get()
	var l *zap.Logger
	l, s.logs = ObservedLogger(zapcore.DebugLevel)
	logger.Set(l)
}

// TearDownTest restores the global logger.
func (s *IntegrationTestSuite) TearDownTest() {
	logger.Set(s.prevLog)
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	s.T().Logf("Integration test suite completed in %v", time.Since(s.startTime))
}

// TempDir returns the temporary directory path
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// Logs returns the entries logged during the current test.
func (s *IntegrationTestSuite) Logs() *observer.ObservedLogs {
	return s.logs
}

// CreateTempFile creates a temporary file with content
func (s *IntegrationTestSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.tempDir, name)
	err := os.WriteFile(path, content, 0o644)
	require.NoError(s.T(), err)
	return path
}

// CreateSampleADAT writes SampleRecord to name and returns the path.
func (s *IntegrationTestSuite) CreateSampleADAT(name string) string {
	path := filepath.Join(s.tempDir, name)
	require.NoError(s.T(), adat.WriteFile(path, SampleRecord(s.T()), adat.DefaultWriteOptions()))
	return path
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
