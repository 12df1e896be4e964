package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymarket/secgate/internal/gate"
)

const npmAuditCritical = `{
  "auditReportVersion": 2,
  "vulnerabilities": {
    "lodash": {
      "name": "lodash",
      "severity": "critical",
      "range": "<4.17.21",
      "via": [{
        "source": 1094500,
        "name": "lodash",
        "title": "Prototype Pollution",
        "severity": "critical",
        "url": "https://github.com/advisories/GHSA-35jh-r3h4-6jhm",
        "cwe": ["CWE-1321"],
        "cvss": {"score": 9.8}
      }]
    }
  }
}`

const npmAuditThreeHigh = `{
  "auditReportVersion": 2,
  "vulnerabilities": {
    "axios": {"name": "axios", "severity": "high", "range": "<1.6.0",
      "via": [{"source": 1, "title": "SSRF in axios", "severity": "high", "url": "https://example.com/1"}]},
    "express": {"name": "express", "severity": "high", "range": "<4.19.2",
      "via": [{"source": 2, "title": "Open redirect", "severity": "high", "url": "https://example.com/2"}]},
    "jsonwebtoken": {"name": "jsonwebtoken", "severity": "high", "range": "<9.0.0",
      "via": [{"source": 3, "title": "Weak verification", "severity": "high", "url": "https://example.com/3"}]}
  }
}`

const semgrepTwoMedium = `{
  "version": "1.50.0",
  "results": [
    {"check_id": "javascript.express.security.audit.xss-render", "path": "src/routes/profile.js",
     "start": {"line": 42, "col": 7},
     "extra": {"message": "User input flows into rendered HTML", "severity": "WARNING",
               "metadata": {"cwe": "CWE-79"}}},
    {"check_id": "javascript.lang.security.audit.sql-string-concat", "path": "src/db/query.js",
     "start": {"line": 10, "col": 3},
     "extra": {"message": "SQL statement built by string concatenation", "severity": "WARNING",
               "metadata": {"cwe": ["CWE-89"]}}}
  ],
  "errors": []
}`

const coverageOK = `{"percent": 85.0, "suites": ["unit", "integration"]}`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func testConfig(t *testing.T, dir string) Config {
	t.Helper()
	return Config{
		OutputPath: filepath.Join(dir, "out", "report.json"),
		Getenv:     noEnv,
		Now:        func() time.Time { return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC) },
	}
}

func TestRunBlocksCriticalInProduction(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Environment = EnvProduction
	cfg.Tolerance = ToleranceModerate
	cfg.CoveragePath = writeFixture(t, dir, "coverage.json", coverageOK)
	cfg.Inputs = []ScanInput{
		{Type: SourceDependency, Path: writeFixture(t, dir, "npm.json", npmAuditCritical)},
		{Type: SourceStatic, Path: writeFixture(t, dir, "semgrep.json", semgrepTwoMedium)},
	}

	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.False(t, rep.Passed)
	assert.Equal(t, 1, rep.ExitCode)
	require.Len(t, rep.Violations, 1)
	assert.Equal(t, gate.GateCritical, rep.Violations[0].GateID)
	assert.Empty(t, rep.Warnings)

	assert.Equal(t, 3, rep.Summary.Total)
	assert.Equal(t, 1, rep.Summary.BySeverity["critical"])
	assert.Equal(t, 2, rep.Summary.BySeverity["medium"])

	// Report and checksum artifacts are written even when the gate fails.
	_, err = os.Stat(cfg.OutputPath)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "out", "checksums.sha256"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "out", "secgate.run.log"))
	require.NoError(t, err)
}

func TestRunEnvironmentOverrideChangesOutcome(t *testing.T) {
	dir := t.TempDir()
	npm := writeFixture(t, dir, "npm.json", npmAuditThreeHigh)
	semgrep := writeFixture(t, dir, "semgrep.json", semgrepTwoMedium)
	coverage := writeFixture(t, dir, "coverage.json", coverageOK)

	run := func(env string) *Report {
		cfg := testConfig(t, filepath.Join(dir, env))
		cfg.OutputPath = filepath.Join(dir, env, "report.json")
		cfg.Environment = env
		cfg.CoveragePath = coverage
		cfg.Inputs = []ScanInput{
			{Type: SourceDependency, Path: npm},
			{Type: SourceStatic, Path: semgrep},
		}
		rep, err := Run(context.Background(), cfg)
		require.NoError(t, err)
		return rep
	}

	dev := run(EnvDevelopment)
	assert.True(t, dev.Passed, "3 high findings pass under the development override")
	assert.Equal(t, 0, dev.ExitCode)

	prod := run(EnvProduction)
	assert.False(t, prod.Passed, "3 high findings fail the production threshold")
	require.NotEmpty(t, prod.Violations)
	assert.Equal(t, gate.GateHigh, prod.Violations[0].GateID)
}

func TestRunUnreadableSourceWarnsButCompletes(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Environment = EnvDevelopment
	cfg.CoveragePath = writeFixture(t, dir, "coverage.json", coverageOK)
	cfg.Inputs = []ScanInput{
		{Type: SourceDependency, Path: writeFixture(t, dir, "npm.json", `{"vulnerabilities": {}}`)},
		{Type: SourceStatic, Path: filepath.Join(dir, "missing.json")},
	}

	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, rep.Sources, 2)
	assert.True(t, rep.Sources[0].OK)
	assert.False(t, rep.Sources[1].OK)
	assert.NotEmpty(t, rep.Sources[1].Error)

	var coverageWarnings []string
	for _, w := range rep.Warnings {
		if w.GateID == "scanCoverage" {
			coverageWarnings = append(coverageWarnings, w.Message)
		}
	}
	require.Len(t, coverageWarnings, 1)
	assert.Contains(t, coverageWarnings[0], "static-analysis")
}

func TestRunMissingCoverageFailsCoverageGateClosed(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Environment = EnvProduction
	cfg.Inputs = []ScanInput{
		{Type: SourceDependency, Path: writeFixture(t, dir, "npm.json", `{"vulnerabilities": {}}`)},
		{Type: SourceStatic, Path: writeFixture(t, dir, "semgrep.json", `{"results": []}`)},
	}

	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.False(t, rep.Passed)
	require.Len(t, rep.Violations, 1)
	assert.Equal(t, gate.GateTestCoverage, rep.Violations[0].GateID)
}

func TestRunBadGateConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Environment = EnvDevelopment
	cfg.GateConfigPath = writeFixture(t, dir, "gates.yaml", "gates: {bogus: {threshold: {}}}\nunknownKey: 1\n")
	cfg.CoveragePath = writeFixture(t, dir, "coverage.json", coverageOK)
	cfg.Inputs = []ScanInput{
		{Type: SourceDependency, Path: writeFixture(t, dir, "npm.json", `{"vulnerabilities": {}}`)},
		{Type: SourceStatic, Path: writeFixture(t, dir, "semgrep.json", `{"results": []}`)},
	}

	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	// Defaults applied: the run still evaluates the full built-in gate table.
	assert.True(t, rep.Passed)
	assert.Len(t, rep.Gates, 6)
	assert.Contains(t, rep.Recommendations, "Fix the gate configuration file; this run used the built-in defaults.")
}

func TestRunBaselineDiffFeedsRegressionGate(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "baseline.json")

	// Baseline generated from an empty scan set.
	genCfg := testConfig(t, dir)
	genCfg.Environment = EnvProduction
	genCfg.Inputs = []ScanInput{
		{Type: SourceDependency, Path: writeFixture(t, dir, "npm-empty.json", `{"vulnerabilities": {}}`)},
	}
	_, err := GenerateBaseline(genCfg, basePath, false)
	require.NoError(t, err)

	cfg := testConfig(t, dir)
	cfg.Environment = EnvProduction
	cfg.Tolerance = ToleranceLenient
	cfg.BaselinePath = basePath
	cfg.CoveragePath = writeFixture(t, dir, "coverage.json", coverageOK)
	cfg.Inputs = []ScanInput{
		{Type: SourceDependency, Path: writeFixture(t, dir, "npm.json", npmAuditCritical)},
		{Type: SourceStatic, Path: writeFixture(t, dir, "semgrep.json", `{"results": []}`)},
	}

	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Summary.Regressions)
	assert.False(t, rep.Passed)
	ids := map[string]bool{}
	for _, v := range rep.Violations {
		ids[v.GateID] = true
	}
	assert.True(t, ids[gate.GateCritical])
	assert.True(t, ids[gate.GateRegressions])
}

func TestRunMissingBaselineFileIsFirstRun(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Environment = EnvDevelopment
	cfg.BaselinePath = filepath.Join(dir, "never-created.json")
	cfg.CoveragePath = writeFixture(t, dir, "coverage.json", coverageOK)
	cfg.Inputs = []ScanInput{
		{Type: SourceDependency, Path: writeFixture(t, dir, "npm.json", npmAuditThreeHigh)},
		{Type: SourceStatic, Path: writeFixture(t, dir, "semgrep.json", `{"results": []}`)},
	}

	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Summary.Regressions)
	assert.Equal(t, 3, rep.Summary.New)
}

func TestGenerateBaselineRefusesPartialCoverage(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Environment = EnvProduction
	cfg.Inputs = []ScanInput{
		{Type: SourceDependency, Path: writeFixture(t, dir, "npm.json", `{"vulnerabilities": {}}`)},
		{Type: SourceStatic, Path: filepath.Join(dir, "missing.json")},
	}
	_, err := GenerateBaseline(cfg, filepath.Join(dir, "baseline.json"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable sources")
}

func TestRunRejectsUnknownSourceType(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Inputs = []ScanInput{
		{Type: "sbom", Path: writeFixture(t, dir, "x.json", `{"vulnerabilities": {}}`)},
	}
	_, err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scan source type")
}

func TestRunRejectsUnknownTolerance(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Tolerance = "paranoid"
	cfg.Inputs = []ScanInput{{Type: SourceDependency, Path: filepath.Join(dir, "x.json")}}
	_, err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tolerance")
}
