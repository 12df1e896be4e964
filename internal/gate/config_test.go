package gate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeReplacesOnlySpecifiedFields(t *testing.T) {
	base := Gate{
		Name:          "High vulnerabilities",
		Enabled:       true,
		Blocking:      true,
		Threshold:     Threshold{Max: intp(0)},
		Sources:       []string{"dependency", "container"},
		RequiredTests: []string{"unit"},
	}
	merged := merge(base, Override{Threshold: &ThresholdOverride{Max: intp(10)}})

	assert.Equal(t, 10, *merged.Threshold.Max)
	// Sibling fields survive the override untouched.
	assert.Equal(t, "High vulnerabilities", merged.Name)
	assert.True(t, merged.Enabled)
	assert.True(t, merged.Blocking)
	assert.Equal(t, []string{"dependency", "container"}, merged.Sources)
	assert.Equal(t, []string{"unit"}, merged.RequiredTests)
}

func TestMergeBlockingOverrideKeepsThreshold(t *testing.T) {
	base := Gate{Name: "g", Enabled: true, Blocking: true, Threshold: Threshold{Max: intp(0)}}
	merged := merge(base, Override{Blocking: boolp(false)})
	assert.False(t, merged.Blocking)
	require.NotNil(t, merged.Threshold.Max)
	assert.Equal(t, 0, *merged.Threshold.Max)
}

func TestResolveAppliesEnvironmentOverrides(t *testing.T) {
	cfg := Default()

	dev := Resolve(cfg, "development")
	prod := Resolve(cfg, "production")

	assert.Equal(t, 10, *dev[GateHigh].Threshold.Max)
	assert.False(t, dev[GateHigh].Blocking)
	assert.Equal(t, 0, *prod[GateHigh].Threshold.Max)
	assert.True(t, prod[GateHigh].Blocking)

	// Gates without overrides resolve identically in every environment.
	assert.Equal(t, dev[GateCritical], prod[GateCritical])
}

func TestResolveUnknownEnvironmentUsesDefaults(t *testing.T) {
	cfg := Default()
	got := Resolve(cfg, "qa-7")
	assert.Equal(t, cfg.Gates[GateHigh], got[GateHigh])
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
gates:
  criticalVulnerabilities:
    name: Critical vulnerabilities
    enabled: true
    blocking: true
    threshold:
      max: 0
  testCoverage:
    name: Test coverage
    enabled: true
    blocking: true
    threshold:
      min: 75
    requiredTests: [dependency]
environments:
  development:
    criticalVulnerabilities:
      blocking: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Gates, 2)
	require.NotNil(t, cfg.Environments["development"][GateCritical].Blocking)
	assert.False(t, *cfg.Environments["development"][GateCritical].Blocking)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `
gates:
  criticalVulnerabilities:
    name: Critical
    threshold:
      max: 0
    severity: critical
`)
	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "unknown field")
}

func TestLoadRejectsDuplicateKey(t *testing.T) {
	path := writeConfig(t, `
gates:
  criticalVulnerabilities:
    name: Critical
    threshold:
      max: 0
  criticalVulnerabilities:
    name: Critical again
    threshold:
      max: 1
`)
	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "duplicate key")
}

func TestLoadRejectsThresholdWithoutDirection(t *testing.T) {
	path := writeConfig(t, `
gates:
  criticalVulnerabilities:
    name: Critical
    enabled: true
    threshold: {}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.As(err, new(*ConfigError)))
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadRejectsOverrideForUnknownGate(t *testing.T) {
	path := writeConfig(t, `
gates:
  criticalVulnerabilities:
    name: Critical
    threshold:
      max: 0
environments:
  production:
    nonexistentGate:
      enabled: false
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultConfigIsInternallyConsistent(t *testing.T) {
	cfg := Default()
	require.NoError(t, errOrNil(validateConfig(cfg)))
	for env := range cfg.Environments {
		for id := range cfg.Environments[env] {
			_, ok := cfg.Gates[id]
			assert.True(t, ok, "override for unknown gate %s in %s", id, env)
		}
	}
}

func errOrNil(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(errs[0])
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
