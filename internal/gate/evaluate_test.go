package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymarket/secgate/internal/severity"
)

func metricsWith(counts map[severity.Severity]int) Metrics {
	return Metrics{
		SeverityCounts:       counts,
		CoveragePercent:      90,
		CoverageKnown:        true,
		AvailableTestSources: []string{"dependency", "static-analysis"},
	}
}

func TestBlockingCriticalGateFails(t *testing.T) {
	gates := Resolve(Default(), "production")
	m := metricsWith(map[severity.Severity]int{severity.Critical: 1})

	res := Evaluate(gates, m)

	assert.False(t, res.Passed)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, GateCritical, res.Violations[0].GateID)
}

func TestNonBlockingFailureIsWarningOnly(t *testing.T) {
	gates := Resolve(Default(), "production")
	m := metricsWith(map[severity.Severity]int{severity.Medium: 11})

	res := Evaluate(gates, m)

	assert.True(t, res.Passed, "warnings must never flip the overall result")
	assert.Empty(t, res.Violations)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, GateMedium, res.Warnings[0].GateID)
}

func TestEnvironmentOverrideChangesOutcome(t *testing.T) {
	cfg := Default()
	m := metricsWith(map[severity.Severity]int{severity.High: 3})

	devRes := Evaluate(Resolve(cfg, "development"), m)
	prodRes := Evaluate(Resolve(cfg, "production"), m)

	assert.True(t, devRes.Passed, "3 high findings pass under development max=10")
	assert.False(t, prodRes.Passed, "3 high findings fail under production max=0")
}

func TestRegressionsGate(t *testing.T) {
	gates := Resolve(Default(), "production")
	m := metricsWith(nil)
	m.Regressions = 2

	res := Evaluate(gates, m)

	assert.False(t, res.Passed)
	require.NotEmpty(t, res.Violations)
	assert.Equal(t, GateRegressions, res.Violations[0].GateID)
}

func TestTestCoverageMinThreshold(t *testing.T) {
	gates := Resolve(Default(), "production")
	m := metricsWith(nil)
	m.CoveragePercent = 60

	res := Evaluate(gates, m)

	assert.False(t, res.Passed)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, GateTestCoverage, res.Violations[0].GateID)
}

func TestTestCoverageFailsOnMissingRequiredTests(t *testing.T) {
	gates := Resolve(Default(), "production")
	m := metricsWith(nil)
	m.AvailableTestSources = []string{"dependency"} // static-analysis absent

	res := Evaluate(gates, m)

	assert.False(t, res.Passed)
	found := false
	for _, v := range res.Violations {
		if v.GateID == GateTestCoverage {
			found = true
			assert.Contains(t, v.Message, "static-analysis")
		}
	}
	assert.True(t, found, "coverage gate must fail on missing required tests even above the numeric threshold")
}

func TestUnknownGateFailsClosed(t *testing.T) {
	gates := map[string]Gate{
		"madeUpGate": {Name: "Made up", Enabled: true, Blocking: true, Threshold: Threshold{Max: intp(0)}},
	}
	res := Evaluate(gates, metricsWith(nil))

	assert.False(t, res.Passed)
	require.Len(t, res.Violations, 1)
	assert.Contains(t, res.Violations[0].Message, "failing closed")
}

func TestUnknownCoverageFailsCoverageGateClosed(t *testing.T) {
	gates := Resolve(Default(), "production")
	m := metricsWith(nil)
	m.CoverageKnown = false

	res := Evaluate(gates, m)

	assert.False(t, res.Passed)
	found := false
	for _, v := range res.Violations {
		if v.GateID == GateTestCoverage {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMissingSourcesBecomeCoverageWarnings(t *testing.T) {
	gates := Resolve(Default(), "production")
	m := metricsWith(nil)
	m.MissingSources = []string{"dynamic-scan"}

	res := Evaluate(gates, m)

	assert.True(t, res.Passed, "a missing source is a warning, not a silent pass or a block")
	require.NotEmpty(t, res.Warnings)
	last := res.Warnings[len(res.Warnings)-1]
	assert.Equal(t, "scanCoverage", last.GateID)
	assert.Contains(t, last.Message, "dynamic-scan")
}

func TestSourceScopedGateCountsOnlyConfiguredSources(t *testing.T) {
	gates := map[string]Gate{
		GateCritical: {
			Name: "Critical (containers only)", Enabled: true, Blocking: true,
			Threshold: Threshold{Max: intp(0)},
			Sources:   []string{"container"},
		},
	}
	m := Metrics{
		SeverityCounts: map[severity.Severity]int{severity.Critical: 2},
		SourceSeverity: map[string]map[severity.Severity]int{
			"dependency": {severity.Critical: 2},
		},
		CoverageKnown: true,
	}

	res := Evaluate(gates, m)

	assert.True(t, res.Passed, "critical findings outside the gate's sources must not count")
}

func TestDisabledGateNeverFails(t *testing.T) {
	gates := map[string]Gate{
		GateCritical: {Name: "Critical", Enabled: false, Blocking: true, Threshold: Threshold{Max: intp(0)}},
	}
	m := metricsWith(map[severity.Severity]int{severity.Critical: 5})

	res := Evaluate(gates, m)

	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations)
}
