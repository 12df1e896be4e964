package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relaymarket/secgate/internal/severity"
)

// Metrics is the aggregated view of one pipeline run that gates are
// measured against. Counts exclude approved (allowlisted) findings.
type Metrics struct {
	SeverityCounts map[severity.Severity]int
	// SourceSeverity holds per-source-type severity counts, keyed by the
	// canonical source type names. Used when a gate restricts Sources.
	SourceSeverity map[string]map[severity.Severity]int
	Regressions    int
	// CoveragePercent is only meaningful when CoverageKnown is true.
	CoveragePercent float64
	CoverageKnown   bool
	// AvailableTestSources lists the test suites and scan source types that
	// produced usable results in this run.
	AvailableTestSources []string
	// MissingSources lists scan sources whose documents could not be loaded
	// or parsed. Each becomes a coverage warning, never a silent pass.
	MissingSources []string
}

type Evaluation struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Enabled   bool    `json:"enabled"`
	Blocking  bool    `json:"blocking"`
	Actual    float64 `json:"actual"`
	Threshold string  `json:"threshold"`
	Passed    bool    `json:"passed"`
	Message   string  `json:"message"`
}

type Issue struct {
	GateID  string `json:"gateId"`
	Message string `json:"message"`
}

type Result struct {
	Passed     bool         `json:"passed"`
	Gates      []Evaluation `json:"gates"`
	Violations []Issue      `json:"violations"`
	Warnings   []Issue      `json:"warnings"`
}

// Evaluate runs every enabled gate against the metrics. A failing blocking
// gate becomes a violation; a failing non-blocking gate becomes a warning.
// Overall Passed is true iff no blocking violations exist: warnings never
// flip the result. A gate whose metric cannot be resolved fails closed.
func Evaluate(gates map[string]Gate, m Metrics) Result {
	res := Result{Passed: true}

	for _, id := range sortedGateIDs(gates) {
		g := gates[id]
		if !g.Enabled {
			res.Gates = append(res.Gates, Evaluation{
				ID: id, Name: g.Name, Enabled: false, Blocking: g.Blocking,
				Passed: true, Threshold: thresholdLabel(g.Threshold),
				Message: "gate disabled",
			})
			continue
		}
		eval := evaluateGate(id, g, m)
		res.Gates = append(res.Gates, eval)
		if eval.Passed {
			continue
		}
		issue := Issue{GateID: id, Message: eval.Message}
		if g.Blocking {
			res.Violations = append(res.Violations, issue)
			res.Passed = false
		} else {
			res.Warnings = append(res.Warnings, issue)
		}
	}

	// Unreadable scan sources count as zero findings for the threshold math
	// above, but they must surface as coverage warnings.
	missing := append([]string{}, m.MissingSources...)
	sort.Strings(missing)
	for _, src := range missing {
		res.Warnings = append(res.Warnings, Issue{
			GateID:  "scanCoverage",
			Message: fmt.Sprintf("scan source %s unavailable; treated as zero findings", src),
		})
	}
	return res
}

func evaluateGate(id string, g Gate, m Metrics) Evaluation {
	eval := Evaluation{
		ID:        id,
		Name:      g.Name,
		Enabled:   true,
		Blocking:  g.Blocking,
		Threshold: thresholdLabel(g.Threshold),
	}

	actual, ok := resolveMetric(id, g, m)
	if !ok {
		// Fail closed: an unresolvable metric is a failing gate, never a
		// passing one.
		eval.Passed = false
		eval.Message = fmt.Sprintf("%s: metric for gate %q could not be resolved; failing closed", g.Name, id)
		return eval
	}
	eval.Actual = actual

	switch {
	case g.Threshold.Max != nil:
		eval.Passed = actual <= float64(*g.Threshold.Max)
		if !eval.Passed {
			eval.Message = fmt.Sprintf("%s: %s exceeds maximum %d", g.Name, formatActual(actual), *g.Threshold.Max)
		}
	case g.Threshold.Min != nil:
		eval.Passed = actual >= float64(*g.Threshold.Min)
		if !eval.Passed {
			eval.Message = fmt.Sprintf("%s: %s below minimum %d", g.Name, formatActual(actual), *g.Threshold.Min)
		}
	default:
		eval.Passed = false
		eval.Message = fmt.Sprintf("%s: no threshold direction configured; failing closed", g.Name)
		return eval
	}

	if id == GateTestCoverage {
		if missing := missingRequiredTests(g.RequiredTests, m.AvailableTestSources); len(missing) > 0 {
			eval.Passed = false
			eval.Message = fmt.Sprintf("%s: required test sources missing: %s", g.Name, strings.Join(missing, ", "))
		}
	}

	if eval.Passed {
		eval.Message = fmt.Sprintf("%s: %s within %s", g.Name, formatActual(actual), eval.Threshold)
	}
	return eval
}

// resolveMetric maps a gate id to its measured value. The second return is
// false when the id is unknown or the metric is absent, which makes the
// gate fail closed.
func resolveMetric(id string, g Gate, m Metrics) (float64, bool) {
	switch id {
	case GateCritical:
		return float64(countSeverity(g, m, severity.Critical)), true
	case GateHigh:
		return float64(countSeverity(g, m, severity.High)), true
	case GateMedium:
		return float64(countSeverity(g, m, severity.Medium)), true
	case GateLow:
		return float64(countSeverity(g, m, severity.Low)), true
	case GateRegressions:
		return float64(m.Regressions), true
	case GateTestCoverage:
		if !m.CoverageKnown {
			return 0, false
		}
		return m.CoveragePercent, true
	default:
		return 0, false
	}
}

// countSeverity aggregates the count for one severity level across the
// gate's configured sources; an empty Sources list means all sources.
func countSeverity(g Gate, m Metrics, level severity.Severity) int {
	if len(g.Sources) == 0 {
		return m.SeverityCounts[level]
	}
	total := 0
	for _, src := range g.Sources {
		total += m.SourceSeverity[src][level]
	}
	return total
}

func missingRequiredTests(required, available []string) []string {
	have := make(map[string]bool, len(available))
	for _, a := range available {
		have[strings.ToLower(strings.TrimSpace(a))] = true
	}
	var missing []string
	for _, r := range required {
		if !have[strings.ToLower(strings.TrimSpace(r))] {
			missing = append(missing, r)
		}
	}
	sort.Strings(missing)
	return missing
}

func thresholdLabel(t Threshold) string {
	switch {
	case t.Max != nil:
		return fmt.Sprintf("max %d", *t.Max)
	case t.Min != nil:
		return fmt.Sprintf("min %d", *t.Min)
	default:
		return "unset"
	}
}

func formatActual(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
