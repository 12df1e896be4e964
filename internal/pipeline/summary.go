package pipeline

import (
	"fmt"
	"strings"

	"github.com/relaymarket/secgate/internal/severity"
)

// RenderText renders the console summary printed after a run. It is a
// human-facing digest; the JSON report is the artifact of record.
func RenderText(rep *Report) string {
	var b strings.Builder

	b.WriteString("Security Gate Report\n")
	b.WriteString("====================\n")
	fmt.Fprintf(&b, "Environment: %s   Tolerance: %s   Generated: %s\n\n",
		rep.Environment, rep.Tolerance, rep.Timestamp)

	fmt.Fprintf(&b, "Findings: %d total (%d approved)\n", rep.Summary.Total, rep.Summary.Approved)
	for _, level := range severity.Levels() {
		if n := rep.Summary.BySeverity[string(level)]; n > 0 {
			fmt.Fprintf(&b, "  %-8s %d\n", level, n)
		}
	}
	fmt.Fprintf(&b, "Baseline: %d new, %d fixed, %d regressions\n\n",
		rep.Summary.New, rep.Summary.Fixed, rep.Summary.Regressions)

	b.WriteString("Sources:\n")
	for _, s := range rep.Sources {
		status := "ok"
		if !s.OK {
			status = "UNAVAILABLE"
		}
		fmt.Fprintf(&b, "  %-16s %-12s %4d findings  %s\n", s.Type, status, s.Findings, s.Path)
	}
	b.WriteString("\nGates:\n")
	for _, g := range rep.Gates {
		mark := "PASS"
		switch {
		case !g.Enabled:
			mark = "SKIP"
		case !g.Passed && g.Blocking:
			mark = "FAIL"
		case !g.Passed:
			mark = "WARN"
		}
		fmt.Fprintf(&b, "  [%s] %-28s actual %-6s threshold %s\n",
			mark, g.Name, trimFloat(g.Actual), g.Threshold)
	}

	if len(rep.Violations) > 0 {
		b.WriteString("\nBlocking violations:\n")
		for _, v := range rep.Violations {
			fmt.Fprintf(&b, "  - %s\n", v.Message)
		}
	}
	if len(rep.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w.Message)
		}
	}
	if len(rep.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, r := range rep.Recommendations {
			fmt.Fprintf(&b, "  * %s\n", r)
		}
	}

	verdict := "PASSED"
	if !rep.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(&b, "\nResult: %s\n", verdict)
	return b.String()
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
