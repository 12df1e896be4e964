package pipeline

import (
	"sort"

	"github.com/relaymarket/secgate/internal/gate"
)

type recommendation struct {
	priority int
	text     string
}

// buildRecommendations derives the actionable next steps from what the run
// observed. Ordered by priority, most urgent first.
func buildRecommendations(res gate.Result, cmp RegressionComparison, sources []SourceSummary, configFellBack bool) []string {
	var recs []recommendation

	violated := map[string]bool{}
	for _, v := range res.Violations {
		violated[v.GateID] = true
	}
	if violated[gate.GateCritical] {
		recs = append(recs, recommendation{10, "Remediate all critical vulnerabilities before deploying."})
	}
	if violated[gate.GateHigh] {
		recs = append(recs, recommendation{20, "Remediate or allowlist high-severity vulnerabilities with an approved exception."})
	}
	if len(cmp.Regressions) > 0 {
		recs = append(recs, recommendation{30, "Investigate regressions against the baseline; regenerate the baseline only after review."})
	}
	if violated[gate.GateTestCoverage] {
		recs = append(recs, recommendation{40, "Raise test coverage or restore the missing required test sources."})
	}
	for _, s := range sources {
		if !s.OK {
			recs = append(recs, recommendation{50, "Re-run the failed scanners and supply fresh JSON documents."})
			break
		}
	}
	if configFellBack {
		recs = append(recs, recommendation{60, "Fix the gate configuration file; this run used the built-in defaults."})
	}
	if len(res.Warnings) > 0 && len(res.Violations) == 0 {
		recs = append(recs, recommendation{70, "Review non-blocking warnings before they harden into violations."})
	}
	if len(cmp.FixedVulnerabilities) > 0 {
		recs = append(recs, recommendation{80, "Consider regenerating the baseline to retire fixed findings."})
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].priority < recs[j].priority })
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.text)
	}
	return out
}
