package pipeline

import (
	"sort"

	"github.com/relaymarket/secgate/internal/severity"
)

// Diff classifies the current findings against a baseline.
//
//   - id in current but not baseline: new vulnerability; also a regression
//     when its severity reaches the tolerance floor.
//   - id in baseline but not current: fixed, and always an improvement.
//   - id in both with a severity increase: regression; decrease:
//     improvement.
//
// The tolerance floor applies only to new findings. A nil baseline is the
// first-ever run: everything is new and nothing regresses.
func Diff(current []VulnerabilityRecord, baseline *Baseline, tol Tolerance) RegressionComparison {
	cmp := RegressionComparison{
		NewVulnerabilities:   []VulnerabilityRecord{},
		FixedVulnerabilities: []VulnerabilityRecord{},
		Regressions:          []Change{},
		Improvements:         []Change{},
	}

	if baseline == nil {
		cmp.NewVulnerabilities = append(cmp.NewVulnerabilities, current...)
		sortRecords(cmp.NewVulnerabilities)
		return cmp
	}

	baseByID := make(map[string]VulnerabilityRecord, len(baseline.Vulnerabilities))
	for _, r := range baseline.Vulnerabilities {
		baseByID[r.ID] = r
	}
	curByID := make(map[string]bool, len(current))
	floor := tol.floor()

	for _, r := range current {
		curByID[r.ID] = true
		prev, known := baseByID[r.ID]
		if !known {
			cmp.NewVulnerabilities = append(cmp.NewVulnerabilities, r)
			if severity.AtLeast(r.Severity, floor) {
				cmp.Regressions = append(cmp.Regressions, Change{Record: r, Reason: ReasonNewFinding})
			}
			continue
		}
		switch {
		case severity.Rank(r.Severity) < severity.Rank(prev.Severity):
			cmp.Regressions = append(cmp.Regressions, Change{
				Record:           r,
				PreviousSeverity: prev.Severity,
				Reason:           ReasonSeverityIncrease,
			})
		case severity.Rank(r.Severity) > severity.Rank(prev.Severity):
			cmp.Improvements = append(cmp.Improvements, Change{
				Record:           r,
				PreviousSeverity: prev.Severity,
				Reason:           ReasonSeverityDecrease,
			})
		}
	}

	for _, r := range baseline.Vulnerabilities {
		if !curByID[r.ID] {
			cmp.FixedVulnerabilities = append(cmp.FixedVulnerabilities, r)
			cmp.Improvements = append(cmp.Improvements, Change{Record: r, Reason: ReasonFixed})
		}
	}

	sortRecords(cmp.NewVulnerabilities)
	sortRecords(cmp.FixedVulnerabilities)
	sortChanges(cmp.Regressions)
	sortChanges(cmp.Improvements)
	return cmp
}

func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if ra, rb := severity.Rank(a.Record.Severity), severity.Rank(b.Record.Severity); ra != rb {
			return ra < rb
		}
		return a.Record.ID < b.Record.ID
	})
}
