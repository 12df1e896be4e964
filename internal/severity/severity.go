// Package severity is the single severity vocabulary shared by the
// normalizer and the gate evaluator. Both sides consult the same table so
// they can never disagree on what "moderate" or "ERROR" means.
package severity

import "strings"

type Severity string

const (
	Critical Severity = "critical"
	High     Severity = "high"
	Medium   Severity = "medium"
	Low      Severity = "low"
)

// Levels lists the canonical levels from most to least severe.
func Levels() []Severity {
	return []Severity{Critical, High, Medium, Low}
}

// rank: lower value means more severe.
var rank = map[Severity]int{
	Critical: 0,
	High:     1,
	Medium:   2,
	Low:      3,
}

func Valid(s Severity) bool {
	_, ok := rank[s]
	return ok
}

// Rank returns the ordering index for s, lower is more severe. Unknown
// severities rank below Low.
func Rank(s Severity) int {
	if r, ok := rank[s]; ok {
		return r
	}
	return len(rank)
}

// AtLeast reports whether s is at least as severe as floor.
func AtLeast(s, floor Severity) bool {
	return Rank(s) <= Rank(floor)
}

// nativeTable maps scanner-native severity tokens to canonical levels.
// Sources covered: npm audit (info/low/moderate/high/critical), semgrep
// (INFO/WARNING/ERROR), ZAP (riskcode 0-3 and risk names), trivy
// (UNKNOWN/LOW/MEDIUM/HIGH/CRITICAL).
var nativeTable = map[string]Severity{
	"critical":      Critical,
	"crit":          Critical,
	"high":          High,
	"error":         High,
	"important":     High,
	"3":             High,
	"medium":        Medium,
	"moderate":      Medium,
	"warning":       Medium,
	"warn":          Medium,
	"2":             Medium,
	"low":           Low,
	"minor":         Low,
	"info":          Low,
	"informational": Low,
	"note":          Low,
	"negligible":    Low,
	"1":             Low,
	"0":             Low,
}

// FromNative maps a scanner-native severity token to a canonical level.
// Unrecognized or missing tokens map to Medium: an unknown severity must
// never silently drop a finding below the default gate thresholds.
func FromNative(token string) Severity {
	t := strings.TrimSpace(strings.ToLower(token))
	if t == "" {
		return Medium
	}
	// ZAP risk descriptions look like "High (Medium)": the leading word is
	// the risk, the parenthesized word is confidence.
	if i := strings.IndexByte(t, '('); i > 0 {
		t = strings.TrimSpace(t[:i])
	}
	if s, ok := nativeTable[t]; ok {
		return s
	}
	return Medium
}
