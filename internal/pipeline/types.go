// Package pipeline normalizes heterogeneous scan outputs into one record
// schema, diffs them against a stored baseline, and drives the gate
// evaluation that produces a single deployment decision.
package pipeline

import (
	"github.com/relaymarket/secgate/internal/gate"
	"github.com/relaymarket/secgate/internal/severity"
)

type SourceType string

const (
	SourceDependency SourceType = "dependency"
	SourceStatic     SourceType = "static-analysis"
	SourceDynamic    SourceType = "dynamic-scan"
	SourceContainer  SourceType = "container"
)

func ValidSourceType(t SourceType) bool {
	switch t {
	case SourceDependency, SourceStatic, SourceDynamic, SourceContainer:
		return true
	}
	return false
}

// VulnerabilityRecord is the canonical representation of one finding. ID is
// a content hash over (sourceType, source, title-or-ruleID), so the same
// underlying finding hashes identically across independent scan runs.
type VulnerabilityRecord struct {
	ID          string            `json:"id"`
	SourceType  SourceType        `json:"sourceType"`
	Severity    severity.Severity `json:"severity"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Source      string            `json:"source"`
	RuleID      string            `json:"ruleId,omitempty"`
	Line        int               `json:"line,omitempty"`
	Column      int               `json:"column,omitempty"`
	CWE         string            `json:"cwe,omitempty"`
	CVSS        float64           `json:"cvss,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	Approved    bool              `json:"approved"`
	FirstSeen   string            `json:"firstSeen,omitempty"`
}

// Baseline is an immutable, named snapshot of accepted findings. It is
// created by an explicit operator action and superseded, never mutated.
type Baseline struct {
	Metadata        BaselineMetadata      `json:"metadata"`
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
}

type BaselineMetadata struct {
	SchemaVersion string         `json:"schemaVersion"`
	GeneratedAt   string         `json:"generatedAt"`
	Environment   string         `json:"environment,omitempty"`
	Tool          string         `json:"tool"`
	Sources       []string       `json:"sources,omitempty"`
	Counts        map[string]int `json:"counts,omitempty"`
}

// Tolerance sets the severity floor at which a new finding counts as a
// regression. It never changes fixed/improved classification.
type Tolerance string

const (
	ToleranceStrict   Tolerance = "strict"   // medium and above regress
	ToleranceModerate Tolerance = "moderate" // high and above regress
	ToleranceLenient  Tolerance = "lenient"  // critical only
)

func (t Tolerance) floor() severity.Severity {
	switch t {
	case ToleranceStrict:
		return severity.Medium
	case ToleranceLenient:
		return severity.Critical
	default:
		return severity.High
	}
}

func ValidTolerance(t Tolerance) bool {
	switch t {
	case ToleranceStrict, ToleranceModerate, ToleranceLenient:
		return true
	}
	return false
}

// Change records why an id landed in the regressions or improvements list.
type Change struct {
	Record           VulnerabilityRecord `json:"record"`
	PreviousSeverity severity.Severity   `json:"previousSeverity,omitempty"`
	Reason           string              `json:"reason"`
}

const (
	ReasonNewFinding       = "new-finding"
	ReasonSeverityIncrease = "severity-increase"
	ReasonSeverityDecrease = "severity-decrease"
	ReasonFixed            = "fixed"
)

// RegressionComparison is derived per run, never stored.
type RegressionComparison struct {
	NewVulnerabilities   []VulnerabilityRecord `json:"newVulnerabilities"`
	FixedVulnerabilities []VulnerabilityRecord `json:"fixedVulnerabilities"`
	Regressions          []Change              `json:"regressions"`
	Improvements         []Change              `json:"improvements"`
}

// ScanInput names one scanner document. Type may be empty, in which case
// the format is auto-detected from the payload envelope.
type ScanInput struct {
	Type SourceType
	Path string
}

// SourceSummary records how one scan document was handled. A document that
// failed to load or parse contributes zero findings and a coverage warning.
type SourceSummary struct {
	Type     SourceType `json:"type"`
	Path     string     `json:"path"`
	Findings int        `json:"findings"`
	OK       bool       `json:"ok"`
	Error    string     `json:"error,omitempty"`
	SHA256   string     `json:"sha256,omitempty"`
}

// rawFinding is the adapter-neutral form an ingest finding takes before
// normalization.
type rawFinding struct {
	SourceType     SourceType
	RuleID         string
	Title          string
	Description    string
	Source         string
	NativeSeverity string
	Line           int
	Column         int
	CWE            string
	CVSS           float64
	Reference      string
}

// Report is the evaluation output written as the run's audit artifact.
type Report struct {
	SchemaVersion   string                `json:"schemaVersion"`
	Timestamp       string                `json:"timestamp"`
	Environment     string                `json:"environment"`
	Tolerance       Tolerance             `json:"tolerance"`
	Passed          bool                  `json:"passed"`
	ExitCode        int                   `json:"exitCode"`
	Summary         Summary               `json:"summary"`
	Sources         []SourceSummary       `json:"sources"`
	Gates           []gate.Evaluation     `json:"gates"`
	Violations      []gate.Issue          `json:"violations"`
	Warnings        []gate.Issue          `json:"warnings"`
	Recommendations []string              `json:"recommendations"`
	Comparison      RegressionComparison  `json:"comparison"`
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
}

type Summary struct {
	Total       int            `json:"total"`
	Approved    int            `json:"approved"`
	BySeverity  map[string]int `json:"bySeverity"`
	Regressions int            `json:"regressions"`
	Fixed       int            `json:"fixed"`
	New         int            `json:"new"`
}
