package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/relaymarket/secgate/internal/report"
	"github.com/relaymarket/secgate/internal/severity"
)

const baselineSchemaVersion = "1.0"

// NewBaseline snapshots the given records. The caller decides where and
// whether to persist it; an existing baseline is superseded, never edited.
func NewBaseline(records []VulnerabilityRecord, environment string, sources []string, now time.Time) Baseline {
	counts := map[string]int{}
	for _, r := range records {
		counts[string(r.Severity)]++
	}
	vulns := append([]VulnerabilityRecord{}, records...)
	sortRecords(vulns)
	return Baseline{
		Metadata: BaselineMetadata{
			SchemaVersion: baselineSchemaVersion,
			GeneratedAt:   now.UTC().Format(time.RFC3339),
			Environment:   environment,
			Tool:          "secgate",
			Sources:       append([]string{}, sources...),
			Counts:        counts,
		},
		Vulnerabilities: vulns,
	}
}

// SaveBaseline writes the baseline as JSON. It refuses to overwrite an
// existing file unless force is set: baselines supersede, they are not
// mutated in place.
func SaveBaseline(path string, b Baseline, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("baseline %s already exists; a new baseline supersedes it, pass force to replace", path)
		}
	}
	return report.WriteJSON(path, b)
}

// LoadBaseline reads a stored baseline. A missing file is not an error
// shape the caller can confuse with a corrupt one: os.IsNotExist
// distinguishes the first-ever run.
func LoadBaseline(path string) (*Baseline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var base Baseline
	if err := json.Unmarshal(b, &base); err != nil {
		return nil, fmt.Errorf("baseline parse failed: %w", err)
	}
	if len(base.Vulnerabilities) == 0 && base.Metadata.GeneratedAt == "" {
		return nil, errors.New("baseline parse failed: empty document")
	}
	// A hand-edited or truncated baseline must not feed garbage into the
	// diff; severities outside the canonical vocabulary fail the load.
	for _, r := range base.Vulnerabilities {
		if !severity.Valid(r.Severity) {
			return nil, fmt.Errorf("baseline parse failed: record %s has unknown severity %q", r.ID, r.Severity)
		}
	}
	return &base, nil
}

// carryFirstSeen keeps the original detection timestamp for records whose
// id already exists in the baseline lineage.
func carryFirstSeen(records []VulnerabilityRecord, baseline *Baseline) {
	if baseline == nil {
		return
	}
	seen := make(map[string]string, len(baseline.Vulnerabilities))
	for _, r := range baseline.Vulnerabilities {
		if r.FirstSeen != "" {
			seen[r.ID] = r.FirstSeen
		}
	}
	for i := range records {
		if ts, ok := seen[records[i].ID]; ok {
			records[i].FirstSeen = ts
		}
	}
}
