package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/relaymarket/secgate/internal/severity"
	"github.com/relaymarket/secgate/internal/validate"
)

// RecordID derives the stable content hash for a finding. The inputs are
// lowercased and inner whitespace is collapsed, so field ordering in the
// raw document and incidental whitespace never change the id. The rule id
// is preferred over the title when present: scanners rewrite titles between
// releases far more often than rule ids.
func RecordID(sourceType SourceType, source, titleOrRule string) string {
	parts := []string{
		normalizeHashPart(string(sourceType)),
		normalizeHashPart(source),
		normalizeHashPart(titleOrRule),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizeHashPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// normalizeFindings maps adapter findings to canonical records. Severity
// goes through the shared vocabulary table; unknown severities become
// medium rather than being dropped to low. Titles and descriptions are
// scanner-supplied text and get sanitized before they can reach a report.
func normalizeFindings(in []rawFinding, firstSeen string) []VulnerabilityRecord {
	out := make([]VulnerabilityRecord, 0, len(in))
	for _, f := range in {
		titleOrRule := firstNonEmpty(f.RuleID, f.Title)
		source := firstNonEmpty(strings.TrimSpace(f.Source), "unknown")
		out = append(out, VulnerabilityRecord{
			ID:          RecordID(f.SourceType, source, titleOrRule),
			SourceType:  f.SourceType,
			Severity:    severity.FromNative(f.NativeSeverity),
			Title:       firstNonEmpty(validate.Sanitize(strings.TrimSpace(f.Title)), titleOrRule, "untitled finding"),
			Description: validate.Sanitize(strings.TrimSpace(f.Description)),
			Source:      source,
			RuleID:      strings.TrimSpace(f.RuleID),
			Line:        f.Line,
			Column:      f.Column,
			CWE:         strings.TrimSpace(f.CWE),
			CVSS:        f.CVSS,
			Reference:   strings.TrimSpace(f.Reference),
			FirstSeen:   firstSeen,
		})
	}
	return out
}

// Deduplicate collapses records sharing an id, keeping the first
// occurrence. The input order is the order scan documents were supplied
// in, which makes "first source wins" an explicit, documented policy
// rather than an accident of iteration order.
func Deduplicate(records []VulnerabilityRecord) []VulnerabilityRecord {
	seen := make(map[string]bool, len(records))
	out := make([]VulnerabilityRecord, 0, len(records))
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// sortRecords orders records most severe first, then by id for a total,
// deterministic order.
func sortRecords(records []VulnerabilityRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if ra, rb := severity.Rank(a.Severity), severity.Rank(b.Severity); ra != rb {
			return ra < rb
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Source < b.Source
	})
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
