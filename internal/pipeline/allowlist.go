package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Allowlist is the operator-maintained exception list. Entries reference
// record ids; an entry with an expiry in the past no longer applies.
type Allowlist struct {
	Entries []AllowlistEntry `yaml:"entries"`
}

type AllowlistEntry struct {
	ID        string `yaml:"id"`
	Reason    string `yaml:"reason"`
	Owner     string `yaml:"owner"`
	ExpiresAt string `yaml:"expiresAt"` // RFC3339, optional
}

func LoadAllowlist(path string) (Allowlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, fmt.Errorf("allowlist load failed: %w", err)
	}
	var al Allowlist
	if err := yaml.Unmarshal(b, &al); err != nil {
		return Allowlist{}, fmt.Errorf("allowlist parse failed: %w", err)
	}
	for i, e := range al.Entries {
		if strings.TrimSpace(e.ID) == "" {
			return Allowlist{}, fmt.Errorf("allowlist entry %d: id required", i)
		}
		if strings.TrimSpace(e.Reason) == "" {
			return Allowlist{}, fmt.Errorf("allowlist entry %d: reason required", i)
		}
		if e.ExpiresAt != "" {
			if _, err := time.Parse(time.RFC3339, e.ExpiresAt); err != nil {
				return Allowlist{}, fmt.Errorf("allowlist entry %d: invalid expiresAt: %w", i, err)
			}
		}
	}
	return al, nil
}

// applyAllowlist marks matching records as approved and returns how many
// were marked. Expired entries are skipped.
func applyAllowlist(records []VulnerabilityRecord, al Allowlist, now time.Time) int {
	if len(al.Entries) == 0 {
		return 0
	}
	active := make(map[string]bool, len(al.Entries))
	for _, e := range al.Entries {
		if e.ExpiresAt != "" {
			exp, err := time.Parse(time.RFC3339, e.ExpiresAt)
			if err != nil || !exp.After(now) {
				continue
			}
		}
		active[strings.TrimSpace(e.ID)] = true
	}
	applied := 0
	for i := range records {
		if active[records[i].ID] {
			records[i].Approved = true
			applied++
		}
	}
	return applied
}
