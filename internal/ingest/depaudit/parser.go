// Package depaudit parses dependency-audit JSON (npm audit schema v1 and
// v2) into adapter findings.
package depaudit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Finding struct {
	RuleID      string
	Title       string
	Description string
	Source      string // package name
	Severity    string // native token
	CWE         string
	CVSS        float64
	Reference   string
}

// v2: npm audit --json (npm >= 7)
type reportV2 struct {
	AuditReportVersion int                   `json:"auditReportVersion"`
	Vulnerabilities    map[string]v2Package  `json:"vulnerabilities"`
	Metadata           json.RawMessage       `json:"metadata"`
}

type v2Package struct {
	Name     string            `json:"name"`
	Severity string            `json:"severity"`
	Via      []json.RawMessage `json:"via"`
	Range    string            `json:"range"`
}

type v2Advisory struct {
	Source   json.Number `json:"source"`
	Name     string      `json:"name"`
	Title    string      `json:"title"`
	Severity string      `json:"severity"`
	URL      string      `json:"url"`
	CWE      []string    `json:"cwe"`
	CVSS     struct {
		Score float64 `json:"score"`
	} `json:"cvss"`
}

// v1: npm audit --json (npm 6)
type reportV1 struct {
	Advisories map[string]v1Advisory `json:"advisories"`
}

type v1Advisory struct {
	ID         int      `json:"id"`
	ModuleName string   `json:"module_name"`
	Title      string   `json:"title"`
	Overview   string   `json:"overview"`
	Severity   string   `json:"severity"`
	CWE        string   `json:"cwe"`
	URL        string   `json:"url"`
	CVES       []string `json:"cves"`
}

func Parse(path string, payload []byte) ([]Finding, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("parse dependency audit json: %w", err)
	}
	if _, ok := root["vulnerabilities"]; ok {
		return parseV2(payload)
	}
	if _, ok := root["advisories"]; ok {
		return parseV1(payload)
	}
	return nil, errors.New("parse dependency audit json: missing vulnerabilities or advisories")
}

func parseV2(payload []byte) ([]Finding, error) {
	var r reportV2
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("parse dependency audit json: %w", err)
	}
	// Map iteration order is random; sort package names so the first-source
	// position of every finding is stable across runs.
	names := make([]string, 0, len(r.Vulnerabilities))
	for name := range r.Vulnerabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Finding
	for _, name := range names {
		pkg := r.Vulnerabilities[name]
		pkgName := firstNonEmpty(pkg.Name, name)
		direct := 0
		for _, raw := range pkg.Via {
			var adv v2Advisory
			if err := json.Unmarshal(raw, &adv); err != nil {
				// A plain string entry names a transitively vulnerable
				// dependency, not an advisory.
				continue
			}
			cwe := ""
			if len(adv.CWE) > 0 {
				cwe = adv.CWE[0]
			}
			out = append(out, Finding{
				RuleID:      advisoryID(adv),
				Title:       firstNonEmpty(adv.Title, "advisory for "+pkgName),
				Description: fmt.Sprintf("%s %s is vulnerable (%s)", pkgName, pkg.Range, firstNonEmpty(adv.Title, "unspecified advisory")),
				Source:      pkgName,
				Severity:    firstNonEmpty(adv.Severity, pkg.Severity),
				CWE:         cwe,
				CVSS:        adv.CVSS.Score,
				Reference:   adv.URL,
			})
			direct++
		}
		if direct == 0 && strings.TrimSpace(pkg.Severity) != "" {
			// Package flagged only through transitive deps: still a finding,
			// attributed to the package itself.
			out = append(out, Finding{
				Title:       "vulnerable dependency " + pkgName,
				Description: fmt.Sprintf("%s %s is affected through its dependencies", pkgName, pkg.Range),
				Source:      pkgName,
				Severity:    pkg.Severity,
			})
		}
	}
	return out, nil
}

func advisoryID(adv v2Advisory) string {
	if s := adv.Source.String(); s != "" && s != "0" {
		return "GHSA-SRC-" + s
	}
	return ""
}

func parseV1(payload []byte) ([]Finding, error) {
	var r reportV1
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("parse dependency audit json: %w", err)
	}
	keys := make([]string, 0, len(r.Advisories))
	for k := range r.Advisories {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Finding
	for _, k := range keys {
		adv := r.Advisories[k]
		ruleID := k
		if len(adv.CVES) > 0 {
			ruleID = adv.CVES[0]
		}
		out = append(out, Finding{
			RuleID:      ruleID,
			Title:       firstNonEmpty(adv.Title, "advisory "+k),
			Description: adv.Overview,
			Source:      firstNonEmpty(adv.ModuleName, "unknown"),
			Severity:    adv.Severity,
			CWE:         adv.CWE,
			Reference:   adv.URL,
		})
	}
	return out, nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
