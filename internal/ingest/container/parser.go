// Package container parses container image scan JSON (trivy report schema)
// into adapter findings.
package container

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Finding struct {
	RuleID      string
	Title       string
	Description string
	Source      string // package within the image
	Severity    string // native token
	CWE         string
	CVSS        float64
	Reference   string
}

type report struct {
	SchemaVersion json.Number `json:"SchemaVersion"`
	ArtifactName  string      `json:"ArtifactName"`
	Results       []result    `json:"Results"`
}

type result struct {
	Target          string          `json:"Target"`
	Vulnerabilities []vulnerability `json:"Vulnerabilities"`
}

type vulnerability struct {
	VulnerabilityID  string              `json:"VulnerabilityID"`
	PkgName          string              `json:"PkgName"`
	InstalledVersion string              `json:"InstalledVersion"`
	Severity         string              `json:"Severity"`
	Title            string              `json:"Title"`
	Description      string              `json:"Description"`
	PrimaryURL       string              `json:"PrimaryURL"`
	CweIDs           []string            `json:"CweIDs"`
	CVSS             map[string]cvssData `json:"CVSS"`
}

type cvssData struct {
	V3Score float64 `json:"V3Score"`
	V2Score float64 `json:"V2Score"`
}

func Parse(path string, payload []byte) ([]Finding, error) {
	if err := validateEnvelope(payload); err != nil {
		return nil, err
	}
	var r report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("parse container scan json: %w", err)
	}

	var out []Finding
	for _, res := range r.Results {
		target := firstNonEmpty(res.Target, r.ArtifactName, "unknown")
		for _, v := range res.Vulnerabilities {
			cwe := ""
			if len(v.CweIDs) > 0 {
				cwe = v.CweIDs[0]
			}
			source := firstNonEmpty(v.PkgName, target)
			if v.PkgName != "" && v.InstalledVersion != "" {
				source = v.PkgName + "@" + v.InstalledVersion
			}
			out = append(out, Finding{
				RuleID:      v.VulnerabilityID,
				Title:       firstNonEmpty(v.Title, v.VulnerabilityID, "container scan finding"),
				Description: v.Description,
				Source:      source,
				Severity:    v.Severity,
				CWE:         cwe,
				CVSS:        maxCVSS(v.CVSS),
				Reference:   v.PrimaryURL,
			})
		}
	}
	return out, nil
}

func maxCVSS(scores map[string]cvssData) float64 {
	best := 0.0
	for _, s := range scores {
		if s.V3Score > best {
			best = s.V3Score
		}
		if s.V3Score == 0 && s.V2Score > best {
			best = s.V2Score
		}
	}
	return best
}

func validateEnvelope(payload []byte) error {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return fmt.Errorf("parse container scan json: %w", err)
	}
	rawResults, ok := root["Results"]
	if !ok {
		return errors.New("parse container scan json: missing top-level Results")
	}
	var results []json.RawMessage
	if err := json.Unmarshal(rawResults, &results); err != nil {
		return errors.New("parse container scan json: Results must be an array")
	}
	if raw, ok := root["SchemaVersion"]; ok {
		var num int
		if err := json.Unmarshal(raw, &num); err == nil {
			if num != 1 && num != 2 {
				return fmt.Errorf("parse container scan json: unsupported SchemaVersion %d", num)
			}
		}
	}
	return nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
