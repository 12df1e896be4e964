// Package dynscan parses dynamic-scan JSON (OWASP ZAP traditional JSON
// report) into adapter findings.
package dynscan

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
	Source      string // alerted URL
	Severity    string // native token: riskdesc or riskcode
	CWE         string
	Reference   string
}

type report struct {
	Version string `json:"@version"`
	Site    []site `json:"site"`
}

type site struct {
	Name   string  `json:"@name"`
	Alerts []alert `json:"alerts"`
}

type alert struct {
	PluginID  string     `json:"pluginid"`
	AlertRef  string     `json:"alertRef"`
	Alert     string     `json:"alert"`
	Name      string     `json:"name"`
	RiskCode  string     `json:"riskcode"`
	RiskDesc  string     `json:"riskdesc"`
	Desc      string     `json:"desc"`
	Solution  string     `json:"solution"`
	Reference string     `json:"reference"`
	CWEID     string     `json:"cweid"`
	Instances []instance `json:"instances"`
}

type instance struct {
	URI    string `json:"uri"`
	Method string `json:"method"`
	Param  string `json:"param"`
}

func Parse(path string, payload []byte) ([]Finding, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("parse dynamic scan json: %w", err)
	}
	rawSite, ok := root["site"]
	if !ok {
		return nil, errors.New("parse dynamic scan json: missing top-level site")
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(rawSite, &arr); err != nil {
		return nil, errors.New("parse dynamic scan json: site must be an array")
	}
	var r report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("parse dynamic scan json: %w", err)
	}

	var out []Finding
	for _, s := range r.Site {
		for _, a := range s.Alerts {
			source := s.Name
			if len(a.Instances) > 0 && strings.TrimSpace(a.Instances[0].URI) != "" {
				source = a.Instances[0].URI
			}
			cwe := ""
			if strings.TrimSpace(a.CWEID) != "" && a.CWEID != "-1" {
				cwe = "CWE-" + strings.TrimSpace(a.CWEID)
			}
			out = append(out, Finding{
				RuleID:      firstNonEmpty(a.AlertRef, a.PluginID),
				Title:       firstNonEmpty(a.Alert, a.Name, "dynamic scan alert"),
				Description: firstNonEmpty(stripTags(a.Desc), stripTags(a.Solution)),
				Source:      firstNonEmpty(source, "unknown"),
				Severity:    firstNonEmpty(a.RiskDesc, a.RiskCode),
				CWE:         cwe,
				Reference:   firstReference(a.Reference),
			})
		}
	}
	return out, nil
}

// ZAP descriptions arrive wrapped in <p> tags.
func stripTags(s string) string {
	s = strings.ReplaceAll(s, "<p>", "")
	s = strings.ReplaceAll(s, "</p>", "\n")
	return strings.TrimSpace(s)
}

func firstReference(refs string) string {
	for _, line := range strings.Split(stripTags(refs), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
