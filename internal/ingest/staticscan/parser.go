// Package staticscan parses static-analysis JSON (semgrep output schema)
// into adapter findings.
package staticscan

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
	Source      string // file path
	Severity    string // native token: ERROR, WARNING, INFO
	Line        int
	Column      int
	CWE         string
	Reference   string
}

type report struct {
	Version string   `json:"version"`
	Results []result `json:"results"`
	Errors  []any    `json:"errors"`
}

type result struct {
	CheckID string   `json:"check_id"`
	Path    string   `json:"path"`
	Start   position `json:"start"`
	Extra   extra    `json:"extra"`
}

type position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

type extra struct {
	Message  string   `json:"message"`
	Severity string   `json:"severity"`
	Metadata metadata `json:"metadata"`
}

type metadata struct {
	CWE        anyStrings `json:"cwe"`
	References []string   `json:"references"`
}

// anyStrings decodes a field that is a string in some rule metadata and an
// array of strings in others.
type anyStrings []string

func (a *anyStrings) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*a = anyStrings{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*a = anyStrings(many)
	return nil
}

func Parse(path string, payload []byte) ([]Finding, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("parse static analysis json: %w", err)
	}
	rawResults, ok := root["results"]
	if !ok {
		return nil, errors.New("parse static analysis json: missing top-level results")
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(rawResults, &arr); err != nil {
		return nil, errors.New("parse static analysis json: results must be an array")
	}
	var r report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("parse static analysis json: %w", err)
	}

	out := make([]Finding, 0, len(r.Results))
	for _, res := range r.Results {
		cwe := ""
		if len(res.Extra.Metadata.CWE) > 0 {
			cwe = res.Extra.Metadata.CWE[0]
		}
		ref := ""
		if len(res.Extra.Metadata.References) > 0 {
			ref = res.Extra.Metadata.References[0]
		}
		out = append(out, Finding{
			RuleID:      res.CheckID,
			Title:       firstNonEmpty(ruleShortName(res.CheckID), "static analysis finding"),
			Description: res.Extra.Message,
			Source:      firstNonEmpty(res.Path, "unknown"),
			Severity:    res.Extra.Severity,
			Line:        res.Start.Line,
			Column:      res.Start.Col,
			CWE:         cwe,
			Reference:   ref,
		})
	}
	return out, nil
}

// ruleShortName reduces a dotted semgrep check id to its last segment, which
// is the human-oriented rule name.
func ruleShortName(checkID string) string {
	parts := strings.Split(checkID, ".")
	return parts[len(parts)-1]
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
