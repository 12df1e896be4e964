package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaymarket/secgate/internal/ingest/container"
	"github.com/relaymarket/secgate/internal/ingest/depaudit"
	"github.com/relaymarket/secgate/internal/ingest/dynscan"
	"github.com/relaymarket/secgate/internal/ingest/staticscan"
)

// parseDocument dispatches a raw scan document to its source adapter. When
// the source type is not given it is detected from the payload envelope.
func parseDocument(srcType SourceType, path string, payload []byte) ([]rawFinding, SourceType, error) {
	if srcType == "" {
		detected, err := detectFormat(payload)
		if err != nil {
			return nil, "", err
		}
		srcType = detected
	}
	switch srcType {
	case SourceDependency:
		findings, err := depaudit.Parse(path, payload)
		if err != nil {
			return nil, srcType, err
		}
		return fromDepAudit(findings), srcType, nil
	case SourceStatic:
		findings, err := staticscan.Parse(path, payload)
		if err != nil {
			return nil, srcType, err
		}
		return fromStaticScan(findings), srcType, nil
	case SourceDynamic:
		findings, err := dynscan.Parse(path, payload)
		if err != nil {
			return nil, srcType, err
		}
		return fromDynScan(findings), srcType, nil
	case SourceContainer:
		findings, err := container.Parse(path, payload)
		if err != nil {
			return nil, srcType, err
		}
		return fromContainer(findings), srcType, nil
	default:
		return nil, srcType, fmt.Errorf("unsupported scan source type %q", srcType)
	}
}

// detectFormat recognizes a scan payload by its envelope keys. The checks
// run in a fixed precedence order (container, static, dynamic, dependency)
// so an ambiguous payload always resolves the same way.
func detectFormat(payload []byte) (SourceType, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return "", fmt.Errorf("parse scan json: %w", err)
	}
	if _, ok := root["Results"]; ok {
		return SourceContainer, nil
	}
	if _, ok := root["results"]; ok {
		return SourceStatic, nil
	}
	if _, ok := root["site"]; ok {
		return SourceDynamic, nil
	}
	if _, ok := root["vulnerabilities"]; ok {
		return SourceDependency, nil
	}
	if _, ok := root["advisories"]; ok {
		return SourceDependency, nil
	}
	return "", errors.New("unsupported scan format: expected dependency audit, static analysis, dynamic scan, or container scan JSON")
}

func fromDepAudit(findings []depaudit.Finding) []rawFinding {
	out := make([]rawFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, rawFinding{
			SourceType:     SourceDependency,
			RuleID:         f.RuleID,
			Title:          f.Title,
			Description:    f.Description,
			Source:         f.Source,
			NativeSeverity: f.Severity,
			CWE:            f.CWE,
			CVSS:           f.CVSS,
			Reference:      f.Reference,
		})
	}
	return out
}

func fromStaticScan(findings []staticscan.Finding) []rawFinding {
	out := make([]rawFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, rawFinding{
			SourceType:     SourceStatic,
			RuleID:         f.RuleID,
			Title:          f.Title,
			Description:    f.Description,
			Source:         f.Source,
			NativeSeverity: f.Severity,
			Line:           f.Line,
			Column:         f.Column,
			CWE:            f.CWE,
			Reference:      f.Reference,
		})
	}
	return out
}

func fromDynScan(findings []dynscan.Finding) []rawFinding {
	out := make([]rawFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, rawFinding{
			SourceType:     SourceDynamic,
			RuleID:         f.RuleID,
			Title:          f.Title,
			Description:    f.Description,
			Source:         f.Source,
			NativeSeverity: f.Severity,
			CWE:            f.CWE,
			Reference:      f.Reference,
		})
	}
	return out
}

func fromContainer(findings []container.Finding) []rawFinding {
	out := make([]rawFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, rawFinding{
			SourceType:     SourceContainer,
			RuleID:         f.RuleID,
			Title:          f.Title,
			Description:    f.Description,
			Source:         f.Source,
			NativeSeverity: f.Severity,
			CWE:            f.CWE,
			CVSS:           f.CVSS,
			Reference:      f.Reference,
		})
	}
	return out
}
