package container

import (
	"strings"
	"testing"
)

func TestParseContainerScan(t *testing.T) {
	payload := []byte(`{
  "SchemaVersion": 2,
  "ArtifactName": "registry.local/call-router:1.4.2",
  "Results": [
    {
      "Target": "registry.local/call-router:1.4.2 (alpine 3.19)",
      "Vulnerabilities": [
        {
          "VulnerabilityID": "CVE-2026-1111",
          "PkgName": "openssl",
          "InstalledVersion": "3.1.4-r5",
          "Severity": "CRITICAL",
          "Title": "openssl: buffer overflow",
          "PrimaryURL": "https://avd.aquasec.com/nvd/cve-2026-1111",
          "CweIDs": ["CWE-120"],
          "CVSS": {"nvd": {"V3Score": 9.8}, "redhat": {"V3Score": 9.1}}
        }
      ]
    }
  ]
}`)
	findings, err := Parse("trivy.json", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected one finding, got %d", len(findings))
	}
	f := findings[0]
	if f.RuleID != "CVE-2026-1111" || f.Source != "openssl@3.1.4-r5" {
		t.Fatalf("unexpected finding: %+v", f)
	}
	if f.Severity != "CRITICAL" || f.CVSS != 9.8 || f.CWE != "CWE-120" {
		t.Fatalf("unexpected severity/cvss/cwe: %+v", f)
	}
}

func TestParseRejectsMissingResults(t *testing.T) {
	_, err := Parse("trivy.json", []byte(`{"ArtifactName": "img"}`))
	if err == nil {
		t.Fatal("expected missing Results error")
	}
	if !strings.Contains(err.Error(), "missing top-level Results") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Parse("trivy.json", []byte(`{"SchemaVersion": 9, "Results": []}`))
	if err == nil {
		t.Fatal("expected unsupported schema version error")
	}
	if !strings.Contains(err.Error(), "unsupported SchemaVersion") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseEmptyResultsYieldsNoFindings(t *testing.T) {
	findings, err := Parse("trivy.json", []byte(`{"Results": []}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
}
