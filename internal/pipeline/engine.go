package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaymarket/secgate/internal/gate"
	"github.com/relaymarket/secgate/internal/notify"
	"github.com/relaymarket/secgate/internal/report"
	"github.com/relaymarket/secgate/internal/severity"
	"github.com/relaymarket/secgate/internal/store"
)

const reportSchemaVersion = "1.0"

// Config collects everything one gate run needs. Zero values mean "skip the
// optional step": no baseline path means no diff, no webhook URL means no
// notification, and so on.
type Config struct {
	Inputs         []ScanInput
	GateConfigPath string
	Environment    string
	Tolerance      Tolerance
	BaselinePath   string
	AllowlistPath  string
	CoveragePath   string
	OutputPath     string
	HTMLPath       string
	WebhookURL     string
	WebhookHosts   []string
	HistoryPath    string

	Log        *zap.SugaredLogger
	Now        func() time.Time
	Getenv     func(string) (string, bool)
	HTTPClient *http.Client
}

// coverageDoc is the test coverage sidecar supplied by CI.
type coverageDoc struct {
	Percent float64  `json:"percent"`
	Suites  []string `json:"suites"`
}

func (c *Config) defaults() {
	if c.Log == nil {
		c.Log = zap.NewNop().Sugar()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Getenv == nil {
		c.Getenv = os.LookupEnv
	}
	if c.OutputPath == "" {
		c.OutputPath = "secgate-report.json"
	}
	if c.Tolerance == "" {
		c.Tolerance = ToleranceModerate
	}
}

// Run executes the full pipeline: ingest, normalize, diff, evaluate, report.
// The returned report's ExitCode is 1 whenever the gate decision is a fail;
// an error return means the run itself could not complete.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg.defaults()
	if !ValidTolerance(cfg.Tolerance) {
		return nil, fmt.Errorf("unknown tolerance %q (want strict, moderate, or lenient)", cfg.Tolerance)
	}
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("no scan inputs supplied")
	}
	for _, in := range cfg.Inputs {
		// An empty type means auto-detect; anything else must be one of the
		// four canonical source types.
		if in.Type != "" && !ValidSourceType(in.Type) {
			return nil, fmt.Errorf("unknown scan source type %q for %s", in.Type, in.Path)
		}
	}

	now := cfg.Now().UTC()
	log := cfg.Log

	audit, err := report.NewAuditLogger(report.DefaultRunLogPath(cfg.OutputPath))
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer audit.Close()

	environment := cfg.Environment
	if environment == "" {
		var via string
		environment, via = DetectEnvironment(cfg.Getenv)
		log.Infow("environment auto-detected", "environment", environment, "via", via)
	}
	audit.Info("run.start", map[string]any{
		"environment": environment,
		"tolerance":   string(cfg.Tolerance),
		"inputs":      len(cfg.Inputs),
	})

	gateCfg, configFellBack := loadGateConfig(cfg.GateConfigPath, log, audit)

	records, summaries, missing := loadScans(cfg.Inputs, now, log, audit)
	records = Deduplicate(records)

	if cfg.AllowlistPath != "" {
		al, err := LoadAllowlist(cfg.AllowlistPath)
		if err != nil {
			return nil, err
		}
		applied := applyAllowlist(records, al, now)
		log.Infow("allowlist applied", "entries", len(al.Entries), "matched", applied)
		audit.Info("allowlist.applied", map[string]any{"matched": applied})
	}

	var baseline *Baseline
	if cfg.BaselinePath != "" {
		baseline, err = LoadBaseline(cfg.BaselinePath)
		if err != nil {
			if os.IsNotExist(err) {
				// First run against a baseline that does not exist yet. The
				// comparison treats everything as new without regressing.
				log.Warnw("baseline not found; treating as first run", "path", cfg.BaselinePath)
				audit.Warn("baseline.missing", map[string]any{"path": cfg.BaselinePath})
				baseline = nil
			} else {
				return nil, err
			}
		}
	}
	carryFirstSeen(records, baseline)
	cmp := Diff(records, baseline, cfg.Tolerance)

	metrics := buildMetrics(records, cmp, summaries, missing)
	if cfg.CoveragePath != "" {
		cov, err := loadCoverage(cfg.CoveragePath)
		if err != nil {
			// Unknown coverage fails the coverage gate closed; the run itself
			// continues.
			log.Warnw("coverage document unusable", "path", cfg.CoveragePath, "error", err)
			audit.Warn("coverage.unusable", map[string]any{"error": err.Error()})
		} else {
			metrics.CoverageKnown = true
			metrics.CoveragePercent = cov.Percent
			metrics.AvailableTestSources = append(metrics.AvailableTestSources, cov.Suites...)
		}
	}

	gates := gate.Resolve(gateCfg, environment)
	res := gate.Evaluate(gates, metrics)

	rep := &Report{
		SchemaVersion:   reportSchemaVersion,
		Timestamp:       now.Format(time.RFC3339),
		Environment:     environment,
		Tolerance:       cfg.Tolerance,
		Passed:          res.Passed,
		Summary:         buildSummary(records, cmp),
		Sources:         summaries,
		Gates:           res.Gates,
		Violations:      res.Violations,
		Warnings:        res.Warnings,
		Recommendations: buildRecommendations(res, cmp, summaries, configFellBack),
		Comparison:      cmp,
		Vulnerabilities: records,
	}
	if !rep.Passed {
		rep.ExitCode = 1
	}

	artifacts := []string{}
	if err := report.WriteJSON(cfg.OutputPath, rep); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	artifacts = append(artifacts, cfg.OutputPath)
	if cfg.HTMLPath != "" {
		if err := WriteHTML(cfg.HTMLPath, rep); err != nil {
			return nil, fmt.Errorf("write html report: %w", err)
		}
		artifacts = append(artifacts, cfg.HTMLPath)
	}
	if err := report.WriteChecksums(report.DefaultChecksumsPath(cfg.OutputPath), artifacts); err != nil {
		return nil, fmt.Errorf("write checksums: %w", err)
	}

	audit.Info("run.decision", map[string]any{
		"passed":     rep.Passed,
		"violations": len(rep.Violations),
		"warnings":   len(rep.Warnings),
		"total":      rep.Summary.Total,
	})

	if cfg.WebhookURL != "" {
		if err := sendWebhook(ctx, cfg, rep); err != nil {
			// Delivery failure never changes the gate decision.
			log.Warnw("webhook delivery failed", "error", err)
			audit.Warn("webhook.failed", map[string]any{"error": err.Error()})
		}
	}
	if cfg.HistoryPath != "" {
		if err := recordHistory(cfg.HistoryPath, rep); err != nil {
			log.Warnw("history record failed", "error", err)
		}
	}

	return rep, nil
}

// loadGateConfig loads the gate file when given, falling back to the
// built-in defaults on any config error. The fallback is always logged:
// silently ignoring a broken policy file would be a policy bypass.
func loadGateConfig(path string, log *zap.SugaredLogger, audit *report.AuditLogger) (gate.Config, bool) {
	if path == "" {
		return gate.Default(), false
	}
	cfg, err := gate.Load(path)
	if err != nil {
		log.Warnw("gate config unusable; using built-in defaults", "path", path, "error", err)
		audit.Warn("gateconfig.fallback", map[string]any{"path": path, "error": err.Error()})
		return gate.Default(), true
	}
	return cfg, false
}

// loadScans reads and parses every input in the order supplied. A document
// that cannot be read or parsed contributes zero findings and lands in the
// missing list; it never aborts the run.
func loadScans(inputs []ScanInput, now time.Time, log *zap.SugaredLogger, audit *report.AuditLogger) ([]VulnerabilityRecord, []SourceSummary, []string) {
	firstSeen := now.Format(time.RFC3339)
	var records []VulnerabilityRecord
	var summaries []SourceSummary
	var missing []string

	for _, in := range inputs {
		summary := SourceSummary{Type: in.Type, Path: in.Path}
		payload, err := os.ReadFile(in.Path)
		if err != nil {
			summary.Error = err.Error()
			summaries = append(summaries, summary)
			missing = append(missing, missingLabel(in))
			log.Warnw("scan document unreadable", "path", in.Path, "error", err)
			audit.Warn("scan.unreadable", map[string]any{"path": in.Path, "error": err.Error()})
			continue
		}
		sum := sha256.Sum256(payload)
		summary.SHA256 = hex.EncodeToString(sum[:])

		raw, resolved, err := parseDocument(in.Type, in.Path, payload)
		if err != nil {
			summary.Error = err.Error()
			if resolved != "" {
				summary.Type = resolved
			}
			summaries = append(summaries, summary)
			missing = append(missing, missingLabel(in))
			log.Warnw("scan document unparsable", "path", in.Path, "error", err)
			audit.Warn("scan.unparsable", map[string]any{"path": in.Path, "error": err.Error()})
			continue
		}

		summary.Type = resolved
		summary.OK = true
		summary.Findings = len(raw)
		summaries = append(summaries, summary)
		records = append(records, normalizeFindings(raw, firstSeen)...)
		log.Infow("scan ingested", "path", in.Path, "type", string(resolved), "findings", len(raw))
	}
	return records, summaries, missing
}

func missingLabel(in ScanInput) string {
	if in.Type != "" {
		return string(in.Type)
	}
	return in.Path
}

// buildMetrics aggregates the gate inputs. Approved findings are excluded
// from every count: an allowlisted finding is an accepted risk, not a gate
// failure.
func buildMetrics(records []VulnerabilityRecord, cmp RegressionComparison, summaries []SourceSummary, missing []string) gate.Metrics {
	m := gate.Metrics{
		SeverityCounts: map[severity.Severity]int{},
		SourceSeverity: map[string]map[severity.Severity]int{},
		MissingSources: missing,
	}
	for _, r := range records {
		if r.Approved {
			continue
		}
		m.SeverityCounts[r.Severity]++
		byType := m.SourceSeverity[string(r.SourceType)]
		if byType == nil {
			byType = map[severity.Severity]int{}
			m.SourceSeverity[string(r.SourceType)] = byType
		}
		byType[r.Severity]++
	}
	for _, ch := range cmp.Regressions {
		if !ch.Record.Approved {
			m.Regressions++
		}
	}
	seen := map[string]bool{}
	for _, s := range summaries {
		if s.OK && !seen[string(s.Type)] {
			seen[string(s.Type)] = true
			m.AvailableTestSources = append(m.AvailableTestSources, string(s.Type))
		}
	}
	return m
}

func buildSummary(records []VulnerabilityRecord, cmp RegressionComparison) Summary {
	s := Summary{
		BySeverity:  map[string]int{},
		Regressions: len(cmp.Regressions),
		Fixed:       len(cmp.FixedVulnerabilities),
		New:         len(cmp.NewVulnerabilities),
	}
	for _, r := range records {
		s.Total++
		if r.Approved {
			s.Approved++
		}
		s.BySeverity[string(r.Severity)]++
	}
	return s
}

func loadCoverage(path string) (coverageDoc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return coverageDoc{}, err
	}
	var cov coverageDoc
	if err := json.Unmarshal(b, &cov); err != nil {
		return coverageDoc{}, fmt.Errorf("coverage parse failed: %w", err)
	}
	if cov.Percent < 0 || cov.Percent > 100 {
		return coverageDoc{}, fmt.Errorf("coverage percent %.1f out of range", cov.Percent)
	}
	return cov, nil
}

func sendWebhook(ctx context.Context, cfg Config, rep *Report) error {
	hook, err := notify.NewWebhook(cfg.WebhookURL, cfg.WebhookHosts, cfg.HTTPClient)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"schemaVersion": rep.SchemaVersion,
		"timestamp":     rep.Timestamp,
		"environment":   rep.Environment,
		"passed":        rep.Passed,
		"summary":       rep.Summary,
		"violations":    rep.Violations,
		"warnings":      rep.Warnings,
	}
	return hook.Send(ctx, payload)
}

func recordHistory(path string, rep *Report) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.RecordRun(store.RunRecord{
		Timestamp:   rep.Timestamp,
		Environment: rep.Environment,
		Tolerance:   string(rep.Tolerance),
		Passed:      rep.Passed,
		Total:       rep.Summary.Total,
		Critical:    rep.Summary.BySeverity[string(severity.Critical)],
		High:        rep.Summary.BySeverity[string(severity.High)],
		Medium:      rep.Summary.BySeverity[string(severity.Medium)],
		Low:         rep.Summary.BySeverity[string(severity.Low)],
		Regressions: rep.Summary.Regressions,
		Violations:  len(rep.Violations),
		Warnings:    len(rep.Warnings),
	})
}

// GenerateBaseline runs ingest and normalization only, then snapshots the
// result. Gate evaluation is deliberately not part of baseline generation.
func GenerateBaseline(cfg Config, outPath string, force bool) (*Baseline, error) {
	cfg.defaults()
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("no scan inputs supplied")
	}
	now := cfg.Now().UTC()

	audit, err := report.NewAuditLogger(report.DefaultRunLogPath(outPath))
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer audit.Close()

	environment := cfg.Environment
	if environment == "" {
		environment, _ = DetectEnvironment(cfg.Getenv)
	}

	records, summaries, missing := loadScans(cfg.Inputs, now, cfg.Log, audit)
	if len(missing) > 0 {
		// A baseline built from partial coverage would hide every finding the
		// failed scanner knows about in later diffs.
		return nil, fmt.Errorf("refusing to baseline with unavailable sources: %s", strings.Join(missing, ", "))
	}
	records = Deduplicate(records)

	sources := make([]string, 0, len(summaries))
	for _, s := range summaries {
		sources = append(sources, string(s.Type))
	}
	b := NewBaseline(records, environment, sources, now)
	if err := SaveBaseline(outPath, b, force); err != nil {
		return nil, err
	}
	audit.Info("baseline.generated", map[string]any{
		"path":        outPath,
		"findings":    len(records),
		"environment": environment,
	})

	if cfg.HistoryPath != "" {
		if err := recordBaselineHistory(cfg.HistoryPath, b); err != nil {
			cfg.Log.Warnw("history record failed", "error", err)
		}
	}
	return &b, nil
}

func recordBaselineHistory(path string, b Baseline) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.RecordBaseline(store.BaselineRecord{
		GeneratedAt: b.Metadata.GeneratedAt,
		Environment: b.Metadata.Environment,
		Findings:    len(b.Vulnerabilities),
	})
}
