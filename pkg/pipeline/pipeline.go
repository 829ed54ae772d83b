// Package pipeline wires the scanner, trust classifier, change
// classifier, and quarantine workflow into the single evaluation path a
// skill goes through before distribution.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smith-horn/skillsmith/pkg/auditlog"
	"github.com/smith-horn/skillsmith/pkg/quarantine"
	"github.com/smith-horn/skillsmith/pkg/registry"
	"github.com/smith-horn/skillsmith/pkg/scanner"
	"github.com/smith-horn/skillsmith/pkg/trust"
	"github.com/smith-horn/skillsmith/pkg/updates"

	"github.com/google/uuid"
)

// QuarantineRiskThreshold is the scan risk score at or above which a
// skill is quarantined even without a critical finding.
const QuarantineRiskThreshold = 60

// reportCacheSize bounds the in-memory scan report cache.
const reportCacheSize = 1024

// Pipeline evaluates incoming skill content end to end.
type Pipeline struct {
	versions   *registry.VersionStore
	quarantine *quarantine.Service
	audit      *auditlog.Logger
	validator  ContentValidator
	reports    *scanner.ReportCache
	log        *slog.Logger
}

// New creates a Pipeline. validator may be nil, in which case the
// community validator is used.
func New(versions *registry.VersionStore, q *quarantine.Service, audit *auditlog.Logger, validator ContentValidator, log *slog.Logger) *Pipeline {
	if validator == nil {
		validator = CommunityValidator{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		versions:   versions,
		quarantine: q,
		audit:      audit,
		validator:  validator,
		reports:    scanner.NewReportCache(reportCacheSize, time.Hour),
		log:        log,
	}
}

// EvaluateRequest is one skill version arriving for evaluation.
type EvaluateRequest struct {
	SkillID  string
	Content  string
	Metadata trust.PublisherMetadata

	// PreviousContent is the content of the previously distributed
	// version, empty on first observation.
	PreviousContent string

	HasLocalModifications bool
	HasChangelog          bool
}

// Result is the full outcome of evaluating one skill version.
type Result struct {
	SkillID     string             `json:"skillId"`
	ContentHash string             `json:"contentHash"`
	Report      *scanner.Report    `json:"report"`
	Tier        trust.Tier         `json:"tier"`
	ChangeType  updates.ChangeType `json:"changeType,omitempty"`
	Assessment  updates.Assessment `json:"assessment"`
	Quarantined bool               `json:"quarantined"`
	Quarantine  *quarantine.Entry  `json:"quarantine,omitempty"`
}

// Evaluate runs the full trust pipeline for one skill version: validate,
// scan, classify tier, classify the change against the prior version,
// score the update, quarantine when warranted, and record the version.
// Every stage outcome is written to the audit log.
func (p *Pipeline) Evaluate(req EvaluateRequest) (*Result, error) {
	if req.SkillID == "" {
		return nil, fmt.Errorf("evaluate: skill ID is required")
	}
	if err := p.validator.Validate(req.SkillID, req.Content); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", req.SkillID, err)
	}

	// Scanning is deterministic, so reports are cached per content hash.
	hash := registry.HashContent(req.Content)
	report, cached := p.reports.Get(hash)
	if !cached {
		report = scanner.Scan(req.SkillID, req.Content)
		p.reports.Set(hash, report)
	} else if report.SkillID != req.SkillID {
		// Identical content can arrive under a different skill ID.
		clone := *report
		clone.SkillID = req.SkillID
		report = &clone
	}
	p.auditEvent(auditlog.EventScanCompleted, req.SkillID, map[string]any{
		"contentHash": hash,
		"riskScore":   report.RiskScore,
		"findings":    len(report.Findings),
		"cached":      cached,
	})

	tier := trust.Classify(req.Metadata, report)
	p.auditEvent(auditlog.EventTierAssigned, req.SkillID, map[string]any{
		"tier": string(tier),
	})

	result := &Result{
		SkillID:     req.SkillID,
		ContentHash: hash,
		Report:      report,
		Tier:        tier,
	}

	var riskDelta *int
	prior, err := p.versions.Latest(req.SkillID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		delta := report.RiskScore - prior.RiskScore
		riskDelta = &delta
	}
	if req.PreviousContent != "" {
		oldRisk := (*int)(nil)
		if prior != nil {
			r := prior.RiskScore
			oldRisk = &r
		}
		result.ChangeType = updates.ClassifyChange(req.PreviousContent, req.Content, oldRisk, &report.RiskScore)
	}

	result.Assessment = updates.ComputeUpdateRisk(updates.RiskInput{
		ChangeType:            result.ChangeType,
		RiskDelta:             riskDelta,
		HasLocalModifications: req.HasLocalModifications,
		TrustTier:             tier,
		HasChangelog:          req.HasChangelog,
	})
	p.auditEvent(auditlog.EventUpdateAssessed, req.SkillID, map[string]any{
		"changeType":     string(result.ChangeType),
		"updateRisk":     result.Assessment.Score,
		"level":          string(result.Assessment.Level),
		"recommendation": string(result.Assessment.Recommendation),
	})

	if report.HasCritical() || report.RiskScore >= QuarantineRiskThreshold {
		entry, err := p.quarantineSkill(req.SkillID, hash, report)
		if err != nil {
			return nil, err
		}
		result.Quarantined = true
		result.Quarantine = entry
	}

	if _, err := p.versions.Record(&registry.VersionRecord{
		ID:          uuid.New().String(),
		SkillID:     req.SkillID,
		ContentHash: hash,
		ChangeType:  string(result.ChangeType),
		RiskScore:   report.RiskScore,
	}); err != nil {
		return nil, err
	}

	p.log.Info("skill evaluated",
		"skillId", req.SkillID,
		"tier", string(tier),
		"riskScore", report.RiskScore,
		"quarantined", result.Quarantined)
	return result, nil
}

// quarantineSkill derives the quarantine severity from the scan report
// and files the entry.
func (p *Pipeline) quarantineSkill(skillID, hash string, report *scanner.Report) (*quarantine.Entry, error) {
	severity := deriveSeverity(report)
	findings := make([]string, 0, len(report.Findings))
	for _, f := range report.Findings {
		findings = append(findings, fmt.Sprintf("%s (%s) at line %d", f.Type, f.Severity, f.Line))
	}

	return p.quarantine.Create(quarantine.CreateRequest{
		SkillID:     skillID,
		ContentHash: hash,
		Severity:    severity,
		Reason:      fmt.Sprintf("scan risk score %d with %d findings", report.RiskScore, len(report.Findings)),
		Findings:    findings,
		RiskScore:   report.RiskScore,
	})
}

// deriveSeverity maps a scan report to a quarantine severity. Critical
// findings in active-attack categories mark the entry malicious, which
// raises the approval bar for release.
func deriveSeverity(report *scanner.Report) quarantine.Severity {
	critical := false
	for _, f := range report.Findings {
		if f.Severity != scanner.SeverityCritical {
			continue
		}
		critical = true
		switch f.Type {
		case scanner.FindingJailbreak, scanner.FindingExfiltration, scanner.FindingPrivilegeEscalation:
			return quarantine.SeverityMalicious
		}
	}
	if critical {
		return quarantine.SeverityCritical
	}
	return quarantine.SeverityHigh
}

func (p *Pipeline) auditEvent(eventType, resource string, metadata map[string]any) {
	if p.audit == nil {
		return
	}
	p.audit.Log(auditlog.Entry{
		EventType: eventType,
		Actor:     "system",
		Resource:  resource,
		Result:    auditlog.ResultSuccess,
		Metadata:  metadata,
	})
}
