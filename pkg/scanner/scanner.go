// Package scanner provides static pattern analysis for skill content.
// Skill text arrives from untrusted publishers and is treated as adversarial
// input: every pattern uses bounded repetition, evaluation is line-by-line
// with a per-line length cap, and the total number of bytes considered is
// capped so pathological input cannot trigger catastrophic backtracking.
package scanner

import (
	"strings"
	"time"
)

const (
	// maxLineBytes is the per-line evaluation cap. Longer lines are
	// truncated before any pattern runs against them.
	maxLineBytes = 2000

	// maxScanBytes caps the total bytes considered per scan. Content
	// beyond the cap is ignored; findings near the top of oversized
	// input are still caught.
	maxScanBytes = 1 << 20

	// maxSnippetLen bounds the snippet captured for a finding.
	maxSnippetLen = 160

	// MaxRiskScore is the upper bound of the risk score range.
	MaxRiskScore = 100
)

// FindingType identifies the category of a scan finding.
type FindingType string

const (
	FindingJailbreak           FindingType = "jailbreak"
	FindingSocialEngineering   FindingType = "social-engineering"
	FindingPromptLeak          FindingType = "prompt-leak"
	FindingExfiltration        FindingType = "exfiltration"
	FindingPrivilegeEscalation FindingType = "privilege-escalation"
	FindingSuspiciousCode      FindingType = "suspicious-code"
	FindingSensitivePath       FindingType = "sensitive-path"
	FindingExternalURL         FindingType = "external-url"
)

// Severity classifies how dangerous a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityPoints maps severity to risk score points.
var severityPoints = map[Severity]int{
	SeverityCritical: 40,
	SeverityHigh:     20,
	SeverityMedium:   10,
	SeverityLow:      3,
}

// diminishedCriticalPoints is the weight applied to critical findings
// beyond the third, so a wall of repeated matches saturates instead of
// dominating the score.
const diminishedCriticalPoints = 10

// Finding is a single pattern match in skill content. Findings are
// immutable and only ever reported as part of a Report.
type Finding struct {
	Type     FindingType `json:"type"`
	Severity Severity    `json:"severity"`
	Line     int         `json:"line"`
	Snippet  string      `json:"snippet"`
}

// Report is the result of scanning one piece of skill content.
// Identical content always yields identical findings and risk score.
type Report struct {
	SkillID   string    `json:"skillId"`
	Findings  []Finding `json:"findings"`
	RiskScore int       `json:"riskScore"`
	ScannedAt time.Time `json:"scannedAt"`
}

// HasCritical reports whether any finding has critical severity.
func (r *Report) HasCritical() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Clean reports whether the scan produced no findings at all.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

// Scan evaluates the full pattern catalogue against content and returns a
// report. It never fails: a broken pattern category degrades to no matches
// for that category, while any confirmed match stands regardless of what
// other categories did.
func Scan(skillID, content string) *Report {
	if len(content) > maxScanBytes {
		content = content[:maxScanBytes]
	}

	lines := strings.Split(content, "\n")
	var findings []Finding

	for _, cat := range catalogue {
		findings = append(findings, matchCategory(cat, lines)...)
	}

	return &Report{
		SkillID:   skillID,
		Findings:  findings,
		RiskScore: scoreFindings(findings),
		ScannedAt: time.Now().UTC(),
	}
}

// matchCategory runs one category's patterns over all lines. A panic inside
// the category is swallowed so the category contributes no matches instead
// of aborting the scan.
func matchCategory(cat patternCategory, lines []string) (findings []Finding) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
		}
	}()

	for i, line := range lines {
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		for _, p := range cat.patterns {
			loc := p.FindStringIndex(line)
			if loc == nil {
				continue
			}
			findings = append(findings, Finding{
				Type:     cat.kind,
				Severity: cat.severity,
				Line:     i + 1,
				Snippet:  snippet(line, loc[0]),
			})
			// One finding per category per line keeps repeated
			// tokens on one line from inflating the count.
			break
		}
	}
	return findings
}

// snippet extracts a bounded excerpt of the matched line starting at the
// match position.
func snippet(line string, start int) string {
	s := strings.TrimSpace(line[start:])
	if len(s) > maxSnippetLen {
		s = s[:maxSnippetLen]
	}
	return s
}

// scoreFindings computes the saturating severity-weighted sum. Critical
// findings beyond the third contribute a diminished weight.
func scoreFindings(findings []Finding) int {
	score := 0
	criticals := 0
	for _, f := range findings {
		pts := severityPoints[f.Severity]
		if f.Severity == SeverityCritical {
			criticals++
			if criticals > 3 {
				pts = diminishedCriticalPoints
			}
		}
		score += pts
	}
	if score > MaxRiskScore {
		score = MaxRiskScore
	}
	return score
}

// QuickCheck is a fast prefilter for hot paths. It lowercases a bounded
// prefix of the content and looks for the highest-signal markers only.
// A false negative here is acceptable; callers still run Scan before
// trusting content.
func QuickCheck(content string) bool {
	const prefix = 16 * 1024
	if len(content) > prefix {
		content = content[:prefix]
	}
	lower := strings.ToLower(content)
	for _, marker := range quickMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
