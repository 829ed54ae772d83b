package quarantine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyFile is the top-level structure of the review policy YAML file.
type PolicyFile struct {
	Rules          []PolicyRule `yaml:"rules" json:"rules"`
	StalenessHours int          `yaml:"stalenessHours" json:"stalenessHours,omitempty"`
}

// PolicyRule maps a severity to its approval requirements.
type PolicyRule struct {
	Severity          string `yaml:"severity" json:"severity"`
	RequiredApprovals int    `yaml:"requiredApprovals" json:"requiredApprovals"`
}

// Policy answers how many approvals a severity needs and how long an
// unfinished review set stays valid.
type Policy struct {
	required        map[Severity]int
	stalenessWindow time.Duration
}

// DefaultPolicy returns the built-in review policy: malicious entries
// need two distinct approvals, everything else needs one, and partial
// approval sets expire after 24 hours.
func DefaultPolicy() *Policy {
	return &Policy{
		required: map[Severity]int{
			SeverityMalicious: 2,
		},
		stalenessWindow: 24 * time.Hour,
	}
}

// LoadPolicy loads a review policy from a YAML file, falling back to the
// defaults for anything the file does not set. A missing file returns
// the default policy.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("read review policy: %w", err)
	}

	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse review policy: %w", err)
	}

	policy := DefaultPolicy()
	for _, rule := range pf.Rules {
		if rule.RequiredApprovals < 1 {
			return nil, fmt.Errorf("review policy: severity %q requires at least 1 approval", rule.Severity)
		}
		policy.required[Severity(rule.Severity)] = rule.RequiredApprovals
	}
	if pf.StalenessHours > 0 {
		policy.stalenessWindow = time.Duration(pf.StalenessHours) * time.Hour
	}
	return policy, nil
}

// RequiredApprovals returns how many distinct approvals the severity needs.
func (p *Policy) RequiredApprovals(severity Severity) int {
	if n, ok := p.required[severity]; ok {
		return n
	}
	return 1
}

// StalenessWindow returns how long a partial approval set stays valid.
func (p *Policy) StalenessWindow() time.Duration {
	return p.stalenessWindow
}
