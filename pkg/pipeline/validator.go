package pipeline

import (
	"fmt"
	"unicode/utf8"

	"github.com/smith-horn/skillsmith/pkg/registry"
)

// ContentValidator checks skill content before it enters the pipeline.
// The deployed edition picks the implementation at startup; the
// capability never changes at runtime.
type ContentValidator interface {
	// Name identifies the validator in logs and diagnostics.
	Name() string
	// Validate returns a descriptive error when content is not
	// acceptable for evaluation.
	Validate(skillID, content string) error
}

// maxContentBytes caps accepted skill content. Larger submissions are
// rejected before scanning rather than silently truncated.
const maxContentBytes = 4 << 20

// CommunityValidator applies the baseline checks every edition performs.
type CommunityValidator struct{}

func (CommunityValidator) Name() string { return "community" }

func (CommunityValidator) Validate(skillID, content string) error {
	if content == "" {
		return fmt.Errorf("skill content is empty")
	}
	if len(content) > maxContentBytes {
		return fmt.Errorf("skill content exceeds %d bytes", maxContentBytes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("skill content is not valid UTF-8")
	}
	return nil
}

// EnterpriseValidator layers organization policy on top of the community
// checks: a skill must carry frontmatter, may be restricted to an allowed
// namespace list, and is rejected while an active security advisory
// stands against it.
type EnterpriseValidator struct {
	// AllowedNamespaces restricts which namespace prefixes may submit
	// skills. Empty means no restriction.
	AllowedNamespaces []string

	// Advisories, when set, blocks skills with active advisories.
	Advisories *registry.AdvisoryStore
}

func (EnterpriseValidator) Name() string { return "enterprise" }

func (v EnterpriseValidator) Validate(skillID, content string) error {
	if err := (CommunityValidator{}).Validate(skillID, content); err != nil {
		return err
	}
	if len(content) < 4 || content[:4] != "---\n" {
		return fmt.Errorf("skill content must start with YAML frontmatter")
	}
	if err := v.checkNamespace(skillID); err != nil {
		return err
	}
	if v.Advisories != nil {
		active, err := v.Advisories.ListActive(skillID)
		if err != nil {
			return fmt.Errorf("advisory lookup for %s: %w", skillID, err)
		}
		if len(active) > 0 {
			return fmt.Errorf("%s has %d active security advisories (latest: %s)",
				skillID, len(active), active[0].Title)
		}
	}
	return nil
}

func (v EnterpriseValidator) checkNamespace(skillID string) error {
	if len(v.AllowedNamespaces) == 0 {
		return nil
	}
	for _, ns := range v.AllowedNamespaces {
		if len(skillID) > len(ns) && skillID[:len(ns)] == ns {
			return nil
		}
	}
	return fmt.Errorf("namespace of %s is not in the allowed list", skillID)
}

// ValidatorFor selects the validator implementation for an edition name.
// Unknown editions fall back to the community validator.
func ValidatorFor(edition string, allowedNamespaces []string, advisories *registry.AdvisoryStore) ContentValidator {
	if edition == "enterprise" {
		return EnterpriseValidator{AllowedNamespaces: allowedNamespaces, Advisories: advisories}
	}
	return CommunityValidator{}
}
