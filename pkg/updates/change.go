// Package updates classifies the semantic size of a content change between
// two skill versions and scores the risk of applying an update. Both entry
// points are pure functions; they hold no state and are safe to call across
// many skills in parallel.
package updates

import (
	"regexp"
	"strconv"
	"strings"
)

// ChangeType is the semantic size of a content delta.
type ChangeType string

const (
	ChangeMajor   ChangeType = "major"
	ChangeMinor   ChangeType = "minor"
	ChangePatch   ChangeType = "patch"
	ChangeUnknown ChangeType = "unknown"
)

// riskIncreaseMajorThreshold is the risk score increase beyond which a
// change is classified major regardless of anything the author declared.
const riskIncreaseMajorThreshold = 20

var versionLineRe = regexp.MustCompile(`(?i)^version:[ \t]{0,8}v?([0-9]{1,6})\.([0-9]{1,6})\.([0-9]{1,6})[ \t]*$`)

// ClassifyChange classifies the delta between two versions of skill
// content. It is total over all string pairs: it never panics and returns
// ChangeUnknown on any internal failure.
//
// Structural and security regressions (a removed heading, a risk score
// jump, a removed dependency) are authoritative evidence of a major change
// even when the author-declared version delta disagrees, because declared
// versions are adversarial input.
func ClassifyChange(oldContent, newContent string, oldRisk, newRisk *int) (ct ChangeType) {
	defer func() {
		if r := recover(); r != nil {
			ct = ChangeUnknown
		}
	}()

	oldHeadings := extractHeadings(oldContent)
	newHeadings := extractHeadings(newContent)
	if anyRemoved(oldHeadings, newHeadings) {
		return ChangeMajor
	}

	if oldRisk != nil && newRisk != nil && *newRisk-*oldRisk > riskIncreaseMajorThreshold {
		return ChangeMajor
	}

	oldDeps := extractDependencies(oldContent)
	newDeps := extractDependencies(newContent)
	if anyRemoved(oldDeps, newDeps) {
		return ChangeMajor
	}

	// Author-declared semver delta, trusted only when both versions
	// declare one and they differ.
	if delta, ok := declaredDelta(oldContent, newContent); ok {
		return delta
	}

	if anyAdded(oldHeadings, newHeadings) || anyAdded(oldDeps, newDeps) {
		return ChangeMinor
	}

	return ChangePatch
}

// declaredDelta compares declared semantic versions. The second return is
// false when either side lacks a declaration or the declarations match.
func declaredDelta(oldContent, newContent string) (ChangeType, bool) {
	oldV, okOld := extractVersion(oldContent)
	newV, okNew := extractVersion(newContent)
	if !okOld || !okNew || oldV == newV {
		return ChangeUnknown, false
	}
	switch {
	case oldV[0] != newV[0]:
		return ChangeMajor, true
	case oldV[1] != newV[1]:
		return ChangeMinor, true
	default:
		return ChangePatch, true
	}
}

// extractVersion finds a "version: x.y.z" declaration in the leading lines
// of the content (skill frontmatter convention).
func extractVersion(content string) ([3]int, bool) {
	var v [3]int
	lines := strings.SplitN(content, "\n", 41)
	for i, line := range lines {
		if i >= 40 {
			break
		}
		m := versionLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		for j := 0; j < 3; j++ {
			n, err := strconv.Atoi(m[j+1])
			if err != nil {
				return v, false
			}
			v[j] = n
		}
		return v, true
	}
	return v, false
}

// extractHeadings returns the set of markdown headings in the content.
func extractHeadings(content string) map[string]bool {
	headings := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			headings[strings.TrimSpace(strings.TrimLeft(trimmed, "#"))] = true
		}
	}
	return headings
}

// extractDependencies returns the set of declared dependencies: bullet
// items under a "dependencies:" frontmatter key or a "Dependencies"
// markdown section.
func extractDependencies(content string) map[string]bool {
	deps := make(map[string]bool)
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		isHeading := strings.HasPrefix(trimmed, "#")
		switch {
		case lower == "dependencies:" || (isHeading && strings.TrimSpace(strings.TrimLeft(lower, "#")) == "dependencies"):
			inBlock = true
			continue
		case inBlock && (strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*")):
			name := strings.TrimSpace(strings.TrimLeft(trimmed, "-* "))
			if name != "" {
				deps[name] = true
			}
			continue
		case trimmed == "":
			continue
		default:
			inBlock = false
		}
	}
	return deps
}

func anyRemoved(old, new map[string]bool) bool {
	for k := range old {
		if !new[k] {
			return true
		}
	}
	return false
}

func anyAdded(old, new map[string]bool) bool {
	for k := range new {
		if !old[k] {
			return true
		}
	}
	return false
}
