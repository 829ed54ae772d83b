// Package trust derives a coarse trust tier for a skill from publisher
// signals and the most recent scan outcome. The tier is a recomputable
// label, never ground truth: it is re-derived on every scan or metadata
// change.
package trust

import (
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/smith-horn/skillsmith/pkg/scanner"
)

// Tier is the trust label attached to a skill.
type Tier string

const (
	TierOfficial     Tier = "official"
	TierVerified     Tier = "verified"
	TierCommunity    Tier = "community"
	TierExperimental Tier = "experimental"
	TierUnverified   Tier = "unverified"
)

// Verified-tier thresholds. The exact values are a policy decision;
// see DESIGN.md before changing them.
const (
	VerifiedMinAge      = 30 * 24 * time.Hour
	VerifiedMinInstalls = 100
)

// OfficialNamespacePrefix marks first-party skills.
const OfficialNamespacePrefix = "skillsmith/"

// requiredDocs are the documentation files a community-tier skill must ship.
var requiredDocs = mapset.NewSet("README.md", "LICENSE")

// PublisherMetadata carries the publisher signals used for classification.
// All of it is self-reported except SignatureVerified, which the sync
// collaborator sets after checking the publisher signature.
type PublisherMetadata struct {
	Namespace         string    `json:"namespace"`
	PublisherID       string    `json:"publisherId"`
	SignatureVerified bool      `json:"signatureVerified"`
	FirstPublishedAt  time.Time `json:"firstPublishedAt"`
	InstallCount      int       `json:"installCount"`
	Prerelease        bool      `json:"prerelease"`
	DocFiles          []string  `json:"docFiles"`
}

// Classify applies the ordered tier rules, first match wins. The ordering
// is deliberate: a critical scan finding downgrades a skill to unverified
// no matter how well-regarded its publisher is.
func Classify(meta PublisherMetadata, report *scanner.Report) Tier {
	if strings.HasPrefix(meta.Namespace, OfficialNamespacePrefix) {
		return TierOfficial
	}

	if report == nil || report.HasCritical() {
		return TierUnverified
	}

	if meta.SignatureVerified && report.Clean() && meetsVerifiedThresholds(meta) {
		return TierVerified
	}

	if meta.Prerelease {
		return TierExperimental
	}

	if report.Clean() && hasRequiredDocs(meta) {
		return TierCommunity
	}

	return TierUnverified
}

func meetsVerifiedThresholds(meta PublisherMetadata) bool {
	if meta.FirstPublishedAt.IsZero() {
		return false
	}
	age := time.Since(meta.FirstPublishedAt)
	return age >= VerifiedMinAge && meta.InstallCount >= VerifiedMinInstalls
}

func hasRequiredDocs(meta PublisherMetadata) bool {
	provided := mapset.NewSet(meta.DocFiles...)
	return requiredDocs.IsSubset(provided)
}
