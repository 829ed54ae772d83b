package updates

import "github.com/smith-horn/skillsmith/pkg/trust"

// RiskLevel buckets an update risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Recommendation tells the caller how to treat an update.
type Recommendation string

const (
	RecommendAutoUpdate   Recommendation = "auto-update"
	RecommendReviewUpdate Recommendation = "review-then-update"
	RecommendManualReview Recommendation = "manual-review-required"
)

// Scoring table. Purely additive; the result is clamped at zero.
const (
	pointsMajorChange  = 30
	pointsRiskIncrease = 20
	pointsLocalMods    = 20
	creditVerifiedTier = 20
	creditChangelog    = 10
)

// RiskInput carries the inputs to ComputeUpdateRisk.
type RiskInput struct {
	ChangeType ChangeType
	// RiskDelta is newRiskScore - oldRiskScore, nil when no prior scan
	// exists for comparison.
	RiskDelta             *int
	HasLocalModifications bool
	TrustTier             trust.Tier
	HasChangelog          bool
}

// Assessment is the computed update risk. Never persisted; recomputed on
// demand.
type Assessment struct {
	Level          RiskLevel      `json:"level"`
	Score          int            `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
}

// ComputeUpdateRisk combines change classification, scan risk movement,
// trust tier, and local edits into a single assessment. Fully table-driven
// and monotonic: a larger risk delta never lowers the score. Credits for
// the verified tier and a changelog apply after the additive points and
// the score is floored at zero, so a credit shrinks below its nominal
// value when few points accrued.
//
// The level buckets and recommendation buckets use intentionally distinct
// thresholds (a score of 45 is "high" level but only "review-then-update").
func ComputeUpdateRisk(in RiskInput) Assessment {
	score := 0

	if in.ChangeType == ChangeMajor {
		score += pointsMajorChange
	}
	if in.RiskDelta != nil && *in.RiskDelta > 0 {
		score += pointsRiskIncrease
	}
	if in.HasLocalModifications {
		score += pointsLocalMods
	}
	if in.TrustTier == trust.TierVerified {
		score -= creditVerifiedTier
	}
	if in.HasChangelog {
		score -= creditChangelog
	}
	if score < 0 {
		score = 0
	}

	return Assessment{
		Level:          levelFor(score),
		Score:          score,
		Recommendation: recommendationFor(score),
	}
}

func levelFor(score int) RiskLevel {
	switch {
	case score <= 20:
		return RiskLow
	case score <= 40:
		return RiskMedium
	case score <= 60:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func recommendationFor(score int) Recommendation {
	switch {
	case score <= 20:
		return RecommendAutoUpdate
	case score <= 50:
		return RecommendReviewUpdate
	default:
		return RecommendManualReview
	}
}
