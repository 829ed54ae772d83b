// Package quarantine implements the review workflow for skills that were
// flagged during evaluation. Entries move pending -> approved or
// pending -> rejected; malicious entries additionally require consensus
// from two distinct reviewers before release.
package quarantine

import (
	"time"

	"github.com/smith-horn/skillsmith/pkg/storage"
)

// Severity of a quarantine entry. Malicious is reserved for content the
// scanner flagged as an active attack rather than a quality concern.
type Severity string

const (
	SeverityMalicious Severity = "malicious"
	SeverityCritical  Severity = "critical"
	SeverityHigh      Severity = "high"
	SeverityMedium    Severity = "medium"
	SeverityLow       Severity = "low"
)

// Status of a quarantine entry. Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision submitted by a reviewer.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// EntryRecord is the database representation of a quarantine entry.
type EntryRecord struct {
	ID          string                  `gorm:"primaryKey;column:id;type:varchar(36)"`
	SkillID     string                  `gorm:"column:skill_id;index:idx_quarantine_skill;not null"`
	ContentHash string                  `gorm:"column:content_hash;not null"`
	Severity    string                  `gorm:"column:severity;not null"`
	Status      string                  `gorm:"column:status;index;not null"`
	Reason      string                  `gorm:"column:reason;type:text"`
	Findings    storage.JSONStringSlice `gorm:"column:findings;type:text"`
	RiskScore   int                     `gorm:"column:risk_score"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	ResolvedAt  *time.Time              `gorm:"column:resolved_at"`
	ResolvedBy  string                  `gorm:"column:resolved_by"`
}

// TableName returns the GORM table name.
func (EntryRecord) TableName() string { return "quarantine_entries" }

// ApprovalRecord is one reviewer's decision on a quarantine entry. The
// unique index on (quarantine_id, reviewer_id) makes double voting a
// database constraint, not just a service check.
type ApprovalRecord struct {
	ID            string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	QuarantineID  string    `gorm:"column:quarantine_id;uniqueIndex:idx_quarantine_reviewer,priority:1;not null"`
	ReviewerID    string    `gorm:"column:reviewer_id;uniqueIndex:idx_quarantine_reviewer,priority:2;not null"`
	ReviewerEmail string    `gorm:"column:reviewer_email"`
	Decision      string    `gorm:"column:decision;not null"`
	Reason        string    `gorm:"column:reason;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`

	// CompletedAt is stamped on every approval of an entry when the
	// entry reaches a terminal status.
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

// TableName returns the GORM table name.
func (ApprovalRecord) TableName() string { return "quarantine_approvals" }

// Entry is the API representation of a quarantine entry.
type Entry struct {
	ID          string     `json:"id"`
	SkillID     string     `json:"skillId"`
	ContentHash string     `json:"contentHash"`
	Severity    Severity   `json:"severity"`
	Status      Status     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	Findings    []string   `json:"findings,omitempty"`
	RiskScore   int        `json:"riskScore"`
	Approvals   []Approval `json:"approvals,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy  string     `json:"resolvedBy,omitempty"`

	// Notice carries a review-time message, such as prior approvals
	// having been discarded as stale. Never persisted.
	Notice string `json:"notice,omitempty"`
}

// Approval is the API representation of a reviewer decision.
type Approval struct {
	ReviewerID    string     `json:"reviewerId"`
	ReviewerEmail string     `json:"reviewerEmail,omitempty"`
	Decision      Decision   `json:"decision"`
	Reason        string     `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

func recordToEntry(rec *EntryRecord, approvals []ApprovalRecord) *Entry {
	entry := &Entry{
		ID:          rec.ID,
		SkillID:     rec.SkillID,
		ContentHash: rec.ContentHash,
		Severity:    Severity(rec.Severity),
		Status:      Status(rec.Status),
		Reason:      rec.Reason,
		Findings:    rec.Findings,
		RiskScore:   rec.RiskScore,
		CreatedAt:   rec.CreatedAt,
		ResolvedAt:  rec.ResolvedAt,
		ResolvedBy:  rec.ResolvedBy,
	}
	for _, a := range approvals {
		entry.Approvals = append(entry.Approvals, Approval{
			ReviewerID:    a.ReviewerID,
			ReviewerEmail: a.ReviewerEmail,
			Decision:      Decision(a.Decision),
			Reason:        a.Reason,
			CreatedAt:     a.CreatedAt,
			CompletedAt:   a.CompletedAt,
		})
	}
	return entry
}
