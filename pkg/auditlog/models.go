// Package auditlog provides the append-only, queryable, retention-bounded
// audit trail for every decision the trust pipeline makes. Entries are
// never mutated; they are appended, and deleted only by an explicit
// retention purge which itself appends a new entry.
package auditlog

import (
	"time"

	"github.com/smith-horn/skillsmith/pkg/storage"
)

// Event types emitted by the trust pipeline.
const (
	EventScanCompleted      = "scan.completed"
	EventTierAssigned       = "trust.tier_assigned"
	EventUpdateAssessed     = "update.risk_assessed"
	EventQuarantineCreated  = "quarantine.created"
	EventQuarantineReviewed = "quarantine.reviewed"
	EventApprovalRecorded   = "quarantine.approval_recorded"
	EventApprovalTimeout    = "quarantine.approval_timeout"
	EventSkillReleased      = "quarantine.skill_released"
	EventRetentionPurge     = "audit.retention_purge"
)

// Results recorded on audit entries.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// EntryRecord is a GORM model for an immutable audit log entry.
type EntryRecord struct {
	ID        string          `gorm:"primaryKey;column:id;type:varchar(36)"`
	EventType string          `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null"`
	Actor     string          `gorm:"column:actor;index;not null"`
	Resource  string          `gorm:"column:resource;index:idx_audit_resource_time,priority:1"`
	Action    string          `gorm:"column:action"`
	Result    string          `gorm:"column:result;not null"`
	Metadata  storage.JSONMap `gorm:"column:metadata;type:text"`
	CreatedAt time.Time       `gorm:"column:created_at;index:idx_audit_type_time,priority:2;index:idx_audit_resource_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (EntryRecord) TableName() string { return "audit_log_entries" }

// Entry is the API-facing audit entry.
type Entry struct {
	ID        string         `json:"id"`
	EventType string         `json:"eventType"`
	Actor     string         `json:"actor"`
	Resource  string         `json:"resource"`
	Action    string         `json:"action,omitempty"`
	Result    string         `json:"result"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"` // RFC3339
}

// EntryList is a list of audit entries, newest first.
type EntryList struct {
	Entries   []Entry `json:"entries"`
	TotalSize int     `json:"totalSize"`
}

// Filter selects audit entries for a query. Zero-valued fields match
// everything.
type Filter struct {
	EventType string
	Resource  string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

func recordToEntry(rec EntryRecord) Entry {
	return Entry{
		ID:        rec.ID,
		EventType: rec.EventType,
		Actor:     rec.Actor,
		Resource:  rec.Resource,
		Action:    rec.Action,
		Result:    rec.Result,
		Metadata:  map[string]any(rec.Metadata),
		Timestamp: rec.CreatedAt.Format(time.RFC3339Nano),
	}
}
