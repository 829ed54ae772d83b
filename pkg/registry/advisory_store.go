package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/smith-horn/skillsmith/pkg/storage"
)

// AdvisoryRecord is a published security advisory against a skill. An
// advisory stays visible until withdrawn; withdrawal is a soft operation
// that stamps withdrawn_at rather than deleting the row.
type AdvisoryRecord struct {
	ID          string `gorm:"primaryKey;column:id;type:varchar(36)"`
	SkillID     string `gorm:"column:skill_id;index;not null"`
	Severity    string `gorm:"column:severity;not null"`
	Title       string `gorm:"column:title;not null"`
	Description string `gorm:"column:description;type:text"`

	// AffectedVersions and PatchedVersions are semver ranges; the
	// distribution side interprets them, this store only records them.
	AffectedVersions storage.JSONStringSlice `gorm:"column:affected_versions;type:text"`
	PatchedVersions  storage.JSONStringSlice `gorm:"column:patched_versions;type:text"`

	PublishedBy string     `gorm:"column:published_by"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	WithdrawnAt *time.Time `gorm:"column:withdrawn_at"`
}

// TableName returns the GORM table name.
func (AdvisoryRecord) TableName() string { return "skill_advisories" }

type AdvisoryStore struct {
	db *gorm.DB
}

func NewAdvisoryStore(db *gorm.DB) *AdvisoryStore {
	return &AdvisoryStore{db: db}
}

// AutoMigrate creates or updates the skill_advisories table.
func (s *AdvisoryStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AdvisoryRecord{}); err != nil {
		return fmt.Errorf("auto-migrate skill_advisories: %w", err)
	}
	return nil
}

// Create publishes an advisory, assigning its identifier.
func (s *AdvisoryStore) Create(rec *AdvisoryRecord) (*AdvisoryRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("create advisory: %w", err)
	}
	return rec, nil
}

// Get retrieves an advisory by ID. Returns nil, nil if not found.
func (s *AdvisoryStore) Get(id string) (*AdvisoryRecord, error) {
	var rec AdvisoryRecord
	err := s.db.Where("id = ?", id).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get advisory: %w", err)
	}
	return &rec, nil
}

// ListActive returns the non-withdrawn advisories for a skill, newest first.
func (s *AdvisoryStore) ListActive(skillID string) ([]AdvisoryRecord, error) {
	var records []AdvisoryRecord
	err := s.db.Where("skill_id = ? AND withdrawn_at IS NULL", skillID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list advisories: %w", err)
	}
	return records, nil
}

// Withdraw marks an advisory withdrawn. Withdrawing an already-withdrawn
// advisory is a no-op.
func (s *AdvisoryStore) Withdraw(id string) (*AdvisoryRecord, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if rec.WithdrawnAt != nil {
		return rec, nil
	}

	now := time.Now().UTC()
	rec.WithdrawnAt = &now
	if err := s.db.Model(rec).Update("withdrawn_at", now).Error; err != nil {
		return nil, fmt.Errorf("withdraw advisory: %w", err)
	}
	return rec, nil
}
