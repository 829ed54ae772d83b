// Package registry persists skill version history and security advisories.
// Both use soft references to the skill identifier: no database-enforced
// foreign key, so history survives deletion of the underlying skill.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DefaultVersionsPerSkill is how many version records are retained per
// skill before pruning.
const DefaultVersionsPerSkill = 50

// VersionRecord is an append-only snapshot of one observed skill version.
type VersionRecord struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	SkillID     string    `gorm:"column:skill_id;index:idx_version_skill;uniqueIndex:idx_version_skill_hash,priority:1;not null"`
	ContentHash string    `gorm:"column:content_hash;uniqueIndex:idx_version_skill_hash,priority:2;not null"`
	Semver      string    `gorm:"column:semver"`
	ChangeType  string    `gorm:"column:change_type"`
	RiskScore   int       `gorm:"column:risk_score"`
	RecordedAt  time.Time `gorm:"column:recorded_at;index;autoCreateTime"`
}

// TableName returns the GORM table name.
func (VersionRecord) TableName() string { return "skill_versions" }

// VersionStore provides append-and-prune operations for version records.
type VersionStore struct {
	db      *gorm.DB
	keepPer int
}

// NewVersionStore creates a VersionStore retaining keepPer records per
// skill; zero or negative means DefaultVersionsPerSkill.
func NewVersionStore(db *gorm.DB, keepPer int) *VersionStore {
	if keepPer <= 0 {
		keepPer = DefaultVersionsPerSkill
	}
	return &VersionStore{db: db, keepPer: keepPer}
}

// AutoMigrate creates or updates the skill_versions table.
func (s *VersionStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&VersionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate skill_versions: %w", err)
	}
	return nil
}

// Record appends a version record and prunes the skill's history down to
// the retention count. Re-recording an already-known (skillID, hash) pair
// is a no-op returning the existing record.
func (s *VersionStore) Record(rec *VersionRecord) (*VersionRecord, error) {
	existing, err := s.Get(rec.SkillID, rec.ContentHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("create version record: %w", err)
	}
	if err := s.prune(rec.SkillID); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get retrieves a version record by (skillID, contentHash).
// Returns nil, nil if no record exists.
func (s *VersionStore) Get(skillID, contentHash string) (*VersionRecord, error) {
	var rec VersionRecord
	err := s.db.Where("skill_id = ? AND content_hash = ?", skillID, contentHash).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get version record: %w", err)
	}
	return &rec, nil
}

// Latest returns the most recently recorded version for a skill.
// Returns nil, nil if the skill has no history.
func (s *VersionStore) Latest(skillID string) (*VersionRecord, error) {
	var rec VersionRecord
	err := s.db.Where("skill_id = ?", skillID).Order("recorded_at DESC").First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest version: %w", err)
	}
	return &rec, nil
}

// List returns a skill's version history, newest first.
func (s *VersionStore) List(skillID string) ([]VersionRecord, error) {
	var records []VersionRecord
	if err := s.db.Where("skill_id = ?", skillID).Order("recorded_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list version records: %w", err)
	}
	return records, nil
}

// prune deletes all but the most recent keepPer records for a skill.
func (s *VersionStore) prune(skillID string) error {
	var keepIDs []string
	err := s.db.Model(&VersionRecord{}).
		Where("skill_id = ?", skillID).
		Order("recorded_at DESC").
		Limit(s.keepPer).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return fmt.Errorf("prune version records: %w", err)
	}

	result := s.db.Where("skill_id = ? AND id NOT IN ?", skillID, keepIDs).Delete(&VersionRecord{})
	if result.Error != nil {
		return fmt.Errorf("prune version records: %w", result.Error)
	}
	return nil
}

// HashContent returns the canonical content hash used for version records.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
