package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func newVersionRecord(skillID, content string) *VersionRecord {
	return &VersionRecord{
		ID:          uuid.New().String(),
		SkillID:     skillID,
		ContentHash: HashContent(content),
		Semver:      "1.0.0",
	}
}

func TestVersionStore_RecordAndLatest(t *testing.T) {
	store := NewVersionStore(newTestDB(t), 0)
	require.NoError(t, store.AutoMigrate())

	first := newVersionRecord("acme/deploy", "version one")
	_, err := store.Record(first)
	require.NoError(t, err)

	second := newVersionRecord("acme/deploy", "version two")
	second.RecordedAt = time.Now().Add(time.Second)
	_, err = store.Record(second)
	require.NoError(t, err)

	latest, err := store.Latest("acme/deploy")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ContentHash, latest.ContentHash)

	history, err := store.List("acme/deploy")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestVersionStore_RecordIdempotentPerHash(t *testing.T) {
	store := NewVersionStore(newTestDB(t), 0)
	require.NoError(t, store.AutoMigrate())

	rec := newVersionRecord("acme/deploy", "same content")
	created, err := store.Record(rec)
	require.NoError(t, err)

	dup := newVersionRecord("acme/deploy", "same content")
	again, err := store.Record(dup)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID, "re-recording the same hash should return the existing record")

	history, err := store.List("acme/deploy")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestVersionStore_PrunesToRetentionCount(t *testing.T) {
	store := NewVersionStore(newTestDB(t), 3)
	require.NoError(t, store.AutoMigrate())

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := newVersionRecord("acme/deploy", fmt.Sprintf("content %d", i))
		rec.RecordedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.Record(rec)
		require.NoError(t, err)
	}

	history, err := store.List("acme/deploy")
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Oldest two were pruned, newest survives.
	assert.Equal(t, HashContent("content 4"), history[0].ContentHash)
	assert.Equal(t, HashContent("content 2"), history[2].ContentHash)
}

func TestVersionStore_LatestUnknownSkill(t *testing.T) {
	store := NewVersionStore(newTestDB(t), 0)
	require.NoError(t, store.AutoMigrate())

	latest, err := store.Latest("nobody/nothing")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestAdvisoryStore_WithdrawHidesFromActiveList(t *testing.T) {
	store := NewAdvisoryStore(newTestDB(t))
	require.NoError(t, store.AutoMigrate())

	kept, err := store.Create(&AdvisoryRecord{
		SkillID:          "acme/deploy",
		Severity:         "high",
		Title:            "Credential exfiltration in v1.2.0",
		AffectedVersions: []string{"<=1.2.0"},
		PatchedVersions:  []string{"1.2.1"},
	})
	require.NoError(t, err)

	pulled, err := store.Create(&AdvisoryRecord{
		SkillID:  "acme/deploy",
		Severity: "low",
		Title:    "Published in error",
	})
	require.NoError(t, err)

	withdrawn, err := store.Withdraw(pulled.ID)
	require.NoError(t, err)
	require.NotNil(t, withdrawn.WithdrawnAt)

	active, err := store.ListActive("acme/deploy")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, kept.ID, active[0].ID)

	// Withdrawn advisories remain retrievable by ID.
	got, err := store.Get(pulled.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.WithdrawnAt)
}

func TestAdvisoryStore_WithdrawIsIdempotent(t *testing.T) {
	store := NewAdvisoryStore(newTestDB(t))
	require.NoError(t, store.AutoMigrate())

	rec, err := store.Create(&AdvisoryRecord{SkillID: "acme/deploy", Severity: "medium", Title: "x"})
	require.NoError(t, err)

	first, err := store.Withdraw(rec.ID)
	require.NoError(t, err)
	second, err := store.Withdraw(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, first.WithdrawnAt.Unix(), second.WithdrawnAt.Unix())
}
