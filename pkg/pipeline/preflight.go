package pipeline

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/smith-horn/skillsmith/pkg/auditlog"
	"github.com/smith-horn/skillsmith/pkg/quarantine"
)

// Diagnosis enumerates the startup preflight outcomes. Callers switch on
// the value exhaustively; new variants are additions to this list, not
// free-form strings.
type Diagnosis string

const (
	DiagnosisOK                  Diagnosis = "ok"
	DiagnosisDatabaseUnreachable Diagnosis = "database-unreachable"
	DiagnosisSchemaMissing       Diagnosis = "schema-missing"
	DiagnosisClockSkew           Diagnosis = "clock-skew"
)

// clockSkewTolerance is how far into the future a persisted timestamp may
// sit before preflight refuses to start.
const clockSkewTolerance = 5 * time.Minute

// PreflightResult carries the diagnosis plus the underlying detail for
// the operator.
type PreflightResult struct {
	Diagnosis Diagnosis
	Detail    string
}

// Preflight verifies the service can operate against the given database
// before accepting traffic. It distinguishes an unreachable database, a
// reachable database missing the schema, and persisted timestamps ahead
// of the local clock.
func Preflight(db *gorm.DB) PreflightResult {
	sqlDB, err := db.DB()
	if err != nil {
		return PreflightResult{DiagnosisDatabaseUnreachable, err.Error()}
	}
	if err := sqlDB.Ping(); err != nil {
		return PreflightResult{DiagnosisDatabaseUnreachable, err.Error()}
	}

	migrator := db.Migrator()
	for _, table := range []string{
		quarantine.EntryRecord{}.TableName(),
		quarantine.ApprovalRecord{}.TableName(),
		auditlog.EntryRecord{}.TableName(),
	} {
		if !migrator.HasTable(table) {
			return PreflightResult{DiagnosisSchemaMissing, fmt.Sprintf("table %s does not exist", table)}
		}
	}

	var latest auditlog.EntryRecord
	err = db.Order("created_at DESC").First(&latest).Error
	if err == nil && latest.CreatedAt.After(time.Now().Add(clockSkewTolerance)) {
		return PreflightResult{
			DiagnosisClockSkew,
			fmt.Sprintf("audit entry %s is %s ahead of local time", latest.ID, time.Until(latest.CreatedAt).Round(time.Second)),
		}
	}

	return PreflightResult{Diagnosis: DiagnosisOK}
}
