package auditlog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smith-horn/skillsmith/pkg/authz"
)

// Logger is the audit sink every trust pipeline component writes through.
// Log is best-effort: a failed audit write must never abort the operation
// it records, so failures are logged and swallowed. Query, cleanup, and
// export surface their errors normally.
type Logger struct {
	store *Store
	log   *slog.Logger
}

// NewLogger creates a Logger on top of the given store.
func NewLogger(store *Store, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{store: store, log: log}
}

// Log appends an audit entry, assigning its ID and timestamp.
// Log-and-continue: the returned entry ID is empty when the write failed.
func (l *Logger) Log(entry Entry) string {
	rec := &EntryRecord{
		ID:        uuid.New().String(),
		EventType: entry.EventType,
		Actor:     entry.Actor,
		Resource:  entry.Resource,
		Action:    entry.Action,
		Result:    entry.Result,
		Metadata:  entry.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.Append(rec); err != nil {
		l.log.Error("audit write failed", "eventType", entry.EventType, "resource", entry.Resource, "error", err)
		return ""
	}
	return rec.ID
}

// Query returns entries matching the filter, newest first.
func (l *Logger) Query(f Filter) ([]Entry, error) {
	records, err := l.store.Query(f)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(records))
	for i, rec := range records {
		entries[i] = recordToEntry(rec)
	}
	return entries, nil
}

// CleanupOldLogs deletes entries older than retentionDays and appends
// exactly one audit entry documenting the purge, so retention actions are
// themselves inspectable.
//
// Retention parameters are compliance-sensitive: a non-positive value is a
// fail-fast precondition violation, never silently clamped.
func (l *Logger) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, authz.NewError(authz.CodeInvalidInput,
			fmt.Sprintf("retentionDays must be a positive integer, got %d", retentionDays))
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := l.store.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, err
	}

	l.Log(Entry{
		EventType: EventRetentionPurge,
		Actor:     "system:retention",
		Resource:  "audit_log",
		Action:    "purge",
		Result:    ResultSuccess,
		Metadata: map[string]any{
			"retentionDays": retentionDays,
			"deletedCount":  deleted,
			"cutoff":        cutoff.Format(time.RFC3339),
		},
	})

	return deleted, nil
}

// Export writes a full serialized dump of all audit entries as a JSON
// array, oldest first, for downstream SIEM ingestion. Conversion to
// specific downstream formats is the exporter's responsibility.
func (l *Logger) Export(w io.Writer) error {
	records, err := l.store.All()
	if err != nil {
		return err
	}
	entries := make([]Entry, len(records))
	for i, rec := range records {
		entries[i] = recordToEntry(rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode audit export: %w", err)
	}
	return nil
}
