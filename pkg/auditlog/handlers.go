package auditlog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smith-horn/skillsmith/pkg/authz"
)

// NewRouter creates a chi router with the audit API routes.
func NewRouter(logger *Logger) chi.Router {
	r := chi.NewRouter()
	r.Get("/entries", queryHandler(logger))
	r.Get("/export", exportHandler(logger))
	r.Post("/cleanup", cleanupHandler(logger))
	return r
}

// queryHandler lists audit entries, newest first.
// GET /entries?eventType=...&resource=...&since=...&until=...&limit=...
func queryHandler(logger *Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := authz.SessionFromContext(r.Context())
		if err := authz.Require(session, authz.PermAuditRead); err != nil {
			writeTypedError(w, err)
			return
		}

		f := Filter{
			EventType: r.URL.Query().Get("eventType"),
			Resource:  r.URL.Query().Get("resource"),
		}
		if v := r.URL.Query().Get("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since timestamp: %v", err))
				return
			}
			f.Since = &t
		}
		if v := r.URL.Query().Get("until"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid until timestamp: %v", err))
				return
			}
			f.Until = &t
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				f.Limit = n
			}
		}

		entries, err := logger.Query(f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query audit entries: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, EntryList{Entries: entries, TotalSize: len(entries)})
	}
}

// exportHandler streams the full audit dump for SIEM ingestion.
// GET /export
func exportHandler(logger *Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := authz.SessionFromContext(r.Context())
		if err := authz.Require(session, authz.PermAuditRead); err != nil {
			writeTypedError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-export.json"`)
		if err := logger.Export(w); err != nil {
			// Headers are already out; log-side reporting only.
			return
		}
	}
}

// cleanupHandler triggers a retention purge.
// POST /cleanup {"retentionDays": 90}
//
// Retention parameters are compliance-sensitive: fractional values are
// rejected here, before any int conversion could round them.
func cleanupHandler(logger *Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := authz.SessionFromContext(r.Context())
		if err := authz.Require(session, authz.PermAuditManage); err != nil {
			writeTypedError(w, err)
			return
		}

		var body struct {
			RetentionDays json.Number `json:"retentionDays"`
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		days, err := body.RetentionDays.Int64()
		if err != nil {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("retentionDays must be a positive integer, got %s", body.RetentionDays))
			return
		}

		deleted, err := logger.CleanupOldLogs(int(days))
		if err != nil {
			writeTypedError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"deletedCount":  deleted,
			"retentionDays": days,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeTypedError maps typed errors to HTTP statuses, preserving the code.
func writeTypedError(w http.ResponseWriter, err error) {
	code := authz.CodeOf(err)
	if code == "" {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, authz.HTTPStatus(code), map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}
