package quarantine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smith-horn/skillsmith/pkg/authz"
)

// NewRouter creates a chi router with the quarantine API routes.
func NewRouter(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Get("/entries", listHandler(service))
	r.Get("/entries/{id}", getHandler(service))
	r.Post("/entries/{id}/review", reviewHandler(service))
	return r
}

// listHandler lists quarantine entries, newest first.
// GET /entries?status=...&skillId=...&limit=...
func listHandler(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := authz.SessionFromContext(r.Context())
		if err := authz.Require(session, authz.PermQuarantineReview); err != nil {
			writeTypedError(w, err)
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		entries, err := service.List(
			Status(r.URL.Query().Get("status")),
			r.URL.Query().Get("skillId"),
			limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list quarantine entries: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"entries":   entries,
			"totalSize": len(entries),
		})
	}
}

// getHandler retrieves one entry with its review history.
// GET /entries/{id}
func getHandler(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := authz.SessionFromContext(r.Context())
		if err := authz.Require(session, authz.PermQuarantineReview); err != nil {
			writeTypedError(w, err)
			return
		}

		entry, err := service.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeTypedError(w, err)
			return
		}
		if entry == nil {
			writeError(w, http.StatusNotFound, "quarantine entry not found")
			return
		}

		writeJSON(w, http.StatusOK, entry)
	}
}

// reviewRequest is the body of a review submission.
type reviewRequest struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// reviewHandler records the caller's decision on an entry. Permission
// checks, double-vote detection, and consensus live in the service.
// POST /entries/{id}/review
func reviewHandler(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := authz.SessionFromContext(r.Context())

		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		entry, err := service.Review(session, chi.URLParam(r, "id"), req.Decision, req.Reason)
		if err != nil {
			writeTypedError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, entry)
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
