// Package authz provides session validation and permission checks for the
// trust pipeline. Sessions arrive pre-authenticated from an external auth
// collaborator; this package performs no credential verification, only
// expiry and permission membership checks.
package authz

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Permission names used by the trust pipeline.
const (
	PermQuarantineReview          = "quarantine:review"
	PermQuarantineReviewMalicious = "quarantine:review_malicious"
	PermAuditRead                 = "audit:read"
	PermAuditManage               = "audit:manage"

	// PermAdmin implies every other permission.
	PermAdmin = "admin"
)

// Session is an authenticated session supplied by the external auth
// collaborator. Read-only to this core.
type Session struct {
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	Permissions    []string  `json:"permissions"`
	SessionID      string    `json:"sessionId"`
	ExpiresAt      time.Time `json:"expiresAt"`
	OrganizationID string    `json:"organizationId,omitempty"`
}

// Require validates the session and checks that it holds the given
// permission. Every mutating call in the pipeline goes through here.
func Require(s *Session, permission string) error {
	if s == nil || s.UserID == "" {
		return NewError(CodeUnauthorized, "no authenticated session")
	}
	if !s.ExpiresAt.After(time.Now()) {
		return NewError(CodeSessionExpired, "session has expired")
	}

	perms := mapset.NewSet(s.Permissions...)
	if perms.Contains(PermAdmin) || perms.Contains(permission) {
		return nil
	}

	return NewError(CodeInsufficientPermissions,
		fmt.Sprintf("missing permission %q", permission))
}

// sessionCtxKey is an unexported type used as the context key for Session.
type sessionCtxKey struct{}

// WithSession returns a new context with the given session attached.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext retrieves the session from the context. Returns nil
// when no session is set.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionCtxKey{}).(*Session)
	return s
}
