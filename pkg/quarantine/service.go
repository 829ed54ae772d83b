package quarantine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smith-horn/skillsmith/pkg/auditlog"
	"github.com/smith-horn/skillsmith/pkg/authz"
)

// ReleaseFunc is invoked when an entry reaches consensus and the skill
// can be released back into distribution.
type ReleaseFunc func(entry *Entry)

// Service implements the quarantine review workflow on top of the store.
type Service struct {
	store   *Store
	policy  *Policy
	audit   *auditlog.Logger
	release ReleaseFunc
	log     *slog.Logger

	now func() time.Time
}

// NewService creates a quarantine Service. audit and release may be nil;
// a nil policy means DefaultPolicy.
func NewService(store *Store, policy *Policy, audit *auditlog.Logger, release ReleaseFunc, log *slog.Logger) *Service {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   store,
		policy:  policy,
		audit:   audit,
		release: release,
		log:     log,
		now:     time.Now,
	}
}

// CreateRequest describes a skill being placed into quarantine.
type CreateRequest struct {
	SkillID     string
	ContentHash string
	Severity    Severity
	Reason      string
	Findings    []string
	RiskScore   int
}

// Create places a skill into quarantine. If a pending entry already
// exists for the same (skill, content hash) pair, that entry is returned
// instead of creating a duplicate.
func (s *Service) Create(req CreateRequest) (*Entry, error) {
	if req.SkillID == "" || req.ContentHash == "" {
		return nil, authz.NewError(authz.CodeInvalidInput, "skillId and contentHash are required")
	}

	existing, err := s.store.GetPendingForSkill(req.SkillID, req.ContentHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		approvals, err := s.store.Approvals(existing.ID)
		if err != nil {
			return nil, err
		}
		return recordToEntry(existing, approvals), nil
	}

	rec := &EntryRecord{
		ID:          uuid.New().String(),
		SkillID:     req.SkillID,
		ContentHash: req.ContentHash,
		Severity:    string(req.Severity),
		Status:      string(StatusPending),
		Reason:      req.Reason,
		Findings:    req.Findings,
		RiskScore:   req.RiskScore,
	}
	if err := s.store.Create(rec); err != nil {
		return nil, err
	}

	s.log.Info("skill quarantined",
		"quarantineId", rec.ID,
		"skillId", rec.SkillID,
		"severity", rec.Severity,
		"riskScore", rec.RiskScore)
	s.auditEvent(auditlog.EventQuarantineCreated, "system", rec.ID, auditlog.ResultSuccess, map[string]any{
		"skillId":   rec.SkillID,
		"severity":  rec.Severity,
		"riskScore": rec.RiskScore,
	})

	return recordToEntry(rec, nil), nil
}

// Get retrieves an entry with its approvals. Returns nil, nil if not found.
func (s *Service) Get(id string) (*Entry, error) {
	rec, approvals, err := s.store.Get(id)
	if err != nil || rec == nil {
		return nil, err
	}
	return recordToEntry(rec, approvals), nil
}

// List returns entries filtered by status and/or skill ID, newest first.
func (s *Service) List(status Status, skillID string, limit int) ([]Entry, error) {
	records, err := s.store.List(status, skillID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(records))
	for i := range records {
		entries = append(entries, *recordToEntry(&records[i], nil))
	}
	return entries, nil
}

// Review records a reviewer's decision on a quarantine entry.
//
// A rejection resolves the entry immediately. An approval resolves it
// only once the severity's required number of distinct reviewers have
// approved; until then the entry stays pending. If the earliest
// unresolved approval is older than the policy's staleness window, the
// partial approval set is discarded before the new decision is counted.
func (s *Service) Review(session *authz.Session, id string, decision Decision, reason string) (*Entry, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, authz.NewError(authz.CodeInvalidInput, fmt.Sprintf("unknown decision %q", decision))
	}

	rec, approvals, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, authz.NewError(authz.CodeNotFound, fmt.Sprintf("quarantine entry %s not found", id))
	}

	if err := s.requireReviewPermission(session, Severity(rec.Severity)); err != nil {
		s.auditEvent(auditlog.EventQuarantineReviewed, reviewerID(session), rec.ID, auditlog.ResultDenied, map[string]any{
			"decision": string(decision),
			"error":    err.Error(),
		})
		return nil, err
	}

	if Status(rec.Status) != StatusPending {
		return nil, authz.NewError(authz.CodeInvalidInput,
			fmt.Sprintf("quarantine entry %s is already %s", id, rec.Status))
	}

	approvals, discarded, err := s.resetIfStale(rec, approvals)
	if err != nil {
		return nil, err
	}

	prior, err := s.store.ApprovalByReviewer(rec.ID, session.UserID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return nil, authz.NewError(authz.CodeAlreadyReviewed,
			fmt.Sprintf("reviewer %s already reviewed this entry at %s",
				session.UserID, prior.CreatedAt.UTC().Format(time.RFC3339)))
	}

	approval := &ApprovalRecord{
		ID:            uuid.New().String(),
		QuarantineID:  rec.ID,
		ReviewerID:    session.UserID,
		ReviewerEmail: session.Email,
		Decision:      string(decision),
		Reason:        reason,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.AddApproval(approval); err != nil {
		// The unique index can fire when the same reviewer votes twice
		// concurrently, past the pre-check above. Surface that as a
		// duplicate review, not a driver error.
		if dup, dupErr := s.store.ApprovalByReviewer(rec.ID, session.UserID); dupErr == nil && dup != nil {
			return nil, authz.NewError(authz.CodeAlreadyReviewed,
				fmt.Sprintf("reviewer %s already reviewed this entry at %s",
					session.UserID, dup.CreatedAt.UTC().Format(time.RFC3339)))
		}
		return nil, err
	}

	// Recount from the store, not the set read at the top of the call:
	// a concurrent reviewer on another instance may have voted between
	// our read and our write, and consensus must see that vote.
	approvals, err = s.store.Approvals(rec.ID)
	if err != nil {
		return nil, err
	}

	s.auditEvent(auditlog.EventApprovalRecorded, session.UserID, rec.ID, auditlog.ResultSuccess, map[string]any{
		"decision": string(decision),
		"severity": rec.Severity,
	})

	if decision == DecisionReject {
		return s.resolve(rec, approvals, StatusRejected, session.UserID)
	}

	approvers := distinctApprovers(approvals)
	required := s.policy.RequiredApprovals(Severity(rec.Severity))
	if len(approvers) < required {
		s.log.Info("quarantine approval recorded, awaiting consensus",
			"quarantineId", rec.ID,
			"approvals", len(approvers),
			"required", required)
		entry := recordToEntry(rec, approvals)
		if len(discarded) > 0 {
			entry.Notice = fmt.Sprintf("stale approvals from %s were discarded; the review has started over",
				strings.Join(discarded, ", "))
		}
		return entry, nil
	}

	return s.resolve(rec, approvals, StatusApproved, strings.Join(approvers, ","))
}

// resolve moves an entry to a terminal status and fires the release
// callback for approvals.
func (s *Service) resolve(rec *EntryRecord, approvals []ApprovalRecord, status Status, resolvedBy string) (*Entry, error) {
	if err := s.store.Resolve(rec.ID, status, resolvedBy); err != nil {
		return nil, err
	}
	rec.Status = string(status)
	rec.ResolvedBy = resolvedBy
	now := s.now().UTC()
	rec.ResolvedAt = &now

	if err := s.store.CompleteApprovals(rec.ID, now); err != nil {
		return nil, err
	}
	for i := range approvals {
		approvals[i].CompletedAt = &now
	}

	s.log.Info("quarantine entry resolved",
		"quarantineId", rec.ID,
		"skillId", rec.SkillID,
		"status", rec.Status,
		"resolvedBy", resolvedBy)
	s.auditEvent(auditlog.EventQuarantineReviewed, resolvedBy, rec.ID, auditlog.ResultSuccess, map[string]any{
		"skillId": rec.SkillID,
		"status":  rec.Status,
	})

	entry := recordToEntry(rec, approvals)
	if status == StatusApproved {
		s.auditEvent(auditlog.EventSkillReleased, resolvedBy, rec.SkillID, auditlog.ResultSuccess, map[string]any{
			"quarantineId": rec.ID,
			"approvedBy":   distinctApprovers(approvals),
		})
		if s.release != nil {
			s.release(entry)
		}
	}
	return entry, nil
}

// resetIfStale discards a partial approval set whose earliest decision
// has aged past the staleness window, emitting a single timeout audit
// event naming the discarded reviewers. The discarded reviewer IDs are
// returned so the caller can tell the next reviewer the review restarted.
func (s *Service) resetIfStale(rec *EntryRecord, approvals []ApprovalRecord) ([]ApprovalRecord, []string, error) {
	if len(approvals) == 0 {
		return approvals, nil, nil
	}
	oldest := approvals[0].CreatedAt
	if s.now().Sub(oldest) <= s.policy.StalenessWindow() {
		return approvals, nil, nil
	}

	discarded := make([]string, 0, len(approvals))
	for _, a := range approvals {
		discarded = append(discarded, a.ReviewerID)
	}
	if _, err := s.store.DeleteApprovals(rec.ID); err != nil {
		return nil, nil, err
	}

	s.log.Warn("quarantine approvals expired",
		"quarantineId", rec.ID,
		"discardedReviewers", discarded)
	s.auditEvent(auditlog.EventApprovalTimeout, "system", rec.ID, auditlog.ResultSuccess, map[string]any{
		"skillId":            rec.SkillID,
		"discardedReviewers": discarded,
		"stalenessWindow":    s.policy.StalenessWindow().String(),
	})
	return nil, discarded, nil
}

// requireReviewPermission checks the base review permission and, for
// malicious entries, the elevated one.
func (s *Service) requireReviewPermission(session *authz.Session, severity Severity) error {
	if err := authz.Require(session, authz.PermQuarantineReview); err != nil {
		return err
	}
	if severity == SeverityMalicious {
		if err := authz.Require(session, authz.PermQuarantineReviewMalicious); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) auditEvent(eventType, actor, resource, result string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Log(auditlog.Entry{
		EventType: eventType,
		Actor:     actor,
		Resource:  resource,
		Result:    result,
		Metadata:  metadata,
	})
}

func distinctApprovers(approvals []ApprovalRecord) []string {
	var approvers []string
	seen := map[string]bool{}
	for _, a := range approvals {
		if Decision(a.Decision) != DecisionApprove || seen[a.ReviewerID] {
			continue
		}
		seen[a.ReviewerID] = true
		approvers = append(approvers, a.ReviewerID)
	}
	return approvers
}

func reviewerID(session *authz.Session) string {
	if session == nil {
		return "anonymous"
	}
	return session.UserID
}
