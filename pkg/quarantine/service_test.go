package quarantine

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/smith-horn/skillsmith/pkg/auditlog"
	"github.com/smith-horn/skillsmith/pkg/authz"
)

type testHarness struct {
	service  *Service
	store    *Store
	audit    *auditlog.Store
	released []*Entry
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())

	auditStore := auditlog.NewStore(db)
	require.NoError(t, auditStore.AutoMigrate())

	h := &testHarness{store: store, audit: auditStore}
	h.service = NewService(store, nil, auditlog.NewLogger(auditStore, nil), func(e *Entry) {
		h.released = append(h.released, e)
	}, nil)
	return h
}

func reviewer(id string, perms ...string) *authz.Session {
	return &authz.Session{
		UserID:      id,
		Email:       id + "@example.com",
		Permissions: perms,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func (h *testHarness) createEntry(t *testing.T, severity Severity) *Entry {
	t.Helper()
	entry, err := h.service.Create(CreateRequest{
		SkillID:     "acme/deploy",
		ContentHash: "abc123",
		Severity:    severity,
		Reason:      "scanner flagged content",
		Findings:    []string{"jailbreak at line 1"},
		RiskScore:   80,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, entry.Status)
	return entry
}

func (h *testHarness) auditEvents(t *testing.T, eventType string) []auditlog.Entry {
	t.Helper()
	entries, err := auditlog.NewLogger(h.audit, nil).Query(auditlog.Filter{EventType: eventType})
	require.NoError(t, err)
	return entries
}

func TestCreate_IdempotentWhilePending(t *testing.T) {
	h := newTestHarness(t)

	first := h.createEntry(t, SeverityHigh)
	second := h.createEntry(t, SeverityHigh)
	assert.Equal(t, first.ID, second.ID, "a pending entry for the same content should be reused")

	assert.Len(t, h.auditEvents(t, auditlog.EventQuarantineCreated), 1)
}

func TestReview_SingleApprovalResolvesNonMalicious(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityHigh)

	resolved, err := h.service.Review(reviewer("alice", authz.PermQuarantineReview), entry.ID, DecisionApprove, "looks fine")
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, resolved.Status)
	assert.Equal(t, "alice", resolved.ResolvedBy)
	require.Len(t, h.released, 1)
	assert.Equal(t, entry.ID, h.released[0].ID)
}

func TestReview_MaliciousNeedsTwoDistinctApprovals(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityMalicious)

	perms := []string{authz.PermQuarantineReview, authz.PermQuarantineReviewMalicious}

	afterFirst, err := h.service.Review(reviewer("alice", perms...), entry.ID, DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, afterFirst.Status, "one approval must not release a malicious entry")
	assert.Empty(t, h.released)

	afterSecond, err := h.service.Review(reviewer("bob", perms...), entry.ID, DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, afterSecond.Status)
	assert.Equal(t, "alice,bob", afterSecond.ResolvedBy)

	require.Len(t, h.released, 1)

	releases := h.auditEvents(t, auditlog.EventSkillReleased)
	require.Len(t, releases, 1)
	assert.ElementsMatch(t, []any{"alice", "bob"}, releases[0].Metadata["approvedBy"])

	for _, a := range afterSecond.Approvals {
		assert.NotNil(t, a.CompletedAt, "resolving an entry must stamp completion on every vote")
	}
	reloaded, err := h.service.Get(entry.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Approvals, 2)
	for _, a := range reloaded.Approvals {
		assert.NotNil(t, a.CompletedAt, "completion stamps must be persisted")
	}
}

// interleaveVote arranges for a vote to land in the store between the
// duplicate pre-check and the write of the review under test, the way a
// second service instance sharing the database would.
func (h *testHarness) interleaveVote(t *testing.T, quarantineID, reviewerID string) {
	t.Helper()
	done := false
	h.service.now = func() time.Time {
		if !done {
			done = true
			require.NoError(t, h.store.AddApproval(&ApprovalRecord{
				ID:            reviewerID + "-elsewhere",
				QuarantineID:  quarantineID,
				ReviewerID:    reviewerID,
				ReviewerEmail: reviewerID + "@example.com",
				Decision:      string(DecisionApprove),
				CreatedAt:     time.Now().UTC(),
			}))
		}
		return time.Now()
	}
}

func TestReview_ConsensusCountsVotesFromOtherInstances(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityMalicious)

	// Bob's approval lands on another instance while alice's review is in
	// flight. Her write is the second distinct vote, so the entry must
	// resolve rather than stay pending on the count read at entry load.
	h.interleaveVote(t, entry.ID, "bob")

	perms := []string{authz.PermQuarantineReview, authz.PermQuarantineReviewMalicious}
	resolved, err := h.service.Review(reviewer("alice", perms...), entry.ID, DecisionApprove, "")
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, resolved.Status, "consensus must count votes written since the entry was loaded")
	require.Len(t, resolved.Approvals, 2)
	reviewers := []string{resolved.Approvals[0].ReviewerID, resolved.Approvals[1].ReviewerID}
	assert.ElementsMatch(t, []string{"alice", "bob"}, reviewers)
	require.Len(t, h.released, 1)
	assert.Equal(t, entry.ID, h.released[0].ID)
}

func TestReview_ConcurrentDuplicateVoteRejected(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityMalicious)

	// Alice votes on another instance after this instance's duplicate
	// pre-check has already passed. The unique index catches the second
	// write, and the caller must see a duplicate review, not a driver
	// error.
	h.interleaveVote(t, entry.ID, "alice")

	perms := []string{authz.PermQuarantineReview, authz.PermQuarantineReviewMalicious}
	_, err := h.service.Review(reviewer("alice", perms...), entry.ID, DecisionApprove, "")
	require.Error(t, err)
	assert.Equal(t, authz.CodeAlreadyReviewed, authz.CodeOf(err))
	assert.Contains(t, err.Error(), "alice")
	assert.Regexp(t, `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`, err.Error())

	got, err := h.service.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	require.Len(t, got.Approvals, 1, "only the first vote may stand")
}

func TestReview_DuplicateReviewerRejected(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityMalicious)

	perms := []string{authz.PermQuarantineReview, authz.PermQuarantineReviewMalicious}
	_, err := h.service.Review(reviewer("alice", perms...), entry.ID, DecisionApprove, "")
	require.NoError(t, err)

	_, err = h.service.Review(reviewer("alice", perms...), entry.ID, DecisionApprove, "")
	require.Error(t, err)
	assert.Equal(t, authz.CodeAlreadyReviewed, authz.CodeOf(err))
	assert.Contains(t, err.Error(), "alice")
	assert.Regexp(t, `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`, err.Error(), "error should carry the prior review timestamp")
}

func TestReview_RejectIsImmediatelyTerminal(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityMalicious)

	perms := []string{authz.PermQuarantineReview, authz.PermQuarantineReviewMalicious}
	resolved, err := h.service.Review(reviewer("alice", perms...), entry.ID, DecisionReject, "contains exfiltration")
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, resolved.Status)
	assert.Empty(t, h.released)

	_, err = h.service.Review(reviewer("bob", perms...), entry.ID, DecisionApprove, "")
	require.Error(t, err)
	assert.Equal(t, authz.CodeInvalidInput, authz.CodeOf(err))
}

func TestReview_MaliciousRequiresElevatedPermission(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityMalicious)

	_, err := h.service.Review(reviewer("alice", authz.PermQuarantineReview), entry.ID, DecisionApprove, "")
	require.Error(t, err)
	assert.Equal(t, authz.CodeInsufficientPermissions, authz.CodeOf(err))
	assert.Contains(t, err.Error(), authz.PermQuarantineReviewMalicious)

	got, err := h.service.Get(entry.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Approvals, "a denied review must not record a vote")
}

func TestReview_StaleApprovalsAreDiscarded(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityMalicious)

	perms := []string{authz.PermQuarantineReview, authz.PermQuarantineReviewMalicious}
	_, err := h.service.Review(reviewer("alice", perms...), entry.ID, DecisionApprove, "")
	require.NoError(t, err)

	// Bob shows up 25 hours later. Alice's approval has gone stale, so
	// the review starts over with bob as the only vote.
	h.service.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	afterReset, err := h.service.Review(reviewer("bob", perms...), entry.ID, DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, afterReset.Status)
	require.Len(t, afterReset.Approvals, 1)
	assert.Equal(t, "bob", afterReset.Approvals[0].ReviewerID)
	assert.Contains(t, afterReset.Notice, "alice", "the next reviewer must be told the review restarted")

	timeouts := h.auditEvents(t, auditlog.EventApprovalTimeout)
	require.Len(t, timeouts, 1, "exactly one timeout event per reset")
	assert.ElementsMatch(t, []any{"alice"}, timeouts[0].Metadata["discardedReviewers"])

	// Alice can vote again after the reset.
	resolved, err := h.service.Review(reviewer("alice", perms...), entry.ID, DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, resolved.Status)
}

func TestReview_UnknownEntry(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.service.Review(reviewer("alice", authz.PermQuarantineReview), "missing", DecisionApprove, "")
	require.Error(t, err)
	assert.Equal(t, authz.CodeNotFound, authz.CodeOf(err))
}

func TestReview_InvalidDecision(t *testing.T) {
	h := newTestHarness(t)
	entry := h.createEntry(t, SeverityLow)

	_, err := h.service.Review(reviewer("alice", authz.PermQuarantineReview), entry.ID, Decision("maybe"), "")
	require.Error(t, err)
	assert.Equal(t, authz.CodeInvalidInput, authz.CodeOf(err))
}

func TestLoadPolicy_Defaults(t *testing.T) {
	policy, err := LoadPolicy("/nonexistent/policy.yaml")
	require.NoError(t, err)

	assert.Equal(t, 2, policy.RequiredApprovals(SeverityMalicious))
	assert.Equal(t, 1, policy.RequiredApprovals(SeverityCritical))
	assert.Equal(t, 24*time.Hour, policy.StalenessWindow())
}
