package complaints

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
	"github.com/civicstack/grievance-backend/internal/services/auth"
	"github.com/civicstack/grievance-backend/internal/services/classify"
)

var (
	owner      = auth.Identity{UserID: 1, Role: enums.RoleUser}
	deptAdmin  = auth.Identity{UserID: 900, Role: enums.RoleDepartmentAdmin, Department: "Sanitation"}
	otherAdmin = auth.Identity{UserID: 901, Role: enums.RoleDepartmentAdmin, Department: "Roads"}
	superAdmin = auth.Identity{UserID: 999, Role: enums.RoleSuperAdmin}
)

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())
	if created.Status != enums.StatusPending {
		t.Fatalf("new complaint should be PENDING, got %s", created.Status)
	}
	if created.Department != "Sanitation" {
		t.Fatalf("unexpected department: %s", created.Department)
	}

	submitted, err := env.svc.Submit(ctx, owner.UserID, created.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != enums.StatusSubmitted || !submitted.IsSent || submitted.SubmittedAt == nil {
		t.Fatalf("unexpected submit result: %+v", submitted)
	}
	if submitted.AssignedAdminID == nil || *submitted.AssignedAdminID != 900 {
		t.Fatalf("expected department admin assignment, got %v", submitted.AssignedAdminID)
	}

	if _, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{
		NextStatus: enums.StatusInProgress,
		Reason:     "crew dispatched",
	}); err != nil {
		t.Fatalf("move to IN_PROGRESS: %v", err)
	}
	if _, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{
		NextStatus:   enums.StatusResolved,
		Reason:       "bin emptied",
		InternalNote: "verified with site photo",
	}); err != nil {
		t.Fatalf("move to RESOLVED: %v", err)
	}

	reopened, err := env.svc.Reopen(ctx, owner.UserID, created.ID, "bin overflowing again next morning")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != enums.StatusReopened || reopened.ReopenCount != 1 {
		t.Fatalf("unexpected reopen state: status=%s count=%d", reopened.Status, reopened.ReopenCount)
	}
	if reopened.UserResponse.Status != enums.UserResponseRejected {
		t.Fatalf("reopen should record a rejected response, got %s", reopened.UserResponse.Status)
	}

	if _, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{
		NextStatus: enums.StatusInProgress,
		Reason:     "crew dispatched again",
	}); err != nil {
		t.Fatalf("second IN_PROGRESS: %v", err)
	}
	if _, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{
		NextStatus: enums.StatusResolved,
		Reason:     "schedule fixed",
	}); err != nil {
		t.Fatalf("second RESOLVED: %v", err)
	}

	closed, err := env.svc.Close(ctx, owner.UserID, created.ID, "all good now")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != enums.StatusClosed {
		t.Fatalf("expected CLOSED, got %s", closed.Status)
	}
	if closed.UserResponse.Status != enums.UserResponseAccepted || closed.UserResponse.Feedback != "all good now" {
		t.Fatalf("unexpected user response: %+v", closed.UserResponse)
	}

	timeline, err := env.svc.Timeline(ctx, owner, created.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	wantTrail := "PENDING SUBMITTED IN_PROGRESS RESOLVED REOPENED IN_PROGRESS RESOLVED CLOSED"
	if got := statusTrail(timeline.StatusLogs); got != wantTrail {
		t.Fatalf("unexpected status trail:\n got %s\nwant %s", got, wantTrail)
	}
	if len(timeline.ReopenLogs) != 1 {
		t.Fatalf("expected one reopen log, got %d", len(timeline.ReopenLogs))
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"short text", func(in *CreateInput) { in.Text = "too short" }},
		{"no images", func(in *CreateInput) { in.Images = nil }},
		{"too many images", func(in *CreateInput) {
			in.Images = []string{"a", "b", "c", "d", "e", "f"}
		}},
		{"latitude out of range", func(in *CreateInput) { in.Latitude = 91 }},
		{"longitude out of range", func(in *CreateInput) { in.Longitude = -181 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			if _, err := env.svc.Create(context.Background(), 1, in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateRateLimited(t *testing.T) {
	env := newTestEnv()
	env.limiter.allowed = false
	env.limiter.retryAfter = 42

	_, err := env.svc.Create(context.Background(), 1, validInput())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfterSec != 42 {
		t.Fatalf("expected retry_after 42, got %v", err)
	}
}

func TestCreateClassifierDownPersistsNothing(t *testing.T) {
	env := newTestEnv()
	env.clf.err = classify.ErrUnavailable

	_, err := env.svc.Create(context.Background(), 1, validInput())
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if len(env.store.complaints) != 0 {
		t.Fatalf("nothing should be persisted when the classifier is down")
	}
}

func TestCreateDuplicateDetection(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	canonical := mustCreate(t, env, 1, validInput())

	res, err := env.svc.Create(ctx, 1, validInput())
	if err != nil {
		t.Fatalf("create near-identical complaint: %v", err)
	}
	if !res.IsDuplicate {
		t.Fatalf("expected duplicate verdict")
	}
	if res.Complaint.Status != enums.StatusDuplicate {
		t.Fatalf("duplicate should be created as DUPLICATE, got %s", res.Complaint.Status)
	}
	if res.DuplicateOf == nil || *res.DuplicateOf != canonical.ID {
		t.Fatalf("duplicate should reference the canonical complaint")
	}

	dups, err := env.store.ListDuplicatesOf(ctx, canonical.ID)
	if err != nil {
		t.Fatalf("list duplicates: %v", err)
	}
	if len(dups) != 1 || dups[0] != res.Complaint.ID {
		t.Fatalf("canonical forward list should contain the duplicate, got %v", dups)
	}

	// A different user reporting the same issue is not a duplicate.
	other, err := env.svc.Create(ctx, 2, validInput())
	if err != nil {
		t.Fatalf("create from another user: %v", err)
	}
	if other.IsDuplicate {
		t.Fatalf("cross-user submissions must not be deduplicated")
	}
}

func TestCreateDuplicateLookbackWindow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	canonical := mustCreate(t, env, 1, validInput())

	// The same report filed again after the lookback window has passed is
	// a fresh complaint, not a duplicate of the old one.
	env.now = env.now.Add(8 * 24 * time.Hour)

	res, err := env.svc.Create(ctx, 1, validInput())
	if err != nil {
		t.Fatalf("create after lookback window: %v", err)
	}
	if res.IsDuplicate || res.DuplicateOf != nil {
		t.Fatalf("reports outside the lookback window must not be linked, got %+v", res)
	}
	if res.Complaint.Status != enums.StatusPending {
		t.Fatalf("expected PENDING, got %s", res.Complaint.Status)
	}

	dups, err := env.store.ListDuplicatesOf(ctx, canonical.ID)
	if err != nil {
		t.Fatalf("list duplicates: %v", err)
	}
	if len(dups) != 0 {
		t.Fatalf("old complaint should have no duplicates, got %v", dups)
	}
}

func TestFraudGateFlow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.clf.result.IsFake = true
	_, err := env.svc.Create(ctx, 5, validInput())
	if !errors.Is(err, ErrPolicyBlocked) {
		t.Fatalf("expected ErrPolicyBlocked for fake submission, got %v", err)
	}
	var pe *PolicyError
	if !errors.As(err, &pe) || pe.PenaltyDue != 100 {
		t.Fatalf("expected penalty 100 in policy error, got %v", err)
	}
	if len(env.store.complaints) != 0 {
		t.Fatalf("a rejected fake submission must not be persisted")
	}

	standing, err := env.svc.Standing(ctx, 5)
	if err != nil {
		t.Fatalf("standing: %v", err)
	}
	if !standing.Blocked || standing.PenaltyDue != 100 || standing.PenaltyPaid {
		t.Fatalf("unexpected standing after fake flag: %+v", standing)
	}

	// Even a clean follow-up is rejected while the penalty is unpaid.
	env.clf.result.IsFake = false
	_, err = env.svc.Create(ctx, 5, validInput())
	if !errors.As(err, &pe) || pe.Reason != "BLOCKED_PENDING_PENALTY" {
		t.Fatalf("expected BLOCKED_PENDING_PENALTY, got %v", err)
	}

	if _, err := env.svc.SettlePenalty(ctx, superAdmin, 5); err != nil {
		t.Fatalf("settle penalty: %v", err)
	}

	if _, err := env.svc.Create(ctx, 5, validInput()); err != nil {
		t.Fatalf("create after settling penalty: %v", err)
	}
}

func TestChangeStatusAuthorization(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())
	if _, err := env.svc.Submit(ctx, owner.UserID, created.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Users may not run department workflow edges.
	_, err := env.svc.ChangeStatus(ctx, owner, created.ID, ChangeStatusInput{NextStatus: enums.StatusInProgress})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected role rejection, got %v", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) || te.Role != enums.RoleUser {
		t.Fatalf("role rejection should carry the role and permitted set, got %v", err)
	}

	// Department scope applies even when the edge is role-legal.
	if _, err := env.svc.ChangeStatus(ctx, otherAdmin, created.ID, ChangeStatusInput{NextStatus: enums.StatusInProgress}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected department scope rejection, got %v", err)
	}

	// Super admin bypasses the role matrix but not the transition table.
	if _, err := env.svc.ChangeStatus(ctx, superAdmin, created.ID, ChangeStatusInput{NextStatus: enums.StatusResolved}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected illegal edge rejection for SUBMITTED -> RESOLVED, got %v", err)
	}
	if _, err := env.svc.ChangeStatus(ctx, superAdmin, created.ID, ChangeStatusInput{NextStatus: enums.StatusInProgress}); err != nil {
		t.Fatalf("super admin legal edge: %v", err)
	}
}

func TestChangeStatusAssignment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// An owner withdrawing a pending complaint must not become its assignee.
	withdrawn := mustCreate(t, env, owner.UserID, validInput())
	if _, err := env.svc.ChangeStatus(ctx, owner, withdrawn.ID, ChangeStatusInput{
		NextStatus: enums.StatusRejected,
		Reason:     "filed by mistake",
	}); err != nil {
		t.Fatalf("owner withdrawal: %v", err)
	}
	c, err := env.store.GetByID(ctx, withdrawn.ID)
	if err != nil {
		t.Fatalf("load complaint: %v", err)
	}
	if c.AssignedAdminID != nil {
		t.Fatalf("owner must not be recorded as assignee, got %d", *c.AssignedAdminID)
	}

	// A department admin acting on an unassigned complaint claims it.
	env.clf.result.Department = "Roads" // no verified admin configured
	pending := mustCreate(t, env, owner.UserID, CreateInput{
		Text:      "deep pothole on ring road service lane",
		Images:    []string{"users/1/images/c.jpg"},
		Latitude:  13.01,
		Longitude: 77.60,
	})
	if _, err := env.svc.Submit(ctx, owner.UserID, pending.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c, _ := env.store.GetByID(ctx, pending.ID); c.AssignedAdminID != nil {
		t.Fatalf("complaint should be unassigned after submit, got %d", *c.AssignedAdminID)
	}

	if _, err := env.svc.ChangeStatus(ctx, otherAdmin, pending.ID, ChangeStatusInput{
		NextStatus: enums.StatusInProgress,
		Reason:     "crew scheduled",
	}); err != nil {
		t.Fatalf("admin pickup: %v", err)
	}
	c, err = env.store.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("load complaint: %v", err)
	}
	if c.AssignedAdminID == nil || *c.AssignedAdminID != otherAdmin.UserID {
		t.Fatalf("admin should claim the unassigned complaint, got %v", c.AssignedAdminID)
	}
}

func TestChangeStatusConcurrentModification(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())
	if _, err := env.svc.Submit(ctx, owner.UserID, created.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Another writer lands between the authorization read and the update.
	env.store.beforeMutate = func() {
		c := env.store.complaints[created.ID]
		c.Status = enums.StatusRejected
	}

	_, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{NextStatus: enums.StatusInProgress})
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if got := statusOf(t, env, created.ID); got != enums.StatusRejected {
		t.Fatalf("stale write must not land, status=%s", got)
	}
}

func TestReopenLimit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())
	if _, err := env.svc.Submit(ctx, owner.UserID, created.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	resolve := func() {
		t.Helper()
		if _, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{NextStatus: enums.StatusInProgress}); err != nil {
			t.Fatalf("to IN_PROGRESS: %v", err)
		}
		if _, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{NextStatus: enums.StatusResolved}); err != nil {
			t.Fatalf("to RESOLVED: %v", err)
		}
	}

	resolve()
	if _, err := env.svc.Reopen(ctx, owner.UserID, created.ID, "still broken"); err != nil {
		t.Fatalf("first reopen: %v", err)
	}
	resolve()
	if _, err := env.svc.Reopen(ctx, owner.UserID, created.ID, "broken again"); err != nil {
		t.Fatalf("second reopen: %v", err)
	}
	resolve()

	_, err := env.svc.Reopen(ctx, owner.UserID, created.ID, "third strike")
	if !errors.Is(err, ErrReopenLimitReached) {
		t.Fatalf("expected ErrReopenLimitReached, got %v", err)
	}
}

func TestReopenRequiresReasonAndOwner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())
	if _, err := env.svc.Submit(ctx, owner.UserID, created.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{NextStatus: enums.StatusInProgress}); err != nil {
		t.Fatalf("to IN_PROGRESS: %v", err)
	}
	if _, err := env.svc.ChangeStatus(ctx, deptAdmin, created.ID, ChangeStatusInput{NextStatus: enums.StatusResolved}); err != nil {
		t.Fatalf("to RESOLVED: %v", err)
	}

	if _, err := env.svc.Reopen(ctx, owner.UserID, created.ID, "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank reason, got %v", err)
	}
	if _, err := env.svc.Reopen(ctx, 2, created.ID, "not mine"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner, got %v", err)
	}
}

func TestSoftDeletePolicy(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())

	if err := env.svc.SoftDelete(ctx, auth.Identity{UserID: 2, Role: enums.RoleUser}, created.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner delete, got %v", err)
	}

	if _, err := env.svc.Submit(ctx, owner.UserID, created.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.svc.SoftDelete(ctx, owner, created.ID); !errors.Is(err, ErrDeleteNotAllowed) {
		t.Fatalf("expected ErrDeleteNotAllowed for SUBMITTED, got %v", err)
	}

	pending := mustCreate(t, env, owner.UserID, CreateInput{
		Text:      "street light flickering on fifth avenue all night",
		Images:    []string{"users/1/images/b.jpg"},
		Latitude:  13.01,
		Longitude: 77.60,
	})
	if err := env.svc.SoftDelete(ctx, owner, pending.ID); err != nil {
		t.Fatalf("delete pending complaint: %v", err)
	}

	// Deleted complaints disappear from reads.
	if _, err := env.svc.Get(ctx, owner, pending.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDepartmentQueueScope(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())
	if _, err := env.svc.Submit(ctx, owner.UserID, created.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	queue, err := env.svc.DepartmentQueue(ctx, deptAdmin, "Sanitation")
	if err != nil {
		t.Fatalf("department queue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != created.ID {
		t.Fatalf("unexpected queue: %v", queue)
	}

	if _, err := env.svc.DepartmentQueue(ctx, otherAdmin, "Sanitation"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected scope rejection for foreign admin, got %v", err)
	}
	if _, err := env.svc.DepartmentQueue(ctx, owner, "Sanitation"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected role rejection for plain user, got %v", err)
	}
	if _, err := env.svc.DepartmentQueue(ctx, superAdmin, "Sanitation"); err != nil {
		t.Fatalf("super admin queue access: %v", err)
	}
}

func TestMarkFakeReview(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())

	if err := env.svc.MarkFake(ctx, deptAdmin, created.ID, "suspicious"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-super admin, got %v", err)
	}
	if err := env.svc.MarkFake(ctx, superAdmin, created.ID, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty note, got %v", err)
	}
	if err := env.svc.MarkFake(ctx, superAdmin, created.ID, "duplicate photos from stock site"); err != nil {
		t.Fatalf("mark fake: %v", err)
	}

	flagged, err := env.svc.FlaggedComplaints(ctx, superAdmin)
	if err != nil {
		t.Fatalf("flagged list: %v", err)
	}
	if len(flagged) != 1 || flagged[0].ID != created.ID {
		t.Fatalf("unexpected flagged list: %v", flagged)
	}
	if len(flagged[0].FakeDetectionNotes) != 1 {
		t.Fatalf("expected the note to be appended, got %v", flagged[0].FakeDetectionNotes)
	}

	if err := env.svc.UnmarkFake(ctx, superAdmin, created.ID, "verified on site"); err != nil {
		t.Fatalf("unmark fake: %v", err)
	}
	flagged, err = env.svc.FlaggedComplaints(ctx, superAdmin)
	if err != nil {
		t.Fatalf("flagged list after unmark: %v", err)
	}
	if len(flagged) != 0 {
		t.Fatalf("flag should be cleared, got %v", flagged)
	}
}

func TestTimelineVisibility(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())

	if _, err := env.svc.Timeline(ctx, auth.Identity{UserID: 2, Role: enums.RoleUser}, created.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for stranger, got %v", err)
	}
	if _, err := env.svc.Timeline(ctx, superAdmin, created.ID); err != nil {
		t.Fatalf("super admin timeline: %v", err)
	}
}

func TestSubmitRequiresOwnerAndImages(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	created := mustCreate(t, env, owner.UserID, validInput())

	if _, err := env.svc.Submit(ctx, 2, created.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner submit, got %v", err)
	}

	if _, err := env.svc.Submit(ctx, owner.UserID, created.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Submitting twice is an illegal edge, not a silent no-op.
	if _, err := env.svc.Submit(ctx, owner.UserID, created.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double submit, got %v", err)
	}
}
