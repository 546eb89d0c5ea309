package complaints

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
	"github.com/civicstack/grievance-backend/internal/domain/model"
	pgrepo "github.com/civicstack/grievance-backend/internal/repo/postgres"
	"github.com/civicstack/grievance-backend/internal/services/classify"
	"github.com/civicstack/grievance-backend/internal/services/duplicates"
	"github.com/civicstack/grievance-backend/internal/services/fraudgate"
)

// memComplaintStore mimics the postgres repo semantics in memory, including
// the conditional status update.
type memComplaintStore struct {
	mu         sync.Mutex
	complaints map[uuid.UUID]*model.Complaint
	statusLogs map[uuid.UUID][]model.StatusLogEntry
	reopenLogs map[uuid.UUID][]model.ReopenLogEntry
	notes      map[uuid.UUID][]model.InternalNote

	// beforeMutate runs once inside the next status mutation, before the
	// CAS check, to simulate a concurrent writer.
	beforeMutate func()
}

func newMemComplaintStore() *memComplaintStore {
	return &memComplaintStore{
		complaints: map[uuid.UUID]*model.Complaint{},
		statusLogs: map[uuid.UUID][]model.StatusLogEntry{},
		reopenLogs: map[uuid.UUID][]model.ReopenLogEntry{},
		notes:      map[uuid.UUID][]model.InternalNote{},
	}
}

func (m *memComplaintStore) fireHook() {
	if m.beforeMutate != nil {
		hook := m.beforeMutate
		m.beforeMutate = nil
		hook()
	}
}

func (m *memComplaintStore) Create(_ context.Context, _ pgx.Tx, c *model.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.complaints[c.ID] = &cp
	return nil
}

func (m *memComplaintStore) GetByID(_ context.Context, id uuid.UUID) (model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return model.Complaint{}, pgrepo.ErrComplaintNotFound
	}
	return *c, nil
}

func (m *memComplaintStore) ListRecentByUser(_ context.Context, userID int64, since time.Time) ([]model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Complaint
	for _, c := range m.complaints {
		if c.UserID == userID && !c.IsDeleted && !c.IsDuplicate && !c.CreatedAt.Before(since) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memComplaintStore) ListByUser(_ context.Context, userID int64) ([]model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Complaint
	for _, c := range m.complaints {
		if c.UserID == userID && !c.IsDeleted {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memComplaintStore) ListByDepartment(_ context.Context, department string) ([]model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Complaint
	for _, c := range m.complaints {
		if c.Department == department && c.IsSent && !c.IsDeleted {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if out[i].SubmittedAt != nil {
			ti = *out[i].SubmittedAt
		}
		if out[j].SubmittedAt != nil {
			tj = *out[j].SubmittedAt
		}
		return ti.After(tj)
	})
	return out, nil
}

func (m *memComplaintStore) ListFlaggedFake(_ context.Context) ([]model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Complaint
	for _, c := range m.complaints {
		if c.IsFlaggedFake && !c.IsDeleted {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memComplaintStore) ListHighRisk(_ context.Context, threshold float64) ([]model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Complaint
	for _, c := range m.complaints {
		if c.RiskScore >= threshold && !c.IsDeleted {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memComplaintStore) ListDuplicatesOf(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for _, c := range m.complaints {
		if c.DuplicateOf != nil && *c.DuplicateOf == id {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

func (m *memComplaintStore) casMutate(id uuid.UUID, expected enums.ComplaintStatus, apply func(*model.Complaint)) error {
	m.fireHook()
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return pgrepo.ErrComplaintNotFound
	}
	if c.Status != expected || c.IsDeleted {
		return pgrepo.ErrStaleStatus
	}
	apply(c)
	return nil
}

func (m *memComplaintStore) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, expected, next enums.ComplaintStatus, assigneeID *int64) error {
	return m.casMutate(id, expected, func(c *model.Complaint) {
		c.Status = next
		if c.AssignedAdminID == nil && assigneeID != nil {
			c.AssignedAdminID = assigneeID
		}
	})
}

func (m *memComplaintStore) MarkSubmitted(_ context.Context, _ pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, assigneeID *int64, at time.Time) error {
	return m.casMutate(id, expected, func(c *model.Complaint) {
		c.Status = enums.StatusSubmitted
		c.IsSent = true
		c.SubmittedAt = &at
		if assigneeID != nil {
			c.AssignedAdminID = assigneeID
		}
	})
}

func (m *memComplaintStore) MarkClosed(_ context.Context, _ pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, feedback string, at time.Time) error {
	return m.casMutate(id, expected, func(c *model.Complaint) {
		c.Status = enums.StatusClosed
		c.UserResponse = model.UserResponse{
			Status:       enums.UserResponseAccepted,
			ResponseDate: &at,
			Feedback:     feedback,
		}
	})
}

func (m *memComplaintStore) MarkReopened(_ context.Context, _ pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, reason string, maxReopens int, assigneeID *int64, at time.Time) error {
	return m.casMutate(id, expected, func(c *model.Complaint) {
		c.Status = enums.StatusReopened
		c.ReopenCount++
		c.UserResponse = model.UserResponse{
			Status:       enums.UserResponseRejected,
			ResponseDate: &at,
			Feedback:     reason,
		}
		if assigneeID != nil {
			c.AssignedAdminID = assigneeID
		}
	})
}

func (m *memComplaintStore) SoftDelete(_ context.Context, id uuid.UUID, expected enums.ComplaintStatus, actorID int64, at time.Time) error {
	return m.casMutate(id, expected, func(c *model.Complaint) {
		c.IsDeleted = true
		c.DeletedBy = &actorID
		c.DeletedAt = &at
	})
}

func (m *memComplaintStore) AppendStatusLog(_ context.Context, _ pgx.Tx, id uuid.UUID, entry model.StatusLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusLogs[id] = append(m.statusLogs[id], entry)
	return nil
}

func (m *memComplaintStore) AppendReopenLog(_ context.Context, _ pgx.Tx, id uuid.UUID, entry model.ReopenLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reopenLogs[id] = append(m.reopenLogs[id], entry)
	return nil
}

func (m *memComplaintStore) AppendInternalNote(_ context.Context, _ pgx.Tx, id uuid.UUID, note model.InternalNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[id] = append(m.notes[id], note)
	return nil
}

func (m *memComplaintStore) ListStatusLogs(_ context.Context, id uuid.UUID) ([]pgrepo.StatusLogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pgrepo.StatusLogRecord, 0, len(m.statusLogs[id]))
	for _, entry := range m.statusLogs[id] {
		out = append(out, pgrepo.StatusLogRecord{
			Status:    entry.Status,
			ChangedBy: entry.ChangedBy,
			ChangedAt: entry.ChangedAt,
			Reason:    entry.Reason,
		})
	}
	return out, nil
}

func (m *memComplaintStore) ListReopenLogs(_ context.Context, id uuid.UUID) ([]pgrepo.ReopenLogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pgrepo.ReopenLogRecord, 0, len(m.reopenLogs[id]))
	for _, entry := range m.reopenLogs[id] {
		out = append(out, pgrepo.ReopenLogRecord{
			ReopenedBy: entry.ReopenedBy,
			Reason:     entry.Reason,
			ReopenedAt: entry.ReopenedAt,
		})
	}
	return out, nil
}

func (m *memComplaintStore) SetFlaggedFake(_ context.Context, id uuid.UUID, flagged bool, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return pgrepo.ErrComplaintNotFound
	}
	c.IsFlaggedFake = flagged
	if note != "" {
		c.FakeDetectionNotes = append(c.FakeDetectionNotes, note)
	}
	return nil
}

func (m *memComplaintStore) SetDepartmentSummary(_ context.Context, id uuid.UUID, summary string, adminID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return pgrepo.ErrComplaintNotFound
	}
	c.DepartmentSummary = &summary
	c.AssignedAdminID = &adminID
	return nil
}

func (m *memComplaintStore) SetAISummary(_ context.Context, id uuid.UUID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return pgrepo.ErrComplaintNotFound
	}
	c.AISummary = &summary
	return nil
}

// memStandingStore backs both the fraud gate and the service reads.
type memStandingStore struct {
	mu        sync.Mutex
	standings map[int64]*model.SubmitterStanding
}

func newMemStandingStore() *memStandingStore {
	return &memStandingStore{standings: map[int64]*model.SubmitterStanding{}}
}

func (m *memStandingStore) GetOrCreateForUpdate(_ context.Context, _ pgx.Tx, userID int64) (model.SubmitterStanding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.standings[userID]
	if !ok {
		s = &model.SubmitterStanding{UserID: userID}
		m.standings[userID] = s
	}
	return *s, nil
}

func (m *memStandingStore) ApplyPenalty(_ context.Context, _ pgx.Tx, userID int64, amount int64, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.standings[userID]
	if !ok {
		s = &model.SubmitterStanding{UserID: userID}
		m.standings[userID] = s
	}
	s.Blocked = true
	s.PenaltyDue += amount
	s.PenaltyPaid = false
	s.BlockedReason = reason
	if s.BlockedAt == nil {
		s.BlockedAt = &at
	}
	return nil
}

func (m *memStandingStore) Get(_ context.Context, userID int64) (model.SubmitterStanding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.standings[userID]; ok {
		return *s, nil
	}
	return model.SubmitterStanding{UserID: userID}, nil
}

func (m *memStandingStore) SettlePenalty(_ context.Context, _ pgx.Tx, userID int64) (model.SubmitterStanding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.standings[userID]
	if !ok {
		s = &model.SubmitterStanding{UserID: userID}
		m.standings[userID] = s
	}
	s.PenaltyDue = 0
	s.PenaltyPaid = true
	s.Blocked = false
	s.BlockedReason = ""
	return *s, nil
}

type fakeUserStore struct {
	users      map[int64]model.User
	deptAdmins map[string]model.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id int64) (model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return model.User{}, pgrepo.ErrUserNotFound
}

func (f *fakeUserStore) FindDepartmentAdmin(_ context.Context, department string) (model.User, error) {
	if u, ok := f.deptAdmins[department]; ok {
		return u, nil
	}
	return model.User{}, pgrepo.ErrUserNotFound
}

type fakeClassifier struct {
	result classify.Result
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(context.Context, string, []string, float64, float64) (classify.Result, error) {
	f.calls++
	if f.err != nil {
		return classify.Result{}, f.err
	}
	return f.result, nil
}

type fakeLimiter struct {
	allowed    bool
	retryAfter int64
}

func (f *fakeLimiter) AllowSubmission(context.Context, int64) (int64, bool, error) {
	if f.allowed {
		return 0, true, nil
	}
	return f.retryAfter, false, nil
}

type testEnv struct {
	svc       *Service
	store     *memComplaintStore
	standings *memStandingStore
	clf       *fakeClassifier
	limiter   *fakeLimiter
	now       time.Time
}

func newTestEnv() *testEnv {
	store := newMemComplaintStore()
	standings := newMemStandingStore()
	clf := &fakeClassifier{result: classify.Result{
		Department: "Sanitation",
		Confidence: 0.9,
		Summary:    "summary",
		Priority:   enums.PriorityMedium,
	}}
	limiter := &fakeLimiter{allowed: true}

	env := &testEnv{
		store:     store,
		standings: standings,
		clf:       clf,
		limiter:   limiter,
		now:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	svc := NewService(Dependencies{
		Complaints: store,
		Users: &fakeUserStore{
			users: map[int64]model.User{},
			deptAdmins: map[string]model.User{
				"Sanitation": {ID: 900, Role: enums.RoleDepartmentAdmin, Department: "Sanitation", IsVerified: true},
			},
		},
		Standings:  standings,
		Classifier: clf,
		Detector:   duplicates.NewDetector(0.8, 500),
		Gate:       fraudgate.NewGate(standings, 100),
		Limiter:    limiter,
	}, Config{MaxReopens: 2, DuplicateLookback: 7 * 24 * time.Hour, HighRiskThreshold: 0.7})

	svc.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return fn(ctx, nil)
	}
	svc.now = func() time.Time {
		env.now = env.now.Add(time.Second)
		return env.now
	}

	env.svc = svc
	return env
}

func validInput() CreateInput {
	return CreateInput{
		Text:      "garbage bin overflowing near main street park",
		Images:    []string{"users/1/images/a.jpg"},
		Latitude:  12.9716,
		Longitude: 77.5946,
	}
}

func mustCreate(t *testing.T, env *testEnv, userID int64, in CreateInput) model.Complaint {
	t.Helper()
	res, err := env.svc.Create(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("create complaint: %v", err)
	}
	return res.Complaint
}

func statusOf(t *testing.T, env *testEnv, id uuid.UUID) enums.ComplaintStatus {
	t.Helper()
	c, err := env.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load complaint: %v", err)
	}
	return c.Status
}

func statusTrail(logs []pgrepo.StatusLogRecord) string {
	parts := make([]string, 0, len(logs))
	for _, l := range logs {
		parts = append(parts, string(l.Status))
	}
	return strings.Join(parts, " ")
}
