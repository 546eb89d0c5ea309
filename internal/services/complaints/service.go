package complaints

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
	"github.com/civicstack/grievance-backend/internal/domain/model"
	"github.com/civicstack/grievance-backend/internal/pkg/geo"
	pgrepo "github.com/civicstack/grievance-backend/internal/repo/postgres"
	"github.com/civicstack/grievance-backend/internal/services/classify"
	"github.com/civicstack/grievance-backend/internal/services/duplicates"
	"github.com/civicstack/grievance-backend/internal/services/fraudgate"
)

const (
	minTextLength   = 10
	maxImages       = 5
	maxReasonLength = 500
	maxNoteLength   = 1000
)

type ComplaintStore interface {
	Create(ctx context.Context, tx pgx.Tx, c *model.Complaint) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Complaint, error)
	ListRecentByUser(ctx context.Context, userID int64, since time.Time) ([]model.Complaint, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Complaint, error)
	ListByDepartment(ctx context.Context, department string) ([]model.Complaint, error)
	ListFlaggedFake(ctx context.Context) ([]model.Complaint, error)
	ListHighRisk(ctx context.Context, threshold float64) ([]model.Complaint, error)
	ListDuplicatesOf(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected, next enums.ComplaintStatus, assigneeID *int64) error
	MarkSubmitted(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, assigneeID *int64, at time.Time) error
	MarkClosed(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, feedback string, at time.Time) error
	MarkReopened(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, reason string, maxReopens int, assigneeID *int64, at time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID, expected enums.ComplaintStatus, actorID int64, at time.Time) error
	AppendStatusLog(ctx context.Context, tx pgx.Tx, id uuid.UUID, entry model.StatusLogEntry) error
	AppendReopenLog(ctx context.Context, tx pgx.Tx, id uuid.UUID, entry model.ReopenLogEntry) error
	AppendInternalNote(ctx context.Context, tx pgx.Tx, id uuid.UUID, note model.InternalNote) error
	ListStatusLogs(ctx context.Context, id uuid.UUID) ([]pgrepo.StatusLogRecord, error)
	ListReopenLogs(ctx context.Context, id uuid.UUID) ([]pgrepo.ReopenLogRecord, error)
	SetFlaggedFake(ctx context.Context, id uuid.UUID, flagged bool, note string) error
	SetDepartmentSummary(ctx context.Context, id uuid.UUID, summary string, adminID int64) error
	SetAISummary(ctx context.Context, id uuid.UUID, summary string) error
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (model.User, error)
	FindDepartmentAdmin(ctx context.Context, department string) (model.User, error)
}

type StandingStore interface {
	Get(ctx context.Context, userID int64) (model.SubmitterStanding, error)
	SettlePenalty(ctx context.Context, tx pgx.Tx, userID int64) (model.SubmitterStanding, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string, images []string, lat, lon float64) (classify.Result, error)
}

type DuplicateFinder interface {
	FindMatch(text string, lat, lon float64, candidates []model.Complaint) (duplicates.Match, bool)
}

type AdmissionGate interface {
	Admit(ctx context.Context, tx pgx.Tx, userID int64, flaggedFake bool) (fraudgate.Decision, error)
}

type RateLimiter interface {
	AllowSubmission(ctx context.Context, userID int64) (int64, bool, error)
}

type Config struct {
	MaxReopens        int
	DuplicateLookback time.Duration
	HighRiskThreshold float64
}

type Service struct {
	pool       *pgxpool.Pool
	complaints ComplaintStore
	users      UserStore
	standings  StandingStore
	classifier Classifier
	detector   DuplicateFinder
	gate       AdmissionGate
	limiter    RateLimiter
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
	runTx      func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

type Dependencies struct {
	Pool       *pgxpool.Pool
	Complaints ComplaintStore
	Users      UserStore
	Standings  StandingStore
	Classifier Classifier
	Detector   DuplicateFinder
	Gate       AdmissionGate
	Limiter    RateLimiter
	Logger     *zap.Logger
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.MaxReopens <= 0 {
		cfg.MaxReopens = 2
	}
	if cfg.DuplicateLookback <= 0 {
		cfg.DuplicateLookback = 7 * 24 * time.Hour
	}
	if cfg.HighRiskThreshold <= 0 {
		cfg.HighRiskThreshold = 0.7
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Service{
		pool:       deps.Pool,
		complaints: deps.Complaints,
		users:      deps.Users,
		standings:  deps.Standings,
		classifier: deps.Classifier,
		detector:   deps.Detector,
		gate:       deps.Gate,
		limiter:    deps.Limiter,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return pgrepo.WithTx(ctx, s.pool, fn)
	}

	return s
}

type CreateInput struct {
	Text      string
	Images    []string
	VideoURL  *string
	Latitude  float64
	Longitude float64

	// FlaggedFake is a manual pre-submission signal, OR-ed with the
	// classifier's verdict before the fraud gate runs.
	FlaggedFake bool
}

type CreateResult struct {
	Complaint  model.Complaint
	PenaltyDue int64

	IsDuplicate bool
	DuplicateOf *uuid.UUID
	Similarity  float64
	DistanceM   float64
}

// Create runs the full admission pipeline: validation, rate limit, the
// classifier, the fraud gate and duplicate detection, then persists the
// complaint. The gate and the insert share one transaction, with the
// submitter's standing row locked, so concurrent submissions by the same
// user serialize and a fake flag cannot be charged twice.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (CreateResult, error) {
	if userID <= 0 {
		return CreateResult{}, fieldError("user_id", "must be positive")
	}
	if err := validateCreateInput(in); err != nil {
		return CreateResult{}, err
	}

	if s.limiter != nil {
		retryAfter, allowed, err := s.limiter.AllowSubmission(ctx, userID)
		if err != nil {
			return CreateResult{}, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			return CreateResult{}, &RateLimitError{RetryAfterSec: retryAfter}
		}
	}

	verdict, err := s.classifier.Classify(ctx, in.Text, in.Images, in.Latitude, in.Longitude)
	if err != nil {
		if errors.Is(err, classify.ErrUnavailable) {
			return CreateResult{}, fmt.Errorf("%w: classifier", ErrDependencyUnavailable)
		}
		return CreateResult{}, fmt.Errorf("classify complaint: %w", err)
	}

	flaggedFake := in.FlaggedFake || verdict.IsFake
	now := s.now().UTC()

	complaint := model.Complaint{
		ID:                 uuid.New(),
		UserID:             userID,
		Text:               strings.TrimSpace(in.Text),
		Images:             in.Images,
		VideoURL:           in.VideoURL,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		Department:         verdict.Department,
		Confidence:         verdict.Confidence,
		Priority:           verdict.Priority,
		Status:             enums.StatusPending,
		RiskScore:          verdict.RiskScore,
		IsFlaggedFake:      flaggedFake,
		FakeDetectionNotes: verdict.FakeNotes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if verdict.Summary != "" {
		complaint.AISummary = &verdict.Summary
	}

	var (
		decision fraudgate.Decision
		result   CreateResult
	)

	err = s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		decision, err = s.gate.Admit(txCtx, tx, userID, flaggedFake)
		if err != nil {
			return err
		}
		if decision.Outcome != fraudgate.OutcomeAdmitted {
			// Commit anyway: a fresh FLAGGED_FAKE penalty must persist
			// even though no complaint is created.
			return nil
		}

		since := now.Add(-s.cfg.DuplicateLookback)
		candidates, err := s.complaints.ListRecentByUser(txCtx, userID, since)
		if err != nil {
			return fmt.Errorf("load duplicate candidates: %w", err)
		}

		if match, found := s.detector.FindMatch(complaint.Text, in.Latitude, in.Longitude, candidates); found {
			canonical := match.Complaint.ID
			complaint.Status = enums.StatusDuplicate
			complaint.IsDuplicate = true
			complaint.DuplicateOf = &canonical
			result.IsDuplicate = true
			result.DuplicateOf = &canonical
			result.Similarity = match.Similarity
			result.DistanceM = match.DistanceM
		}

		if err := s.complaints.Create(txCtx, tx, &complaint); err != nil {
			return err
		}

		return s.complaints.AppendStatusLog(txCtx, tx, complaint.ID, model.StatusLogEntry{
			Status:    complaint.Status,
			ChangedBy: userID,
			ChangedAt: now,
			Reason:    "complaint created",
		})
	})
	if err != nil {
		return CreateResult{}, err
	}

	switch decision.Outcome {
	case fraudgate.OutcomeBlockedPendingPenalty:
		return CreateResult{}, &PolicyError{
			Reason:         string(decision.Outcome),
			PenaltyDue:     decision.PenaltyDue,
			RequiredAction: "pay outstanding penalty before submitting new complaints",
		}
	case fraudgate.OutcomeFlaggedFake:
		s.log.Info("submission flagged fake",
			zap.Int64("user_id", userID),
			zap.Int64("penalty_due", decision.PenaltyDue))
		return CreateResult{}, &PolicyError{
			Reason:         string(decision.Outcome),
			PenaltyDue:     decision.PenaltyDue,
			RequiredAction: "complaint flagged as fake, penalty applied",
		}
	}

	complaint.StatusLogs = []model.StatusLogEntry{{
		Status:    complaint.Status,
		ChangedBy: userID,
		ChangedAt: now,
		Reason:    "complaint created",
	}}
	result.Complaint = complaint
	result.PenaltyDue = decision.PenaltyDue

	s.log.Info("complaint created",
		zap.String("complaint_id", complaint.ID.String()),
		zap.Int64("user_id", userID),
		zap.String("status", string(complaint.Status)),
		zap.String("department", complaint.Department))

	return result, nil
}

// Submit moves an owner's draft into the department workflow.
func (s *Service) Submit(ctx context.Context, actorID int64, complaintID uuid.UUID) (model.Complaint, error) {
	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return model.Complaint{}, err
	}
	if complaint.UserID != actorID {
		return model.Complaint{}, fmt.Errorf("%w: only the owner may submit", ErrUnauthorized)
	}
	if len(complaint.Images) == 0 {
		return model.Complaint{}, fieldError("images", "at least one image is required before submitting")
	}

	if err := s.checkEdge(complaint.Status, enums.StatusSubmitted); err != nil {
		return model.Complaint{}, err
	}

	assigneeID := s.resolveAssignee(ctx, complaint.Department)
	now := s.now().UTC()

	err = s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if err := s.complaints.MarkSubmitted(txCtx, tx, complaintID, complaint.Status, assigneeID, now); err != nil {
			return s.mapStoreErr(err)
		}
		return s.complaints.AppendStatusLog(txCtx, tx, complaintID, model.StatusLogEntry{
			Status:    enums.StatusSubmitted,
			ChangedBy: actorID,
			ChangedAt: now,
			Reason:    "submitted by owner",
		})
	})
	if err != nil {
		return model.Complaint{}, err
	}

	s.log.Info("complaint submitted",
		zap.String("complaint_id", complaintID.String()),
		zap.Int64("user_id", actorID),
		zap.String("department", complaint.Department))

	return s.loadComplaint(ctx, complaintID)
}

func (s *Service) loadComplaint(ctx context.Context, id uuid.UUID) (model.Complaint, error) {
	if id == uuid.Nil {
		return model.Complaint{}, fieldError("complaint_id", "is required")
	}

	complaint, err := s.complaints.GetByID(ctx, id)
	if err != nil {
		return model.Complaint{}, s.mapStoreErr(err)
	}
	if complaint.IsDeleted {
		return model.Complaint{}, ErrNotFound
	}
	return complaint, nil
}

// resolveAssignee is best effort: a department without a verified admin
// leaves the complaint unassigned.
func (s *Service) resolveAssignee(ctx context.Context, department string) *int64 {
	if s.users == nil || department == "" {
		return nil
	}

	admin, err := s.users.FindDepartmentAdmin(ctx, department)
	if err != nil {
		if !errors.Is(err, pgrepo.ErrUserNotFound) {
			s.log.Warn("resolve department admin failed",
				zap.String("department", department), zap.Error(err))
		}
		return nil
	}
	return &admin.ID
}

func (s *Service) mapStoreErr(err error) error {
	switch {
	case errors.Is(err, pgrepo.ErrComplaintNotFound):
		return ErrNotFound
	case errors.Is(err, pgrepo.ErrStaleStatus):
		return ErrConcurrentModification
	default:
		return err
	}
}

func validateCreateInput(in CreateInput) error {
	if len(strings.TrimSpace(in.Text)) < minTextLength {
		return fieldError("complaint_text", fmt.Sprintf("must be at least %d characters", minTextLength))
	}
	if len(in.Images) == 0 {
		return fieldError("images", "at least one image is required")
	}
	if len(in.Images) > maxImages {
		return fieldError("images", fmt.Sprintf("at most %d images are allowed", maxImages))
	}
	if err := geo.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return fieldError("location", "coordinates are out of range")
	}
	return nil
}
