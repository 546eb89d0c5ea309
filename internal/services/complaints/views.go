package complaints

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
	"github.com/civicstack/grievance-backend/internal/domain/model"
	"github.com/civicstack/grievance-backend/internal/pkg/validate"
	pgrepo "github.com/civicstack/grievance-backend/internal/repo/postgres"
	"github.com/civicstack/grievance-backend/internal/services/auth"
)

// Timeline is the full audit view of one complaint.
type Timeline struct {
	ComplaintID  uuid.UUID
	Status       enums.ComplaintStatus
	StatusLogs   []pgrepo.StatusLogRecord
	ReopenLogs   []pgrepo.ReopenLogRecord
	UserResponse model.UserResponse
	Duplicates   []uuid.UUID
}

// Get returns one complaint, visible to its owner, a super admin, or the
// matching department admin.
func (s *Service) Get(ctx context.Context, actor auth.Identity, complaintID uuid.UUID) (model.Complaint, error) {
	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return model.Complaint{}, err
	}
	if err := s.checkReadAccess(actor, complaint); err != nil {
		return model.Complaint{}, err
	}

	dups, err := s.complaints.ListDuplicatesOf(ctx, complaintID)
	if err != nil {
		return model.Complaint{}, err
	}
	complaint.Duplicates = dups

	return complaint, nil
}

// ListMine returns the actor's own complaints, newest first.
func (s *Service) ListMine(ctx context.Context, actorID int64) ([]model.Complaint, error) {
	if actorID <= 0 {
		return nil, fieldError("user_id", "must be positive")
	}
	return s.complaints.ListByUser(ctx, actorID)
}

// Timeline returns the ordered status and reopen trails with actor names.
func (s *Service) Timeline(ctx context.Context, actor auth.Identity, complaintID uuid.UUID) (Timeline, error) {
	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return Timeline{}, err
	}
	if complaint.UserID != actor.UserID && actor.Role != enums.RoleSuperAdmin {
		return Timeline{}, fmt.Errorf("%w: timeline is visible to the owner or a super admin", ErrUnauthorized)
	}

	statusLogs, err := s.complaints.ListStatusLogs(ctx, complaintID)
	if err != nil {
		return Timeline{}, err
	}
	reopenLogs, err := s.complaints.ListReopenLogs(ctx, complaintID)
	if err != nil {
		return Timeline{}, err
	}
	dups, err := s.complaints.ListDuplicatesOf(ctx, complaintID)
	if err != nil {
		return Timeline{}, err
	}

	return Timeline{
		ComplaintID:  complaintID,
		Status:       complaint.Status,
		StatusLogs:   statusLogs,
		ReopenLogs:   reopenLogs,
		UserResponse: complaint.UserResponse,
		Duplicates:   dups,
	}, nil
}

// DepartmentQueue returns the sent, non-deleted complaints for a department,
// newest submission first.
func (s *Service) DepartmentQueue(ctx context.Context, actor auth.Identity, department string) ([]model.Complaint, error) {
	if !validate.Required(department) {
		return nil, fieldError("department", "is required")
	}

	switch actor.Role {
	case enums.RoleSuperAdmin:
	case enums.RoleDepartmentAdmin:
		if !strings.EqualFold(actor.Department, department) {
			return nil, fmt.Errorf("%w: queue belongs to another department", ErrUnauthorized)
		}
	default:
		return nil, fmt.Errorf("%w: role %s may not read department queues", ErrUnauthorized, actor.Role)
	}

	return s.complaints.ListByDepartment(ctx, department)
}

// FlaggedComplaints lists complaints marked fake, for super-admin review.
func (s *Service) FlaggedComplaints(ctx context.Context, actor auth.Identity) ([]model.Complaint, error) {
	if actor.Role != enums.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: flagged review requires super admin", ErrUnauthorized)
	}
	return s.complaints.ListFlaggedFake(ctx)
}

// HighRisk lists complaints whose risk score meets the configured threshold.
func (s *Service) HighRisk(ctx context.Context, actor auth.Identity) ([]model.Complaint, error) {
	if actor.Role != enums.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: risk review requires super admin", ErrUnauthorized)
	}
	return s.complaints.ListHighRisk(ctx, s.cfg.HighRiskThreshold)
}

// Standing exposes the submitter's own penalty state.
func (s *Service) Standing(ctx context.Context, actorID int64) (model.SubmitterStanding, error) {
	if actorID <= 0 {
		return model.SubmitterStanding{}, fieldError("user_id", "must be positive")
	}
	return s.standings.Get(ctx, actorID)
}

func (s *Service) checkReadAccess(actor auth.Identity, complaint model.Complaint) error {
	if complaint.UserID == actor.UserID {
		return nil
	}
	switch actor.Role {
	case enums.RoleSuperAdmin:
		return nil
	case enums.RoleDepartmentAdmin:
		if strings.EqualFold(actor.Department, complaint.Department) {
			return nil
		}
	}
	return fmt.Errorf("%w: complaint is not visible to this actor", ErrUnauthorized)
}
