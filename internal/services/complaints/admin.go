package complaints

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
	"github.com/civicstack/grievance-backend/internal/domain/model"
	"github.com/civicstack/grievance-backend/internal/pkg/validate"
	"github.com/civicstack/grievance-backend/internal/services/auth"
	"github.com/civicstack/grievance-backend/internal/services/classify"
)

// MarkFake is the manual super-admin fake flag with a mandatory note.
func (s *Service) MarkFake(ctx context.Context, actor auth.Identity, complaintID uuid.UUID, note string) error {
	if actor.Role != enums.RoleSuperAdmin {
		return fmt.Errorf("%w: marking fake requires super admin", ErrUnauthorized)
	}
	if !validate.Required(note) {
		return fieldError("note", "is required when marking fake")
	}
	if !validate.WithinLimit(note, maxNoteLength) {
		return fieldError("note", fmt.Sprintf("must be at most %d characters", maxNoteLength))
	}

	if _, err := s.loadComplaint(ctx, complaintID); err != nil {
		return err
	}
	if err := s.complaints.SetFlaggedFake(ctx, complaintID, true, note); err != nil {
		return s.mapStoreErr(err)
	}

	s.log.Info("complaint marked fake",
		zap.String("complaint_id", complaintID.String()),
		zap.Int64("actor_id", actor.UserID))

	return nil
}

// UnmarkFake clears the manual fake flag and records why.
func (s *Service) UnmarkFake(ctx context.Context, actor auth.Identity, complaintID uuid.UUID, note string) error {
	if actor.Role != enums.RoleSuperAdmin {
		return fmt.Errorf("%w: unmarking fake requires super admin", ErrUnauthorized)
	}
	if !validate.WithinLimit(note, maxNoteLength) {
		return fieldError("note", fmt.Sprintf("must be at most %d characters", maxNoteLength))
	}

	if _, err := s.loadComplaint(ctx, complaintID); err != nil {
		return err
	}
	if err := s.complaints.SetFlaggedFake(ctx, complaintID, false, note); err != nil {
		return s.mapStoreErr(err)
	}

	s.log.Info("complaint fake flag cleared",
		zap.String("complaint_id", complaintID.String()),
		zap.Int64("actor_id", actor.UserID))

	return nil
}

// SetDepartmentSummary records the handling admin's summary on a complaint
// in their own department.
func (s *Service) SetDepartmentSummary(ctx context.Context, actor auth.Identity, complaintID uuid.UUID, summary string) error {
	if !validate.Required(summary) {
		return fieldError("summary", "is required")
	}
	if !validate.WithinLimit(summary, maxNoteLength) {
		return fieldError("summary", fmt.Sprintf("must be at most %d characters", maxNoteLength))
	}

	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return err
	}

	switch actor.Role {
	case enums.RoleSuperAdmin:
	case enums.RoleDepartmentAdmin:
		if !strings.EqualFold(actor.Department, complaint.Department) {
			return fmt.Errorf("%w: complaint belongs to another department", ErrUnauthorized)
		}
	default:
		return fmt.Errorf("%w: role %s may not set summaries", ErrUnauthorized, actor.Role)
	}

	if err := s.complaints.SetDepartmentSummary(ctx, complaintID, summary, actor.UserID); err != nil {
		return s.mapStoreErr(err)
	}
	return nil
}

// RegenerateSummary re-runs the classifier for a fresh summary.
func (s *Service) RegenerateSummary(ctx context.Context, actor auth.Identity, complaintID uuid.UUID) (string, error) {
	if actor.Role != enums.RoleSuperAdmin && actor.Role != enums.RoleDepartmentAdmin {
		return "", fmt.Errorf("%w: role %s may not regenerate summaries", ErrUnauthorized, actor.Role)
	}

	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return "", err
	}
	if actor.Role == enums.RoleDepartmentAdmin && !strings.EqualFold(actor.Department, complaint.Department) {
		return "", fmt.Errorf("%w: complaint belongs to another department", ErrUnauthorized)
	}

	verdict, err := s.classifier.Classify(ctx, complaint.Text, complaint.Images, complaint.Latitude, complaint.Longitude)
	if err != nil {
		if errors.Is(err, classify.ErrUnavailable) {
			return "", fmt.Errorf("%w: classifier", ErrDependencyUnavailable)
		}
		return "", fmt.Errorf("regenerate summary: %w", err)
	}

	if err := s.complaints.SetAISummary(ctx, complaintID, verdict.Summary); err != nil {
		return "", s.mapStoreErr(err)
	}
	return verdict.Summary, nil
}

// SettlePenalty records a full penalty payment and unblocks the submitter.
// Payment collection itself happens outside this service.
func (s *Service) SettlePenalty(ctx context.Context, actor auth.Identity, userID int64) (model.SubmitterStanding, error) {
	if actor.Role != enums.RoleSuperAdmin {
		return model.SubmitterStanding{}, fmt.Errorf("%w: settling penalties requires super admin", ErrUnauthorized)
	}
	if userID <= 0 {
		return model.SubmitterStanding{}, fieldError("user_id", "must be positive")
	}

	var standing model.SubmitterStanding
	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		var err error
		standing, err = s.standings.SettlePenalty(txCtx, tx, userID)
		return err
	})
	if err != nil {
		return model.SubmitterStanding{}, err
	}

	s.log.Info("penalty settled",
		zap.Int64("user_id", userID),
		zap.Int64("actor_id", actor.UserID))

	return standing, nil
}
