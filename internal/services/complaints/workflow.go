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
	"github.com/civicstack/grievance-backend/internal/domain/rules"
	"github.com/civicstack/grievance-backend/internal/pkg/validate"
	"github.com/civicstack/grievance-backend/internal/services/auth"
)

type ChangeStatusInput struct {
	NextStatus   enums.ComplaintStatus
	Reason       string
	InternalNote string
}

// ChangeStatus is the administrative workflow mutation. Authorization is
// computed against the status read here; the conditional update refuses to
// land on any other status.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Identity, complaintID uuid.UUID, in ChangeStatusInput) (model.Complaint, error) {
	if !in.NextStatus.Valid() {
		return model.Complaint{}, fieldError("status", "is not a recognized status")
	}
	if !validate.WithinLimit(in.Reason, maxReasonLength) {
		return model.Complaint{}, fieldError("reason", fmt.Sprintf("must be at most %d characters", maxReasonLength))
	}
	if !validate.WithinLimit(in.InternalNote, maxNoteLength) {
		return model.Complaint{}, fieldError("internal_note", fmt.Sprintf("must be at most %d characters", maxNoteLength))
	}

	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return model.Complaint{}, err
	}

	if err := s.checkEdge(complaint.Status, in.NextStatus); err != nil {
		return model.Complaint{}, err
	}
	if err := s.checkRoleEdge(actor.Role, complaint.Status, in.NextStatus); err != nil {
		return model.Complaint{}, err
	}
	if actor.Role == enums.RoleDepartmentAdmin && !strings.EqualFold(actor.Department, complaint.Department) {
		return model.Complaint{}, fmt.Errorf("%w: complaint belongs to another department", ErrUnauthorized)
	}

	// Only administrators claim unassigned complaints; an owner edge such
	// as PENDING → REJECTED must not record the citizen as the assignee.
	var assigneeID *int64
	if actor.Role == enums.RoleDepartmentAdmin || actor.Role == enums.RoleSuperAdmin {
		adminID := actor.UserID
		assigneeID = &adminID
	}

	now := s.now().UTC()

	err = s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if err := s.complaints.UpdateStatus(txCtx, tx, complaintID, complaint.Status, in.NextStatus, assigneeID); err != nil {
			return s.mapStoreErr(err)
		}
		if err := s.complaints.AppendStatusLog(txCtx, tx, complaintID, model.StatusLogEntry{
			Status:    in.NextStatus,
			ChangedBy: actor.UserID,
			ChangedAt: now,
			Reason:    in.Reason,
		}); err != nil {
			return err
		}
		if strings.TrimSpace(in.InternalNote) != "" {
			return s.complaints.AppendInternalNote(txCtx, tx, complaintID, model.InternalNote{
				Note:    in.InternalNote,
				AddedBy: actor.UserID,
				AddedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		return model.Complaint{}, err
	}

	s.log.Info("complaint status changed",
		zap.String("complaint_id", complaintID.String()),
		zap.Int64("actor_id", actor.UserID),
		zap.String("from", string(complaint.Status)),
		zap.String("to", string(in.NextStatus)))

	return s.loadComplaint(ctx, complaintID)
}

// Close is the owner accepting a resolution.
func (s *Service) Close(ctx context.Context, actorID int64, complaintID uuid.UUID, feedback string) (model.Complaint, error) {
	if !validate.WithinLimit(feedback, maxReasonLength) {
		return model.Complaint{}, fieldError("feedback", fmt.Sprintf("must be at most %d characters", maxReasonLength))
	}

	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return model.Complaint{}, err
	}
	if complaint.UserID != actorID {
		return model.Complaint{}, fmt.Errorf("%w: only the owner may close", ErrUnauthorized)
	}

	if err := s.checkEdge(complaint.Status, enums.StatusClosed); err != nil {
		return model.Complaint{}, err
	}

	now := s.now().UTC()

	err = s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if err := s.complaints.MarkClosed(txCtx, tx, complaintID, complaint.Status, feedback, now); err != nil {
			return s.mapStoreErr(err)
		}
		return s.complaints.AppendStatusLog(txCtx, tx, complaintID, model.StatusLogEntry{
			Status:    enums.StatusClosed,
			ChangedBy: actorID,
			ChangedAt: now,
			Reason:    "resolution accepted by owner",
		})
	})
	if err != nil {
		return model.Complaint{}, err
	}

	s.log.Info("complaint closed",
		zap.String("complaint_id", complaintID.String()),
		zap.Int64("user_id", actorID))

	return s.loadComplaint(ctx, complaintID)
}

// Reopen is the owner rejecting a resolution, bounded by the reopen policy.
func (s *Service) Reopen(ctx context.Context, actorID int64, complaintID uuid.UUID, reason string) (model.Complaint, error) {
	if !validate.Required(reason) {
		return model.Complaint{}, fieldError("reason", "is required to reopen")
	}
	if !validate.WithinLimit(reason, maxReasonLength) {
		return model.Complaint{}, fieldError("reason", fmt.Sprintf("must be at most %d characters", maxReasonLength))
	}

	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return model.Complaint{}, err
	}
	if complaint.UserID != actorID {
		return model.Complaint{}, fmt.Errorf("%w: only the owner may reopen", ErrUnauthorized)
	}

	if err := s.checkEdge(complaint.Status, enums.StatusReopened); err != nil {
		return model.Complaint{}, err
	}

	if ok, _ := rules.CanReopen(complaint.ReopenCount, s.cfg.MaxReopens); !ok {
		return model.Complaint{}, fmt.Errorf("%w: %d of %d reopens used",
			ErrReopenLimitReached, complaint.ReopenCount, s.cfg.MaxReopens)
	}

	assigneeID := s.resolveAssignee(ctx, complaint.Department)
	now := s.now().UTC()

	err = s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if err := s.complaints.MarkReopened(txCtx, tx, complaintID, complaint.Status, reason, s.cfg.MaxReopens, assigneeID, now); err != nil {
			return s.mapStoreErr(err)
		}
		if err := s.complaints.AppendReopenLog(txCtx, tx, complaintID, model.ReopenLogEntry{
			ReopenedBy: actorID,
			Reason:     reason,
			ReopenedAt: now,
		}); err != nil {
			return err
		}
		return s.complaints.AppendStatusLog(txCtx, tx, complaintID, model.StatusLogEntry{
			Status:    enums.StatusReopened,
			ChangedBy: actorID,
			ChangedAt: now,
			Reason:    reason,
		})
	})
	if err != nil {
		return model.Complaint{}, err
	}

	s.log.Info("complaint reopened",
		zap.String("complaint_id", complaintID.String()),
		zap.Int64("user_id", actorID),
		zap.Int("reopen_count", complaint.ReopenCount+1))

	return s.loadComplaint(ctx, complaintID)
}

// SoftDelete hides the complaint without touching its status. Active
// workflow statuses cannot be deleted.
func (s *Service) SoftDelete(ctx context.Context, actor auth.Identity, complaintID uuid.UUID) error {
	complaint, err := s.loadComplaint(ctx, complaintID)
	if err != nil {
		return err
	}
	if complaint.UserID != actor.UserID && actor.Role != enums.RoleSuperAdmin {
		return fmt.Errorf("%w: only the owner or a super admin may delete", ErrUnauthorized)
	}

	if !rules.CanDelete(complaint.Status) {
		return fmt.Errorf("%w: status %s", ErrDeleteNotAllowed, complaint.Status)
	}

	if err := s.complaints.SoftDelete(ctx, complaintID, complaint.Status, actor.UserID, s.now().UTC()); err != nil {
		return s.mapStoreErr(err)
	}

	s.log.Info("complaint soft deleted",
		zap.String("complaint_id", complaintID.String()),
		zap.Int64("actor_id", actor.UserID))

	return nil
}

func (s *Service) checkEdge(current, next enums.ComplaintStatus) error {
	if err := rules.ValidateTransition(current, next); err != nil {
		if errors.Is(err, rules.ErrInvalidState) {
			return fieldError("status", "is not a recognized status")
		}
		return &TransitionError{
			From:    current,
			To:      next,
			Allowed: rules.AllowedNext(current),
		}
	}
	return nil
}

func (s *Service) checkRoleEdge(role enums.Role, current, next enums.ComplaintStatus) error {
	if err := rules.CanChangeStatus(role, current, next); err != nil {
		if errors.Is(err, rules.ErrUnknownRole) {
			return fmt.Errorf("%w: unknown role", ErrUnauthorized)
		}
		return &TransitionError{
			From:    current,
			To:      next,
			Allowed: rules.PermittedEdges(role)[current],
			Role:    role,
		}
	}
	return nil
}
