package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicstack/grievance-backend/internal/domain/model"
)

// Job purges soft-deleted complaints after the retention window, removing
// their evidence objects from storage first. Rows inside the window stay
// untouched so a deletion can still be audited.
type Job struct {
	complaints complaintPurgeStore
	storage    objectDeleter
	retention  time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

type complaintPurgeStore interface {
	ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]model.Complaint, error)
	HardDelete(ctx context.Context, id uuid.UUID) error
}

type objectDeleter interface {
	Delete(ctx context.Context, key string) error
}

func New(complaints complaintPurgeStore, storage objectDeleter, retention time.Duration, logger *zap.Logger) *Job {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		complaints: complaints,
		storage:    storage,
		retention:  retention,
		now:        time.Now,
		logger:     logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.complaints == nil {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	expired, err := j.complaints.ListDeletedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list expired complaints: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	for _, complaint := range expired {
		if j.storage != nil {
			keys := complaint.Images
			if complaint.VideoURL != nil {
				keys = append(keys, *complaint.VideoURL)
			}
			for _, key := range keys {
				if err := j.storage.Delete(ctx, key); err != nil {
					j.logger.Warn("failed to delete evidence object",
						zap.Error(err), zap.String("object_key", key))
				}
			}
		}
		if err := j.complaints.HardDelete(ctx, complaint.ID); err != nil {
			return fmt.Errorf("purge complaint %s: %w", complaint.ID, err)
		}
	}

	j.logger.Info("retention purge completed", zap.Int("purged", len(expired)))
	return nil
}
