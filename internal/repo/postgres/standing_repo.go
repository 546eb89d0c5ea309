package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicstack/grievance-backend/internal/domain/model"
)

// StandingRepo stores per-submitter fraud standing: the block flag and the
// outstanding penalty balance.
type StandingRepo struct {
	pool *pgxpool.Pool
}

func NewStandingRepo(pool *pgxpool.Pool) *StandingRepo {
	return &StandingRepo{pool: pool}
}

// GetOrCreateForUpdate loads the submitter's standing row under a row lock,
// inserting a clean row first if none exists. Concurrent submissions by the
// same user serialize on this lock.
func (r *StandingRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID int64) (model.SubmitterStanding, error) {
	if tx == nil {
		return model.SubmitterStanding{}, fmt.Errorf("transaction is required")
	}
	if userID <= 0 {
		return model.SubmitterStanding{}, fmt.Errorf("invalid user id")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO submitter_standings (user_id, updated_at)
VALUES ($1, NOW())
ON CONFLICT (user_id) DO NOTHING
`, userID); err != nil {
		return model.SubmitterStanding{}, fmt.Errorf("ensure standing row: %w", err)
	}

	var s model.SubmitterStanding
	err := tx.QueryRow(ctx, `
SELECT user_id, blocked, penalty_due, penalty_paid, blocked_reason, blocked_at, updated_at
FROM submitter_standings
WHERE user_id = $1
FOR UPDATE
`, userID).Scan(&s.UserID, &s.Blocked, &s.PenaltyDue, &s.PenaltyPaid, &s.BlockedReason, &s.BlockedAt, &s.UpdatedAt)
	if err != nil {
		return model.SubmitterStanding{}, fmt.Errorf("select standing for update: %w", err)
	}

	return s, nil
}

// ApplyPenalty blocks the submitter and adds the penalty amount. The caller
// must hold the row lock from GetOrCreateForUpdate in the same transaction.
func (r *StandingRepo) ApplyPenalty(ctx context.Context, tx pgx.Tx, userID int64, amount int64, reason string, at time.Time) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if amount < 0 {
		return fmt.Errorf("penalty amount must be non-negative")
	}

	if _, err := tx.Exec(ctx, `
UPDATE submitter_standings
SET blocked = TRUE,
	penalty_due = penalty_due + $2,
	penalty_paid = FALSE,
	blocked_reason = $3,
	blocked_at = COALESCE(blocked_at, $4),
	updated_at = NOW()
WHERE user_id = $1
`, userID, amount, reason, at); err != nil {
		return fmt.Errorf("apply penalty: %w", err)
	}

	return nil
}

// SettlePenalty records full payment of the outstanding balance and lifts
// the block. Partial payments are not supported.
func (r *StandingRepo) SettlePenalty(ctx context.Context, tx pgx.Tx, userID int64) (model.SubmitterStanding, error) {
	if tx == nil {
		return model.SubmitterStanding{}, fmt.Errorf("transaction is required")
	}

	var s model.SubmitterStanding
	err := tx.QueryRow(ctx, `
UPDATE submitter_standings
SET penalty_due = 0,
	penalty_paid = TRUE,
	blocked = FALSE,
	blocked_reason = '',
	updated_at = NOW()
WHERE user_id = $1
RETURNING user_id, blocked, penalty_due, penalty_paid, blocked_reason, blocked_at, updated_at
`, userID).Scan(&s.UserID, &s.Blocked, &s.PenaltyDue, &s.PenaltyPaid, &s.BlockedReason, &s.BlockedAt, &s.UpdatedAt)
	if err != nil {
		return model.SubmitterStanding{}, fmt.Errorf("settle penalty: %w", err)
	}

	return s, nil
}

// Get reads the standing without locking; absent rows mean a clean record.
func (r *StandingRepo) Get(ctx context.Context, userID int64) (model.SubmitterStanding, error) {
	if r.pool == nil {
		return model.SubmitterStanding{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return model.SubmitterStanding{}, fmt.Errorf("invalid user id")
	}

	var s model.SubmitterStanding
	err := r.pool.QueryRow(ctx, `
SELECT user_id, blocked, penalty_due, penalty_paid, blocked_reason, blocked_at, updated_at
FROM submitter_standings
WHERE user_id = $1
`, userID).Scan(&s.UserID, &s.Blocked, &s.PenaltyDue, &s.PenaltyPaid, &s.BlockedReason, &s.BlockedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.SubmitterStanding{UserID: userID}, nil
		}
		return model.SubmitterStanding{}, fmt.Errorf("select standing: %w", err)
	}

	return s, nil
}
