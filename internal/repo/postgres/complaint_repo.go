package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
	"github.com/civicstack/grievance-backend/internal/domain/model"
)

var (
	ErrComplaintNotFound = errors.New("complaint not found")

	// ErrStaleStatus means the row's status no longer matches the status the
	// caller authorized against. The caller must re-read and retry.
	ErrStaleStatus = errors.New("complaint status changed concurrently")
)

type ComplaintRepo struct {
	pool *pgxpool.Pool
}

func NewComplaintRepo(pool *pgxpool.Pool) *ComplaintRepo {
	return &ComplaintRepo{pool: pool}
}

// StatusLogRecord is a status log entry with the actor resolved for display.
type StatusLogRecord struct {
	Status        enums.ComplaintStatus
	ChangedBy     int64
	ChangedByName string
	ChangedByRole string
	ChangedAt     time.Time
	Reason        string
}

type ReopenLogRecord struct {
	ReopenedBy     int64
	ReopenedByName string
	Reason         string
	ReopenedAt     time.Time
}

const complaintColumns = `
id, user_id, complaint_text, images, video_url, latitude, longitude,
department, confidence, ai_summary, priority, status,
user_response_status, user_response_date, user_response_feedback,
is_duplicate, duplicate_of, risk_score, is_flagged_fake, fake_detection_notes,
assigned_admin_id, department_summary, is_sent, submitted_at, reopen_count,
is_deleted, deleted_by, deleted_at, created_at, updated_at`

func scanComplaint(row pgx.Row) (model.Complaint, error) {
	var c model.Complaint
	err := row.Scan(
		&c.ID, &c.UserID, &c.Text, &c.Images, &c.VideoURL, &c.Latitude, &c.Longitude,
		&c.Department, &c.Confidence, &c.AISummary, &c.Priority, &c.Status,
		&c.UserResponse.Status, &c.UserResponse.ResponseDate, &c.UserResponse.Feedback,
		&c.IsDuplicate, &c.DuplicateOf, &c.RiskScore, &c.IsFlaggedFake, &c.FakeDetectionNotes,
		&c.AssignedAdminID, &c.DepartmentSummary, &c.IsSent, &c.SubmittedAt, &c.ReopenCount,
		&c.IsDeleted, &c.DeletedBy, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Complaint{}, ErrComplaintNotFound
		}
		return model.Complaint{}, fmt.Errorf("scan complaint: %w", err)
	}
	return c, nil
}

func (r *ComplaintRepo) Create(ctx context.Context, tx pgx.Tx, c *model.Complaint) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if c == nil || c.ID == uuid.Nil || c.UserID <= 0 {
		return fmt.Errorf("invalid complaint payload")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO complaints (
	id, user_id, complaint_text, images, video_url, latitude, longitude,
	department, confidence, ai_summary, priority, status,
	user_response_status, user_response_feedback,
	is_duplicate, duplicate_of, risk_score, is_flagged_fake, fake_detection_notes,
	created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12,
	$13, '',
	$14, $15, $16, $17, $18,
	NOW(), NOW()
)
`,
		c.ID, c.UserID, c.Text, c.Images, c.VideoURL, c.Latitude, c.Longitude,
		c.Department, c.Confidence, c.AISummary, c.Priority, c.Status,
		enums.UserResponsePendingReview,
		c.IsDuplicate, c.DuplicateOf, c.RiskScore, c.IsFlaggedFake, c.FakeDetectionNotes,
	); err != nil {
		return fmt.Errorf("insert complaint: %w", err)
	}

	return nil
}

func (r *ComplaintRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Complaint, error) {
	if r.pool == nil {
		return model.Complaint{}, fmt.Errorf("postgres pool is nil")
	}
	if id == uuid.Nil {
		return model.Complaint{}, fmt.Errorf("invalid complaint id")
	}

	return scanComplaint(r.pool.QueryRow(ctx, `
SELECT `+complaintColumns+`
FROM complaints
WHERE id = $1
`, id))
}

// ListRecentByUser returns the duplicate-detection candidate pool: the
// submitter's non-deleted, non-duplicate complaints created at or after the
// cutoff, in persisted (oldest-first) order.
func (r *ComplaintRepo) ListRecentByUser(ctx context.Context, userID int64, since time.Time) ([]model.Complaint, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}

	return r.list(ctx, `
SELECT `+complaintColumns+`
FROM complaints
WHERE user_id = $1
  AND created_at >= $2
  AND is_deleted = FALSE
  AND is_duplicate = FALSE
ORDER BY created_at ASC, id ASC
`, userID, since)
}

func (r *ComplaintRepo) ListByUser(ctx context.Context, userID int64) ([]model.Complaint, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}

	return r.list(ctx, `
SELECT `+complaintColumns+`
FROM complaints
WHERE user_id = $1
  AND is_deleted = FALSE
ORDER BY created_at DESC, id DESC
`, userID)
}

// ListByDepartment returns the department dashboard queue: sent, non-deleted
// complaints for the department, newest submission first.
func (r *ComplaintRepo) ListByDepartment(ctx context.Context, department string) ([]model.Complaint, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(department) == "" {
		return nil, fmt.Errorf("department is required")
	}

	return r.list(ctx, `
SELECT `+complaintColumns+`
FROM complaints
WHERE department = $1
  AND is_sent = TRUE
  AND is_deleted = FALSE
ORDER BY submitted_at DESC NULLS LAST, id DESC
`, department)
}

func (r *ComplaintRepo) ListFlaggedFake(ctx context.Context) ([]model.Complaint, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	return r.list(ctx, `
SELECT `+complaintColumns+`
FROM complaints
WHERE is_flagged_fake = TRUE
  AND is_deleted = FALSE
ORDER BY created_at DESC, id DESC
`)
}

func (r *ComplaintRepo) ListHighRisk(ctx context.Context, threshold float64) ([]model.Complaint, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	return r.list(ctx, `
SELECT `+complaintColumns+`
FROM complaints
WHERE risk_score >= $1
  AND is_deleted = FALSE
ORDER BY risk_score DESC, id DESC
`, threshold)
}

// ListDeletedBefore returns soft-deleted complaints whose deletion happened
// before the cutoff, for the retention purge.
func (r *ComplaintRepo) ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]model.Complaint, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	return r.list(ctx, `
SELECT `+complaintColumns+`
FROM complaints
WHERE is_deleted = TRUE
  AND deleted_at < $1
ORDER BY deleted_at ASC, id ASC
`, cutoff)
}

// HardDelete removes a complaint row and its log entries for good. Only the
// retention purge calls this, and only for rows already soft deleted.
func (r *ComplaintRepo) HardDelete(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	for _, query := range []string{
		`DELETE FROM complaint_status_logs WHERE complaint_id = $1`,
		`DELETE FROM complaint_reopen_logs WHERE complaint_id = $1`,
		`DELETE FROM complaint_internal_notes WHERE complaint_id = $1`,
		`DELETE FROM complaints WHERE id = $1 AND is_deleted = TRUE`,
	} {
		if _, err := r.pool.Exec(ctx, query, id); err != nil {
			return fmt.Errorf("hard delete complaint: %w", err)
		}
	}

	return nil
}

// ListDuplicatesOf returns the ids of complaints linked to the canonical one.
func (r *ComplaintRepo) ListDuplicatesOf(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("invalid complaint id")
	}

	rows, err := r.pool.Query(ctx, `
SELECT id
FROM complaints
WHERE duplicate_of = $1
ORDER BY created_at ASC, id ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("list duplicates: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var dup uuid.UUID
		if err := rows.Scan(&dup); err != nil {
			return nil, fmt.Errorf("scan duplicate id: %w", err)
		}
		ids = append(ids, dup)
	}
	return ids, rows.Err()
}

// UpdateStatus performs the compare-and-apply status mutation: the update
// only lands if the stored status still equals the status the authorization
// decision was computed against. assigneeID is nil unless the actor should
// claim an unassigned complaint; owners never become assignees.
func (r *ComplaintRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected, next enums.ComplaintStatus, assigneeID *int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	tag, err := tx.Exec(ctx, `
UPDATE complaints
SET status = $3, assigned_admin_id = COALESCE(assigned_admin_id, $4), updated_at = NOW()
WHERE id = $1 AND status = $2 AND is_deleted = FALSE
`, id, expected, next, assigneeID)
	if err != nil {
		return fmt.Errorf("update complaint status: %w", err)
	}

	return r.checkApplied(ctx, tx, id, tag.RowsAffected())
}

// MarkSubmitted applies PENDING → SUBMITTED together with the queue markers.
func (r *ComplaintRepo) MarkSubmitted(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, assigneeID *int64, at time.Time) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	tag, err := tx.Exec(ctx, `
UPDATE complaints
SET status = $3,
	is_sent = TRUE,
	submitted_at = $4,
	assigned_admin_id = COALESCE($5, assigned_admin_id),
	updated_at = NOW()
WHERE id = $1 AND status = $2 AND is_deleted = FALSE
`, id, expected, enums.StatusSubmitted, at, assigneeID)
	if err != nil {
		return fmt.Errorf("mark complaint submitted: %w", err)
	}

	return r.checkApplied(ctx, tx, id, tag.RowsAffected())
}

// MarkClosed applies RESOLVED → CLOSED and records the accepting response.
func (r *ComplaintRepo) MarkClosed(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, feedback string, at time.Time) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	tag, err := tx.Exec(ctx, `
UPDATE complaints
SET status = $3,
	user_response_status = $4,
	user_response_date = $5,
	user_response_feedback = $6,
	updated_at = NOW()
WHERE id = $1 AND status = $2 AND is_deleted = FALSE
`, id, expected, enums.StatusClosed, enums.UserResponseAccepted, at, feedback)
	if err != nil {
		return fmt.Errorf("mark complaint closed: %w", err)
	}

	return r.checkApplied(ctx, tx, id, tag.RowsAffected())
}

// MarkReopened applies RESOLVED → REOPENED, records the rejecting response
// and bumps the reopen counter, guarded by maxReopens.
func (r *ComplaintRepo) MarkReopened(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected enums.ComplaintStatus, reason string, maxReopens int, assigneeID *int64, at time.Time) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	tag, err := tx.Exec(ctx, `
UPDATE complaints
SET status = $3,
	user_response_status = $4,
	user_response_date = $5,
	user_response_feedback = $6,
	reopen_count = reopen_count + 1,
	assigned_admin_id = COALESCE($7, assigned_admin_id),
	updated_at = NOW()
WHERE id = $1 AND status = $2 AND is_deleted = FALSE AND reopen_count < $8
`, id, expected, enums.StatusReopened, enums.UserResponseRejected, at, reason, assigneeID, maxReopens)
	if err != nil {
		return fmt.Errorf("mark complaint reopened: %w", err)
	}

	return r.checkApplied(ctx, tx, id, tag.RowsAffected())
}

// SoftDelete sets the delete markers without touching status. The expected
// status guard keeps the delete-eligibility decision from racing a status
// change.
func (r *ComplaintRepo) SoftDelete(ctx context.Context, id uuid.UUID, expected enums.ComplaintStatus, actorID int64, at time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if id == uuid.Nil || actorID <= 0 {
		return fmt.Errorf("invalid soft delete payload")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE complaints
SET is_deleted = TRUE, deleted_by = $3, deleted_at = $4, updated_at = NOW()
WHERE id = $1 AND status = $2 AND is_deleted = FALSE
`, id, expected, actorID, at)
	if err != nil {
		return fmt.Errorf("soft delete complaint: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStaleStatus
	}
	return nil
}

func (r *ComplaintRepo) AppendStatusLog(ctx context.Context, tx pgx.Tx, id uuid.UUID, entry model.StatusLogEntry) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if id == uuid.Nil || entry.ChangedBy <= 0 {
		return fmt.Errorf("invalid status log payload")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO complaint_status_logs (complaint_id, status, changed_by, changed_at, reason)
VALUES ($1, $2, $3, $4, $5)
`, id, entry.Status, entry.ChangedBy, entry.ChangedAt, entry.Reason); err != nil {
		return fmt.Errorf("append status log: %w", err)
	}

	return nil
}

func (r *ComplaintRepo) AppendReopenLog(ctx context.Context, tx pgx.Tx, id uuid.UUID, entry model.ReopenLogEntry) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO complaint_reopen_logs (complaint_id, reopened_by, reason, reopened_at)
VALUES ($1, $2, $3, $4)
`, id, entry.ReopenedBy, entry.Reason, entry.ReopenedAt); err != nil {
		return fmt.Errorf("append reopen log: %w", err)
	}

	return nil
}

func (r *ComplaintRepo) AppendInternalNote(ctx context.Context, tx pgx.Tx, id uuid.UUID, note model.InternalNote) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if strings.TrimSpace(note.Note) == "" {
		return fmt.Errorf("note text is required")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO complaint_internal_notes (complaint_id, note, added_by, added_at)
VALUES ($1, $2, $3, $4)
`, id, note.Note, note.AddedBy, note.AddedAt); err != nil {
		return fmt.Errorf("append internal note: %w", err)
	}

	return nil
}

func (r *ComplaintRepo) CountStatusLogs(ctx context.Context, id uuid.UUID) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM complaint_status_logs
WHERE complaint_id = $1
`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("count status logs: %w", err)
	}
	return count, nil
}

// ListStatusLogs returns the ordered status trail with actor display fields.
func (r *ComplaintRepo) ListStatusLogs(ctx context.Context, id uuid.UUID) ([]StatusLogRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT l.status, l.changed_by, COALESCE(u.name, ''), COALESCE(u.role, ''), l.changed_at, l.reason
FROM complaint_status_logs l
LEFT JOIN users u ON u.id = l.changed_by
WHERE l.complaint_id = $1
ORDER BY l.changed_at ASC, l.id ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("list status logs: %w", err)
	}
	defer rows.Close()

	var logs []StatusLogRecord
	for rows.Next() {
		var rec StatusLogRecord
		if err := rows.Scan(&rec.Status, &rec.ChangedBy, &rec.ChangedByName, &rec.ChangedByRole, &rec.ChangedAt, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		logs = append(logs, rec)
	}
	return logs, rows.Err()
}

func (r *ComplaintRepo) ListReopenLogs(ctx context.Context, id uuid.UUID) ([]ReopenLogRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT l.reopened_by, COALESCE(u.name, ''), l.reason, l.reopened_at
FROM complaint_reopen_logs l
LEFT JOIN users u ON u.id = l.reopened_by
WHERE l.complaint_id = $1
ORDER BY l.reopened_at ASC, l.id ASC
`, id)
	if err != nil {
		return nil, fmt.Errorf("list reopen logs: %w", err)
	}
	defer rows.Close()

	var logs []ReopenLogRecord
	for rows.Next() {
		var rec ReopenLogRecord
		if err := rows.Scan(&rec.ReopenedBy, &rec.ReopenedByName, &rec.Reason, &rec.ReopenedAt); err != nil {
			return nil, fmt.Errorf("scan reopen log: %w", err)
		}
		logs = append(logs, rec)
	}
	return logs, rows.Err()
}

func (r *ComplaintRepo) SetFlaggedFake(ctx context.Context, id uuid.UUID, flagged bool, note string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if id == uuid.Nil {
		return fmt.Errorf("invalid complaint id")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE complaints
SET is_flagged_fake = $2,
	fake_detection_notes = CASE WHEN $3 <> '' THEN array_append(fake_detection_notes, $3) ELSE fake_detection_notes END,
	updated_at = NOW()
WHERE id = $1
`, id, flagged, note)
	if err != nil {
		return fmt.Errorf("set fake flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrComplaintNotFound
	}
	return nil
}

func (r *ComplaintRepo) SetDepartmentSummary(ctx context.Context, id uuid.UUID, summary string, adminID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE complaints
SET department_summary = $2, assigned_admin_id = $3, updated_at = NOW()
WHERE id = $1 AND is_deleted = FALSE
`, id, summary, adminID)
	if err != nil {
		return fmt.Errorf("set department summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrComplaintNotFound
	}
	return nil
}

func (r *ComplaintRepo) SetAISummary(ctx context.Context, id uuid.UUID, summary string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE complaints
SET ai_summary = $2, updated_at = NOW()
WHERE id = $1 AND is_deleted = FALSE
`, id, summary)
	if err != nil {
		return fmt.Errorf("set ai summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrComplaintNotFound
	}
	return nil
}

func (r *ComplaintRepo) list(ctx context.Context, query string, args ...any) ([]model.Complaint, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	defer rows.Close()

	var complaints []model.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, c)
	}
	return complaints, rows.Err()
}

// checkApplied distinguishes a stale-status CAS miss from a missing row.
func (r *ComplaintRepo) checkApplied(ctx context.Context, tx pgx.Tx, id uuid.UUID, affected int64) error {
	if affected > 0 {
		return nil
	}

	var exists bool
	err := tx.QueryRow(ctx, `SELECT TRUE FROM complaints WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrComplaintNotFound
	}
	if err != nil {
		return fmt.Errorf("check complaint existence: %w", err)
	}
	return ErrStaleStatus
}
