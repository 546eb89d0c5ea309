package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
)

// Complaint is the central lifecycle entity. Status mutations go through the
// lifecycle engine only; the status log is append-only and its last entry
// always matches Status.
type Complaint struct {
	ID     uuid.UUID `json:"id"`
	UserID int64     `json:"user_id"`

	Text      string   `json:"complaint_text"`
	Images    []string `json:"images"`
	VideoURL  *string  `json:"video_url,omitempty"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`

	Department string         `json:"department"`
	Confidence float64        `json:"confidence"`
	AISummary  *string        `json:"ai_summary,omitempty"`
	Priority   enums.Priority `json:"priority"`

	Status       enums.ComplaintStatus `json:"status"`
	StatusLogs   []StatusLogEntry      `json:"status_logs"`
	ReopenCount  int                   `json:"reopen_count"`
	ReopenLogs   []ReopenLogEntry      `json:"reopen_logs"`
	UserResponse UserResponse          `json:"user_response"`

	IsDuplicate bool        `json:"is_duplicate"`
	DuplicateOf *uuid.UUID  `json:"duplicate_of,omitempty"`
	Duplicates  []uuid.UUID `json:"duplicates,omitempty"`

	RiskScore          float64  `json:"risk_score"`
	IsFlaggedFake      bool     `json:"is_flagged_fake"`
	FakeDetectionNotes []string `json:"fake_detection_notes,omitempty"`

	AssignedAdminID   *int64         `json:"assigned_admin_id,omitempty"`
	DepartmentSummary *string        `json:"department_summary,omitempty"`
	InternalNotes     []InternalNote `json:"internal_notes,omitempty"`

	IsSent      bool       `json:"is_sent"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`

	IsDeleted bool       `json:"is_deleted"`
	DeletedBy *int64     `json:"deleted_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StatusLogEntry struct {
	Status    enums.ComplaintStatus `json:"status"`
	ChangedBy int64                 `json:"changed_by"`
	ChangedAt time.Time             `json:"changed_at"`
	Reason    string                `json:"reason"`
}

type ReopenLogEntry struct {
	ReopenedBy int64     `json:"reopened_by"`
	Reason     string    `json:"reason"`
	ReopenedAt time.Time `json:"reopened_at"`
}

type InternalNote struct {
	Note    string    `json:"note"`
	AddedBy int64     `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}

type UserResponse struct {
	Status       enums.UserResponseStatus `json:"status"`
	ResponseDate *time.Time               `json:"response_date,omitempty"`
	Feedback     string                   `json:"feedback,omitempty"`
}
