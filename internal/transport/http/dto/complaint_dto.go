package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/civicstack/grievance-backend/internal/domain/model"
)

type ComplaintResponse struct {
	ID          uuid.UUID `json:"id"`
	UserID      int64     `json:"user_id"`
	Text        string    `json:"complaint_text"`
	Images      []string  `json:"images"`
	VideoURL    *string   `json:"video_url,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Department  string    `json:"department"`
	Confidence  float64   `json:"confidence"`
	AISummary   *string   `json:"ai_summary,omitempty"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	ReopenCount int       `json:"reopen_count"`

	IsDuplicate bool        `json:"is_duplicate"`
	DuplicateOf *uuid.UUID  `json:"duplicate_of,omitempty"`
	Duplicates  []uuid.UUID `json:"duplicates,omitempty"`

	RiskScore     float64 `json:"risk_score"`
	IsFlaggedFake bool    `json:"is_flagged_fake"`

	AssignedAdminID   *int64  `json:"assigned_admin_id,omitempty"`
	DepartmentSummary *string `json:"department_summary,omitempty"`

	IsSent      bool       `json:"is_sent"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func NewComplaintResponse(c model.Complaint) ComplaintResponse {
	return ComplaintResponse{
		ID:                c.ID,
		UserID:            c.UserID,
		Text:              c.Text,
		Images:            c.Images,
		VideoURL:          c.VideoURL,
		Latitude:          c.Latitude,
		Longitude:         c.Longitude,
		Department:        c.Department,
		Confidence:        c.Confidence,
		AISummary:         c.AISummary,
		Priority:          string(c.Priority),
		Status:            string(c.Status),
		ReopenCount:       c.ReopenCount,
		IsDuplicate:       c.IsDuplicate,
		DuplicateOf:       c.DuplicateOf,
		Duplicates:        c.Duplicates,
		RiskScore:         c.RiskScore,
		IsFlaggedFake:     c.IsFlaggedFake,
		AssignedAdminID:   c.AssignedAdminID,
		DepartmentSummary: c.DepartmentSummary,
		IsSent:            c.IsSent,
		SubmittedAt:       c.SubmittedAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

type CreateComplaintResponse struct {
	Complaint   ComplaintResponse `json:"complaint"`
	PenaltyDue  int64             `json:"penalty_due,omitempty"`
	IsDuplicate bool              `json:"is_duplicate"`
	DuplicateOf *uuid.UUID        `json:"duplicate_of,omitempty"`
	Similarity  float64           `json:"similarity,omitempty"`
	DistanceM   float64           `json:"distance_m,omitempty"`
}

type ComplaintListResponse struct {
	Complaints []ComplaintResponse `json:"complaints"`
	TotalCount int                 `json:"total_count"`
}

type ChangeStatusRequest struct {
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	InternalNote string `json:"internal_note,omitempty"`
}

type CloseComplaintRequest struct {
	Feedback string `json:"feedback"`
}

type ReopenComplaintRequest struct {
	Reason string `json:"reason"`
}

type StatusLogResponse struct {
	Status        string    `json:"status"`
	ChangedBy     int64     `json:"changed_by"`
	ChangedByName string    `json:"changed_by_name,omitempty"`
	ChangedByRole string    `json:"changed_by_role,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
	Reason        string    `json:"reason,omitempty"`
}

type ReopenLogResponse struct {
	ReopenedBy     int64     `json:"reopened_by"`
	ReopenedByName string    `json:"reopened_by_name,omitempty"`
	Reason         string    `json:"reason"`
	ReopenedAt     time.Time `json:"reopened_at"`
}

type UserResponseDTO struct {
	Status       string     `json:"status"`
	ResponseDate *time.Time `json:"response_date,omitempty"`
	Feedback     string     `json:"feedback,omitempty"`
}

type TimelineResponse struct {
	ComplaintID  uuid.UUID           `json:"complaint_id"`
	Status       string              `json:"status"`
	StatusLogs   []StatusLogResponse `json:"status_logs"`
	ReopenLogs   []ReopenLogResponse `json:"reopen_logs"`
	UserResponse UserResponseDTO     `json:"user_response"`
	Duplicates   []uuid.UUID         `json:"duplicates,omitempty"`
}

type StandingResponse struct {
	UserID        int64      `json:"user_id"`
	Blocked       bool       `json:"blocked"`
	PenaltyDue    int64      `json:"penalty_due"`
	PenaltyPaid   bool       `json:"penalty_paid"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `json:"blocked_at,omitempty"`
}

func NewStandingResponse(s model.SubmitterStanding) StandingResponse {
	return StandingResponse{
		UserID:        s.UserID,
		Blocked:       s.Blocked,
		PenaltyDue:    s.PenaltyDue,
		PenaltyPaid:   s.PenaltyPaid,
		BlockedReason: s.BlockedReason,
		BlockedAt:     s.BlockedAt,
	}
}

type DepartmentSummaryRequest struct {
	Summary string `json:"summary"`
}

type MarkFakeRequest struct {
	Note string `json:"note"`
}

type RegenerateSummaryResponse struct {
	Summary string `json:"summary"`
}
