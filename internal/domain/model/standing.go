package model

import "time"

// SubmitterStanding is the fraud-gate view of a submitter. Created with zero
// values, set on the first fake flag, cleared only by an external penalty
// payment.
type SubmitterStanding struct {
	UserID        int64      `json:"user_id"`
	Blocked       bool       `json:"blocked"`
	PenaltyDue    int64      `json:"penalty_due"`
	PenaltyPaid   bool       `json:"penalty_paid"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `json:"blocked_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
