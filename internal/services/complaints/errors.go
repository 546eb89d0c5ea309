package complaints

import (
	"errors"
	"fmt"
	"strings"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("complaint not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrPolicyBlocked          = errors.New("submission blocked by policy")
	ErrConcurrentModification = errors.New("complaint was modified concurrently")
	ErrDependencyUnavailable  = errors.New("dependency unavailable")
	ErrRateLimited            = errors.New("submission rate limit exceeded")
	ErrReopenLimitReached     = errors.New("maximum reopen limit reached")
	ErrDeleteNotAllowed       = errors.New("complaint cannot be deleted in its current status")
)

// TransitionError carries the rejected edge and, for role rejections, the
// edges the actor may still take from the current status.
type TransitionError struct {
	From    enums.ComplaintStatus
	To      enums.ComplaintStatus
	Allowed []enums.ComplaintStatus
	Role    enums.Role
}

func (e *TransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}

	if e.Role != "" {
		return fmt.Sprintf("invalid status transition: role %s may not move %s -> %s (allowed: [%s])",
			e.Role, e.From, e.To, strings.Join(allowed, " "))
	}
	return fmt.Sprintf("invalid status transition: %s -> %s (allowed: [%s])",
		e.From, e.To, strings.Join(allowed, " "))
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// PolicyError carries the fraud-gate verdict: what blocked the submission,
// the amount owed and what the submitter must do next.
type PolicyError struct {
	Reason         string
	PenaltyDue     int64
	RequiredAction string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("submission blocked by policy: %s (penalty due: %d, required: %s)",
		e.Reason, e.PenaltyDue, e.RequiredAction)
}

func (e *PolicyError) Unwrap() error { return ErrPolicyBlocked }

// RateLimitError reports how long the submitter has to wait.
type RateLimitError struct {
	RetryAfterSec int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("submission rate limit exceeded, retry after %ds", e.RetryAfterSec)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

func fieldError(field, problem string) error {
	return fmt.Errorf("%w: field %q %s", ErrValidation, field, problem)
}
