package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
)

var (
	ErrInvalidState   = errors.New("invalid complaint status")
	ErrNoOpTransition = errors.New("new status must differ from current status")
	ErrIllegalEdge    = errors.New("status transition not allowed")
)

// statusTransitions is the single source of truth for the lifecycle state
// machine. REJECTED, DUPLICATE and CLOSED are terminal.
var statusTransitions = map[enums.ComplaintStatus][]enums.ComplaintStatus{
	enums.StatusPending:    {enums.StatusSubmitted, enums.StatusRejected},
	enums.StatusSubmitted:  {enums.StatusInProgress, enums.StatusRejected, enums.StatusDuplicate},
	enums.StatusInProgress: {enums.StatusResolved, enums.StatusRejected},
	enums.StatusResolved:   {enums.StatusClosed, enums.StatusReopened},
	enums.StatusRejected:   {},
	enums.StatusDuplicate:  {},
	enums.StatusClosed:     {},
	enums.StatusReopened:   {enums.StatusInProgress, enums.StatusRejected},
}

// ValidateTransition checks current → next against the transition table.
// Check order is fixed: state validity, then no-op, then edge membership.
func ValidateTransition(current, next enums.ComplaintStatus) error {
	if !current.Valid() {
		return fmt.Errorf("invalid current status %q: %w", string(current), ErrInvalidState)
	}
	if !next.Valid() {
		return fmt.Errorf("invalid new status %q: %w", string(next), ErrInvalidState)
	}
	if current == next {
		return fmt.Errorf("complaint is already %s: %w", string(current), ErrNoOpTransition)
	}
	for _, allowed := range statusTransitions[current] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("cannot transition from %s to %s (allowed: %s): %w",
		string(current), string(next), joinStatuses(AllowedNext(current)), ErrIllegalEdge)
}

// AllowedNext returns the outgoing edges for a status, empty for terminal or
// unknown statuses.
func AllowedNext(current enums.ComplaintStatus) []enums.ComplaintStatus {
	allowed := statusTransitions[current]
	out := make([]enums.ComplaintStatus, len(allowed))
	copy(out, allowed)
	return out
}

func IsTerminal(status enums.ComplaintStatus) bool {
	return status.Valid() && len(statusTransitions[status]) == 0
}

func AllStatuses() []enums.ComplaintStatus {
	return []enums.ComplaintStatus{
		enums.StatusPending,
		enums.StatusSubmitted,
		enums.StatusInProgress,
		enums.StatusResolved,
		enums.StatusRejected,
		enums.StatusDuplicate,
		enums.StatusClosed,
		enums.StatusReopened,
	}
}

func joinStatuses(statuses []enums.ComplaintStatus) string {
	if len(statuses) == 0 {
		return "none"
	}
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
