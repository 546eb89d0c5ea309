package rules

import (
	"errors"
	"fmt"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
)

var (
	ErrUnknownRole   = errors.New("unknown role")
	ErrRoleForbidden = errors.New("role may not perform this transition")
)

// rolePermissions narrows the transition table per role. It never widens it:
// CanChangeStatus is applied only after ValidateTransition has passed.
// Department and ownership scoping is enforced by the lifecycle engine.
var rolePermissions = map[enums.Role]map[enums.ComplaintStatus][]enums.ComplaintStatus{
	enums.RoleUser: {
		enums.StatusResolved: {enums.StatusClosed, enums.StatusReopened},
		enums.StatusPending:  {enums.StatusRejected},
	},
	enums.RoleDepartmentAdmin: {
		enums.StatusSubmitted:  {enums.StatusInProgress, enums.StatusRejected},
		enums.StatusInProgress: {enums.StatusResolved, enums.StatusRejected},
		enums.StatusReopened:   {enums.StatusInProgress, enums.StatusRejected},
	},
}

// CanChangeStatus reports whether the role may invoke the current → next
// edge. SUPER_ADMIN may invoke any edge the transition table permits.
func CanChangeStatus(role enums.Role, current, next enums.ComplaintStatus) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q: %w", string(role), ErrUnknownRole)
	}
	if role == enums.RoleSuperAdmin {
		return nil
	}

	allowed, ok := rolePermissions[role][current]
	if !ok {
		return fmt.Errorf("%s cannot initiate changes from status %s: %w",
			string(role), string(current), ErrRoleForbidden)
	}
	for _, status := range allowed {
		if status == next {
			return nil
		}
	}
	return fmt.Errorf("%s cannot change %s to %s: %w",
		string(role), string(current), string(next), ErrRoleForbidden)
}

// PermittedEdges returns the role's allow-list, keyed by current status.
// SUPER_ADMIN returns the full transition table.
func PermittedEdges(role enums.Role) map[enums.ComplaintStatus][]enums.ComplaintStatus {
	source := rolePermissions[role]
	if role == enums.RoleSuperAdmin {
		source = statusTransitions
	}

	out := make(map[enums.ComplaintStatus][]enums.ComplaintStatus, len(source))
	for from, allowed := range source {
		if len(allowed) == 0 {
			continue
		}
		edges := make([]enums.ComplaintStatus, len(allowed))
		copy(edges, allowed)
		out[from] = edges
	}
	return out
}
