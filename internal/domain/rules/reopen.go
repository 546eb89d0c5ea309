package rules

import "github.com/civicstack/grievance-backend/internal/domain/enums"

// DefaultMaxReopens bounds how many times a submitter may reject a
// resolution and push the complaint back to the department.
const DefaultMaxReopens = 2

// CanReopen reports whether another reopen is allowed and how many attempts
// remain after this one would be consumed. The RESOLVED → REOPENED edge is
// treated as unavailable once the limit is reached, even though the
// transition table lists it.
func CanReopen(reopenCount, maxReopens int) (bool, int) {
	if maxReopens <= 0 {
		maxReopens = DefaultMaxReopens
	}
	if reopenCount >= maxReopens {
		return false, 0
	}
	return true, maxReopens - reopenCount
}

// CanDelete reports whether a complaint may be soft-deleted. Complaints under
// active handling must not disappear from department queues.
func CanDelete(status enums.ComplaintStatus) bool {
	switch status {
	case enums.StatusSubmitted, enums.StatusInProgress, enums.StatusResolved, enums.StatusReopened:
		return false
	}
	return true
}
