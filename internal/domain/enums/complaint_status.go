package enums

type ComplaintStatus string

const (
	StatusPending    ComplaintStatus = "PENDING"
	StatusSubmitted  ComplaintStatus = "SUBMITTED"
	StatusInProgress ComplaintStatus = "IN_PROGRESS"
	StatusResolved   ComplaintStatus = "RESOLVED"
	StatusRejected   ComplaintStatus = "REJECTED"
	StatusDuplicate  ComplaintStatus = "DUPLICATE"
	StatusClosed     ComplaintStatus = "CLOSED"
	StatusReopened   ComplaintStatus = "REOPENED"
)

func (s ComplaintStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusInProgress, StatusResolved,
		StatusRejected, StatusDuplicate, StatusClosed, StatusReopened:
		return true
	}
	return false
}
