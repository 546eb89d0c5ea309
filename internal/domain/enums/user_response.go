package enums

// UserResponseStatus captures how the submitter reacted to a resolution.
type UserResponseStatus string

const (
	UserResponsePendingReview UserResponseStatus = "PENDING_REVIEW"
	UserResponseAccepted      UserResponseStatus = "ACCEPTED"
	UserResponseRejected      UserResponseStatus = "REJECTED"
)
