package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	complaintssvc "github.com/civicstack/grievance-backend/internal/services/complaints"
	"github.com/civicstack/grievance-backend/internal/transport/http/dto"
	httperrors "github.com/civicstack/grievance-backend/internal/transport/http/errors"
)

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeForbidden(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusForbidden, httperrors.APIError{Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

// writeComplaintError maps the lifecycle error taxonomy onto HTTP statuses.
func writeComplaintError(w http.ResponseWriter, err error) {
	var (
		transitionErr *complaintssvc.TransitionError
		policyErr     *complaintssvc.PolicyError
		rateErr       *complaintssvc.RateLimitError
	)

	switch {
	case errors.As(err, &transitionErr):
		allowed := make([]string, 0, len(transitionErr.Allowed))
		for _, s := range transitionErr.Allowed {
			allowed = append(allowed, string(s))
		}
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "INVALID_TRANSITION",
			Message: transitionErr.Error(),
			Details: httperrors.TransitionDetails{
				From:    string(transitionErr.From),
				To:      string(transitionErr.To),
				Allowed: allowed,
				Role:    string(transitionErr.Role),
			},
		})
	case errors.As(err, &policyErr):
		httperrors.Write(w, http.StatusForbidden, httperrors.APIError{
			Code:    "POLICY_BLOCKED",
			Message: policyErr.Error(),
			Details: httperrors.PolicyDetails{
				Reason:         policyErr.Reason,
				PenaltyDue:     policyErr.PenaltyDue,
				RequiredAction: policyErr.RequiredAction,
			},
		})
	case errors.As(err, &rateErr):
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "RATE_LIMITED",
			Message:       "too many submissions",
			RetryAfterSec: rateErr.RetryAfterSec,
		})
	case errors.Is(err, complaintssvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, complaintssvc.ErrNotFound):
		writeNotFound(w, "COMPLAINT_NOT_FOUND", "complaint not found")
	case errors.Is(err, complaintssvc.ErrUnauthorized):
		writeForbidden(w, "FORBIDDEN", err.Error())
	case errors.Is(err, complaintssvc.ErrConcurrentModification):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "CONCURRENT_MODIFICATION",
			Message: "complaint was modified concurrently, reload and retry",
		})
	case errors.Is(err, complaintssvc.ErrReopenLimitReached):
		writeForbidden(w, "REOPEN_LIMIT_REACHED", err.Error())
	case errors.Is(err, complaintssvc.ErrDeleteNotAllowed):
		writeForbidden(w, "DELETE_NOT_ALLOWED", err.Error())
	case errors.Is(err, complaintssvc.ErrDependencyUnavailable):
		httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
			Code:    "DEPENDENCY_UNAVAILABLE",
			Message: "a required service is unavailable, try again later",
		})
	default:
		writeInternal(w, "INTERNAL_ERROR", "request failed")
	}
}

func complaintIDFromURL(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func complaintList(complaints []dto.ComplaintResponse) dto.ComplaintListResponse {
	return dto.ComplaintListResponse{Complaints: complaints, TotalCount: len(complaints)}
}
