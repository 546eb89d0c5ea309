package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
	authsvc "github.com/civicstack/grievance-backend/internal/services/auth"
	complaintssvc "github.com/civicstack/grievance-backend/internal/services/complaints"
	"github.com/civicstack/grievance-backend/internal/transport/http/dto"
	httperrors "github.com/civicstack/grievance-backend/internal/transport/http/errors"
)

// DepartmentHandler covers the admin-side workflow endpoints: the
// department queue and status mutations on complaints in it.
type DepartmentHandler struct {
	service *complaintssvc.Service
}

func NewDepartmentHandler(service *complaintssvc.Service) *DepartmentHandler {
	return &DepartmentHandler{service: service}
}

func (h *DepartmentHandler) Queue(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "COMPLAINTS_SERVICE_UNAVAILABLE", "complaints service is unavailable")
		return
	}

	department := chi.URLParam(r, "department")
	complaints, err := h.service.DepartmentQueue(r.Context(), identity, department)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	out := make([]dto.ComplaintResponse, 0, len(complaints))
	for _, c := range complaints {
		out = append(out, dto.NewComplaintResponse(c))
	}
	httperrors.Write(w, http.StatusOK, complaintList(out))
}

func (h *DepartmentHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	id, ok := complaintIDFromURL(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "complaint id must be a uuid")
		return
	}

	var req dto.ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid json body")
		return
	}

	complaint, err := h.service.ChangeStatus(r.Context(), identity, id, complaintssvc.ChangeStatusInput{
		NextStatus:   enums.ComplaintStatus(req.Status),
		Reason:       req.Reason,
		InternalNote: req.InternalNote,
	})
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.NewComplaintResponse(complaint))
}

func (h *DepartmentHandler) SetSummary(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	id, ok := complaintIDFromURL(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "complaint id must be a uuid")
		return
	}

	var req dto.DepartmentSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid json body")
		return
	}

	if err := h.service.SetDepartmentSummary(r.Context(), identity, id, req.Summary); err != nil {
		writeComplaintError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DepartmentHandler) RegenerateSummary(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	id, ok := complaintIDFromURL(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "complaint id must be a uuid")
		return
	}

	summary, err := h.service.RegenerateSummary(r.Context(), identity, id)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.RegenerateSummaryResponse{Summary: summary})
}
