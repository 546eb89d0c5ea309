package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authsvc "github.com/civicstack/grievance-backend/internal/services/auth"
	complaintssvc "github.com/civicstack/grievance-backend/internal/services/complaints"
	"github.com/civicstack/grievance-backend/internal/transport/http/dto"
	httperrors "github.com/civicstack/grievance-backend/internal/transport/http/errors"
)

// AdminHandler covers super-admin review: fake flags, risk triage and
// penalty settlement.
type AdminHandler struct {
	service *complaintssvc.Service
}

func NewAdminHandler(service *complaintssvc.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

func (h *AdminHandler) Flagged(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "COMPLAINTS_SERVICE_UNAVAILABLE", "complaints service is unavailable")
		return
	}

	complaints, err := h.service.FlaggedComplaints(r.Context(), identity)
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

func (h *AdminHandler) HighRisk(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	complaints, err := h.service.HighRisk(r.Context(), identity)
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

func (h *AdminHandler) MarkFake(w http.ResponseWriter, r *http.Request) {
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

	var req dto.MarkFakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid json body")
		return
	}

	if err := h.service.MarkFake(r.Context(), identity, id, req.Note); err != nil {
		writeComplaintError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) UnmarkFake(w http.ResponseWriter, r *http.Request) {
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

	var req dto.MarkFakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid json body")
		return
	}

	if err := h.service.UnmarkFake(r.Context(), identity, id, req.Note); err != nil {
		writeComplaintError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) SettlePenalty(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "user id must be a positive integer")
		return
	}

	standing, err := h.service.SettlePenalty(r.Context(), identity, userID)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.NewStandingResponse(standing))
}
