package handlers

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"

	authsvc "github.com/civicstack/grievance-backend/internal/services/auth"
	complaintssvc "github.com/civicstack/grievance-backend/internal/services/complaints"
	mediasvc "github.com/civicstack/grievance-backend/internal/services/media"
	"github.com/civicstack/grievance-backend/internal/transport/http/dto"
	httperrors "github.com/civicstack/grievance-backend/internal/transport/http/errors"
)

const maxMultipartMemory = 32 << 20

type ComplaintHandler struct {
	service *complaintssvc.Service
	media   *mediasvc.Service
}

func NewComplaintHandler(service *complaintssvc.Service, media *mediasvc.Service) *ComplaintHandler {
	return &ComplaintHandler{service: service, media: media}
}

// Create accepts a multipart submission: complaint_text, latitude,
// longitude, 1-5 image files and an optional video.
func (h *ComplaintHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil || h.media == nil {
		writeInternal(w, "COMPLAINTS_SERVICE_UNAVAILABLE", "complaints service is unavailable")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "request must be multipart/form-data")
		return
	}

	lat, latErr := strconv.ParseFloat(r.FormValue("latitude"), 64)
	lon, lonErr := strconv.ParseFloat(r.FormValue("longitude"), 64)
	if latErr != nil || lonErr != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "latitude and longitude must be numbers")
		return
	}

	imageKeys, err := h.storeImages(r, identity.UserID)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	videoKey, err := h.storeVideo(r, identity.UserID)
	if err != nil {
		h.media.Cleanup(r.Context(), imageKeys)
		writeComplaintError(w, err)
		return
	}

	input := complaintssvc.CreateInput{
		Text:      r.FormValue("complaint_text"),
		Images:    imageKeys,
		Latitude:  lat,
		Longitude: lon,
	}
	if videoKey != "" {
		input.VideoURL = &videoKey
	}

	result, err := h.service.Create(r.Context(), identity.UserID, input)
	if err != nil {
		// A rejected submission must not leave evidence behind.
		h.media.Cleanup(r.Context(), imageKeys)
		if videoKey != "" {
			h.media.Cleanup(r.Context(), []string{videoKey})
		}
		writeComplaintError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, dto.CreateComplaintResponse{
		Complaint:   dto.NewComplaintResponse(result.Complaint),
		PenaltyDue:  result.PenaltyDue,
		IsDuplicate: result.IsDuplicate,
		DuplicateOf: result.DuplicateOf,
		Similarity:  result.Similarity,
		DistanceM:   result.DistanceM,
	})
}

func (h *ComplaintHandler) storeImages(r *http.Request, userID int64) ([]string, error) {
	files := formFiles(r, "images")
	uploads := make([]mediasvc.Upload, 0, len(files))
	opened := make([]multipart.File, 0, len(files))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()

	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			return nil, fieldUploadError("images")
		}
		opened = append(opened, file)
		uploads = append(uploads, mediasvc.Upload{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
			Size:        header.Size,
		})
	}

	if len(uploads) == 0 {
		return nil, nil
	}
	return h.media.StoreImages(r.Context(), userID, uploads)
}

func (h *ComplaintHandler) storeVideo(r *http.Request, userID int64) (string, error) {
	files := formFiles(r, "video")
	if len(files) == 0 {
		return "", nil
	}
	if len(files) > 1 {
		return "", fieldUploadError("video")
	}

	file, err := files[0].Open()
	if err != nil {
		return "", fieldUploadError("video")
	}
	defer func() { _ = file.Close() }()

	return h.media.StoreVideo(r.Context(), userID, mediasvc.Upload{
		FileName:    files[0].Filename,
		ContentType: files[0].Header.Get("Content-Type"),
		Body:        file,
		Size:        files[0].Size,
	})
}

func (h *ComplaintHandler) Submit(w http.ResponseWriter, r *http.Request) {
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

	complaint, err := h.service.Submit(r.Context(), identity.UserID, id)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.NewComplaintResponse(complaint))
}

func (h *ComplaintHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	complaint, err := h.service.Get(r.Context(), identity, id)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	resp := dto.NewComplaintResponse(complaint)
	if h.media != nil {
		if urls, err := h.media.PresignKeys(r.Context(), complaint.Images); err == nil {
			resp.Images = urls
		}
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func (h *ComplaintHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	complaints, err := h.service.ListMine(r.Context(), identity.UserID)
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

func (h *ComplaintHandler) Timeline(w http.ResponseWriter, r *http.Request) {
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

	timeline, err := h.service.Timeline(r.Context(), identity, id)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	statusLogs := make([]dto.StatusLogResponse, 0, len(timeline.StatusLogs))
	for _, l := range timeline.StatusLogs {
		statusLogs = append(statusLogs, dto.StatusLogResponse{
			Status:        string(l.Status),
			ChangedBy:     l.ChangedBy,
			ChangedByName: l.ChangedByName,
			ChangedByRole: l.ChangedByRole,
			ChangedAt:     l.ChangedAt,
			Reason:        l.Reason,
		})
	}

	reopenLogs := make([]dto.ReopenLogResponse, 0, len(timeline.ReopenLogs))
	for _, l := range timeline.ReopenLogs {
		reopenLogs = append(reopenLogs, dto.ReopenLogResponse{
			ReopenedBy:     l.ReopenedBy,
			ReopenedByName: l.ReopenedByName,
			Reason:         l.Reason,
			ReopenedAt:     l.ReopenedAt,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.TimelineResponse{
		ComplaintID: timeline.ComplaintID,
		Status:      string(timeline.Status),
		StatusLogs:  statusLogs,
		ReopenLogs:  reopenLogs,
		UserResponse: dto.UserResponseDTO{
			Status:       string(timeline.UserResponse.Status),
			ResponseDate: timeline.UserResponse.ResponseDate,
			Feedback:     timeline.UserResponse.Feedback,
		},
		Duplicates: timeline.Duplicates,
	})
}

func (h *ComplaintHandler) Close(w http.ResponseWriter, r *http.Request) {
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

	var req dto.CloseComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid json body")
		return
	}

	complaint, err := h.service.Close(r.Context(), identity.UserID, id, req.Feedback)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.NewComplaintResponse(complaint))
}

func (h *ComplaintHandler) Reopen(w http.ResponseWriter, r *http.Request) {
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

	var req dto.ReopenComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid json body")
		return
	}

	complaint, err := h.service.Reopen(r.Context(), identity.UserID, id, req.Reason)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.NewComplaintResponse(complaint))
}

func (h *ComplaintHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.SoftDelete(r.Context(), identity, id); err != nil {
		writeComplaintError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ComplaintHandler) Standing(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	standing, err := h.service.Standing(r.Context(), identity.UserID)
	if err != nil {
		writeComplaintError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.NewStandingResponse(standing))
}

func formFiles(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	return r.MultipartForm.File[field]
}

func fieldUploadError(field string) error {
	return &uploadError{field: field}
}

type uploadError struct {
	field string
}

func (e *uploadError) Error() string { return "invalid upload for field " + e.field }

func (e *uploadError) Unwrap() error { return complaintssvc.ErrValidation }
