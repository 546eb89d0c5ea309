package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/civicstack/grievance-backend/internal/config"
	authsvc "github.com/civicstack/grievance-backend/internal/services/auth"
	complaintssvc "github.com/civicstack/grievance-backend/internal/services/complaints"
	mediasvc "github.com/civicstack/grievance-backend/internal/services/media"
	"github.com/civicstack/grievance-backend/internal/transport/http/handlers"
)

type Dependencies struct {
	ComplaintService *complaintssvc.Service
	MediaService     *mediasvc.Service
	JWTManager       *authsvc.JWTManager
	Logger           *zap.Logger
	Config           config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	complaintHandler := handlers.NewComplaintHandler(deps.ComplaintService, deps.MediaService)
	departmentHandler := handlers.NewDepartmentHandler(deps.ComplaintService)
	adminHandler := handlers.NewAdminHandler(deps.ComplaintService)

	authMW := AuthMiddleware(deps.JWTManager, deps.Logger)
	adminRoleMW := RequireRole("DEPARTMENT_ADMIN", "SUPER_ADMIN")
	superRoleMW := RequireRole("SUPER_ADMIN")

	r.Get("/healthz", healthHandler.Get)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/complaints", func(r chi.Router) {
			r.Use(authMW)
			r.Post("/", complaintHandler.Create)
			r.Get("/mine", complaintHandler.ListMine)
			r.Get("/standing", complaintHandler.Standing)
			r.Get("/{id}", complaintHandler.Get)
			r.Post("/{id}/submit", complaintHandler.Submit)
			r.Post("/{id}/close", complaintHandler.Close)
			r.Post("/{id}/reopen", complaintHandler.Reopen)
			r.Delete("/{id}", complaintHandler.Delete)
			r.Get("/{id}/timeline", complaintHandler.Timeline)

			r.With(adminRoleMW).Post("/{id}/status", departmentHandler.ChangeStatus)
			r.With(adminRoleMW).Put("/{id}/summary", departmentHandler.SetSummary)
			r.With(adminRoleMW).Post("/{id}/summary/regenerate", departmentHandler.RegenerateSummary)
		})

		r.With(authMW, adminRoleMW).Get("/departments/{department}/complaints", departmentHandler.Queue)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMW, superRoleMW)
			r.Get("/complaints/flagged", adminHandler.Flagged)
			r.Get("/complaints/high-risk", adminHandler.HighRisk)
			r.Post("/complaints/{id}/mark-fake", adminHandler.MarkFake)
			r.Post("/complaints/{id}/unmark-fake", adminHandler.UnmarkFake)
			r.Post("/users/{userID}/settle-penalty", adminHandler.SettlePenalty)
		})
	})
}
