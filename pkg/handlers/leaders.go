package handlers

import (
	"log/slog"
	"net/http"

	"church-admin-backend/pkg/middleware"
	"church-admin-backend/pkg/models"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"
)

// LeadersHandler 领袖与角色接口
type LeadersHandler struct {
	leadership *services.LeadershipService
	logger     *slog.Logger
}

// NewLeadersHandler 创建领袖处理器
func NewLeadersHandler(leadership *services.LeadershipService, logger *slog.Logger) *LeadersHandler {
	return &LeadersHandler{leadership: leadership, logger: logger}
}

type promoteRequest struct {
	PersonID string `json:"person_id" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=pastor leader Pastor Leader"`
}

// ListLeaders GET /api/leaders
func (h *LeadersHandler) ListLeaders(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	leaders, err := h.leadership.ListLeaders(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"leaders": leaders})
}

// PromoteToRole POST /api/leaders/promote
func (h *LeadersHandler) PromoteToRole(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req promoteRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		utils.WriteValidationErrorResponse(w, err.Error(), map[string]string{"field": "role"})
		return
	}

	result, err := h.leadership.PromoteToRole(r.Context(), p, req.PersonID, role)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if result.Created {
		utils.WriteJSONResponse(w, http.StatusCreated, result)
		return
	}
	utils.WriteSuccessMessage(w, "Role updated", result)
}
