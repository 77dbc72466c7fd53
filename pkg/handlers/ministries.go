package handlers

import (
	"log/slog"
	"net/http"

	"church-admin-backend/pkg/middleware"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// MinistriesHandler 事工管理接口
type MinistriesHandler struct {
	ministries *services.MinistryService
	leadership *services.LeadershipService
	logger     *slog.Logger
}

// NewMinistriesHandler 创建事工处理器
func NewMinistriesHandler(ministries *services.MinistryService, leadership *services.LeadershipService, logger *slog.Logger) *MinistriesHandler {
	return &MinistriesHandler{ministries: ministries, leadership: leadership, logger: logger}
}

type assignLeadersRequest struct {
	IdentityIDs []string `json:"identity_ids"`
}

// ListMinistries GET /api/ministries
func (h *MinistriesHandler) ListMinistries(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	ministries, err := h.ministries.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"ministries": ministries})
}

// CreateMinistry POST /api/ministries
func (h *MinistriesHandler) CreateMinistry(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req services.MinistryInput
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	ministry, err := h.ministries.Create(r.Context(), p, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"ministry": ministry})
}

// GetMinistry GET /api/ministries/{id}
func (h *MinistriesHandler) GetMinistry(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	ministry, err := h.ministries.Get(r.Context(), chiRoute.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"ministry": ministry})
}

// UpdateMinistry PUT /api/ministries/{id}
func (h *MinistriesHandler) UpdateMinistry(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var patch services.MinistryPatch
	if !middleware.DecodeAndValidate(w, r, &patch) {
		return
	}
	ministry, err := h.ministries.Update(r.Context(), p, chiRoute.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"ministry": ministry})
}

// DisableMinistry POST /api/ministries/{id}/disable
func (h *MinistriesHandler) DisableMinistry(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ministry, err := h.ministries.Disable(r.Context(), p, chiRoute.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessMessage(w, "Ministry disabled", map[string]interface{}{"ministry": ministry})
}

// EnableMinistry POST /api/ministries/{id}/enable
func (h *MinistriesHandler) EnableMinistry(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ministry, err := h.ministries.Enable(r.Context(), p, chiRoute.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessMessage(w, "Ministry enabled", map[string]interface{}{"ministry": ministry})
}

// AssignLeaders PUT /api/ministries/{id}/leaders
func (h *MinistriesHandler) AssignLeaders(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req assignLeadersRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	ministry, err := h.leadership.AssignLeaders(r.Context(), p, chiRoute.URLParam(r, "id"), req.IdentityIDs)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessMessage(w, "Leaders assigned", map[string]interface{}{"ministry": ministry})
}
