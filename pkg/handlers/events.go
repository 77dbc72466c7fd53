package handlers

import (
	"log/slog"
	"net/http"

	"church-admin-backend/pkg/middleware"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// EventsHandler 活动审批接口
type EventsHandler struct {
	events *services.EventService
	logger *slog.Logger
}

// NewEventsHandler 创建活动处理器
func NewEventsHandler(events *services.EventService, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{events: events, logger: logger}
}

type decisionRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Reason  string `json:"reason" validate:"max=1000"`
}

// ListEvents GET /api/events?ministry_id=
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	events, err := h.events.ListByMinistry(r.Context(), r.URL.Query().Get("ministry_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"events": events})
}

// CreateEvent POST /api/events
func (h *EventsHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req services.CreateEventInput
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	event, err := h.events.Create(r.Context(), p, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"event": event})
}

// GetEvent GET /api/events/{id}
func (h *EventsHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	event, err := h.events.Get(r.Context(), chiRoute.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"event": event})
}

// UpdateEvent PUT /api/events/{id}
func (h *EventsHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var patch services.EventPatch
	if !middleware.DecodeAndValidate(w, r, &patch) {
		return
	}
	event, err := h.events.Edit(r.Context(), p, chiRoute.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"event": event})
}

// RequestReview POST /api/events/{id}/review
func (h *EventsHandler) RequestReview(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	event, err := h.events.RequestReview(r.Context(), p, chiRoute.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessMessage(w, "Event submitted for review", map[string]interface{}{"event": event})
}

// DecideEvent POST /api/events/{id}/decision
func (h *EventsHandler) DecideEvent(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	event, err := h.events.Decide(r.Context(), p, chiRoute.URLParam(r, "id"), *req.Approve, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	message := "Event approved"
	if !*req.Approve {
		message = "Event rejected"
	}
	utils.WriteSuccessMessage(w, message, map[string]interface{}{"event": event})
}

// CancelEvent POST /api/events/{id}/cancel
func (h *EventsHandler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	event, err := h.events.Cancel(r.Context(), p, chiRoute.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessMessage(w, "Event cancelled", map[string]interface{}{"event": event})
}
