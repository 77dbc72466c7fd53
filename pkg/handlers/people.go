package handlers

import (
	"log/slog"
	"net/http"

	"church-admin-backend/pkg/middleware"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// PeopleHandler 人员资料接口
type PeopleHandler struct {
	people *services.PeopleService
	logger *slog.Logger
}

// NewPeopleHandler 创建人员处理器
func NewPeopleHandler(people *services.PeopleService, logger *slog.Logger) *PeopleHandler {
	return &PeopleHandler{people: people, logger: logger}
}

// ListPeople GET /api/people
func (h *PeopleHandler) ListPeople(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	people, err := h.people.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"people": people})
}

// CreatePerson POST /api/people
func (h *PeopleHandler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req services.PersonInput
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	person, err := h.people.Create(r.Context(), p, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"person": person})
}

// GetPerson GET /api/people/{id}
func (h *PeopleHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	person, err := h.people.Get(r.Context(), chiRoute.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"person": person})
}

// UpdatePerson PUT /api/people/{id}
func (h *PeopleHandler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req services.PersonInput
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}
	person, err := h.people.Update(r.Context(), p, chiRoute.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"person": person})
}
