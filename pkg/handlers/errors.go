package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"church-admin-backend/pkg/middleware"
	"church-admin-backend/pkg/models"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"
)

// writeServiceError 将业务错误映射为HTTP状态码；存储层错误只记录日志
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validationErr   *services.ValidationError
		forbiddenErr    *services.ForbiddenError
		stateErr        *services.InvalidStateError
		incompleteErr   *services.IncompleteDataError
		conflictErr     *services.ConflictError
		unauthorizedErr *services.UnauthorizedError
	)

	switch {
	case errors.As(err, &validationErr):
		details := map[string]string{"field": validationErr.Field}
		utils.WriteErrorResponseWithCode(w, http.StatusBadRequest, validationErr.Code(), validationErr.Error(), details)
	case errors.As(err, &forbiddenErr):
		utils.WriteErrorResponseWithCode(w, http.StatusForbidden, forbiddenErr.Code(), forbiddenErr.Error(), nil)
	case errors.As(err, &stateErr):
		details := map[string]string{"action": stateErr.Action, "state": stateErr.State}
		utils.WriteErrorResponseWithCode(w, http.StatusConflict, stateErr.Code(), stateErr.Error(), details)
	case errors.As(err, &incompleteErr):
		utils.WriteErrorResponseWithCode(w, http.StatusUnprocessableEntity, incompleteErr.Code(), incompleteErr.Message, incompleteErr.Details)
	case errors.As(err, &conflictErr):
		details := map[string]string{"resource": conflictErr.Resource}
		utils.WriteErrorResponseWithCode(w, http.StatusConflict, conflictErr.Code(), conflictErr.Message, details)
	case errors.As(err, &unauthorizedErr):
		utils.WriteUnauthorizedResponse(w, unauthorizedErr.Message)
	default:
		logger.Error("request failed", "error", err)
		utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
	}
}

// requirePrincipal 获取已认证的调用者，未认证时写入401
func requirePrincipal(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	p, err := middleware.RequirePrincipal(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return nil, false
	}
	return p, true
}
