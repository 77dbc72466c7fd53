package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"church-admin-backend/pkg/config"
	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/middleware"
	"church-admin-backend/pkg/models"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	auth   *services.AuthService
	tokens *utils.JWTService
	logger *slog.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface, auth *services.AuthService, tokens *utils.JWTService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		config: cfg,
		db:     db,
		auth:   auth,
		tokens: tokens,
		logger: logger,
	}
}

// Login 用户登录（用户名、邮箱或证件号 + 密码）
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !middleware.DecodeAndValidate(w, r, &req) {
		return
	}

	found, err := h.auth.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	token, expiresAt, err := h.tokens.GenerateToken(&found.Identity)
	if err != nil {
		h.logger.Error("failed to issue token", "identity_id", found.ID, "error", err)
		utils.WriteInternalServerErrorResponse(w, "Failed to issue token")
		return
	}

	utils.WriteSuccessResponse(w, models.LoginResponse{
		Identity:  found.Identity,
		Person:    found.Person,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Session 返回当前调用者
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	session, err := h.auth.Session(r.Context(), principal)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"principal": principal,
		"identity":  session.Identity,
		"person":    session.Person,
	})
}

// HealthCheck 健康检查
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 测试数据库连接
	dbStatus := "healthy"
	if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Warn("database health check failed", "error", err)
		dbStatus = "unhealthy"
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     "church-admin-backend",
		"version":     "1.0.0",
		"environment": h.config.Environment,
		"database":    h.getDatabaseType(),
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      "healthy",
	})
}

// getDatabaseType 获取数据库类型
func (h *AuthHandler) getDatabaseType() string {
	if h.config.UseLocalDB {
		return "local"
	}
	if h.config.PostgresDSN != "" {
		return "postgresql"
	}
	return "unknown"
}
