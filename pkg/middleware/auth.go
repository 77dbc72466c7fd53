package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"church-admin-backend/pkg/models"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"
)

// ContextKey 用于在context中存储调用者信息的键
type ContextKey string

const (
	PrincipalContextKey ContextKey = "principal"
)

// PrincipalResolver reloads the caller named by a verified token.
type PrincipalResolver interface {
	Resolve(ctx context.Context, identityID string) (*models.Principal, error)
}

// AuthMiddleware JWT认证中间件：验证令牌后重新加载身份，角色变更与停用即时生效
func AuthMiddleware(tokens *utils.JWTService, resolver PrincipalResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 从Authorization头获取token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteUnauthorizedResponse(w, "Missing authorization header")
				return
			}

			// 检查Bearer前缀
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || tokenString == "" {
				utils.WriteUnauthorizedResponse(w, "Invalid authorization header format")
				return
			}

			claims, err := tokens.ValidateToken(tokenString)
			if err != nil {
				logger.Debug("token rejected", "path", r.URL.Path, "error", err)
				utils.WriteUnauthorizedResponse(w, "Invalid or expired token")
				return
			}

			principal, err := resolver.Resolve(r.Context(), claims.IdentityID)
			if err != nil {
				var unauthorized *services.UnauthorizedError
				if errors.As(err, &unauthorized) {
					utils.WriteUnauthorizedResponse(w, unauthorized.Message)
					return
				}
				logger.Error("failed to resolve principal", "identity_id", claims.IdentityID, "error", err)
				utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
				return
			}

			// 将调用者信息添加到请求context中
			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPrincipal 将调用者放入context（测试与内部调用使用）
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// GetPrincipal 从context中获取调用者信息
func GetPrincipal(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*models.Principal)
	return p, ok && p != nil
}

// RequirePrincipal 要求调用者必须已认证的辅助函数
func RequirePrincipal(ctx context.Context) (*models.Principal, error) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return nil, errors.New("caller not authenticated")
	}
	return p, nil
}
