package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"church-admin-backend/pkg/config"
	"church-admin-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回友好的错误信息
func Recovery(cfg *config.Config, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					stack := debug.Stack()
					logger.Error("panic recovered", "path", r.URL.Path, "panic", rec, "stack", string(stack))

					if cfg.IsDevelopment() {
						// 开发环境：显示详细错误信息
						utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
							"INTERNAL_SERVER_ERROR",
							fmt.Sprintf("Internal server error: %v", rec),
							string(stack))
						return
					}
					// 生产环境：隐藏详细错误信息
					utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
