package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"church-admin-backend/pkg/config"
	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/handlers"
	customMiddleware "church-admin-backend/pkg/middleware"
	"church-admin-backend/pkg/services"
	"church-admin-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxRequestBody 请求体上限
const maxRequestBody = 1 << 20

// Options 路由可选依赖；Now 为空时使用系统时间
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// NewRouter 将所有API端点集中在一个Chi路由器中
func NewRouter(cfg *config.Config, db database.DatabaseInterface, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	setupMiddleware(router, cfg, logger)
	setupRoutes(router, cfg, db, logger, opts.Now)
	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.RequestLogger(logger))
	router.Use(customMiddleware.Recovery(cfg, logger))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件（Vercel函数有时间限制）
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置所有API路由
func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface, logger *slog.Logger, now func() time.Time) {
	tokens := utils.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)

	authService := services.NewAuthService(db, logger, cfg.PasswordHashCost)
	eventService := services.NewEventService(db, logger, now)
	leadershipService := services.NewLeadershipService(db, logger, cfg.PasswordHashCost)
	ministryService := services.NewMinistryService(db, logger, now)
	peopleService := services.NewPeopleService(db, logger)

	// 创建处理器
	authHandler := handlers.NewAuthHandler(cfg, db, authService, tokens, logger)
	eventsHandler := handlers.NewEventsHandler(eventService, logger)
	ministriesHandler := handlers.NewMinistriesHandler(ministryService, leadershipService, logger)
	leadersHandler := handlers.NewLeadersHandler(leadershipService, logger)
	peopleHandler := handlers.NewPeopleHandler(peopleService, logger)

	// 健康检查端点
	router.Get("/", authHandler.HealthCheck)

	// 数据库连接池状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	// API路由组
	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.MaxBodySize(maxRequestBody))
		r.Use(customMiddleware.ContentTypeJSON)

		// 公开路由（不需要认证）
		r.Post("/auth/login", authHandler.Login)

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(tokens, authService, logger))

			r.Get("/auth/session", authHandler.Session)

			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventsHandler.ListEvents) // expects ?ministry_id=
				r.Post("/", eventsHandler.CreateEvent)
				r.Get("/{id}", eventsHandler.GetEvent)
				r.Put("/{id}", eventsHandler.UpdateEvent)
				r.Post("/{id}/review", eventsHandler.RequestReview)
				r.Post("/{id}/decision", eventsHandler.DecideEvent)
				r.Post("/{id}/cancel", eventsHandler.CancelEvent)
			})

			r.Route("/ministries", func(r chi.Router) {
				r.Get("/", ministriesHandler.ListMinistries)
				r.Post("/", ministriesHandler.CreateMinistry)
				r.Get("/{id}", ministriesHandler.GetMinistry)
				r.Put("/{id}", ministriesHandler.UpdateMinistry)
				r.Post("/{id}/disable", ministriesHandler.DisableMinistry)
				r.Post("/{id}/enable", ministriesHandler.EnableMinistry)
				r.Put("/{id}/leaders", ministriesHandler.AssignLeaders)
			})

			r.Route("/leaders", func(r chi.Router) {
				r.Get("/", leadersHandler.ListLeaders)
				r.Post("/promote", leadersHandler.PromoteToRole)
			})

			r.Route("/people", func(r chi.Router) {
				r.Get("/", peopleHandler.ListPeople)
				r.Post("/", peopleHandler.CreatePerson)
				r.Get("/{id}", peopleHandler.GetPerson)
				r.Put("/{id}", peopleHandler.UpdatePerson)
			})
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), nil)
	})
}
