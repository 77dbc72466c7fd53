package handler

import (
	"net/http"
	"os"

	"church-admin-backend/pkg/config"
	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/server"
	"church-admin-backend/pkg/utils"
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，将所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()
	logger := cfg.NewLogger(os.Stdout)

	// 验证配置
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		utils.WriteInternalServerErrorResponse(w, "Configuration error")
		return
	}

	// 获取数据库连接（冷启动创建，热启动复用）
	db, err := database.GetDatabase(r.Context(), database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		Debug:        cfg.Debug,
	})
	if err != nil {
		logger.Error("database unavailable", "error", err)
		utils.WriteInternalServerErrorResponse(w, "Database unavailable")
		return
	}

	server.NewRouter(cfg, db, server.Options{Logger: logger}).ServeHTTP(w, r)
}
