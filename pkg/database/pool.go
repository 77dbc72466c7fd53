package database

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DatabasePool 进程级数据库实例缓存（无服务器环境下跨热启动复用）
type DatabasePool struct {
	instance DatabaseInterface
	config   DatabaseConfig
	mu       sync.RWMutex
	lastUsed time.Time
}

var (
	globalPool *DatabasePool
	poolMutex  sync.Mutex
)

// GetDatabase 获取数据库连接（单例模式 + 连接池）
func GetDatabase(ctx context.Context, config DatabaseConfig) (DatabaseInterface, error) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool != nil && !shouldRecreateConnection(ctx, globalPool, config) {
		globalPool.mu.Lock()
		globalPool.lastUsed = time.Now()
		globalPool.mu.Unlock()
		return globalPool.instance, nil
	}

	// 关闭旧连接（如果存在）
	if globalPool != nil && globalPool.instance != nil {
		_ = globalPool.instance.Close()
	}

	slog.Info("creating database connection", "local", config.UseLocalDB, "postgres", config.PostgresDSN != "")
	instance, err := NewDatabase(config)
	if err != nil {
		globalPool = nil
		return nil, err
	}
	globalPool = &DatabasePool{
		instance: instance,
		config:   config,
		lastUsed: time.Now(),
	}
	return instance, nil
}

// shouldRecreateConnection 判断是否需要重新创建连接
func shouldRecreateConnection(ctx context.Context, pool *DatabasePool, newConfig DatabaseConfig) bool {
	if pool == nil || pool.instance == nil {
		return true
	}

	// 检查配置是否发生变化
	if pool.config != newConfig {
		slog.Info("database configuration changed, recreating connection")
		return true
	}

	// 检查连接是否过期（30分钟）
	pool.mu.RLock()
	expired := time.Since(pool.lastUsed) > 30*time.Minute
	pool.mu.RUnlock()
	if expired {
		slog.Info("database connection expired, recreating")
		return true
	}

	// 检查连接健康状态
	if err := pool.instance.HealthCheck(ctx); err != nil {
		slog.Warn("database health check failed, recreating", "error", err)
		return true
	}

	return false
}

// GetConnectionStats 获取连接池统计信息
func GetConnectionStats() map[string]interface{} {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return map[string]interface{}{
			"status":    "no_connection",
			"last_used": nil,
		}
	}

	globalPool.mu.RLock()
	lastUsed := globalPool.lastUsed
	globalPool.mu.RUnlock()

	return map[string]interface{}{
		"status":     "connected",
		"last_used":  lastUsed.Format(time.RFC3339),
		"age":        time.Since(lastUsed).String(),
		"serverless": IsServerlessEnvironment(),
		"config": map[string]interface{}{
			"use_local_db": globalPool.config.UseLocalDB,
			"has_postgres": globalPool.config.PostgresDSN != "",
		},
	}
}
