package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string

	// 认证配置
	JWTSecret        string
	TokenTTL         time.Duration
	PasswordHashCost int

	// CORS配置
	AllowedOrigins []string

	// 请求超时
	RequestTimeout time.Duration

	// 调试配置
	Debug    bool
	LogLevel slog.Level
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development" // 默认开发环境
	}

	// 按环境加载 .env 文件；已存在的环境变量不会被覆盖
	switch env {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}

	config := &Config{
		Environment:      getEnvWithDefault("ENVIRONMENT", "development"),
		Port:             getEnvWithDefault("PORT", "3000"),
		UseLocalDB:       getEnvBool("USE_LOCAL_DB", true),
		LocalDataDir:     strings.TrimSpace(os.Getenv("LOCAL_DATA_DIR")),
		JWTSecret:        getEnvWithDefault("JWT_SECRET", defaultJWTSecret),
		TokenTTL:         getEnvDuration("TOKEN_TTL", 7*24*time.Hour),
		PasswordHashCost: getEnvInt("PASSWORD_HASH_COST", 12),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 25*time.Second),
		Debug:            getEnvBool("DEBUG", false),
		LogLevel:         parseLogLevel(os.Getenv("LOG_LEVEL")),
	}

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	if config.PostgresDSN != "" && os.Getenv("USE_LOCAL_DB") == "" {
		config.UseLocalDB = false
	}

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}

	// 生产环境强制使用外部数据库并关闭调试
	if config.Environment == "production" {
		if config.PostgresDSN != "" {
			config.UseLocalDB = false
		}
		config.Debug = false
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	if c.PasswordHashCost < bcrypt.MinCost || c.PasswordHashCost > bcrypt.MaxCost {
		return fmt.Errorf("PASSWORD_HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	if !c.UseLocalDB && c.PostgresDSN == "" {
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN 或 USE_LOCAL_DB=true")
	}
	if c.IsProduction() && c.UseLocalDB {
		return fmt.Errorf("production requires POSTGRES_DSN")
	}

	return nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// NewLogger 生产环境输出 JSON，其他环境输出文本
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level := c.LogLevel
	if c.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt 获取整数类型的环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration 获取时长类型的环境变量（如 "168h"、"30s"）
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
