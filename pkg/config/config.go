package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"3000"`

	// 数据库配置
	DBDriver    string `env:"DB_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/singles.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	SeedTables  int    `env:"SEED_TABLES" envDefault:"10"`

	// JWT配置
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	// CORS配置
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// 通知配置；REDIS_ADDR 为空时只打印日志
	RedisAddr       string `env:"REDIS_ADDR"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	NotifyChannel   string `env:"NOTIFY_CHANNEL" envDefault:"singles:notifications"`
	NotifyList      string `env:"NOTIFY_LIST" envDefault:"singles:notifications"`
	NotifyWorkers   int    `env:"NOTIFY_WORKERS" envDefault:"2"`
	NotifyQueueSize int    `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`

	// 预订引擎
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"5s"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`

	// 限流（每个客户端 IP）
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// 日志与调试
	LogFormat string `env:"LOG_FORMAT" envDefault:"chi"`
	Debug     bool   `env:"DEBUG" envDefault:"false"`
}

// LoadConfig 加载 .env 文件后从环境变量解析配置
func LoadConfig() (*Config, error) {
	// 根据环境加载对应的 .env 文件
	switch os.Getenv("ENVIRONMENT") {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}
	return Parse(nil)
}

// Parse 从给定的变量表解析配置；environ 为 nil 时读取进程环境变量
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins

	// 生产环境关闭调试
	if cfg.IsProduction() {
		cfg.Debug = false
	}
	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	// 验证端口
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// 验证JWT密钥
	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must not be empty")
		}
		fmt.Println("⚠️  Using default JWT secret (not recommended for production)")
	}

	// 验证数据库配置
	switch c.DBDriver {
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("DB_DRIVER=memory is not allowed in production")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want memory, sqlite or postgres)", c.DBDriver)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive")
	}
	if c.SeedTables < 0 {
		return fmt.Errorf("SEED_TABLES must not be negative")
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

// LoadEnvFile 加载指定的 .env 文件；与默认文件不同，文件不存在时报错
func LoadEnvFile(filename string) error {
	if _, err := os.Stat(filename); err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	loadEnvFile(filename)
	return nil
}

// loadEnvFile 加载 .env 文件到环境变量
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return // 文件不存在或无法打开，静默返回
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// 解析 KEY=VALUE 格式
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// 移除值两端的引号（如果有）
		if len(value) >= 2 {
			if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
				(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
				value = value[1 : len(value)-1]
			}
		}

		// 只有当环境变量不存在时才设置
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}
