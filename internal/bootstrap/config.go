package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/infra/setup"
	"vibe-meeting/internal/ratelimit"
	"vibe-meeting/internal/service"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	ServerPort string
	AppEnv     string // development / production
	LogLevel   string

	DB    setup.DBConfig
	Redis setup.RedisConfig

	KeyPrefix string // Redis Key 前缀

	RateLimit ratelimit.Config

	SweepInterval    time.Duration
	StaleAfter       time.Duration
	MessageRetention time.Duration

	AllowedOrigins   []string
	TranscriptionURL string
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LoadConfig 从环境变量加载配置，.env 文件存在时先加载它
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		ServerPort: envOr("SERVER_PORT", "3001"),
		AppEnv:     envOr("APP_ENV", "development"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
		DB: setup.DBConfig{
			Driver:   envOr("DB_DRIVER", setup.DriverMySQL),
			DSN:      os.Getenv("DB_DSN"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			Name:     os.Getenv("DB_NAME"),
		},
		Redis: setup.RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		KeyPrefix:        envOr("REDIS_KEY_PREFIX", "vm:"),
		TranscriptionURL: envOr("TRANSCRIPTION_SERVICE_URL", "http://localhost:8000"),
	}

	var err error
	if cfg.Redis.DB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Points, err = envInt("RATE_LIMIT_POINTS", ratelimit.DefaultPoints); err != nil {
		return nil, err
	}
	durations := []struct {
		key    string
		def    time.Duration
		target *time.Duration
	}{
		{"RATE_LIMIT_WINDOW", ratelimit.DefaultWindow, &cfg.RateLimit.Window},
		{"RATE_LIMIT_BLOCK", ratelimit.DefaultBlock, &cfg.RateLimit.Block},
		{"PRESENCE_SWEEP_INTERVAL", service.DefaultSweepInterval, &cfg.SweepInterval},
		{"PRESENCE_STALE_AFTER", service.DefaultStaleAfter, &cfg.StaleAfter},
		{"MESSAGE_RETENTION", service.DefaultMessageRetention, &cfg.MessageRetention},
	}
	for _, d := range durations {
		if *d.target, err = envDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.RateLimit.Points <= 0 || cfg.RateLimit.Window <= 0 || cfg.RateLimit.Block < 0 {
		return nil, fmt.Errorf("invalid rate limit configuration: %+v", cfg.RateLimit)
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
