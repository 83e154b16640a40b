package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hitoshi/taxonia/internal/apperror"
)

// Environment はデプロイ環境を表す。
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" envDefault:"5"`

	// Redis
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Server
	BindAddr string `env:"BIND_ADDR,required,notEmpty"`
	BaseURL  string `env:"BASE_URL,required,notEmpty"`

	// CORS
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,required,notEmpty" envSeparator:","`

	// iNaturalist OAuth
	InatClientID     string        `env:"INAT_CLIENT_ID,required,notEmpty"`
	InatClientSecret string        `env:"INAT_CLIENT_SECRET,required,notEmpty"`
	InatRedirectURI  string        `env:"INAT_REDIRECT_URI,required,notEmpty"`
	InatBaseURL      string        `env:"INAT_BASE_URL,required,notEmpty"`
	InatAPIBaseURL   string        `env:"INAT_API_BASE_URL" envDefault:"https://api.inaturalist.org/v1"`
	InatHTTPTimeout  time.Duration `env:"INAT_HTTP_TIMEOUT" envDefault:"10s"`

	// ログイン後のフロントエンドURL
	AppRedirectURI string `env:"APP_REDIRECT_URI,required,notEmpty"`

	Environment Environment `env:"APP_ENV" envDefault:"development"`
	LogLevel    string      `env:"LOG_LEVEL" envDefault:"info"`

	// Rate Limit (req/min)
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"20"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合は設定エラーを返す。
// 未設定の必須変数はまとめて1つのエラーとして報告する。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, apperror.Configuration(err)
	}

	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)
	if len(cfg.AllowedOrigins) == 0 {
		return nil, apperror.Configuration(fmt.Errorf("ALLOWED_ORIGINS must contain at least one origin"))
	}

	switch cfg.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return nil, apperror.Configuration(fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, cfg.Environment))
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
		cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	default:
		return nil, apperror.Configuration(fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel))
	}

	if cfg.DBMaxConns < 1 {
		return nil, apperror.Configuration(fmt.Errorf("DB_MAX_CONNS must be positive, got %d", cfg.DBMaxConns))
	}

	return cfg, nil
}

// IsProduction は本番環境かどうかを返す。セッションCookieのSecure属性に使う。
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// splitOrigins は前後の空白を除去し、空要素を取り除く。
func splitOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, o := range raw {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
