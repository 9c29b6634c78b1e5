package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Storage     StorageConfig
	Tracing     TracingConfig `mapstructure:"tracing"`
	Redis       RedisConfig
	AI          AIConfig
	LiveSession LiveSessionConfig `mapstructure:"live_session"`
	Demo        DemoConfig        `mapstructure:"demo"`
	Certificate CertificateConfig `mapstructure:"certificate"`
	CORS        CORSConfig        `mapstructure:"cors"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Log         LogConfig         `mapstructure:"log"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

// LogConfig 日志文件滚动配置，level 为空时按 server.mode 决定
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
	// AI 接口单独限流
	AIMaxRequests int `mapstructure:"ai_max_requests"`
}

// AIConfig 大模型配置，provider 为 anthropic 或 openai
type AIConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	AnthropicBaseURL  string        `mapstructure:"anthropic_base_url"`
	AnthropicAPIKey   string        `mapstructure:"anthropic_api_key"`
	AnthropicVersion  string        `mapstructure:"anthropic_version"`
	OpenAIBaseURL     string        `mapstructure:"openai_base_url"`
	OpenAIAPIKey      string        `mapstructure:"openai_api_key"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout_seconds"`
	MaxToolIterations int           `mapstructure:"max_tool_iterations"`
	DiagnosticMaxQs   int           `mapstructure:"diagnostic_max_questions"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string `mapstructure:"sslmode"`
	TimeZone     string `mapstructure:"timezone"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int `mapstructure:"pool_size"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LiveSessionConfig 直播模拟考（ensayo）相关配置
type LiveSessionConfig struct {
	LobbyWindow  time.Duration `mapstructure:"lobby_window_minutes"`
	CronSpec     string        `mapstructure:"cron_spec"`
	DefaultSeats int           `mapstructure:"default_max_participants"`
}

type DemoConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl_hours"`
}

type CertificateConfig struct {
	IssuerName string `mapstructure:"issuer_name"`
	SignerName string `mapstructure:"signer_name"`
	VerifyURL  string `mapstructure:"verify_url"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PAES")
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("log.level", "LOG_LEVEL")

	// AI
	v.BindEnv("ai.provider", "AI_PROVIDER")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("ai.anthropic_api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("ai.openai_api_key", "OPENAI_API_KEY")
	v.BindEnv("ai.anthropic_base_url", "ANTHROPIC_BASE_URL")
	v.BindEnv("ai.openai_base_url", "OPENAI_BASE_URL")

	// Storage / OSS
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "America/Santiago")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.anthropic_base_url", "https://api.anthropic.com")
	v.SetDefault("ai.anthropic_version", "2023-06-01")
	v.SetDefault("ai.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.max_tool_iterations", 8)
	v.SetDefault("ai.diagnostic_max_questions", 12)
	v.SetDefault("live_session.lobby_window_minutes", 15)
	v.SetDefault("live_session.cron_spec", "@every 1m")
	v.SetDefault("live_session.default_max_participants", 30)
	v.SetDefault("demo.enabled", true)
	v.SetDefault("demo.ttl_hours", 24)
	v.SetDefault("certificate.issuer_name", "Preuniversitario PAES Matemática")
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("rate_limit.ai_max_requests", 20)
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// normalize 把以小时/分钟/秒为单位的配置转换成 time.Duration，并做生产环境校验
func (cfg *Config) normalize() error {
	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.AI.Timeout = cfg.AI.Timeout * time.Second
	cfg.LiveSession.LobbyWindow = cfg.LiveSession.LobbyWindow * time.Minute
	cfg.Demo.TTL = cfg.Demo.TTL * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	switch cfg.AI.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported ai provider %q", cfg.AI.Provider)
	}

	return nil
}

// DSN 生成 PostgreSQL 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode, d.TimeZone)
}
