// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Quota   QuotaConfig
	Admin   AdminConfig
	TryOn   TryOnConfig
	Metrics MetricsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

type StorageConfig struct {
	Type     string
	Redis    RedisConfig
	Postgres PostgresConfig
	// CleanupInterval controla a varredura de contadores expirados no backend em memória.
	CleanupInterval time.Duration
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type PostgresConfig struct {
	DSN string
}

type QuotaConfig struct {
	HourlyLimit int64  `yaml:"hourly_limit"`
	DailyLimit  int64  `yaml:"daily_limit"`
	Policy      string `yaml:"policy"`
	// FailOpen admite a requisição quando o storage está indisponível.
	FailOpen bool `yaml:"fail_open"`
}

type AdminConfig struct {
	Token string
}

// TryOnConfig aponta para o serviço externo que gera as imagens.
// UpstreamURL vazio faz a rota protegida responder 503 após consumir a cota.
type TryOnConfig struct {
	UpstreamURL string
	Timeout     time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig é o formato aceito em QUOTA_CONFIG_FILE.
type fileConfig struct {
	Quota *QuotaConfig `yaml:"quota"`
}

// Load lê .env (se existir), variáveis de ambiente e o YAML de QUOTA_CONFIG_FILE.
func Load() (Config, error) {
	_ = godotenv.Load()

	server, err := buildServerConfig()
	if err != nil {
		return Config{}, err
	}

	storage, err := buildStorageConfig()
	if err != nil {
		return Config{}, err
	}

	quota, err := buildQuotaConfig()
	if err != nil {
		return Config{}, err
	}

	if path := strings.TrimSpace(os.Getenv("QUOTA_CONFIG_FILE")); path != "" {
		if err := applyFile(path, &quota); err != nil {
			return Config{}, err
		}
	}

	tryOn, err := buildTryOnConfig()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server:  server,
		Storage: storage,
		Quota:   quota,
		Admin:   AdminConfig{Token: os.Getenv("ADMIN_TOKEN")},
		TryOn:   tryOn,
		Metrics: MetricsConfig{
			Enabled: getEnv("METRICS_ENABLED", "true") == "true",
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate confere storage, formato de log e a coerência entre os limites.
func (c Config) Validate() error {
	switch c.Storage.Type {
	case "memory", "redis":
	case "postgres":
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Quota.HourlyLimit <= 0 || c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("quota limits must be positive")
	}
	if c.Quota.HourlyLimit > c.Quota.DailyLimit {
		return fmt.Errorf("hourly limit %d exceeds daily limit %d", c.Quota.HourlyLimit, c.Quota.DailyLimit)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}
	return nil
}

func buildServerConfig() (ServerConfig, error) {
	timeoutSeconds, err := strconv.Atoi(getEnv("SERVER_SHUTDOWN_TIMEOUT_SECONDS", "10"))
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
	}
	return ServerConfig{
		Port:            getEnv("SERVER_PORT", "8080"),
		ShutdownTimeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func buildStorageConfig() (StorageConfig, error) {
	redisConfig, err := buildRedisConfig()
	if err != nil {
		return StorageConfig{}, err
	}

	cleanupSeconds, err := strconv.Atoi(getEnv("QUOTA_CLEANUP_INTERVAL_SECONDS", "300"))
	if err != nil {
		return StorageConfig{}, fmt.Errorf("invalid QUOTA_CLEANUP_INTERVAL_SECONDS: %w", err)
	}

	return StorageConfig{
		Type:            strings.ToLower(getEnv("STORAGE_TYPE", "memory")),
		Redis:           redisConfig,
		Postgres:        PostgresConfig{DSN: os.Getenv("POSTGRES_DSN")},
		CleanupInterval: time.Duration(cleanupSeconds) * time.Second,
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		Host:      host,
		Port:      port,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        db,
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ratelimit"),
	}, nil
}

func buildQuotaConfig() (QuotaConfig, error) {
	hourly, err := strconv.ParseInt(getEnv("QUOTA_HOURLY_LIMIT", strconv.FormatInt(domain.DefaultHourlyLimit, 10)), 10, 64)
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid QUOTA_HOURLY_LIMIT: %w", err)
	}
	daily, err := strconv.ParseInt(getEnv("QUOTA_DAILY_LIMIT", strconv.FormatInt(domain.DefaultDailyLimit, 10)), 10, 64)
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid QUOTA_DAILY_LIMIT: %w", err)
	}
	failOpen, err := strconv.ParseBool(getEnv("QUOTA_FAIL_OPEN", "false"))
	if err != nil {
		return QuotaConfig{}, fmt.Errorf("invalid QUOTA_FAIL_OPEN: %w", err)
	}

	return QuotaConfig{
		HourlyLimit: hourly,
		DailyLimit:  daily,
		Policy:      getEnv("QUOTA_POLICY", "atomic"),
		FailOpen:    failOpen,
	}, nil
}

func buildTryOnConfig() (TryOnConfig, error) {
	timeoutSeconds, err := strconv.Atoi(getEnv("TRYON_UPSTREAM_TIMEOUT_SECONDS", "120"))
	if err != nil {
		return TryOnConfig{}, fmt.Errorf("invalid TRYON_UPSTREAM_TIMEOUT_SECONDS: %w", err)
	}
	return TryOnConfig{
		UpstreamURL: strings.TrimSpace(os.Getenv("TRYON_UPSTREAM_URL")),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// applyFile sobrepõe os campos presentes no YAML aos valores vindos do ambiente.
func applyFile(path string, quota *QuotaConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	file := fileConfig{Quota: quota}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
