// Package config loads the proxy's ambient settings from the environment
// (matching cmd/server/main.go's config.Load()/cfg.Validate() call shape)
// and its Proxy AE/ForwardRule definitions from a YAML file (spec.md §6
// "Configuration file").
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

type CacheConfig struct {
	Enabled bool
	Type    string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type MetricsConfig struct {
	Enabled bool
}

// Config is the ambient configuration loaded from the environment. The
// DICOM-domain configuration (Proxy AEs and their forward rules) is loaded
// separately via LoadProxyAEs, since it lives in its own YAML file and can
// be hot-reloaded independently of the process's ambient settings.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Metrics  MetricsConfig

	// ProxyAEConfigPath is the YAML file LoadProxyAEs reads; kept on Config
	// so main.go and the /reload admin handler read it from one place.
	ProxyAEConfigPath string
}

// Load reads .env (if present) then the environment, applying the same
// defaults-on-empty pattern the teacher's database/cache wiring in
// cmd/server/main.go expects its caller to have already resolved.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mpps_proxy"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("CACHE_ENABLED", true),
			Type:    getEnv("CACHE_TYPE", "memory"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST"}),
			AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"Accept", "Content-Type", "Authorization"}),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		ProxyAEConfigPath: getEnv("PROXY_AE_CONFIG", "config/proxy-aes.yaml"),
	}

	return cfg, nil
}

// Validate checks the handful of fields that have no safe default.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("config: server port must be positive, got %d", c.Server.Port)
	}
	if c.Cache.Enabled && c.Cache.Type == "redis" && c.Redis.Host == "" {
		return fmt.Errorf("config: redis host required when cache type is redis")
	}
	if c.ProxyAEConfigPath == "" {
		return fmt.Errorf("config: proxy AE config path must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	out := []string{}
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
