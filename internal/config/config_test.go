package config

import (
	"testing"
)

func TestLoadAppliesDefaultsWhenEnvUnset(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.Type != "memory" {
		t.Errorf("expected default cache type memory, got %q", cfg.Cache.Type)
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected overridden port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected overridden log level debug, got %q", cfg.Log.Level)
	}
}

func TestValidateRejectsNonPositivePort(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 0}, ProxyAEConfigPath: "x.yaml"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a non-positive port")
	}
}

func TestValidateRejectsRedisCacheWithoutHost(t *testing.T) {
	cfg := &Config{
		Server:            ServerConfig{Port: 8080},
		Cache:             CacheConfig{Enabled: true, Type: "redis"},
		Redis:             RedisConfig{Host: ""},
		ProxyAEConfigPath: "x.yaml",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error when redis cache is enabled without a host")
	}
}

func TestGetEnvListSplitsOnComma(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	got := getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"})
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("got %v", got)
	}
}
