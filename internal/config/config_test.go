package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithJWTSecret(t *testing.T) {
	t.Setenv("METRO_CONFIG_FILE", "")
	t.Setenv("METRO_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Trip.MaxAttempts != 3 {
		t.Errorf("max attempts = %d", cfg.Trip.MaxAttempts)
	}
	if cfg.Auth.Mode != "jwt" || cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
}

func TestLoadMissingSecret(t *testing.T) {
	t.Setenv("METRO_CONFIG_FILE", "")
	t.Setenv("METRO_AUTH_MODE", "jwt")
	t.Setenv("METRO_JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metro.yaml")
	content := []byte(`
http:
  addr: ":9000"
redis:
  addr: "cache:6379"
auth:
  mode: jwt
  jwt_secret: from-file
trip:
  max_attempts: 5
  currency: EUR
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("METRO_CONFIG_FILE", path)
	t.Setenv("METRO_HTTP_ADDR", ":9100")
	t.Setenv("METRO_CORS_ORIGINS", "https://metro.example, ,http://localhost:5173")
	t.Setenv("METRO_JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Errorf("env should win, addr = %q", cfg.HTTP.Addr)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[1] != "http://localhost:5173" {
		t.Errorf("cors origins = %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Redis.Addr != "cache:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Trip.MaxAttempts != 5 || cfg.Trip.Currency != "EUR" {
		t.Errorf("trip = %+v", cfg.Trip)
	}
	if cfg.Auth.JWTSecret != "from-file" {
		t.Errorf("secret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadRejectsUnknownAuthMode(t *testing.T) {
	t.Setenv("METRO_CONFIG_FILE", "")
	t.Setenv("METRO_AUTH_MODE", "basic")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown auth mode")
	}
}
