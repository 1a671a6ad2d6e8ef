package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
port: "9090"
databaseURL: "postgres://localhost/bookshelf"
redisAddr: "localhost:6379"
jwtAccessSecret: "access-secret"
jwtRefreshSecret: "refresh-secret"
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.Storage != "local" || cfg.AuthRateLimitPerWindow != 10 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db-host/prod")
	t.Setenv("AUTH_RATE_LIMIT_PER_WINDOW", "5")
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://db-host/prod" {
		t.Fatalf("env override not applied: %q", cfg.DatabaseURL)
	}
	if cfg.AuthRateLimitPerWindow != 5 {
		t.Fatalf("rate limit override not applied: %d", cfg.AuthRateLimitPerWindow)
	}
}

func TestLoadRejectsSameSecrets(t *testing.T) {
	_, err := Load(writeConfig(t, `
databaseURL: "postgres://localhost/bookshelf"
redisAddr: "localhost:6379"
jwtAccessSecret: "same"
jwtRefreshSecret: "same"
`))
	if err == nil {
		t.Fatalf("expected error for identical secrets")
	}
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	_, err := Load(writeConfig(t, validYAML+`storage: "s3"`+"\n"))
	if err == nil {
		t.Fatalf("expected error for unknown storage")
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("accessTTL", "", 15*time.Minute)
	if err != nil || d != 15*time.Minute {
		t.Fatalf("fallback: %v %v", d, err)
	}
	d, err = ParseDuration("accessTTL", "30m", 0)
	if err != nil || d != 30*time.Minute {
		t.Fatalf("parse: %v %v", d, err)
	}
	if _, err := ParseDuration("accessTTL", "nope", 0); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseDuration("accessTTL", "-1m", 0); err == nil {
		t.Fatalf("expected positivity error")
	}
}
