package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.App.Env != "dev" {
		t.Fatalf("env esperado dev, got %q", c.App.Env)
	}
	if len(c.Keys.Bootstrap) != 1 || c.Keys.Bootstrap[0] != "default" {
		t.Fatalf("bootstrap default inesperado: %v", c.Keys.Bootstrap)
	}
	if c.Receiver.Capacity != 100 {
		t.Fatalf("capacity esperada 100, got %d", c.Receiver.Capacity)
	}
	if c.Receiver.WarnRatio != 0.8 {
		t.Fatalf("warn_ratio esperado 0.8, got %v", c.Receiver.WarnRatio)
	}
	if c.TokenDefaultTTL() != time.Hour {
		t.Fatalf("ttl esperado 1h, got %v", c.TokenDefaultTTL())
	}
	if c.NonceMaxAge() != 5*time.Minute {
		t.Fatalf("max_age esperado 5m, got %v", c.NonceMaxAge())
	}
	if c.CheckpointInterval() != 0 {
		t.Fatalf("checkpoint esperado 0, got %v", c.CheckpointInterval())
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
app:
  app_env: prod
log:
  level: warn
keys:
  bootstrap: [default, billing]
token:
  default_ttl: 30m
nonce:
  kind: redis
  max_age: 2m
  redis:
    addr: redis:6379
    db: 3
receiver:
  capacity: 50
  warn_ratio: 0.9
persistence:
  path: /tmp/state.json
  checkpoint_interval: 15s
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.App.Env != "prod" || c.Log.Level != "warn" {
		t.Fatalf("app/log inesperados: %+v", c)
	}
	if len(c.Keys.Bootstrap) != 2 || c.Keys.Bootstrap[1] != "billing" {
		t.Fatalf("bootstrap inesperado: %v", c.Keys.Bootstrap)
	}
	if c.Nonce.Kind != "redis" || c.Nonce.Redis.Addr != "redis:6379" || c.Nonce.Redis.DB != 3 {
		t.Fatalf("nonce inesperado: %+v", c.Nonce)
	}
	if c.TokenDefaultTTL() != 30*time.Minute {
		t.Fatalf("ttl esperado 30m, got %v", c.TokenDefaultTTL())
	}
	if c.CheckpointInterval() != 15*time.Second {
		t.Fatalf("checkpoint esperado 15s, got %v", c.CheckpointInterval())
	}
	if c.Receiver.Capacity != 50 {
		t.Fatalf("capacity esperada 50, got %d", c.Receiver.Capacity)
	}
	// defaults siguen aplicando para lo no seteado
	if c.Receiver.CorruptField != "corrupt" {
		t.Fatalf("corrupt_field esperado default, got %q", c.Receiver.CorruptField)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "PROD")
	t.Setenv("RECEIVER_CAPACITY", "25")
	t.Setenv("RECEIVER_WARN_RATIO", "0.5")
	t.Setenv("KEYS_BOOTSTRAP", "default, audit ,")
	t.Setenv("NONCE_KIND", "redis")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.App.Env != "prod" {
		t.Fatalf("env esperado prod (lowercase), got %q", c.App.Env)
	}
	if c.Receiver.Capacity != 25 || c.Receiver.WarnRatio != 0.5 {
		t.Fatalf("receiver inesperado: %+v", c.Receiver)
	}
	if len(c.Keys.Bootstrap) != 2 || c.Keys.Bootstrap[1] != "audit" {
		t.Fatalf("csv mal parseado: %v", c.Keys.Bootstrap)
	}
	if c.Nonce.Kind != "redis" {
		t.Fatalf("kind esperado redis, got %q", c.Nonce.Kind)
	}
}

func TestInvalidDuration(t *testing.T) {
	t.Setenv("TOKEN_DEFAULT_TTL", "not-a-duration")
	if _, err := FromEnv(); err == nil {
		t.Fatal("se esperaba error por duración inválida")
	}
}
