package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Keys struct {
		// Bootstrap: ids de pares de claves a generar al arranque si no
		// existen (en fresco o post-restore).
		Bootstrap []string `yaml:"bootstrap"`
	} `yaml:"keys"`

	Token struct {
		KeyID      string `yaml:"key_id"`
		DefaultTTL string `yaml:"default_ttl"`
	} `yaml:"token"`

	Nonce struct {
		Kind   string `yaml:"kind"` // memory | redis
		MaxAge string `yaml:"max_age"`
		Redis  struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"nonce"`

	Receiver struct {
		Capacity     int     `yaml:"capacity"`
		WarnRatio    float64 `yaml:"warn_ratio"`
		CorruptField string  `yaml:"corrupt_field"`
	} `yaml:"receiver"`

	Persistence struct {
		Path string `yaml:"path"`
		// CheckpointInterval: "0" desactiva los checkpoints periódicos
		// (snapshot solo al shutdown).
		CheckpointInterval string `yaml:"checkpoint_interval"`
	} `yaml:"persistence"`
}

// Load lee el YAML, aplica defaults y pisa con variables de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()

	// validate string durations
	for name, s := range map[string]string{
		"token.default_ttl":               c.Token.DefaultTTL,
		"nonce.max_age":                   c.Nonce.MaxAge,
		"persistence.checkpoint_interval": c.Persistence.CheckpointInterval,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return &c, nil
}

// FromEnv construye la config solo desde env (sin YAML).
func FromEnv() (*Config, error) {
	return Load("")
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if len(c.Keys.Bootstrap) == 0 {
		c.Keys.Bootstrap = []string{"default"}
	}
	if c.Token.KeyID == "" {
		c.Token.KeyID = "token-service"
	}
	if c.Token.DefaultTTL == "" {
		c.Token.DefaultTTL = "1h"
	}
	if c.Nonce.Kind == "" {
		c.Nonce.Kind = "memory"
	}
	if c.Nonce.MaxAge == "" {
		c.Nonce.MaxAge = "5m"
	}
	if c.Nonce.Redis.Addr == "" {
		c.Nonce.Redis.Addr = "localhost:6379"
	}
	if c.Nonce.Redis.Prefix == "" {
		c.Nonce.Redis.Prefix = "nonce:"
	}
	if c.Receiver.Capacity == 0 {
		c.Receiver.Capacity = 100
	}
	if c.Receiver.WarnRatio == 0 {
		c.Receiver.WarnRatio = 0.8
	}
	if c.Receiver.CorruptField == "" {
		c.Receiver.CorruptField = "corrupt"
	}
	if c.Persistence.Path == "" {
		c.Persistence.Path = "./data/insightbridge/state.json"
	}
	if c.Persistence.CheckpointInterval == "" {
		c.Persistence.CheckpointInterval = "0"
	}
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvCSV("KEYS_BOOTSTRAP"); ok {
		c.Keys.Bootstrap = v
	}
	if v, ok := getEnvStr("TOKEN_KEY_ID"); ok {
		c.Token.KeyID = v
	}
	if v, ok := getEnvStr("TOKEN_DEFAULT_TTL"); ok {
		c.Token.DefaultTTL = v
	}
	if v, ok := getEnvStr("NONCE_KIND"); ok {
		c.Nonce.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("NONCE_MAX_AGE"); ok {
		c.Nonce.MaxAge = v
	}
	if v, ok := getEnvStr("NONCE_REDIS_ADDR"); ok {
		c.Nonce.Redis.Addr = v
	}
	if v, ok := getEnvInt("NONCE_REDIS_DB"); ok {
		c.Nonce.Redis.DB = v
	}
	if v, ok := getEnvStr("NONCE_REDIS_PREFIX"); ok {
		c.Nonce.Redis.Prefix = v
	}
	if v, ok := getEnvInt("RECEIVER_CAPACITY"); ok {
		c.Receiver.Capacity = v
	}
	if v, ok := getEnvFloat("RECEIVER_WARN_RATIO"); ok {
		c.Receiver.WarnRatio = v
	}
	if v, ok := getEnvStr("RECEIVER_CORRUPT_FIELD"); ok {
		c.Receiver.CorruptField = v
	}
	if v, ok := getEnvStr("PERSISTENCE_PATH"); ok {
		c.Persistence.Path = v
	}
	if v, ok := getEnvStr("PERSISTENCE_CHECKPOINT_INTERVAL"); ok {
		c.Persistence.CheckpointInterval = v
	}
}

// Duraciones ya validadas en Load; el fallback cubre structs armados a mano.

func (c *Config) TokenDefaultTTL() time.Duration {
	return parseDur(c.Token.DefaultTTL, time.Hour)
}

func (c *Config) NonceMaxAge() time.Duration {
	return parseDur(c.Nonce.MaxAge, 5*time.Minute)
}

func (c *Config) CheckpointInterval() time.Duration {
	return parseDur(c.Persistence.CheckpointInterval, 0)
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvFloat(key string) (float64, bool) {
	if s, ok := getEnvStr(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}
