package config

import (
	"testing"
	"time"
)

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "outreach", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "outreach", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Lock.Mode != LockModeRedis {
		t.Fatalf("expected redis lock default, got %q", c.Lock.Mode)
	}
	if c.Gateway.DedupTTL != 30*time.Second {
		t.Fatalf("expected 30s dedup ttl default, got %s", c.Gateway.DedupTTL)
	}
	if c.Dispatcher.Interval != time.Minute {
		t.Fatalf("expected 1m dispatcher interval default, got %s", c.Dispatcher.Interval)
	}
}

func TestValidate_RejectsMemoryLockInProduction(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "production", Port: 8080},
		DB:   DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "outreach", SSLMode: "require"},
		Auth: AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour},
		Lock: LockConfig{Mode: LockModeMemory},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for memory lock in production")
	}
}

func TestValidate_MemoryLockSkipsRedisRequirement(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "local", Port: 8080},
		DB:   DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "outreach"},
		Auth: AuthConfig{JWTSecret: "secret"},
		Lock: LockConfig{Mode: LockModeMemory},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
