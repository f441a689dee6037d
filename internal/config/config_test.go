package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:  AppConfig{Env: "local", Port: 8080},
		DB:   DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "callrep"},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "callrep"
	c.Auth.JWTAudience = "callrep-peer"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected error for production without DB_SSLMODE, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Calls.SessionStore != SessionStoreMemory || c.Calls.DispatchTimeout != 30*time.Second {
		t.Fatalf("unexpected call defaults: %+v", c.Calls)
	}
	if c.Calls.CallerName != "a constituent" || c.Twilio.Voice != "Polly.Joanna" {
		t.Fatalf("unexpected defaults: %+v %+v", c.Calls, c.Twilio)
	}
	if c.Twilio.ValidateSignature {
		t.Fatalf("signature validation should default off outside production")
	}
	if c.NeedsRedis() {
		t.Fatalf("memory sessions without a cap need no redis")
	}
}

func TestValidate_RedisRequiredForSharedState(t *testing.T) {
	c := validLocal()
	c.Calls.ConcurrencyLimit = 2
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("expected REDIS_HOST error, got %v", err)
	}

	c = validLocal()
	c.Calls.SessionStore = SessionStoreRedis
	c.Redis.Host = "localhost"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.RedisAddr() != "localhost:6379" {
		t.Fatalf("expected default redis port, got %s", c.RedisAddr())
	}
}

func TestValidate_RejectsUnknownSessionStore(t *testing.T) {
	c := validLocal()
	c.Calls.SessionStore = "memcached"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidate_WithoutDatabase(t *testing.T) {
	c := Config{App: AppConfig{Env: "dev", Port: 8080}, Auth: AuthConfig{JWTSecret: "s"}}
	WithoutDatabase()(&c)
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("JWT_ISSUER", "callrep")
	t.Setenv("JWT_AUDIENCE", "peer")
	t.Setenv("PUBLIC_URL", "https://calls.example.com/")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("PEER_API_URL", "https://peer.example.com/api/")

	c, err := Load(WithoutDatabase())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.PublicURL != "https://calls.example.com" || c.Calls.PeerAPIURL != "https://peer.example.com/api" {
		t.Fatalf("expected trailing slashes trimmed: %+v", c)
	}
	if c.Calls.SessionTTL != 2*time.Hour {
		t.Fatalf("unexpected session ttl %v", c.Calls.SessionTTL)
	}
	if !c.Twilio.ValidateSignature {
		t.Fatalf("signature validation should default on in production")
	}
	if c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected addr %s", c.HTTPAddr())
	}
}

func TestLoad_ReportsParseErrors(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("DISPATCH_TIMEOUT", "soon")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "maybe")

	_, err := Load(WithoutDatabase())
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	for _, want := range []string{"APP_PORT", "DISPATCH_TIMEOUT", "TWILIO_VALIDATE_SIGNATURE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}
