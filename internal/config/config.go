package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read from the environment once at startup; nothing else reads env vars.
//
// Voice provider credentials and PUBLIC_URL are not required at startup:
// a call placed without them fails with ServiceUnavailable.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	Calls  CallsConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicURL is the externally reachable base for provider webhooks.
	PublicURL string
}

type DBConfig struct {
	// Disabled skips database settings, used by `serve --memory` and `token`.
	Disabled bool

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	ServiceTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	APIBase     string
	Voice       string

	// ValidateSignature checks X-Twilio-Signature on webhooks.
	// Defaults to true in production.
	ValidateSignature bool
	validateSet       bool
}

type CallsConfig struct {
	// SessionStore is "memory" or "redis".
	SessionStore string
	// SessionTTL expires flow sessions; 0 keeps them until a terminal callback.
	SessionTTL time.Duration

	// ConcurrencyLimit caps non-terminal calls per representative; 0 disables.
	ConcurrencyLimit int

	DispatchTimeout time.Duration
	CallerName      string

	// PeerAPIURL receives status pushes; empty disables the notifier.
	PeerAPIURL string
}

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type Option func(*Config)

// WithoutDatabase skips DB_* settings.
func WithoutDatabase() Option { return func(c *Config) { c.DB.Disabled = true } }

func Load(opts ...Option) (Config, error) {
	c := Config{}
	for _, o := range opts {
		o(&c)
	}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_URL")), "/")

	if !c.DB.Disabled {
		c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
		{
			n, err := mustInt("DB_PORT")
			n, parseErrs = appendParseErr(parseErrs, n, err)
			c.DB.Port = n
		}
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	{
		d, err := optionalDuration("JWT_SERVICE_TTL")
		parseErrs = appendErr(parseErrs, err)
		c.Auth.ServiceTokenTTL = d
	}

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PhoneNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))
	c.Twilio.APIBase = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_API_BASE")), "/")
	c.Twilio.Voice = strings.TrimSpace(os.Getenv("TWILIO_VOICE"))
	if v := strings.TrimSpace(os.Getenv("TWILIO_VALIDATE_SIGNATURE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("TWILIO_VALIDATE_SIGNATURE must be a boolean, got %q", v))
		}
		c.Twilio.ValidateSignature = b
		c.Twilio.validateSet = true
	}

	c.Calls.SessionStore = strings.ToLower(strings.TrimSpace(os.Getenv("SESSION_STORE")))
	{
		d, err := optionalDuration("SESSION_TTL")
		parseErrs = appendErr(parseErrs, err)
		c.Calls.SessionTTL = d
	}
	{
		n, err := optionalInt("CALL_CONCURRENCY_LIMIT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Calls.ConcurrencyLimit = n
	}
	{
		d, err := optionalDuration("DISPATCH_TIMEOUT")
		parseErrs = appendErr(parseErrs, err)
		c.Calls.DispatchTimeout = d
	}
	c.Calls.CallerName = strings.TrimSpace(os.Getenv("CALLER_NAME"))
	c.Calls.PeerAPIURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PEER_API_URL")), "/")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required settings and applies defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if !c.DB.Disabled {
		errs = append(errs, c.validateDB()...)
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.ServiceTokenTTL <= 0 {
		c.Auth.ServiceTokenTTL = 15 * time.Minute
	}

	if !c.Twilio.validateSet {
		c.Twilio.ValidateSignature = c.IsProduction()
	}
	if c.Twilio.Voice == "" {
		c.Twilio.Voice = "Polly.Joanna"
	}

	switch c.Calls.SessionStore {
	case "":
		c.Calls.SessionStore = SessionStoreMemory
	case SessionStoreMemory, SessionStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be one of memory, redis, got %q", c.Calls.SessionStore))
	}
	if c.Calls.SessionTTL < 0 {
		errs = append(errs, errors.New("SESSION_TTL must not be negative"))
	}
	if c.Calls.ConcurrencyLimit < 0 {
		errs = append(errs, fmt.Errorf("CALL_CONCURRENCY_LIMIT must not be negative, got %d", c.Calls.ConcurrencyLimit))
	}
	if c.Calls.DispatchTimeout <= 0 {
		c.Calls.DispatchTimeout = 30 * time.Second
	}
	if c.Calls.CallerName == "" {
		c.Calls.CallerName = "a constituent"
	}

	if c.NeedsRedis() {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when SESSION_STORE=redis or CALL_CONCURRENCY_LIMIT > 0"))
		}
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) NeedsRedis() bool {
	return c.Calls.SessionStore == SessionStoreRedis || c.Calls.ConcurrencyLimit > 0
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains the password; never log it.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		errs = append(errs, err)
	}
	return errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

// joinErrors keeps every problem, not just the first.
func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return fmt.Errorf("%d config errors: %w", len(errs), errors.Join(errs...))
}
