package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMongoDatabase = "lighthousecrm"
	DefaultCacheTTL      = 5 * time.Minute
	DefaultVerifyTimeout = 5 * time.Second

	// DefaultJWKSURL publishes the identity provider's signing keys.
	DefaultJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	// providerIssuerPrefix + audience is the provider's issuer claim.
	providerIssuerPrefix = "https://securetoken.google.com/"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Identity IdentityConfig
	Audit    AuditConfig
	Tenancy  TenancyConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// CacheConfig selects the auth cache backend: memory, redis or none.
type CacheConfig struct {
	Driver string
	TTL    time.Duration
}

type IdentityConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	// HMACSecret switches verification to a shared secret. Local and dev only.
	HMACSecret string
	Timeout    time.Duration
	// AllowUnverified enables decoding without signature verification when
	// the provider is unreachable. Never valid in production.
	AllowUnverified bool
}

type AuditConfig struct {
	// DSN is a Postgres DSN; empty keeps activity in memory.
	DSN string
}

type TenancyConfig struct {
	// PublicDomains overrides the resolver's built-in list. Nil keeps the
	// built-in list; an empty slice, from TENANCY_PUBLIC_DOMAINS set to "",
	// excludes no domain.
	PublicDomains []string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Mongo.URI = strings.TrimSpace(os.Getenv("MONGO_URI"))
	c.Mongo.Database = strings.TrimSpace(os.Getenv("MONGO_DB"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Cache.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_CACHE_DRIVER")))
	{
		d, err := optionalDuration("AUTH_CACHE_TTL")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Cache.TTL = d
	}

	c.Identity.JWKSURL = strings.TrimSpace(os.Getenv("IDENTITY_JWKS_URL"))
	c.Identity.Issuer = strings.TrimSpace(os.Getenv("IDENTITY_ISSUER"))
	c.Identity.Audience = strings.TrimSpace(os.Getenv("IDENTITY_AUDIENCE"))
	c.Identity.HMACSecret = os.Getenv("IDENTITY_HMAC_SECRET")
	{
		d, err := optionalDuration("IDENTITY_TIMEOUT")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Identity.Timeout = d
	}
	{
		b, err := optionalBool("IDENTITY_ALLOW_UNVERIFIED")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Identity.AllowUnverified = b
	}

	c.Audit.DSN = strings.TrimSpace(os.Getenv("AUDIT_DSN"))
	if v, ok := os.LookupEnv("TENANCY_PUBLIC_DOMAINS"); ok {
		c.Tenancy.PublicDomains = append([]string{}, splitList(v)...)
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks c and fills in defaults.
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

	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = DefaultMongoDatabase
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	switch c.Cache.Driver {
	case "memory", "none":
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when AUTH_CACHE_DRIVER=redis"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_CACHE_DRIVER must be one of memory, redis, none, got %q", c.Cache.Driver))
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	if c.Identity.Timeout <= 0 {
		c.Identity.Timeout = DefaultVerifyTimeout
	}
	if c.Identity.JWKSURL == "" {
		c.Identity.JWKSURL = DefaultJWKSURL
	}
	if c.Identity.Issuer == "" && c.Identity.Audience != "" && c.Identity.HMACSecret == "" {
		c.Identity.Issuer = providerIssuerPrefix + c.Identity.Audience
	}
	if c.Identity.HMACSecret != "" && !c.IsLocal() {
		errs = append(errs, errors.New("IDENTITY_HMAC_SECRET is only allowed when APP_ENV is local or dev"))
	}
	if c.IsProduction() {
		if c.Identity.AllowUnverified {
			errs = append(errs, errors.New("IDENTITY_ALLOW_UNVERIFIED must not be enabled in production"))
		}
		if c.Identity.Audience == "" {
			errs = append(errs, errors.New("IDENTITY_AUDIENCE is required in production"))
		}
		if c.Identity.Issuer == "" {
			errs = append(errs, errors.New("IDENTITY_ISSUER is required in production"))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsLocal reports a developer environment.
func (c Config) IsLocal() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
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

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
