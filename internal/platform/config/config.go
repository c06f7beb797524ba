// Package config reads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Render configures the headless browser pool. PoolSize 0 disables rendering; providers
// then use their direct tier only.
type Render struct {
	PoolSize     int
	ExecPath     string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	UserAgent    string
}

// RedisConfig configures the shared result cache. An empty URL keeps the cache in process.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Banks holds per-bank endpoint overrides. Empty values use each provider's default.
type Banks struct {
	CBEBaseURL       string
	AwashBaseURL     string
	AbyssiniaBaseURL string
}

// Breaker configures the per-bank circuit that skips a failing direct tier.
type Breaker struct {
	FailureThreshold int
	Cooldown         time.Duration
}

type Config struct {
	Server          Server
	Render          Render
	Redis           RedisConfig
	Banks           Banks
	Breaker         Breaker
	FetchTimeout    time.Duration
	CacheTTL        time.Duration
	CleanupInterval time.Duration
	LogLevel        string
	OTelEnabled     bool
}

// Load reads a .env file outside production, then the environment.
func Load() (Config, error) {
	if !strings.EqualFold(os.Getenv("ENVIRONMENT"), "production") {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		Server: Server{
			Addr:            e.str("RECEIPT_ADDR", ":8080"),
			Environment:     e.str("ENVIRONMENT", "development"),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
			MaxBodyBytes:    int64(e.int("MAX_BODY_BYTES", 64<<10)),
		},
		Render: Render{
			PoolSize:     e.int("RENDER_POOL_SIZE", 3),
			ExecPath:     e.str("CHROME_PATH", ""),
			Timeout:      e.duration("RENDER_TIMEOUT", 30*time.Second),
			ProbeTimeout: e.duration("RENDER_PROBE_TIMEOUT", 5*time.Second),
			UserAgent:    e.str("RENDER_USER_AGENT", ""),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Banks: Banks{
			CBEBaseURL:       e.str("CBE_BASE_URL", ""),
			AwashBaseURL:     e.str("AWASH_BASE_URL", ""),
			AbyssiniaBaseURL: e.str("ABYSSINIA_BASE_URL", ""),
		},
		Breaker: Breaker{
			FailureThreshold: e.int("BREAKER_FAILURE_THRESHOLD", 5),
			Cooldown:         e.duration("BREAKER_COOLDOWN", 30*time.Second),
		},
		FetchTimeout:    e.duration("FETCH_TIMEOUT", 30*time.Second),
		CacheTTL:        time.Duration(e.int("CACHE_TTL_SECONDS", 300)) * time.Second,
		CleanupInterval: e.duration("CLEANUP_INTERVAL", 60*time.Second),
		LogLevel:        e.str("LOG_LEVEL", "info"),
		OTelEnabled:     e.bool("OTEL_ENABLED", false),
	}
	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.Render.PoolSize < 0 {
		errs = append(errs, errors.New("RENDER_POOL_SIZE must not be negative"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL_SECONDS must be positive"))
	}
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, errors.New("BREAKER_FAILURE_THRESHOLD must be at least 1"))
	}
	for name, d := range map[string]time.Duration{
		"RENDER_TIMEOUT":   c.Render.Timeout,
		"FETCH_TIMEOUT":    c.FetchTimeout,
		"CLEANUP_INTERVAL": c.CleanupInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

// duration accepts Go durations ("45s") or bare seconds ("45").
func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}
