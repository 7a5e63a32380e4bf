// Package config loads service settings from an optional YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"routeopt/internal/vrp"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	SQLitePath  string `yaml:"sqlitePath"`
	DBMigrate   bool   `yaml:"dbMigrate"`
	RedisURL    string `yaml:"redisUrl"`

	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`

	MaxConcurrentSolves int64         `yaml:"maxConcurrentSolves"`
	MatrixCacheSize     int           `yaml:"matrixCacheSize"`
	SyncSolveTimeout    time.Duration `yaml:"syncSolveTimeout"`

	WebhookMaxAttempts int           `yaml:"webhookMaxAttempts"`
	WebhookInterval    time.Duration `yaml:"webhookInterval"`

	Auth   Auth   `yaml:"auth"`
	Search Search `yaml:"search"`

	LogLevel string `yaml:"logLevel"`
}

type Auth struct {
	Mode        string `yaml:"mode"`
	HMACSecret  string `yaml:"hmacSecret"`
	TenantClaim string `yaml:"tenantClaim"`
	RoleClaim   string `yaml:"roleClaim"`
}

// Search holds the defaults applied to requests that omit search options.
type Search struct {
	Strategy       string        `yaml:"strategy"`
	TimeLimit      time.Duration `yaml:"timeLimit"`
	IterationLimit int           `yaml:"iterationLimit"`
	Seed           int64         `yaml:"seed"`
	ExactNodeLimit int           `yaml:"exactNodeLimit"`
}

// Parameters converts s into solver search parameters.
func (s Search) Parameters() vrp.SearchParameters {
	p := vrp.DefaultSearchParameters()
	if s.Strategy != "" {
		p.Strategy = vrp.Strategy(s.Strategy)
	}
	if s.TimeLimit > 0 {
		p.TimeLimit = s.TimeLimit
	}
	if s.IterationLimit > 0 {
		p.IterationLimit = s.IterationLimit
	}
	if s.Seed != 0 {
		p.Seed = s.Seed
	}
	if s.ExactNodeLimit > 0 {
		p.ExactNodeLimit = s.ExactNodeLimit
	}
	return p
}

func Default() Config {
	d := vrp.DefaultSearchParameters()
	return Config{
		Port:                "8080",
		DBMigrate:           true,
		RateRPS:             20,
		RateBurst:           40,
		MaxConcurrentSolves: 4,
		MatrixCacheSize:     128,
		SyncSolveTimeout:    60 * time.Second,
		WebhookMaxAttempts:  10,
		WebhookInterval:     2 * time.Second,
		Auth:                Auth{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
		Search: Search{
			Strategy:       string(d.Strategy),
			TimeLimit:      d.TimeLimit,
			IterationLimit: d.IterationLimit,
			Seed:           d.Seed,
			ExactNodeLimit: d.ExactNodeLimit,
		},
		LogLevel: "info",
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then applies environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	num := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
			}
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SQLITE_PATH", &c.SQLitePath)
	str("REDIS_URL", &c.RedisURL)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_TENANT_CLAIM", &c.Auth.TenantClaim)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)
	str("SOLVER_STRATEGY", &c.Search.Strategy)
	str("LOG_LEVEL", &c.LogLevel)

	num("DB_MIGRATE", func(v string) (err error) { c.DBMigrate, err = strconv.ParseBool(v); return })
	num("RATE_RPS", func(v string) (err error) { c.RateRPS, err = strconv.ParseFloat(v, 64); return })
	num("RATE_BURST", func(v string) (err error) { c.RateBurst, err = strconv.Atoi(v); return })
	num("MAX_CONCURRENT_SOLVES", func(v string) (err error) { c.MaxConcurrentSolves, err = strconv.ParseInt(v, 10, 64); return })
	num("MATRIX_CACHE_SIZE", func(v string) (err error) { c.MatrixCacheSize, err = strconv.Atoi(v); return })
	num("SYNC_SOLVE_TIMEOUT", func(v string) (err error) { c.SyncSolveTimeout, err = time.ParseDuration(v); return })
	num("WEBHOOK_MAX_ATTEMPTS", func(v string) (err error) { c.WebhookMaxAttempts, err = strconv.Atoi(v); return })
	num("WEBHOOK_INTERVAL", func(v string) (err error) { c.WebhookInterval, err = time.ParseDuration(v); return })
	num("SOLVER_TIME_LIMIT", func(v string) (err error) { c.Search.TimeLimit, err = time.ParseDuration(v); return })
	num("SOLVER_ITERATION_LIMIT", func(v string) (err error) { c.Search.IterationLimit, err = strconv.Atoi(v); return })
	num("SOLVER_SEED", func(v string) (err error) { c.Search.Seed, err = strconv.ParseInt(v, 10, 64); return })
	num("SOLVER_EXACT_NODE_LIMIT", func(v string) (err error) { c.Search.ExactNodeLimit, err = strconv.Atoi(v); return })

	if len(errs) > 0 {
		return fmt.Errorf("config env: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("config: port is required")
	case c.MaxConcurrentSolves <= 0:
		return fmt.Errorf("config: maxConcurrentSolves must be positive, got %d", c.MaxConcurrentSolves)
	case c.MatrixCacheSize <= 0:
		return fmt.Errorf("config: matrixCacheSize must be positive, got %d", c.MatrixCacheSize)
	case c.WebhookMaxAttempts <= 0:
		return fmt.Errorf("config: webhookMaxAttempts must be positive, got %d", c.WebhookMaxAttempts)
	case !vrp.Strategy(c.Search.Strategy).Valid():
		return fmt.Errorf("config: unknown search strategy %q", c.Search.Strategy)
	}
	switch c.Auth.Mode {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return fmt.Errorf("config: auth mode hmac needs a secret")
		}
	default:
		return fmt.Errorf("config: unsupported auth mode %q", c.Auth.Mode)
	}
	return nil
}
