// Package config loads service settings from VERIDA_* environment variables
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"verida.org/internal/obs"
	"verida.org/internal/proofs"
)

const envPrefix = "VERIDA"

// State backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	HTTPAddr       string        `mapstructure:"HTTP_ADDR"`
	GRPCAddr       string        `mapstructure:"GRPC_ADDR"`
	StateBackend   string        `mapstructure:"STATE_BACKEND"`
	PGDSN          string        `mapstructure:"PG_DSN"`
	MirrorDSN      string        `mapstructure:"MIRROR_DSN"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	RedisPrefix    string        `mapstructure:"REDIS_PREFIX"`
	RabbitMQURL    string        `mapstructure:"RABBITMQ_URL"`
	EventsExchange string        `mapstructure:"EVENTS_EXCHANGE"`
	AuthSecret     string        `mapstructure:"AUTH_SECRET"`
	DevTokens      bool          `mapstructure:"DEV_TOKENS"`
	TokenTTL       time.Duration `mapstructure:"TOKEN_TTL"`
	RateBurst      int           `mapstructure:"RATE_BURST"`
	RatePerSec     float64       `mapstructure:"RATE_PER_SEC"`
	CORSOrigins    string        `mapstructure:"CORS_ORIGINS"`
	MaxBodyBytes   int64         `mapstructure:"MAX_BODY_BYTES"`
	SweepSchedule  string        `mapstructure:"SWEEP_SCHEDULE"`
	SweepBatch     int           `mapstructure:"SWEEP_BATCH"`
	BootstrapAdmin string        `mapstructure:"BOOTSTRAP_ADMIN"`
	S3Region       string        `mapstructure:"S3_REGION"`
	S3Endpoint     string        `mapstructure:"S3_ENDPOINT"`
	S3Bucket       string        `mapstructure:"S3_BUCKET"`
	S3AccessKey    string        `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey    string        `mapstructure:"S3_SECRET_KEY"`
	ProofURLTTL    time.Duration `mapstructure:"PROOF_URL_TTL"`
}

var defaults = map[string]any{
	"HTTP_ADDR":       ":8080",
	"GRPC_ADDR":       ":9090",
	"STATE_BACKEND":   BackendMemory,
	"PG_DSN":          "",
	"MIRROR_DSN":      "",
	"REDIS_URL":       "",
	"REDIS_PREFIX":    "verida",
	"RABBITMQ_URL":    "",
	"EVENTS_EXCHANGE": "verida.contract_events",
	"AUTH_SECRET":     "",
	"DEV_TOKENS":      false,
	"TOKEN_TTL":       "1h",
	"RATE_BURST":      20,
	"RATE_PER_SEC":    10.0,
	"CORS_ORIGINS":    "",
	"MAX_BODY_BYTES":  1 << 20,
	"SWEEP_SCHEDULE":  "@every 1m",
	"SWEEP_BATCH":     100,
	"BOOTSTRAP_ADMIN": "",
	"S3_REGION":       "",
	"S3_ENDPOINT":     "",
	"S3_BUCKET":       "",
	"S3_ACCESS_KEY":   "",
	"S3_SECRET_KEY":   "",
	"PROOF_URL_TTL":   "15m",
}

// Load reads configuration from the environment and an optional .env file
// under path. Environment variables win over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			obs.Warn("failed to read config file; using environment values", map[string]any{
				"component": "config",
				"error":     err.Error(),
			})
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.StateBackend = strings.ToLower(strings.TrimSpace(cfg.StateBackend))
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected components have what they need.
func (c Config) Validate() error {
	var errs []error
	switch c.StateBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PGDSN == "" {
			errs = append(errs, errors.New("VERIDA_PG_DSN is required for the postgres backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("VERIDA_REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VERIDA_STATE_BACKEND %q", c.StateBackend))
	}
	if c.AuthSecret == "" {
		errs = append(errs, errors.New("VERIDA_AUTH_SECRET is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("VERIDA_TOKEN_TTL must be positive"))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("rate limit settings must be positive"))
	}
	return errors.Join(errs...)
}

// MirrorDatabase returns the DSN of the read mirror, defaulting to the state
// database when the postgres backend is in use.
func (c Config) MirrorDatabase() string {
	if c.MirrorDSN != "" {
		return c.MirrorDSN
	}
	if c.StateBackend == BackendPostgres {
		return c.PGDSN
	}
	return ""
}

func (c Config) Proofs() proofs.Config {
	return proofs.Config{
		Region:    c.S3Region,
		Endpoint:  c.S3Endpoint,
		Bucket:    c.S3Bucket,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Expiry:    c.ProofURLTTL,
	}
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
