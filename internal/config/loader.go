package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "labcore.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("LABCORE_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "LABCORE_PORT")
	setString(&cfg.Server.CORSOrigin, "LABCORE_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "LABCORE_REQUEST_TIMEOUT")
	setInt64(&cfg.Server.MaxRequestBytes, "LABCORE_MAX_REQUEST_BYTES")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "LABCORE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "LABCORE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "LABCORE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "LABCORE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "LABCORE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.AuditSubject, "LABCORE_AUDIT_SUBJECT")

	setString(&cfg.Logging.Level, "LABCORE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "LABCORE_LOG_SERVICE")

	setString(&cfg.Auth.JWTSecret, "LABCORE_JWT_SECRET")
	setString(&cfg.Auth.SecretFile, "LABCORE_JWT_SECRET_FILE")
	setString(&cfg.Auth.Issuer, "LABCORE_JWT_ISSUER")

	setInt64(&cfg.Cache.L1MaxSizeMB, "LABCORE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "LABCORE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "LABCORE_CACHE_L2_TTL")

	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "LABCORE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRatio, "LABCORE_OTEL_SAMPLE_RATIO")

	setDuration(&cfg.Tenancy.MembershipTTL, "LABCORE_MEMBERSHIP_TTL")
	setBool(&cfg.Tenancy.PolicyCheck, "LABCORE_POLICY_CHECK")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
		return errors.New("postgres.min_conns must not exceed postgres.max_conns")
	}
	if cfg.Tenancy.MembershipTTL < 0 {
		return errors.New("tenancy.membership_ttl must not be negative")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("otel.sample_ratio must be within [0, 1]")
	}
	if cfg.NATS.URL != "" && cfg.NATS.AuditSubject == "" {
		return errors.New("nats.audit_subject is required when nats.url is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
