// notes/config/config.go

// Package config loads server settings from an optional YAML file, with
// ${VAR} expansion, and lets LUMI_* environment variables override them.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory     = "memory"
	BackendFilesystem = "filesystem"
	BackendPostgres   = "postgres"
	BackendMongoDB    = "mongodb"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`

	KeepAlive    time.Duration `yaml:"-"`
	KeepAliveRaw string        `yaml:"keep_alive"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Root          string `yaml:"root"`
	DatabaseURL   string `yaml:"database_url"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	Namespace     string `yaml:"namespace"`
}

type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	BcryptCost         int    `yaml:"bcrypt_cost"`
	LegacyNameIdentity bool   `yaml:"legacy_name_identity"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

type SyncConfig struct {
	QueueSize int `yaml:"queue_size"`

	WriteTimeout    time.Duration `yaml:"-"`
	WriteTimeoutRaw string        `yaml:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default is what Load starts from before reading the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", KeepAliveRaw: "15s"},
		Store: StoreConfig{
			Backend:       BackendFilesystem,
			Root:          "./notes",
			MongoDatabase: "lumi",
			Namespace:     "notes",
		},
		Auth: AuthConfig{BcryptCost: 10, TokenTTLRaw: "24h"},
		Sync: SyncConfig{QueueSize: 1024, WriteTimeoutRaw: "10s"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or nothing
// when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("LUMI_PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if root := os.Getenv("LUMI_ROOT"); root != "" {
		cfg.Store.Root = root
	}
	if backend := os.Getenv("LUMI_STORE"); backend != "" {
		cfg.Store.Backend = backend
	}
	if url := os.Getenv("LUMI_DATABASE_URL"); url != "" {
		cfg.Store.DatabaseURL = url
	}
	if uri := os.Getenv("LUMI_MONGO_URI"); uri != "" {
		cfg.Store.MongoURI = uri
	}
	if secret := os.Getenv("LUMI_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if level := os.Getenv("LUMI_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendFilesystem:
		if c.Store.Root == "" {
			return fmt.Errorf("store.root is required for the filesystem backend")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres backend")
		}
	case BackendMongoDB:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store.mongo_uri is required for the mongodb backend")
		}
		if c.Store.MongoDatabase == "" {
			return fmt.Errorf("store.mongo_database is required for the mongodb backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, filesystem, postgres, mongodb", c.Store.Backend)
	}

	if c.Store.Namespace == "" || strings.Contains(c.Store.Namespace, "/") {
		return fmt.Errorf("store.namespace must be a single non-empty segment")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set LUMI_JWT_SECRET)")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}
	if c.Sync.QueueSize <= 0 {
		return fmt.Errorf("sync.queue_size must be positive")
	}
	return nil
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.keep_alive", cfg.Server.KeepAliveRaw, &cfg.Server.KeepAlive},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"sync.write_timeout", cfg.Sync.WriteTimeoutRaw, &cfg.Sync.WriteTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", f.name)
		}
		*f.dst = d
	}
	return nil
}
