package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port    int    `mapstructure:"PORT"`
	LogMode string `mapstructure:"LOG_MODE"`

	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	DatabasePath  string `mapstructure:"DB_PATH"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	Publisher     string `mapstructure:"PUBLISHER"`
	NetlifyToken  string `mapstructure:"NETLIFY_TOKEN"`
	NetlifyAPIURL string `mapstructure:"NETLIFY_API_URL"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	SitesDir      string `mapstructure:"SITES_DIR"`

	ScaffoldDir   string `mapstructure:"SCAFFOLD_DIR"`
	KeepScaffolds bool   `mapstructure:"KEEP_SCAFFOLDS"`

	MaxWorkflows    int           `mapstructure:"MAX_WORKFLOWS"`
	StepTimeout     time.Duration `mapstructure:"STEP_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"

	PublisherNetlify = "netlify"
	PublisherLocal   = "local"
)

// LoadConfig reads PREVIEW_* environment variables, falling back to a .env
// file in the working directory. Keys in .env may be written with or without
// the PREVIEW_ prefix; the prefixed form wins when both are present.
func LoadConfig() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault("PORT", 3000)
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "previews.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PUBLISHER", PublisherNetlify)
	v.SetDefault("NETLIFY_TOKEN", "")
	v.SetDefault("NETLIFY_API_URL", "https://api.netlify.com/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "")
	v.SetDefault("SITES_DIR", "sites")
	v.SetDefault("SCAFFOLD_DIR", os.TempDir())
	v.SetDefault("KEEP_SCAFFOLDS", false)
	v.SetDefault("MAX_WORKFLOWS", 4)
	v.SetDefault("STEP_TIMEOUT", "5m")
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")

	v.SetEnvPrefix("PREVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		// Ignore err if .env doesn't exist
		if err := v.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(unprefixed(v)); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// unprefixed returns the PREVIEW_* keys read from the env file under their
// bare names. Viper lowercases keys.
func unprefixed(v *viper.Viper) map[string]interface{} {
	const prefix = "preview_"
	out := make(map[string]interface{})
	for _, k := range v.AllKeys() {
		if name, ok := strings.CutPrefix(k, prefix); ok && name != "" {
			out[name] = v.Get(k)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverRedis:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("PREVIEW_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch c.Publisher {
	case PublisherLocal:
	case PublisherNetlify:
		if c.NetlifyToken == "" {
			return fmt.Errorf("PREVIEW_NETLIFY_TOKEN is required for the netlify publisher")
		}
	default:
		return fmt.Errorf("unknown publisher %q", c.Publisher)
	}

	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxWorkflows <= 0 {
		return fmt.Errorf("MAX_WORKFLOWS must be positive, got %d", c.MaxWorkflows)
	}
	if c.StepTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
