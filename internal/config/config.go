// Package config loads the service configuration from the environment, an
// optional YAML file and command line flags, in that order of precedence
// (later sources win).
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-user-cache/cache"
	"github.com/goliatone/go-user-cache/internal/database"
	"github.com/goliatone/go-user-cache/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds the whole service configuration.
type Config struct {
	ProjectName string `env:"PROJECT_NAME" envDefault:"Demo" yaml:"project_name" validate:"required"`
	APIPrefix   string `env:"API_V1_STR" envDefault:"/api/v1" yaml:"api_prefix" validate:"required,startswith=/"`
	Debug       bool   `env:"DEBUG_MODE" envDefault:"false" yaml:"debug"`

	// ConfigFile is the optional YAML file merged over the environment.
	ConfigFile string `env:"CONFIG_FILE" yaml:"-"`

	HTTP    HTTPConfig     `envPrefix:"HTTP_" yaml:"http"`
	DB      DBConfig       `envPrefix:"DB_" yaml:"db"`
	Redis   RedisConfig    `envPrefix:"REDIS_" yaml:"redis"`
	Cache   CacheConfig    `envPrefix:"CACHE_" yaml:"cache"`
	Log     logging.Config `envPrefix:"LOG_" yaml:"log"`
	Metrics MetricsConfig  `envPrefix:"METRICS_" yaml:"metrics"`
}

// HTTPConfig configures the fasthttp server.
type HTTPConfig struct {
	Addr               string        `env:"ADDR" envDefault:":8000" yaml:"addr" validate:"required"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"10s" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s" yaml:"write_timeout" validate:"gte=0"`
	IdleTimeout        time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s" yaml:"idle_timeout" validate:"gte=0"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s" yaml:"request_timeout" validate:"gt=0"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" yaml:"shutdown_timeout" validate:"gt=0"`
	MaxRequestBodySize int           `env:"MAX_BODY_SIZE" envDefault:"1048576" yaml:"max_body_size" validate:"gt=0"`
}

// DBConfig configures the relational store.
type DBConfig struct {
	Driver      string `env:"DRIVER" envDefault:"postgres" yaml:"driver" validate:"oneof=postgres sqlite3"`
	Host        string `env:"HOST" envDefault:"localhost:5432" yaml:"host"`
	User        string `env:"USER" envDefault:"postgres" yaml:"user"`
	Password    string `env:"PASS" yaml:"password"`
	Name        string `env:"NAME" envDefault:"app" yaml:"name" validate:"required"`
	SSLMode     string `env:"SSLMODE" envDefault:"disable" yaml:"sslmode"`
	DSN         string `env:"DSN" yaml:"dsn"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false" yaml:"auto_migrate"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m" yaml:"conn_max_lifetime" validate:"gte=0"`
}

// RedisConfig configures the Redis connection. TTL is in seconds.
type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"localhost" yaml:"host" validate:"required"`
	Port     int    `env:"PORT" envDefault:"6379" yaml:"port" validate:"gt=0,lte=65535"`
	DB       int    `env:"DB" envDefault:"0" yaml:"db" validate:"gte=0"`
	Password string `env:"PASSWORD" yaml:"password"`
	TTL      int    `env:"TTL" envDefault:"60" yaml:"ttl" validate:"gt=0"`
	PoolSize int    `env:"POOL_SIZE" envDefault:"10" yaml:"pool_size" validate:"gte=0"`
}

// CacheConfig configures the cache-aside layer. A TagTTL shorter than the
// entry TTL is raised to twice the entry TTL; zero disables tag expiration.
type CacheConfig struct {
	Backend            string        `env:"BACKEND" envDefault:"redis" yaml:"backend" validate:"oneof=redis memory"`
	Codec              string        `env:"CODEC" envDefault:"json" yaml:"codec" validate:"oneof=json msgpack"`
	TagTTL             time.Duration `env:"TAG_TTL" envDefault:"120s" yaml:"tag_ttl" validate:"gte=0"`
	KeyPrefix          string        `env:"KEY_PREFIX" yaml:"key_prefix"`
	InvalidationPolicy string        `env:"INVALIDATION_POLICY" envDefault:"best_effort" yaml:"invalidation_policy" validate:"oneof=best_effort strict"`
	SingleFlight       bool          `env:"SINGLE_FLIGHT" envDefault:"true" yaml:"single_flight"`
	LoadTimeout        time.Duration `env:"LOAD_TIMEOUT" envDefault:"10s" yaml:"load_timeout" validate:"gte=0"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true" yaml:"enabled"`
	Path    string `env:"PATH" envDefault:"/metrics" yaml:"path" validate:"startswith=/"`
}

// Load parses the environment, merges the YAML file named by -config or
// CONFIG_FILE and applies command line flags from args.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Path to a YAML configuration file")
	addr := fs.String("addr", "", "HTTP listen address, overrides HTTP_ADDR")
	debug := fs.Bool("debug", cfg.Debug, "Enable debug mode")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.ConfigFile != "" {
		if err := mergeFile(&cfg, cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}

	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *debug {
		cfg.Debug = true
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks struct tags and the derived cache configuration.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.CacheConfig().Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// EntryTTL is the lifetime of cached entries.
func (c Config) EntryTTL() time.Duration {
	return time.Duration(c.Redis.TTL) * time.Second
}

// CacheConfig derives the cache package configuration.
func (c Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Backend = c.Cache.Backend
	cfg.TTL = c.EntryTTL()
	cfg.TagTTL = c.Cache.TagTTL
	if cfg.TagTTL > 0 && cfg.TagTTL < cfg.TTL {
		// a tag set must outlive the entries registered in it
		cfg.TagTTL = 2 * cfg.TTL
	}
	cfg.KeyPrefix = c.Cache.KeyPrefix
	cfg.Codec = c.Cache.Codec
	cfg.InvalidationPolicy = c.Cache.InvalidationPolicy
	cfg.SingleFlight = c.Cache.SingleFlight
	cfg.LoadTimeout = c.Cache.LoadTimeout

	cfg.Redis.Addr = net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
	cfg.Redis.Password = c.Redis.Password
	cfg.Redis.DB = c.Redis.DB
	cfg.Redis.PoolSize = c.Redis.PoolSize

	if c.EntryTTL() > cfg.Memory.MaxTTL {
		cfg.Memory.MaxTTL = c.EntryTTL()
	}

	return cfg
}

// DatabaseConfig derives the database package configuration.
func (c Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:          c.DB.Driver,
		Host:            c.DB.Host,
		User:            c.DB.User,
		Password:        c.DB.Password,
		Name:            c.DB.Name,
		SSLMode:         c.DB.SSLMode,
		DSN:             c.DB.DSN,
		MaxOpenConns:    c.DB.MaxOpenConns,
		MaxIdleConns:    c.DB.MaxIdleConns,
		ConnMaxLifetime: c.DB.ConnMaxLifetime,
		Debug:           c.Debug,
	}
}
