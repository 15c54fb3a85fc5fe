package config

import (
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-user-cache/pkg/testsupport"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ProjectName != "Demo" {
		t.Errorf("expected project name Demo, got %s", cfg.ProjectName)
	}
	if cfg.APIPrefix != "/api/v1" {
		t.Errorf("expected /api/v1 prefix, got %s", cfg.APIPrefix)
	}
	if cfg.HTTP.Addr != ":8000" {
		t.Errorf("expected :8000, got %s", cfg.HTTP.Addr)
	}
	if cfg.HTTP.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s request timeout, got %v", cfg.HTTP.RequestTimeout)
	}
	if cfg.Redis.TTL != 60 || cfg.EntryTTL() != time.Minute {
		t.Errorf("expected 60 second entry TTL, got %d", cfg.Redis.TTL)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Codec != "json" {
		t.Errorf("expected redis backend with json codec, got %s/%s", cfg.Cache.Backend, cfg.Cache.Codec)
	}
	if cfg.Cache.InvalidationPolicy != "best_effort" || !cfg.Cache.SingleFlight {
		t.Errorf("unexpected cache defaults %+v", cfg.Cache)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("unexpected metrics defaults %+v", cfg.Metrics)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PROJECT_NAME", "Users")
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("HTTP_REQUEST_TIMEOUT", "2s")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", ":memory:")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TTL", "30")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("CACHE_CODEC", "msgpack")
	t.Setenv("CACHE_INVALIDATION_POLICY", "strict")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ProjectName != "Users" {
		t.Errorf("expected Users, got %s", cfg.ProjectName)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.RequestTimeout != 2*time.Second {
		t.Errorf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.DB.Driver != "sqlite3" || cfg.DB.DSN != ":memory:" {
		t.Errorf("unexpected db config %+v", cfg.DB)
	}
	if cfg.Redis.Host != "cache" || cfg.Redis.Port != 6380 || cfg.Redis.TTL != 30 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.Codec != "msgpack" || cfg.Cache.InvalidationPolicy != "strict" {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Log.Level)
	}
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")

	cfg, err := Load(newFlagSet(), []string{"-addr", ":9000", "-debug"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("expected flag to override env, got %s", cfg.HTTP.Addr)
	}
	if !cfg.Debug {
		t.Error("expected debug enabled by flag")
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	if _, err := Load(newFlagSet(), []string{"-nope"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestLoad_File(t *testing.T) {
	path := testsupport.TempFile(t, "config.yaml", []byte(`
project_name: FromFile
http:
  addr: ":7000"
redis:
  host: redis.internal
  ttl: 45
cache:
  key_prefix: "users:"
  codec: msgpack
log:
  format: console
`))

	t.Setenv("PROJECT_NAME", "FromEnv")

	cfg, err := Load(newFlagSet(), []string{"-config", path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ConfigFile != path {
		t.Errorf("expected config file %s, got %s", path, cfg.ConfigFile)
	}
	if cfg.ProjectName != "FromFile" {
		t.Errorf("expected file to override env, got %s", cfg.ProjectName)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Errorf("expected :7000, got %s", cfg.HTTP.Addr)
	}
	if cfg.Redis.Host != "redis.internal" || cfg.Redis.TTL != 45 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Redis.Port != 6379 {
		t.Errorf("expected fields absent from the file to keep env defaults, got port %d", cfg.Redis.Port)
	}
	if cfg.Cache.KeyPrefix != "users:" || cfg.Cache.Codec != "msgpack" {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("expected console log format, got %s", cfg.Log.Format)
	}
}

func TestLoad_FlagOverridesFile(t *testing.T) {
	path := testsupport.TempFile(t, "config.yaml", []byte("http:\n  addr: \":7000\"\n"))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(newFlagSet(), []string{"-addr", ":9100"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Errorf("expected flag to win over file, got %s", cfg.HTTP.Addr)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return t.TempDir() + "/missing.yaml" },
			wantErr: "read config file",
		},
		{
			name: "malformed yaml",
			path: func(t *testing.T) string {
				return testsupport.TempFile(t, "bad.yaml", []byte("http: [unclosed"))
			},
			wantErr: "parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newFlagSet(), []string{"-config", tt.path(t)})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "unparsable ttl", key: "REDIS_TTL", value: "soon", wantErr: "parse env"},
		{name: "zero ttl", key: "REDIS_TTL", value: "0", wantErr: "validation failed"},
		{name: "port out of range", key: "REDIS_PORT", value: "70000", wantErr: "validation failed"},
		{name: "unknown backend", key: "CACHE_BACKEND", value: "disk", wantErr: "validation failed"},
		{name: "unknown codec", key: "CACHE_CODEC", value: "gob", wantErr: "validation failed"},
		{name: "unknown policy", key: "CACHE_INVALIDATION_POLICY", value: "eventually", wantErr: "validation failed"},
		{name: "unknown driver", key: "DB_DRIVER", value: "mysql", wantErr: "validation failed"},
		{name: "relative prefix", key: "API_V1_STR", value: "api", wantErr: "validation failed"},
		{name: "zero request timeout", key: "HTTP_REQUEST_TIMEOUT", value: "0s", wantErr: "validation failed"},
		{name: "unknown log level", key: "LOG_LEVEL", value: "verbose", wantErr: "validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load(newFlagSet(), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_CacheConfig(t *testing.T) {
	tests := []struct {
		name       string
		ttl        int
		tagTTL     time.Duration
		wantTTL    time.Duration
		wantTagTTL time.Duration
	}{
		{name: "tag ttl kept", ttl: 60, tagTTL: 120 * time.Second, wantTTL: time.Minute, wantTagTTL: 120 * time.Second},
		{name: "tag ttl raised", ttl: 300, tagTTL: 120 * time.Second, wantTTL: 5 * time.Minute, wantTagTTL: 10 * time.Minute},
		{name: "tag expiration disabled", ttl: 300, tagTTL: 0, wantTTL: 5 * time.Minute, wantTagTTL: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Redis: RedisConfig{Host: "localhost", Port: 6379, TTL: tt.ttl},
				Cache: CacheConfig{Backend: "memory", Codec: "json", TagTTL: tt.tagTTL, InvalidationPolicy: "best_effort"},
			}

			cacheCfg := cfg.CacheConfig()
			if cacheCfg.TTL != tt.wantTTL {
				t.Errorf("expected TTL %v, got %v", tt.wantTTL, cacheCfg.TTL)
			}
			if cacheCfg.TagTTL != tt.wantTagTTL {
				t.Errorf("expected tag TTL %v, got %v", tt.wantTagTTL, cacheCfg.TagTTL)
			}
			if err := cacheCfg.Validate(); err != nil {
				t.Errorf("expected derived config to validate, got %v", err)
			}
		})
	}
}

func TestConfig_CacheConfigConnection(t *testing.T) {
	cfg := Config{
		Redis: RedisConfig{Host: "cache", Port: 6380, DB: 2, Password: "secret", PoolSize: 4, TTL: 7200},
		Cache: CacheConfig{Backend: "redis", Codec: "msgpack", KeyPrefix: "demo:", InvalidationPolicy: "strict"},
	}

	cacheCfg := cfg.CacheConfig()
	if cacheCfg.Redis.Addr != "cache:6380" {
		t.Errorf("expected cache:6380, got %s", cacheCfg.Redis.Addr)
	}
	if cacheCfg.Redis.DB != 2 || cacheCfg.Redis.Password != "secret" || cacheCfg.Redis.PoolSize != 4 {
		t.Errorf("unexpected redis options %+v", cacheCfg.Redis)
	}
	if cacheCfg.KeyPrefix != "demo:" || cacheCfg.Codec != "msgpack" || cacheCfg.InvalidationPolicy != "strict" {
		t.Errorf("unexpected cache options %+v", cacheCfg)
	}
	if cacheCfg.Memory.MaxTTL != 2*time.Hour {
		t.Errorf("expected memory max TTL raised to the entry TTL, got %v", cacheCfg.Memory.MaxTTL)
	}
}

func TestConfig_DatabaseConfig(t *testing.T) {
	cfg := Config{
		Debug: true,
		DB: DBConfig{
			Driver:          "postgres",
			Host:            "db:5432",
			User:            "app",
			Password:        "pw",
			Name:            "users",
			SSLMode:         "require",
			MaxOpenConns:    8,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Minute,
		},
	}

	dbCfg := cfg.DatabaseConfig()
	if dbCfg.Driver != "postgres" || dbCfg.Host != "db:5432" || dbCfg.Name != "users" {
		t.Errorf("unexpected database config %+v", dbCfg)
	}
	if dbCfg.MaxOpenConns != 8 || dbCfg.MaxIdleConns != 2 || dbCfg.ConnMaxLifetime != time.Minute {
		t.Errorf("unexpected pool settings %+v", dbCfg)
	}
	if !dbCfg.Debug {
		t.Error("expected debug to carry over")
	}
	if got := dbCfg.ConnectionString(); got != "postgres://app:pw@db:5432/users?sslmode=require" {
		t.Errorf("unexpected connection string %s", got)
	}
}
