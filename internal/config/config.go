// Package config loads omemd's settings from a YAML file and the environment.
// Settings are read once at start-up and passed down explicitly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/omem/internal/cache"
	"github.com/koustreak/omem/internal/capability"
	"github.com/koustreak/omem/internal/database"
	"github.com/koustreak/omem/internal/database/sqlite"
	"github.com/koustreak/omem/internal/datatype"
	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/filestore"
	"github.com/koustreak/omem/internal/logger"
)

// Environment variables that override file settings.
const (
	EnvGlobalAPIKey       = "GLOBAL_API_KEY"
	EnvPublicBucket       = "BUCKET_NAME_PUBLIC"
	EnvPrivateBucket      = "BUCKET_NAME_PRIVATE"
	EnvDatabaseDSN        = "OMEM_DB_DSN"
	EnvHTTPAddr           = "OMEM_HTTP_ADDR"
	EnvLogLevel           = "OMEM_LOG_LEVEL"
	EnvRedisAddr          = "OMEM_REDIS_ADDR"
	EnvFilestoreAccessKey = "OMEM_FILESTORE_ACCESS_KEY"
	EnvFilestoreSecretKey = "OMEM_FILESTORE_SECRET_KEY"
)

// Config is the complete omemd configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       logger.Config    `yaml:"log"`
	Database  database.Config  `yaml:"database"`
	Filestore filestore.Config `yaml:"filestore"`
	Buckets   BucketsConfig    `yaml:"buckets"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Cache     cache.Config     `yaml:"cache"`
	Auth      AuthConfig       `yaml:"auth"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`

	// RegisterRate and RegisterBurst limit the registration route, per second.
	RegisterRate  float64 `yaml:"register_rate"`
	RegisterBurst int     `yaml:"register_burst"`
}

// BucketsConfig names the public and private buckets.
type BucketsConfig struct {
	Public        string `yaml:"public"`
	Private       string `yaml:"private"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// CatalogConfig describes the actors and tags omemd serves.
type CatalogConfig struct {
	ActorKind  string        `yaml:"actor_kind"`
	DataTypes  []string      `yaml:"data_types"`
	Restricted []string      `yaml:"restricted"`
	ReadTTL    time.Duration `yaml:"read_ttl"`
	WriteTTL   time.Duration `yaml:"write_ttl"`

	// Location is the IANA zone conditional-read timestamps are read in.
	// Empty means the process's local zone.
	Location string `yaml:"location"`
}

// AuthConfig holds the operator key. It is never logged.
type AuthConfig struct {
	GlobalAPIKey string `yaml:"global_api_key"`
}

// Default returns a configuration for a single local instance backed by
// an embedded SQLite file and an in-process cache.
func Default() *Config {
	log := logger.DefaultConfig()
	log.Output = nil

	db := database.DefaultConfig(sqlite.DefaultDSN)
	db.Driver = database.DriverSQLite

	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  20 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RegisterRate:    1,
			RegisterBurst:   5,
		},
		Log:       *log,
		Database:  *db,
		Filestore: *filestore.DefaultConfig("localhost:9000", "", ""),
		Buckets: BucketsConfig{
			PublicBaseURL: capability.DefaultPublicBaseURL,
		},
		Catalog: CatalogConfig{
			ActorKind:  "pharmacy",
			DataTypes:  append([]string(nil), datatype.DefaultRecognized...),
			Restricted: append([]string(nil), datatype.DefaultRestricted...),
			ReadTTL:    capability.DefaultReadTTL,
			WriteTTL:   capability.DefaultWriteTTL,
		},
		Cache: *cache.DefaultConfig(),
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config file", err)
		}
		if err := Decode(bytes.NewReader(raw), cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode merges YAML from r into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.ErrKindInvalidInput, "parse config", err)
	}
	return nil
}

// ApplyEnv overrides settings from lookup, which is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvGlobalAPIKey, &c.Auth.GlobalAPIKey)
	set(EnvPublicBucket, &c.Buckets.Public)
	set(EnvPrivateBucket, &c.Buckets.Private)
	set(EnvDatabaseDSN, &c.Database.DSN)
	set(EnvHTTPAddr, &c.Server.Addr)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvFilestoreAccessKey, &c.Filestore.AccessKey)
	set(EnvFilestoreSecretKey, &c.Filestore.SecretKey)

	if v, ok := lookup(EnvRedisAddr); ok && strings.TrimSpace(v) != "" {
		c.Cache.Addr = strings.TrimSpace(v)
		c.Cache.Driver = cache.DriverRedis
	}
}

// Validate reports every problem found, joined into one InvalidInput error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Auth.GlobalAPIKey == "" {
		add("auth.global_api_key is required (or set %s)", EnvGlobalAPIKey)
	}
	if c.Buckets.Public == "" {
		add("buckets.public is required (or set %s)", EnvPublicBucket)
	}
	if c.Buckets.Private == "" {
		add("buckets.private is required (or set %s)", EnvPrivateBucket)
	}
	if c.Buckets.Public != "" && c.Buckets.Public == c.Buckets.Private {
		add("buckets.public and buckets.private must differ")
	}
	if !c.Database.Driver.Valid() {
		add("database.driver %q is not one of postgres, mysql, sqlite", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("database.dsn is required (or set %s)", EnvDatabaseDSN)
	}
	if !c.Filestore.Provider.Valid() {
		add("filestore.provider %q is not one of minio, s3", c.Filestore.Provider)
	}
	if !c.Cache.Driver.Valid() {
		add("cache.driver %q is not one of memory, redis", c.Cache.Driver)
	}
	if c.Cache.Driver == cache.DriverRedis && c.Cache.Addr == "" {
		add("cache.addr is required for the redis driver (or set %s)", EnvRedisAddr)
	}
	if c.Catalog.ActorKind == "" {
		add("catalog.actor_kind is required")
	}
	if _, err := c.Tags(); err != nil {
		add("catalog: %v", err)
	}
	if c.Catalog.ReadTTL <= 0 || c.Catalog.WriteTTL <= 0 {
		add("catalog.read_ttl and catalog.write_ttl must be positive")
	}
	if _, err := c.Location(); err != nil {
		add("catalog.location: %v", err)
	}
	if c.Server.RegisterRate <= 0 || c.Server.RegisterBurst <= 0 {
		add("server.register_rate and server.register_burst must be positive")
	}

	if len(problems) > 0 {
		return errs.New(errs.ErrKindInvalidInput, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// Tags builds the recognised tag set.
func (c *Config) Tags() (*datatype.Set, error) {
	return datatype.NewSet(c.Catalog.DataTypes, c.Catalog.Restricted)
}

// Location resolves Catalog.Location.
func (c *Config) Location() (*time.Location, error) {
	if c.Catalog.Location == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Catalog.Location)
}

// Capability returns the issuer settings.
func (c *Config) Capability() capability.Config {
	return capability.Config{
		ActorKind:     c.Catalog.ActorKind,
		PublicBucket:  c.Buckets.Public,
		PrivateBucket: c.Buckets.Private,
		PublicBaseURL: c.Buckets.PublicBaseURL,
		ReadTTL:       c.Catalog.ReadTTL,
		WriteTTL:      c.Catalog.WriteTTL,
	}
}
