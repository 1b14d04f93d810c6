// Package config loads contentgraph.toml.
//
// A file is looked up at an explicit path, then at the repository root, then
// in the user config directory. Missing files are not an error: every field
// has a default. Environment variables override the file, and the result is
// validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// FileName is the config file looked up in the repository root.
const FileName = "contentgraph.toml"

// Environment overrides.
const (
	EnvForceCreate    = "CONTENTGRAPH_FORCE_CREATE"
	EnvRepo           = "CONTENTGRAPH_REPO"
	EnvNeo4jPassword  = "CONTENTGRAPH_NEO4J_PASSWORD"
	EnvRedisURL       = "CONTENTGRAPH_REDIS_URL"
	EnvGCPCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
)

// Config is the full configuration.
type Config struct {
	Repository Repository `toml:"repository"`
	Store      Store      `toml:"store"`
	Graph      Graph      `toml:"graph"`
	Remote     Remote     `toml:"remote"`
	Cache      Cache      `toml:"cache"`
	Server     Server     `toml:"server"`

	// ForceCreate comes from the environment only.
	ForceCreate bool `toml:"-"`

	// File is the path the config was read from, empty for defaults.
	File string `toml:"-"`
}

// Repository locates the content repository.
type Repository struct {
	Path string `toml:"path" validate:"required"`

	// Source tags nodes with their origin, e.g. "github.com/demisto/content".
	Source string `toml:"source"`

	// External marks a private repository built on top of the shared content.
	// Updates then merge the local graph with the shared snapshot.
	External bool `toml:"external"`
}

// Store selects the backing store.
type Store struct {
	Backend string      `toml:"backend" validate:"oneof=memory badger neo4j"`
	Badger  BadgerStore `toml:"badger"`
	Neo4j   Neo4jStore  `toml:"neo4j"`
}

type BadgerStore struct {
	Path       string `toml:"path"`
	InMemory   bool   `toml:"in_memory"`
	SyncWrites bool   `toml:"sync_writes"`
}

type Neo4jStore struct {
	URI      string `toml:"uri" validate:"omitempty,uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// Graph holds defaults for graph commands.
type Graph struct {
	ImportDir    string `toml:"import_dir"`
	OutputDir    string `toml:"output_dir"`
	MaxDepth     int    `toml:"max_depth" validate:"min=1,max=5"`
	IncludeTests bool   `toml:"include_tests"`
	Marketplace  string `toml:"marketplace" validate:"omitempty,oneof=xsoar marketplacev2 xpanse xsoar_saas xsoar_on_prem"`
}

// Remote is where shared snapshots are downloaded from and uploaded to.
type Remote struct {
	Kind            string `toml:"kind" validate:"oneof=none gcs http dir"`
	Bucket          string `toml:"bucket" validate:"required_if=Kind gcs"`
	Prefix          string `toml:"prefix"`
	BaseURL         string `toml:"base_url" validate:"required_if=Kind http,omitempty,url"`
	Dir             string `toml:"dir" validate:"required_if=Kind dir"`
	CredentialsFile string `toml:"credentials_file"`
	Token           string `toml:"token"`
}

// Cache keeps downloaded snapshots.
type Cache struct {
	Backend string        `toml:"backend" validate:"oneof=file redis none"`
	Dir     string        `toml:"dir"`
	TTL     time.Duration `toml:"ttl"`
	Redis   RedisCache    `toml:"redis"`
}

type RedisCache struct {
	URL            string        `toml:"url" validate:"omitempty,url"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
}

// Server configures the read-only HTTP API.
type Server struct {
	Addr string `toml:"addr" validate:"required,hostname_port"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Repository: Repository{Path: "."},
		Store: Store{
			Backend: "memory",
			Badger:  BadgerStore{Path: filepath.Join(dataDir(), "graph")},
			Neo4j:   Neo4jStore{URI: "neo4j://localhost:7687", User: "neo4j", Database: "neo4j"},
		},
		Graph: Graph{
			ImportDir:   filepath.Join(os.TempDir(), "contentgraph", "import"),
			OutputDir:   "output",
			MaxDepth:    5,
			Marketplace: string(content.MarketplaceXSOAR),
		},
		Remote: Remote{Kind: "none"},
		Cache: Cache{
			Backend: "file",
			Dir:     filepath.Join(cacheDir(), "snapshots"),
			TTL:     24 * time.Hour,
			Redis:   RedisCache{ConnectTimeout: 5 * time.Second},
		},
		Server: Server{Addr: "127.0.0.1:8080"},
	}
}

// Load reads the first config file found among path (when set), the
// repository root and the user config directory, applies environment
// overrides and validates the result. An explicit path must exist.
func Load(path, repoRoot string) (*Config, error) {
	cfg := Default()
	if repoRoot != "" {
		cfg.Repository.Path = repoRoot
	}

	var candidates []string
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		candidates = append(candidates, path)
	}
	if repoRoot != "" {
		candidates = append(candidates, filepath.Join(repoRoot, FileName))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "contentgraph", "config.toml"))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err != nil {
			continue
		}
		if _, err := toml.DecodeFile(c, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", c, err)
		}
		cfg.File = c
		break
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvRepo); v != "" {
		c.Repository.Path = v
	}
	if v := os.Getenv(EnvNeo4jPassword); v != "" {
		c.Store.Neo4j.Password = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Cache.Redis.URL = v
	}
	if v := os.Getenv(EnvGCPCredentials); v != "" && c.Remote.CredentialsFile == "" {
		c.Remote.CredentialsFile = v
	}
	force, err := ForceCreate()
	if err != nil {
		return err
	}
	c.ForceCreate = force
	return nil
}

// ForceCreate reports whether CONTENTGRAPH_FORCE_CREATE asks for a full
// rebuild instead of an update.
func ForceCreate() (bool, error) {
	v := os.Getenv(EnvForceCreate)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s=%q is not a boolean", EnvForceCreate, v)
	}
	return b, nil
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateStore, Store{})
	v.RegisterStructValidation(validateCache, Cache{})
	return v
}()

func validateStore(sl validator.StructLevel) {
	s := sl.Current().Interface().(Store)
	switch s.Backend {
	case "badger":
		if s.Badger.Path == "" && !s.Badger.InMemory {
			sl.ReportError(s.Badger.Path, "Badger.Path", "Path", "required_for_badger", "")
		}
	case "neo4j":
		if s.Neo4j.URI == "" {
			sl.ReportError(s.Neo4j.URI, "Neo4j.URI", "URI", "required_for_neo4j", "")
		}
	}
}

func validateCache(sl validator.StructLevel) {
	c := sl.Current().Interface().(Cache)
	if c.Backend == "redis" && c.Redis.URL == "" {
		sl.ReportError(c.Redis.URL, "Redis.URL", "URL", "required_for_redis", "")
	}
	if c.Backend == "file" && c.Dir == "" {
		sl.ReportError(c.Dir, "Dir", "Dir", "required_for_file", "")
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config: %s fails %q (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Marketplace returns the configured default marketplace.
func (c *Config) Marketplace() content.Marketplace {
	return content.Marketplace(c.Graph.Marketplace)
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "contentgraph")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "contentgraph")
	}
	return filepath.Join(os.TempDir(), "contentgraph")
}

func cacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "contentgraph")
	}
	return filepath.Join(os.TempDir(), "contentgraph", "cache")
}
