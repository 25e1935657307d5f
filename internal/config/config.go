// Package config loads the toml configuration of a node.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

// Registry and store backends.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	Node     NodeConfig     `toml:"node"`
	Logger   LoggerConfig   `toml:"logger"`
	Registry RegistryConfig `toml:"registry"`
	Store    StoreConfig    `toml:"store"`
	API      APIConfig      `toml:"api"`
}

type NodeConfig struct {
	// ID is the well-known name of the node.
	ID string `toml:"id"`
	// SeedPath is the file holding the hex encoded seed of the key manager.
	SeedPath string `toml:"seed_path"`
}

type LoggerConfig struct {
	// Level is a zerolog level name.
	Level string `toml:"level"`
	// Console selects human readable output instead of JSON.
	Console bool `toml:"console"`
}

type RegistryConfig struct {
	// Backend is one of memory, leveldb or postgres.
	Backend string `toml:"backend"`
	// Path is the LevelDB directory.
	Path string `toml:"path"`
	// DatabaseURL is the postgres connection string.
	DatabaseURL string `toml:"database_url"`
}

type StoreConfig struct {
	// Backend is one of memory or leveldb.
	Backend string `toml:"backend"`
	// Path is the LevelDB directory.
	Path string `toml:"path"`
}

type APIConfig struct {
	Address string `toml:"address"`
}

// Default returns the configuration written by "cidnode init".
func Default() *Config {
	return &Config{
		Node:     NodeConfig{ID: "node", SeedPath: "seed.hex"},
		Logger:   LoggerConfig{Level: "info", Console: true},
		Registry: RegistryConfig{Backend: BackendLevelDB, Path: "registry"},
		Store:    StoreConfig{Backend: BackendLevelDB, Path: "transactions"},
		API:      APIConfig{Address: "127.0.0.1:8700"},
	}
}

// Load reads the file at path. Relative paths in the file are resolved against its directory.
func Load(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	c.Node.SeedPath = resolvePath(c.Node.SeedPath, dir)
	c.Registry.Path = resolvePath(c.Registry.Path, dir)
	c.Store.Path = resolvePath(c.Store.Path, dir)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c to path in toml.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	return nil
}

// Validate checks that every section is usable.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("%w: node.id is empty", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("%w: logger.level: %v", ErrInvalidConfig, err)
	}
	switch c.Registry.Backend {
	case BackendMemory:
	case BackendLevelDB:
		if c.Registry.Path == "" {
			return fmt.Errorf("%w: registry.path is empty", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.Registry.DatabaseURL == "" {
			return fmt.Errorf("%w: registry.database_url is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown registry backend %q", ErrInvalidConfig, c.Registry.Backend)
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendLevelDB:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	return nil
}

// NewLogger builds the root logger described by c.
func (c LoggerConfig) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("config: logger: %w", err)
	}
	if c.Console {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// LoadSeed reads the seed of the key manager.
func (c NodeConfig) LoadSeed() ([]byte, error) {
	data, err := os.ReadFile(c.SeedPath)
	if err != nil {
		return nil, fmt.Errorf("config: seed: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("config: seed: %w", err)
	}
	if len(seed) < keys.SeedSize {
		return nil, keys.ErrShortSeed
	}
	return seed, nil
}

// WriteSeed stores seed hex encoded, readable by the owner only.
func (c NodeConfig) WriteSeed(seed []byte) error {
	if err := os.WriteFile(c.SeedPath, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return fmt.Errorf("config: seed: %w", err)
	}
	return nil
}

func resolvePath(path, dir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
