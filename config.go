package tokendb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/evtnetwork/tokendb/engine"
	"github.com/evtnetwork/tokendb/metrics"
)

// Config is the storage engine's configuration, deserializable from YAML.
type Config struct {
	// DataDir is the directory the backing store and checkpoint log live
	// under. Ignored when Profile is "memory".
	DataDir string `yaml:"data_dir"`

	// CacheSizeMiB sizes the engine's block cache and write buffer. The
	// typed LRU in package cache is sized separately, by cache.New.
	CacheSizeMiB int `yaml:"cache_size_mib"`

	// Profile selects "disk" (default) or "memory".
	Profile engine.Profile `yaml:"profile"`

	// Metrics is the registry put/rollback/savepoint-depth instruments are
	// pulled from. Left nil, Open falls back to metrics.NoOp so a caller
	// never needs a Prometheus registry just to construct a DB. Not
	// (de)serialized: a caller wires this up in code, not YAML.
	Metrics metrics.Metrics `yaml:"-"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:      dataDir,
		CacheSizeMiB: 128,
		Profile:      engine.ProfileDisk,
	}
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("tokendb: read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("tokendb: parse config: %w", err)
	}
	if c.CacheSizeMiB <= 0 {
		c.CacheSizeMiB = 128
	}
	if c.Profile == "" {
		c.Profile = engine.ProfileDisk
	}
	return c, nil
}

// Save writes c to path as YAML, for the CLI's init-config command.
func (c Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("tokendb: marshal config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
