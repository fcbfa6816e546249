package datasets

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoaderConfig configures a MultiShardLoader. It can be read from YAML:
//
//	name: wiki-books
//	pattern: /data/shards/*.bshd
//	batch_size: 64
//	shuffle: true
//	loop: false
//	num_workers: 4
//	seed: 12345
//	shard:
//	  max_seq_length: 128
//	  max_predictions: 20
//	  use_mmap: true
type LoaderConfig struct {
	// Name is reported by the gomlx Dataset interface.
	Name string `yaml:"name"`

	// Pattern is a glob for the shard files. It is only used by callers that
	// build the file list with Glob.
	Pattern string `yaml:"pattern"`

	BatchSize int  `yaml:"batch_size"`
	Shuffle   bool `yaml:"shuffle"`
	Loop      bool `yaml:"loop"`

	// NumWorkers bounds the goroutines assembling each batch.
	NumWorkers int `yaml:"num_workers"`

	// Seed drives the shard-order and per-shard shuffles. Zero seeds from
	// the clock.
	Seed int64 `yaml:"seed"`

	Shard ShardOptions `yaml:"shard"`
}

// SetDefaults fills zero-valued fields.
func (c *LoaderConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "MultiShardLoader"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = 1
	}
}

// Validate reports configuration values no loader can run with.
func (c *LoaderConfig) Validate() error {
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.NumWorkers <= 0 {
		return errors.Errorf("num_workers must be positive, got %d", c.NumWorkers)
	}
	if c.Shard.MaxSeqLength < 0 || c.Shard.MaxPredictions < 0 {
		return errors.Errorf("shard lengths must not be negative")
	}
	return nil
}

// LoadLoaderConfig reads a YAML loader configuration and applies defaults.
// Unknown keys are rejected.
func LoadLoaderConfig(path string) (LoaderConfig, error) {
	var cfg LoaderConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read loader config %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse loader config %s", path)
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}
