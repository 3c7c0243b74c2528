// Database configuration: durability mode, cache capacity, and checksum
// algorithm selection. Loadable programmatically or from a commented JSON
// ("jsonc") file via hujson, the way an operator would ship an
// `ironbase.jsonc` describing the durability policy for a deployment.
package ironbase

import (
	"fmt"
	"os"
	"reflect"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tailscale/hujson"

	"github.com/ironbase-db/ironbase/internal/checksum"
)

// DurabilityMode selects how (and how often) writes become crash-durable.
type DurabilityMode int

const (
	// Safe wraps every public write in an implicit transaction and fsyncs
	// the WAL commit marker before returning. No data-loss window.
	Safe DurabilityMode = iota
	// Batch groups BatchSize implicit writes per WAL commit/fsync.
	Batch
	// Unsafe skips WAL writes for normal operations entirely; the caller
	// must call Database.Checkpoint to make data durable.
	Unsafe
)

func (m DurabilityMode) String() string {
	switch m {
	case Batch:
		return "Batch"
	case Unsafe:
		return "Unsafe"
	default:
		return "Safe"
	}
}

// Durability is the user-selectable durability policy. BatchSize is only
// consulted when Mode is Batch, and must be a positive integer.
type Durability struct {
	Mode      DurabilityMode `json:"mode"`
	BatchSize int            `json:"batch_size,omitempty"`
}

// Config controls a Database's on-disk format, caching, and durability.
type Config struct {
	// Durability selects the commit/fsync policy. Zero value is Safe.
	Durability Durability `json:"durability"`
	// FormatVersion selects v1 (Reserved-Region metadata) or v2
	// (end-of-file metadata, upgrade-safe). Defaults to FormatV2.
	FormatVersion int `json:"format_version,omitempty"`
	// ChecksumAlgorithm selects the B+Tree/snapshot integrity digest.
	// Defaults to checksum.XXHash3.
	ChecksumAlgorithm checksum.Algorithm `json:"checksum_algorithm,omitempty"`
	// CacheCapacity bounds the query/plan LRU cache. 0 means the planner
	// package default (1000).
	CacheCapacity int `json:"cache_capacity,omitempty"`
	// Logger receives lifecycle events (open, WAL replay, compaction,
	// two-phase commit phases). Defaults to zerolog.Nop() — an embedded
	// library should be silent unless a caller opts in. Not loadable from
	// a config file; set it programmatically after LoadConfigFile/
	// DefaultConfig.
	Logger zerolog.Logger `json:"-"`
}

// DefaultConfig returns the configuration used when a caller passes none:
// Safe durability, format v2, xxh3 checksums, default cache capacity.
func DefaultConfig() Config {
	return Config{
		Durability:        Durability{Mode: Safe},
		FormatVersion:     FormatV2,
		ChecksumAlgorithm: checksum.XXHash3,
		Logger:            zerolog.Nop(),
	}
}

func (c Config) normalize() Config {
	if c.FormatVersion == 0 {
		c.FormatVersion = FormatV2
	}
	if c.Durability.Mode == Batch && c.Durability.BatchSize <= 0 {
		c.Durability.BatchSize = 1
	}
	if reflect.ValueOf(c.Logger).IsZero() {
		c.Logger = zerolog.Nop()
	}
	return c
}

// LoadConfigFile reads a jsonc (JSON-with-comments) configuration file,
// standardizes it to strict JSON via hujson, and decodes it with the same
// JSON library the engine uses for its on-disk structures.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("ironbase: read config %s: %w", path, ErrIo)
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("ironbase: parse config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("ironbase: decode config %s: %w", path, err)
	}
	return cfg.normalize(), nil
}
