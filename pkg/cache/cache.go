// Package cache stores serialized regionalization results keyed by the
// content of their inputs.
//
// A run is fully determined by its dataset, its pipeline setup and the few
// runtime options that change the model (membership mode, flow column), so
// identical requests can be answered from the cache instead of re-running
// the engine.
//
// # Backends
//
//   - [FileCache]: one JSON file per entry under a directory, for the CLI
//   - [RedisCache]: a shared Redis instance, for the API server
//   - [NullCache]: stores nothing, for tests or when caching is disabled
//
// # Keys
//
// A [Keyer] builds keys from content hashes. [DefaultKeyer] hashes every
// component with [Hash]; [ScopedKeyer] adds a namespace prefix.
package cache

import (
	"context"
	"time"
)

// TTLs per entry type.
const (
	// TTLResult is how long a regionalization result stays cached.
	TTLResult = 7 * 24 * time.Hour

	// TTLSetup is how long a parsed setup summary stays cached.
	TTLSetup = 24 * time.Hour
)

// Cache is a byte-oriented key-value store with expiry.
type Cache interface {
	// Get returns the value of key. hit is false on a miss or an expired
	// entry; err is reserved for backend failures.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)
	// Set stores data under key. A ttl of 0 keeps the entry forever.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ResultKeyOpts are the runtime options that change a result.
type ResultKeyOpts struct {
	Mode       string `json:"mode"`
	FlowColumn int    `json:"flow_column"`
	DropZeros  bool   `json:"drop_zeros"`
}

// Keyer builds cache keys.
type Keyer interface {
	// ResultKey keys a regionalization result by the dataset and setup
	// hashes.
	ResultKey(datasetHash, setupHash string, opts ResultKeyOpts) string
}

// DefaultKeyer hashes every key component.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) ResultKey(datasetHash, setupHash string, opts ResultKeyOpts) string {
	return hashKey("result", datasetHash, setupHash, opts)
}
