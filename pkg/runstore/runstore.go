// Package runstore keeps the results of finished runs so that they can be
// listed and fetched again by run ID.
//
// Two backends implement [Store]:
//   - [FileStore]: one JSON file per run, for the CLI
//   - [MongoStore]: a MongoDB collection, for the HTTP API shared between
//     instances
//
// Unlike the result cache, a store never expires entries: a cached result
// is an optimization keyed by content, a stored run is a record keyed by
// run ID.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/matzehuels/regionkit/pkg/pipeline"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Record is a stored run.
type Record struct {
	ID        string           `json:"id" bson:"_id"`
	Name      string           `json:"name,omitempty" bson:"name,omitempty"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
	Result    *pipeline.Result `json:"result" bson:"result"`
}

// Summary is the listing view of a record.
type Summary struct {
	ID        string        `json:"id" bson:"_id"`
	Name      string        `json:"name,omitempty" bson:"name,omitempty"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
	Mode      string        `json:"mode" bson:"mode"`
	Zones     int           `json:"zones" bson:"zones"`
	Regions   int           `json:"regions" bson:"regions"`
	Failures  int           `json:"failures" bson:"failures"`
	Duration  time.Duration `json:"duration" bson:"duration"`
}

// NewRecord wraps a result for storage.
func NewRecord(res *pipeline.Result) *Record {
	return &Record{ID: res.RunID, Name: res.Name, CreatedAt: time.Now().UTC(), Result: res}
}

// Summarize returns the listing view of r.
func (r *Record) Summarize() Summary {
	s := Summary{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
	if res := r.Result; res != nil {
		s.Mode = res.Mode
		s.Zones = res.Stats.Zones
		s.Regions = res.Stats.Regions
		s.Failures = len(res.Failures)
		s.Duration = res.Stats.Duration
	}
	return s
}

// Store is the interface for run storage backends.
type Store interface {
	// Put stores a record, replacing any record with the same ID.
	Put(ctx context.Context, r *Record) error

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit summaries, newest first. A limit of 0
	// returns all.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	Close() error
}
