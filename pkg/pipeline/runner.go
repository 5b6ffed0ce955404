package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/regionkit/pkg/cache"
	"github.com/matzehuels/regionkit/pkg/observability"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use it so that caching behaves the same everywhere.
//
// The Runner keeps no run state; multiple goroutines can share one Runner
// as long as each passes its own Pipeline and Dataset.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute regionalizes opts.Dataset with opts.Pipeline, serving and
// storing results through the cache.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	pipe := opts.Pipeline
	runID := uuid.NewString()

	cacheKey := ""
	if pipe.SetupHash != "" {
		cacheKey = r.Keyer.ResultKey(opts.Dataset.Hash(), pipe.SetupHash, opts.ResultKeyOpts())
	}
	if cacheKey != "" && !opts.Refresh {
		if res, ok := r.cached(ctx, cacheKey); ok {
			res.RunID = runID
			res.CacheInfo = CacheInfo{Hit: true, Key: cacheKey}
			r.Logger.Info("served cached result", "regions", len(res.Regions))
			return res, nil
		}
	}

	start := time.Now()
	observability.Pipeline().OnRunStart(ctx, pipe.Name, len(opts.Dataset.Zones))
	res, err := r.run(ctx, runID, opts)
	elapsed := time.Since(start)
	regions := 0
	if res != nil {
		regions = len(res.Regions)
	}
	observability.Pipeline().OnRunComplete(ctx, pipe.Name, regions, elapsed, err)
	if err != nil {
		return nil, err
	}
	res.Stats.Duration = elapsed
	res.CacheInfo.Key = cacheKey

	r.Logger.Info("delimited regions",
		"regions", len(res.Regions),
		"unassigned", res.Stats.Unassigned,
		"duration", elapsed)

	if cacheKey != "" {
		if data, err := json.Marshal(res); err == nil {
			if err := r.Cache.Set(ctx, cacheKey, data, cache.TTLResult); err == nil {
				observability.Cache().OnCacheSet(ctx, "result", len(data))
			} else {
				r.Logger.Debug("could not cache result", "err", err)
			}
		}
	}
	return res, nil
}

func (r *Runner) cached(ctx context.Context, key string) (*Result, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "result")
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		observability.Cache().OnCacheMiss(ctx, "result")
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, "result")
	return &res, true
}

func (r *Runner) run(ctx context.Context, runID string, opts Options) (*Result, error) {
	pipe := opts.Pipeline
	logger := opts.Logger
	if logger == nil {
		logger = r.Logger
	}

	m, presets, built, err := opts.Dataset.Build(pipe.Mode, opts.FlowColumn)
	if err != nil {
		return nil, err
	}
	if built.RawFlows > 0 || built.DroppedFlows > 0 {
		logger.Warn("flows reference unknown zones", "raw", built.RawFlows, "dropped", built.DroppedFlows)
	}
	if built.DroppedNeighbours > 0 {
		logger.Warn("neighbours reference unknown zones", "dropped", built.DroppedNeighbours)
	}

	rz := NewRegionalizer(pipe, m, logger)
	rz.InitRun(presets)
	if err := rz.Run(ctx); err != nil {
		return nil, err
	}
	if err := rz.PostRun(ctx); err != nil {
		return nil, err
	}
	return rz.Result(runID, built), nil
}

// Result collects the outputs of a finished run.
func (rz *Regionalizer) Result(runID string, built BuildStats) *Result {
	zones := rz.OutputZones()
	unassigned := 0
	for _, z := range zones {
		if z.Region == "" {
			unassigned++
		}
	}
	return &Result{
		RunID:    runID,
		Name:     rz.pipe.Name,
		Mode:     rz.model.Mode().String(),
		Zones:    zones,
		Regions:  rz.RegionRows(),
		Overlaps: rz.Overlaps(),
		Failures: rz.Failures(),
		Stats: Stats{
			Zones:      len(zones),
			Regions:    len(rz.regions),
			Unassigned: unassigned,
			RawFlows:   built.RawFlows,
			Stages:     rz.StageStats(),
		},
	}
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
