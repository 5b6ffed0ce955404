package cli

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/matzehuels/regionkit/pkg/api"
	"github.com/matzehuels/regionkit/pkg/cache"
	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/runstore"
)

// Environment variables read by serve when the flags are unset.
const (
	envMongoURI = "REGIONKIT_MONGO_URI"
	envAPIAddr  = "REGIONKIT_ADDR"
)

// apiKeyPrefix namespaces the API's entries in a cache shared with the CLI.
const apiKeyPrefix = "regionkit:api:"

const shutdownTimeout = 10 * time.Second

type serveOpts struct {
	addr       string
	mongoURI   string
	mongoDB    string
	noCache    bool
	runTimeout time.Duration
	maxBody    int64
	rateLimit  float64
	burst      int
	origins    []string
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the regionalization HTTP API.

Results are cached in Redis when ` + envRedisURL + ` is set, otherwise in the
local cache directory. Runs are stored in MongoDB when --mongo (or
` + envMongoURI + `) is given, otherwise in the local run store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", envOr(envAPIAddr, ":8080"), "listen address")
	cmd.Flags().StringVar(&opts.mongoURI, "mongo", envOr(envMongoURI, ""), "MongoDB URI for the run store")
	cmd.Flags().StringVar(&opts.mongoDB, "mongo-db", appName, "MongoDB database")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the result cache")
	cmd.Flags().DurationVar(&opts.runTimeout, "run-timeout", api.DefaultRunTimeout, "time limit of a single run")
	cmd.Flags().Int64Var(&opts.maxBody, "max-body", api.DefaultMaxBody, "request size limit in bytes")
	cmd.Flags().Float64Var(&opts.rateLimit, "rate-limit", 0, "delimit requests per second (0 disables throttling)")
	cmd.Flags().IntVar(&opts.burst, "burst", 0, "delimit requests allowed at once (default: rate rounded up)")
	cmd.Flags().StringSliceVar(&opts.origins, "cors-origin", nil, "origin allowed to call the API from a browser (repeatable)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOpts) error {
	logger := loggerFromContext(ctx)

	resultCache, err := newCache(ctx, opts.noCache)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(resultCache, cache.NewScopedKeyer(nil, apiKeyPrefix), logger)
	defer runner.Close()

	store, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr: opts.addr,
		Handler: api.New(api.Options{
			Runner:      runner,
			Store:       store,
			Logger:      logger,
			MaxBody:     opts.maxBody,
			RunTimeout:  opts.runTimeout,
			RateLimit:   rate.Limit(opts.rateLimit),
			Burst:       opts.burst,
			CORSOrigins: opts.origins,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("serving API", "addr", opts.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(errors.ErrCodeInternal, err, "serve %s", opts.addr)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns the MongoDB store when a URI is set, else the file store.
func openStore(ctx context.Context, opts serveOpts) (runstore.Store, error) {
	if opts.mongoURI == "" {
		return newStore()
	}
	return runstore.NewMongoStore(ctx, opts.mongoURI, opts.mongoDB)
}
