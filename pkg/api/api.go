// Package api serves regionalization runs over HTTP.
//
// # Routes
//
//	GET  /healthz           liveness and build information
//	GET  /v1/vocabulary     closed value sets of the setup format
//	POST /v1/delimit        run a pipeline on an uploaded dataset
//	GET  /v1/runs           list stored runs, newest first
//	GET  /v1/runs/{id}      fetch a stored run
//
// A delimit request carries the setup document and the CSV tables inline:
//
//	{
//	  "setup": "[[elements]]\nid = \"agg\"\n...",
//	  "setup_format": "toml",
//	  "zones": "id,mass\nA,10\n...",
//	  "flows": "from,to,value\nB,A,3\n...",
//	  "format": "json"
//	}
//
// Results are written in the requested output format; JSON responses carry
// the full result. Every response has an X-Run-ID header, delimit responses
// also X-Cache (hit or miss).
//
// Delimit requests may be throttled by a token bucket ([Options.RateLimit]);
// throttled requests get 429 with code RATE_LIMITED. Cross-origin requests
// are allowed for the origins in [Options.CORSOrigins].
//
// Errors are JSON objects with the coded error of [errors.GetCode] and a
// user message, under the HTTP status of [errors.HTTPStatus].
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/matzehuels/regionkit/pkg/buildinfo"
	"github.com/matzehuels/regionkit/pkg/config"
	"github.com/matzehuels/regionkit/pkg/errors"
	rkio "github.com/matzehuels/regionkit/pkg/io"
	"github.com/matzehuels/regionkit/pkg/observability"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/runstore"
)

// DefaultMaxBody limits the size of a delimit request.
const DefaultMaxBody = 64 << 20

// DefaultRunTimeout bounds a single delimit run.
const DefaultRunTimeout = 5 * time.Minute

// Options configure a [Server].
type Options struct {
	Runner *pipeline.Runner
	// Store keeps finished runs. Nil disables the runs routes.
	Store  runstore.Store
	Logger *log.Logger
	// MaxBody is the request size limit in bytes. Zero uses DefaultMaxBody.
	MaxBody int64
	// RunTimeout bounds every run. Zero uses DefaultRunTimeout.
	RunTimeout time.Duration
	// RateLimit is the sustained number of delimit requests per second.
	// Zero disables throttling.
	RateLimit rate.Limit
	// Burst is the number of delimit requests allowed at once. Zero uses
	// the rate rounded up.
	Burst int
	// CORSOrigins lists the origins allowed to call the API from a browser.
	CORSOrigins []string
}

// Server handles the HTTP API.
type Server struct {
	runner  *pipeline.Runner
	store   runstore.Store
	logger  *log.Logger
	maxBody int64
	timeout time.Duration
	limiter *rate.Limiter
	origins []string
}

// New returns a server.
func New(opts Options) *Server {
	s := &Server{
		runner:  opts.Runner,
		store:   opts.Store,
		logger:  opts.Logger,
		maxBody: opts.MaxBody,
		timeout: opts.RunTimeout,
		origins: opts.CORSOrigins,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.runner == nil {
		s.runner = pipeline.NewRunner(nil, nil, s.logger)
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBody
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRunTimeout
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RateLimit)
			if float64(burst) < float64(opts.RateLimit) {
				burst++
			}
		}
		s.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"X-Run-ID", "X-Cache"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/vocabulary", s.vocabulary)
		r.With(s.throttle).Post("/delimit", s.delimit)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
	})
	return r
}

// throttle rejects requests once the limiter is out of tokens.
func (s *Server) throttle(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.fail(w, errors.New(errors.ErrCodeRateLimited, "too many delimit requests, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs every request and reports it to the HTTP hooks.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		hooks.OnResponse(r.Context(), r.Method, r.URL.Path, status, elapsed)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", status,
			"duration", elapsed.Round(time.Millisecond), "request_id", middleware.GetReqID(r.Context()))
	})
}

// =============================================================================
// Handlers
// =============================================================================

type healthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Build: buildinfo.Get()})
}

func (s *Server) vocabulary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.Vocabulary())
}

// DelimitRequest is the body of POST /v1/delimit.
type DelimitRequest struct {
	Setup       string `json:"setup"`
	SetupFormat string `json:"setup_format"`
	Zones       string `json:"zones"`
	Flows       string `json:"flows"`
	Neighbours  string `json:"neighbours,omitempty"`
	FlowColumn  int    `json:"flow_column,omitempty"`
	Format      string `json:"format,omitempty"`
	Refresh     bool   `json:"refresh,omitempty"`
}

func (s *Server) delimit(w http.ResponseWriter, r *http.Request) {
	var req DelimitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.fail(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
		return
	}
	if req.Format == "" {
		req.Format = pipeline.DefaultFormat
	}
	if err := pipeline.ValidateFormat(req.Format); err != nil {
		s.fail(w, err)
		return
	}
	if req.SetupFormat == "" {
		req.SetupFormat = config.FormatTOML
	}

	setup, err := config.Parse([]byte(req.Setup), req.SetupFormat)
	if err != nil {
		s.fail(w, err)
		return
	}
	pipe, err := config.Build(setup)
	if err != nil {
		s.fail(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	src := rkio.Sources{Zones: strings.NewReader(req.Zones), Flows: strings.NewReader(req.Flows)}
	if req.Neighbours != "" {
		src.Neighbours = strings.NewReader(req.Neighbours)
	}
	ds, err := rkio.ReadDataset(ctx, src)
	if err != nil {
		s.fail(w, err)
		return
	}

	res, err := s.runner.Execute(ctx, pipeline.Options{
		Dataset:    ds,
		Pipeline:   pipe,
		FlowColumn: req.FlowColumn,
		Formats:    []string{req.Format},
		Refresh:    req.Refresh,
		Logger:     s.logger,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	if s.store != nil {
		if err := s.store.Put(ctx, runstore.NewRecord(res)); err != nil {
			s.logger.Warn("store run", "run", res.RunID, "err", err)
		}
	}

	cacheState := "miss"
	if res.CacheInfo.Hit {
		cacheState = "hit"
	}
	w.Header().Set("X-Cache", cacheState)
	s.writeResult(r.Context(), w, res, req.Format)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.fail(w, errors.New(errors.ErrCodeUnsupported, "run storage is disabled"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, errors.New(errors.ErrCodeInvalidInput, "invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.fail(w, errors.Wrap(errors.ErrCodeInternal, err, "list runs"))
		return
	}
	if runs == nil {
		runs = []runstore.Summary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.fail(w, errors.New(errors.ErrCodeUnsupported, "run storage is disabled"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := errors.ValidateRunID(id); err != nil {
		s.fail(w, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = pipeline.DefaultFormat
	}
	if err := pipeline.ValidateFormat(format); err != nil {
		s.fail(w, err)
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if stderrors.Is(err, runstore.ErrNotFound) {
		s.fail(w, errors.New(errors.ErrCodeRunNotFound, "run %s not found", id))
		return
	}
	if err != nil {
		s.fail(w, errors.Wrap(errors.ErrCodeInternal, err, "get run %s", id))
		return
	}
	s.writeResult(r.Context(), w, rec.Result, format)
}

// =============================================================================
// Responses
// =============================================================================

var contentTypes = map[string]string{
	pipeline.FormatJSON:        "application/json",
	pipeline.FormatCSV:         "text/csv",
	pipeline.FormatRegionsCSV:  "text/csv",
	pipeline.FormatOverlapsCSV: "text/csv",
	pipeline.FormatDOT:         "text/vnd.graphviz",
	pipeline.FormatSVG:         "image/svg+xml",
	pipeline.FormatXLSX:        "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func (s *Server) writeResult(ctx context.Context, w http.ResponseWriter, res *pipeline.Result, format string) {
	var buf bytes.Buffer
	if err := rkio.Write(ctx, res, format, &buf); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("X-Run-ID", res.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, &buf)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "err", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: errors.UserMessage(err)}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
