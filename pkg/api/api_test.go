package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/matzehuels/regionkit/pkg/cache"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/runstore"
)

const setupTOML = `
[metadata]
name = "line"

[[elements]]
id = "agg"
kind = "aggregator"
type = "flow"

[[stages]]
message = "aggregating"
elements = ["agg"]
`

func newTestServer(t *testing.T) (*httptest.Server, runstore.Store) {
	t.Helper()
	store, err := runstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := log.NewWithOptions(io.Discard, log.Options{})
	srv := New(Options{
		Runner: pipeline.NewRunner(fc, nil, logger),
		Store:  store,
		Logger: logger,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func delimitBody(t *testing.T, format string) io.Reader {
	t.Helper()
	body, err := json.Marshal(DelimitRequest{
		Setup:      setupTOML,
		Zones:      "id,mass,coreable\nA,10,true\nB,5,false\nC,5,false\n",
		Flows:      "from,to,value\nB,A,5\nC,B,5\n",
		Neighbours: "from,to\nA,B\nB,C\n",
		Format:     format,
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(body)
}

func decodeError(t *testing.T, resp *http.Response) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || h.Status != "ok" || h.Build.Version == "" {
		t.Errorf("health = %d %+v", resp.StatusCode, h)
	}
}

func TestVocabulary(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/vocabulary")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var v map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if len(v["mergers"]) == 0 || len(v["kinds"]) == 0 {
		t.Errorf("vocabulary = %v", v)
	}
}

func TestDelimitAndFetch(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/delimit", "application/json", delimitBody(t, "json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %+v", resp.StatusCode, decodeError(t, resp))
	}
	if resp.Header.Get("X-Cache") != "miss" {
		t.Errorf("X-Cache = %q", resp.Header.Get("X-Cache"))
	}
	var res pipeline.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Name != "line" || len(res.Zones) != 3 || res.RunID != resp.Header.Get("X-Run-ID") {
		t.Errorf("result = %+v", res)
	}
	if res.Zones[0].ID != "A" || res.Zones[0].Region != "A" || !res.Zones[0].Core {
		t.Errorf("zone A = %+v", res.Zones[0])
	}

	again, err := http.Post(ts.URL+"/v1/delimit", "application/json", delimitBody(t, "csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer again.Body.Close()
	if again.Header.Get("X-Cache") != "hit" || again.Header.Get("Content-Type") != "text/csv" {
		t.Errorf("second run headers = %v", again.Header)
	}
	csvBody, _ := io.ReadAll(again.Body)
	if !strings.HasPrefix(string(csvBody), "id,region,") {
		t.Errorf("csv body = %q", csvBody)
	}

	run, err := http.Get(ts.URL + "/v1/runs/" + res.RunID + "?format=regions-csv")
	if err != nil {
		t.Fatal(err)
	}
	defer run.Body.Close()
	if run.StatusCode != http.StatusOK {
		t.Fatalf("get run status = %d", run.StatusCode)
	}
	regions, _ := io.ReadAll(run.Body)
	if !strings.HasPrefix(string(regions), "id,mass,") {
		t.Errorf("regions body = %q", regions)
	}

	list, err := http.Get(ts.URL + "/v1/runs?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer list.Body.Close()
	var runs []runstore.Summary
	if err := json.NewDecoder(list.Body).Decode(&runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestErrors(t *testing.T) {
	ts, _ := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed body", http.MethodPost, "/v1/delimit", "{", 400, "INVALID_INPUT"},
		{"unknown field", http.MethodPost, "/v1/delimit", `{"setupp": ""}`, 400, "INVALID_INPUT"},
		{"bad format", http.MethodPost, "/v1/delimit", `{"format": "png"}`, 400, "INVALID_FORMAT"},
		{"bad setup", http.MethodPost, "/v1/delimit", `{"setup": "[settings]\nmode = \"soft\"\n"}`, 400, "CONFIG_INVALID_VALUE"},
		{"bad zones", http.MethodPost, "/v1/delimit", `{"setup": "", "zones": "id\nA\n", "flows": "from,to,v\n"}`, 400, "DATA_INVALID"},
		{"bad run id", http.MethodGet, "/v1/runs/nope", "", 400, "INVALID_INPUT"},
		{"missing run", http.MethodGet, "/v1/runs/00000000-0000-0000-0000-000000000000", "", 404, "RUN_NOT_FOUND"},
		{"bad limit", http.MethodGet, "/v1/runs?limit=x", "", 400, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if got := decodeError(t, resp); string(got.Code) != tt.code {
				t.Errorf("code = %s (%s), want %s", got.Code, got.Message, tt.code)
			}
		})
	}
}

func TestRunsWithoutStore(t *testing.T) {
	srv := New(Options{Logger: log.NewWithOptions(io.Discard, log.Options{})})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestThrottle(t *testing.T) {
	srv := New(Options{
		Logger:    log.NewWithOptions(io.Discard, log.Options{}),
		RateLimit: rate.Every(time.Hour),
		Burst:     1,
	})
	h := srv.Handler()

	post := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/delimit", delimitBody(t, "json"))
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := post(); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d: %s", rec.Code, rec.Body)
	}
	rec := post()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if !strings.Contains(rec.Body.String(), "RATE_LIMITED") {
		t.Errorf("body = %s", rec.Body)
	}

	// Other routes are not throttled.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/vocabulary", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("vocabulary status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	const origin = "https://maps.example.org"
	srv := New(Options{
		Logger:      log.NewWithOptions(io.Discard, log.Options{}),
		CORSOrigins: []string{origin},
	})
	h := srv.Handler()

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"allowed", origin, origin},
		{"other", "https://elsewhere.example.org", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/vocabulary", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodOptions, "/v1/delimit", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("preflight Access-Control-Allow-Methods = %q", got)
	}
}
