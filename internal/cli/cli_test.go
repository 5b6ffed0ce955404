package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/regionkit/pkg/errors"
	"github.com/matzehuels/regionkit/pkg/pipeline"
	"github.com/matzehuels/regionkit/pkg/runstore"
)

const testSetup = `
[metadata]
name = "line"

[[elements]]
id = "agg"
kind = "aggregator"
type = "flow"

[[elements]]
id = "watts"
kind = "merger"
type = "watts"
threshold = 10

[[elements]]
id = "ovl"
kind = "overlap"
merger = "watts"

[[stages]]
message = "aggregating"
elements = ["agg"]

[[outputs]]
elements = ["ovl"]
`

// testEnv is a scratch home with a setup and a small dataset. The cache
// and the run store live under it.
type testEnv struct {
	t         *testing.T
	dir       string
	cacheHome string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{t: t, dir: dir, cacheHome: filepath.Join(dir, "cache")}
	t.Setenv("XDG_CACHE_HOME", env.cacheHome)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv(envRedisURL, "")

	files := map[string]string{
		"setup.toml":     testSetup,
		"zones.csv":      "id,mass,coreable\nA,10,true\nB,5,false\nC,5,false\n",
		"flows.csv":      "from,to,value\nB,A,5\nC,B,5\n",
		"neighbours.csv": "from,to\nA,B\nB,C\n",
	}
	for name, body := range files {
		if err := os.WriteFile(env.path(name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return env
}

func (e *testEnv) path(name string) string { return filepath.Join(e.dir, name) }

func (e *testEnv) delimitArgs(extra ...string) []string {
	args := []string{
		"--setup", e.path("setup.toml"),
		"--zones", e.path("zones.csv"),
		"--flows", e.path("flows.csv"),
		"--neighbours", e.path("neighbours.csv"),
	}
	return append(args, extra...)
}

// run executes the root command and returns what it printed.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	var buf bytes.Buffer
	swapOut(e.t, &buf)
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// delimit runs delimit to stdout and returns the decoded result.
func (e *testEnv) delimit(extra ...string) *pipeline.Result {
	e.t.Helper()
	got, err := e.run(append([]string{"delimit"}, e.delimitArgs(append([]string{"-f", "json"}, extra...)...)...)...)
	if err != nil {
		e.t.Fatalf("delimit: %v", err)
	}
	var res pipeline.Result
	if err := json.Unmarshal([]byte(got), &res); err != nil {
		e.t.Fatalf("decode result: %v\n%s", err, got)
	}
	return &res
}

func swapOut(t *testing.T, w io.Writer) {
	t.Helper()
	prev := out
	out = w
	t.Cleanup(func() { out = prev })
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }

func TestDelimitStdout(t *testing.T) {
	env := newTestEnv(t)
	res := env.delimit()

	if res.Name != "line" || len(res.Zones) != 3 || res.RunID == "" {
		t.Fatalf("result = %+v", res)
	}
	for _, z := range res.Zones {
		if z.Region != "A" {
			t.Errorf("zone %s in region %q, want A", z.ID, z.Region)
		}
	}
}

func TestDelimitExport(t *testing.T) {
	env := newTestEnv(t)
	base := env.path("out/line")

	got, err := env.run(append([]string{"delimit"}, env.delimitArgs("-f", "json, csv,dot", "-o", base)...)...)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"line.json", "line.zones.csv", "line.dot"} {
		if _, err := os.Stat(env.path("out/" + name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if !contains(got, "Delimited") || !contains(got, "fresh") {
		t.Errorf("output = %q", got)
	}

	again, err := env.run(append([]string{"delimit"}, env.delimitArgs("-f", "json", "-o", base)...)...)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(again, "cached") {
		t.Errorf("second run not served from cache: %q", again)
	}

	fresh, err := env.run(append([]string{"delimit"}, env.delimitArgs("-f", "json", "-o", base, "--refresh")...)...)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(fresh, "fresh") {
		t.Errorf("--refresh run served from cache: %q", fresh)
	}
}

func TestDelimitErrors(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(env.path("bad.toml"), []byte("[settings]\nmode = \"soft\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"two formats to stdout", env.delimitArgs("-f", "json,csv"), errors.ErrCodeInvalidInput},
		{"bad format", env.delimitArgs("-f", "png"), errors.ErrCodeInvalidFormat},
		{"bad setup", []string{"--setup", env.path("bad.toml"), "--zones", env.path("zones.csv"), "--flows", env.path("flows.csv")}, errors.ErrCodeConfigInvalidValue},
		{"missing zones", []string{"--setup", env.path("setup.toml"), "--zones", env.path("nope.csv"), "--flows", env.path("flows.csv")}, errors.ErrCodeFileNotFound},
		{"flow column out of range", env.delimitArgs("--flow-column", "3"), errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(append([]string{"delimit"}, tt.args...)...)
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestDelimitNoStore(t *testing.T) {
	env := newTestEnv(t)
	env.delimit("--no-store", "--no-cache")

	got, err := env.run("runs", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !contains(got, "No stored runs") {
		t.Errorf("runs list = %q", got)
	}
}

func TestRuns(t *testing.T) {
	env := newTestEnv(t)
	res := env.delimit()

	list, err := env.run("runs", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !contains(list, res.RunID) || !contains(list, "line") {
		t.Errorf("runs list = %q", list)
	}

	show, err := env.run("runs", "show", res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(show, "line") || !contains(show, "aggregating") {
		t.Errorf("runs show = %q", show)
	}

	csv, err := env.run("runs", "show", res.RunID, "-f", "regions-csv")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(csv, "id,mass,") {
		t.Errorf("regions csv = %q", csv)
	}

	if _, err := env.run("runs", "delete", res.RunID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.run("runs", "show", res.RunID); !errors.Is(err, errors.ErrCodeRunNotFound) {
		t.Errorf("show deleted run: err = %v", err)
	}
}

func TestGraph(t *testing.T) {
	env := newTestEnv(t)
	res := env.delimit()

	got, err := env.run("graph", res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "digraph regions {") || !contains(got, `"A"`) {
		t.Errorf("graph = %q", got)
	}

	file := env.path("regions.dot")
	if _, err := env.run("graph", res.RunID, "--detailed", "-o", file); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(file); err != nil {
		t.Error(err)
	}

	if _, err := env.run("graph", res.RunID, "-f", "png"); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("png: err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.run("validate", env.path("setup.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !contains(got, "is valid") || !contains(got, "aggregating (aggregate)") {
		t.Errorf("validate = %q", got)
	}
	if contains(got, "Dataset") {
		t.Errorf("dataset checked without tables: %q", got)
	}

	got, err = env.run("validate", env.path("setup.toml"), "--zones", env.path("zones.csv"), "--flows", env.path("flows.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !contains(got, "Dataset is valid") || !contains(got, "3 zones, 2 flows") {
		t.Errorf("validate dataset = %q", got)
	}

	if _, err := env.run("validate", env.path("setup.txt")); err == nil {
		t.Error("validate accepted a .txt setup")
	}
}

func TestVocabularyCommand(t *testing.T) {
	env := newTestEnv(t)

	got, err := env.run("vocabulary", "mergers")
	if err != nil {
		t.Fatal(err)
	}
	if !contains(got, "coombes") || contains(got, "transforms") {
		t.Errorf("vocabulary mergers = %q", got)
	}

	got, err = env.run("vocabulary", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var vocab map[string][]string
	if err := json.Unmarshal([]byte(got), &vocab); err != nil {
		t.Fatal(err)
	}
	if len(vocab["kinds"]) == 0 || len(vocab["mixers"]) == 0 {
		t.Errorf("vocabulary = %v", vocab)
	}

	if _, err := env.run("vocabulary", "colours"); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown field: err = %v", err)
	}
}

func TestCompletion(t *testing.T) {
	env := newTestEnv(t)
	got, err := env.run("completion", "bash")
	if err != nil {
		t.Fatal(err)
	}
	if !contains(got, "regionkit") {
		t.Errorf("bash completion does not mention regionkit")
	}
	if _, err := env.run("completion", "tcsh"); err == nil {
		t.Error("completion accepted tcsh")
	}
}

func TestRunListModel(t *testing.T) {
	runs := []runstore.Summary{
		{ID: "run-1", Name: "first", CreatedAt: time.Now()},
		{ID: "run-2", Name: "second", CreatedAt: time.Now()},
	}
	key := func(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

	var m tea.Model = NewRunListModel(runs)
	m, _ = m.Update(key("j"))
	m, _ = m.Update(key("j"))
	if got := m.(RunListModel).Cursor; got != 1 {
		t.Errorf("cursor = %d, want 1 (clamped)", got)
	}
	if view := m.View(); !contains(view, "Select Run") || !contains(view, "[2/2]") {
		t.Errorf("view = %q", view)
	}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if sel := m.(RunListModel).Selected; sel == nil || sel.ID != "run-2" || cmd == nil {
		t.Errorf("selected = %+v", sel)
	}

	m, _ = NewRunListModel(runs).Update(key("q"))
	if m.(RunListModel).Selected != nil {
		t.Error("quit selected a run")
	}
}

func TestFormatRelativeTime(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("formatRelativeTime(-%s) = %q, want %q", tt.ago, got, tt.want)
		}
	}
	if got := formatRelativeTime(time.Time{}); got != "—" {
		t.Errorf("zero time = %q", got)
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{pipeline.DefaultFormat}},
		{"json", []string{"json"}},
		{"json, csv,,svg ", []string{"json", "csv", "svg"}},
	}
	for _, tt := range tests {
		got := parseFormats(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("parseFormats(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDelimitExamples(t *testing.T) {
	env := newTestEnv(t)
	data := filepath.Join("..", "..", "examples", "data")
	for _, setup := range []string{"commuting.toml", "fuzzy.yaml"} {
		t.Run(setup, func(t *testing.T) {
			got, err := env.run("delimit",
				"--setup", filepath.Join("..", "..", "examples", "setups", setup),
				"--zones", filepath.Join(data, "zones.csv"),
				"--flows", filepath.Join(data, "flows.csv"),
				"--neighbours", filepath.Join(data, "neighbours.csv"),
				"--flow-column", "1",
				"--no-store")
			if err != nil {
				t.Fatal(err)
			}
			var res pipeline.Result
			if err := json.Unmarshal([]byte(got), &res); err != nil {
				t.Fatal(err)
			}
			if len(res.Zones) != 7 || len(res.Regions) == 0 {
				t.Errorf("%d zones, %d regions", len(res.Zones), len(res.Regions))
			}
		})
	}
}
