package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/contentgraph/pkg/builder"
	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/graph"
	"github.com/matzehuels/contentgraph/pkg/store"
)

var quiet = log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})

var repo = map[string]string{
	"Packs/Core/pack_metadata.json": `{"name": "Core"}`,
	"Packs/Core/Scripts/DBotPredictPhishingWords/DBotPredictPhishingWords.yml": `commonfields:
  id: DBotPredictPhishingWords
name: DBotPredictPhishingWords
script: '-'
type: python
`,
	"Packs/Phishing/pack_metadata.json": `{"name": "Phishing"}`,
	"Packs/Phishing/Playbooks/PhishingPlaybook.yml": `id: PhishingPlaybook
name: Phishing Playbook
tasks:
  "0":
    task:
      scriptName: DBotPredictPhishingWords
  "1":
    task:
      scriptName: NoSuchScript
`,
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	for rel, body := range repo {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	g, err := graph.Open(store.NewMemory(), graph.Options{RepoRoot: root, ImportDir: t.TempDir(), Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { g.Close() })

	ctx := context.Background()
	if _, err := builder.New(g, builder.Options{Logger: quiet}).CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreatePackDependencies(ctx, graph.DependencyOptions{}); err != nil {
		t.Fatal(err)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# metrics\n"))
	})
	srv := httptest.NewServer(New(g, Options{Metrics: metrics, Logger: quiet}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, into any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestStats(t *testing.T) {
	srv := newServer(t)
	var st graph.Stats
	if code := get(t, srv, "/api/v1/stats", &st); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if st.Packs != 2 || st.PackDependencies != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRelationships(t *testing.T) {
	srv := newServer(t)
	var res graph.RelationshipResult
	code := get(t, srv, "/api/v1/relationships?path=Packs/Core/Scripts/DBotPredictPhishingWords&relationship=uses", &res)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(res.Sources) != 1 || res.Sources[0].FilePath != "Packs/Phishing/Playbooks/PhishingPlaybook.yml" {
		t.Errorf("sources = %+v", res.Sources)
	}
	if len(res.Targets) != 0 {
		t.Errorf("targets = %+v", res.Targets)
	}
}

func TestPackDependencies(t *testing.T) {
	srv := newServer(t)
	var got []content.PackDependency
	if code := get(t, srv, "/api/v1/packs/Phishing/dependencies?all_levels=true", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	want := content.PackDependency{Source: "Phishing", Target: "Core", Mandatory: true, MinDepth: 1}
	if len(got) != 1 || got[0] != want {
		t.Errorf("dependencies = %+v", got)
	}

	var none []content.PackDependency
	get(t, srv, "/api/v1/packs/Core/dependencies", &none)
	if none == nil || len(none) != 0 {
		t.Errorf("a pack without dependencies returns an empty list, got %v", none)
	}
}

func TestDangling(t *testing.T) {
	srv := newServer(t)
	var refs []graph.DanglingReference
	if code := get(t, srv, "/api/v1/dangling", &refs); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(refs) != 1 || refs[0].Target.ObjectID != "NoSuchScript" {
		t.Errorf("dangling = %+v", refs)
	}
}

func TestErrors(t *testing.T) {
	srv := newServer(t)
	tests := []struct {
		path string
		code int
		want string
	}{
		{"/api/v1/relationships", http.StatusBadRequest, "INVALID_PATH"},
		{"/api/v1/relationships?path=Packs/Core&depth=9", http.StatusBadRequest, "INVALID_DEPTH"},
		{"/api/v1/relationships?path=Packs/Core&depth=two", http.StatusBadRequest, "INVALID_DEPTH"},
		{"/api/v1/relationships?path=Packs/Core&relationship=LIKES", http.StatusBadRequest, "INVALID_RELATIONSHIP"},
		{"/api/v1/relationships?path=Packs/Core&content_type=Widgetish", http.StatusBadRequest, "INVALID_CONTENT_TYPE"},
		{"/api/v1/relationships?path=Packs/Nope", http.StatusNotFound, "NOT_FOUND"},
		{"/api/v1/packs/Nope/dependencies", http.StatusNotFound, "PACK_NOT_FOUND"},
		{"/api/v1/dangling?marketplace=steam", http.StatusBadRequest, "INVALID_MARKETPLACE"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body errorBody
			if code := get(t, srv, tt.path, &body); code != tt.code {
				t.Errorf("status = %d, want %d", code, tt.code)
			}
			if body.Code != tt.want {
				t.Errorf("code = %q, want %q", body.Code, tt.want)
			}
		})
	}
}

func TestDependencyDOTAndMetrics(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/dependencies.dot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sb strings.Builder
	if _, err := sb.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), `"Phishing" -> "Core"`) {
		t.Errorf("dot = %s", sb.String())
	}

	if code := get(t, srv, "/metrics", nil); code != http.StatusOK {
		t.Errorf("metrics status = %d", code)
	}
	if code := get(t, srv, "/healthz", nil); code != http.StatusOK {
		t.Errorf("health status = %d", code)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	g, err := graph.Open(store.NewMemory(), graph.Options{ImportDir: t.TempDir(), Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(g, Options{Logger: quiet}).ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("ListenAndServe = %v", err)
	}
}
