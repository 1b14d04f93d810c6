package builder

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/graph"
	"github.com/matzehuels/contentgraph/pkg/parsers"
	"github.com/matzehuels/contentgraph/pkg/store"
)

var quiet = log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})

const phishingPlaybook = `id: PhishingPlaybook
name: Phishing Playbook
tasks:
  "0":
    task:
      scriptName: DBotPredictPhishingWords
  "1":
    task:
      script: Mail|||send-mail
`

// fixture is a small repository: Core provides a script and an integration,
// Phishing uses both from a playbook, Broken has no manifest.
var fixture = map[string]string{
	"Packs/Core/pack_metadata.json": `{"name": "Core", "marketplaces": ["xsoar", "marketplacev2"]}`,
	"Packs/Core/Scripts/DBotPredictPhishingWords/DBotPredictPhishingWords.yml": `commonfields:
  id: DBotPredictPhishingWords
name: DBotPredictPhishingWords
script: '-'
type: python
fromversion: 6.0.0
`,
	"Packs/Core/Scripts/DBotPredictPhishingWords/DBotPredictPhishingWords.py": "def main():\n    pass\n",
	"Packs/Core/Integrations/Mail/Mail.yml": `commonfields:
  id: Mail
name: Mail
display: Mail Sender
script:
  type: python
  commands:
  - name: send-mail
    description: Sends a mail
`,
	"Packs/Core/ReleaseNotes/1_0_1.md": "fixed things",

	"Packs/Phishing/pack_metadata.json": `{
		"name": "Phishing",
		"dependencies": {"Core": {"mandatory": true, "display_name": "Core"}}
	}`,
	"Packs/Phishing/Playbooks/PhishingPlaybook.yml": phishingPlaybook,
	"Packs/Phishing/Playbooks/README.md":            "# Phishing",

	"Packs/Broken/Scripts/Orphan.yml": "commonfields:\n  id: Orphan\nscript: '-'\n",
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		writeFile(t, root, rel, body)
	}
	return root
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func newBuilder(t *testing.T, root string) (*Builder, *graph.Graph) {
	t.Helper()
	g, err := graph.Open(store.NewMemory(), graph.Options{
		RepoRoot:  root,
		ImportDir: filepath.Join(t.TempDir(), "import"),
		Logger:    quiet,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { g.Close() })
	return New(g, Options{Source: "github.com/demisto/content", Logger: quiet}), g
}

// contents returns the sorted node and relationship set of g.
func contents(t *testing.T, g *graph.Graph) ([]content.Node, []content.Relationship) {
	t.Helper()
	snap, err := g.Snapshot(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	snap.Normalize()
	return snap.Nodes, snap.Relationships
}

func nodeIDs(nodes []content.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.NodeID
	}
	return ids
}

func TestCreateGraph(t *testing.T) {
	ctx := context.Background()
	b, g := newBuilder(t, writeRepo(t, fixture))

	stats, err := b.CreateGraph(ctx)
	if err != nil {
		t.Fatalf("CreateGraph: %v", err)
	}
	if stats.Packs != 2 || !slices.Equal(stats.FailedPacks, []string{"Broken"}) {
		t.Errorf("packs = %d, failed = %v", stats.Packs, stats.FailedPacks)
	}
	if stats.Items != 3 {
		t.Errorf("items = %d, want 3", stats.Items)
	}
	if stats.Skipped[parsers.SkipNotContentItem] != 1 {
		t.Errorf("skipped = %v, want the README only", stats.Skipped)
	}

	nodes, rels := contents(t, g)
	want := []string{
		"Command:send-mail",
		"Integration:Mail",
		"Pack:Core",
		"Pack:Phishing",
		"Playbook:PhishingPlaybook",
		"Script:DBotPredictPhishingWords",
	}
	if got := nodeIDs(nodes); !slices.Equal(got, want) {
		t.Errorf("nodes = %v, want %v", got, want)
	}
	for _, n := range nodes {
		if n.ContentType != content.Command && n.Source != "github.com/demisto/content" {
			t.Errorf("%s: source = %q", n.NodeID, n.Source)
		}
	}

	var inPack, declared int
	for _, r := range rels {
		switch {
		case r.Type == content.InPack:
			inPack++
		case r.Type == content.DependsOn && r.SourceID == "Pack:Phishing":
			declared++
			if !r.Mandatory || r.Target.ObjectID != "Core" {
				t.Errorf("declared dependency = %+v", r)
			}
		}
	}
	if inPack != 3 || declared != 1 {
		t.Errorf("IN_PACK = %d, declared DEPENDS_ON = %d", inPack, declared)
	}
}

func TestPhishingDependsOnCore(t *testing.T) {
	ctx := context.Background()
	b, g := newBuilder(t, writeRepo(t, fixture))
	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreatePackDependencies(ctx, graph.DependencyOptions{}); err != nil {
		t.Fatal(err)
	}
	got, err := g.PackDependencies(ctx, "Phishing", graph.FilterOptions{AllLevels: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []content.PackDependency{{Source: "Phishing", Target: "Core", Mandatory: true, MinDepth: 1}}
	if !slices.Equal(got, want) {
		t.Errorf("dependencies = %+v, want %+v", got, want)
	}
}

func TestCreateGraphIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, g := newBuilder(t, writeRepo(t, fixture))

	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}
	nodes1, rels1 := contents(t, g)
	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}
	nodes2, rels2 := contents(t, g)

	if !reflect.DeepEqual(nodes1, nodes2) {
		t.Error("node sets differ between builds")
	}
	if !reflect.DeepEqual(rels1, rels2) {
		t.Error("relationship sets differ between builds")
	}
}

func TestVersionDisambiguation(t *testing.T) {
	files := map[string]string{
		"Packs/Core/pack_metadata.json": `{"name": "Core"}`,
		"Packs/Core/Scripts/script-Legacy.yml": `commonfields:
  id: Legacy
name: Legacy
script: '-'
fromversion: 6.0.0
toversion: 6.5.0
`,
		"Packs/Core/Scripts/Legacy/Legacy.yml": `commonfields:
  id: Legacy
name: Legacy
script: '-'
fromversion: 6.5.1
`,
	}
	b, g := newBuilder(t, writeRepo(t, files))
	if _, err := b.CreateGraph(context.Background()); err != nil {
		t.Fatal(err)
	}
	nodes, _ := contents(t, g)
	ids := nodeIDs(nodes)
	for _, want := range []string{"Script:Legacy", "Script:Legacy_6.5.0"} {
		if !slices.Contains(ids, want) {
			t.Errorf("missing %s in %v", want, ids)
		}
	}
}

func TestUpdateGraphMatchesCreate(t *testing.T) {
	ctx := context.Background()
	root := writeRepo(t, fixture)
	b, g := newBuilder(t, root)
	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}

	// Drop the script task and add a new script to Phishing.
	writeFile(t, root, "Packs/Phishing/Playbooks/PhishingPlaybook.yml", `id: PhishingPlaybook
name: Phishing Playbook
tasks:
  "0":
    task:
      script: Mail|||send-mail
`)
	writeFile(t, root, "Packs/Phishing/Scripts/ParseEmail/ParseEmail.yml", `commonfields:
  id: ParseEmail
name: ParseEmail
script: '-'
dependson:
  must:
  - DBotPredictPhishingWords
`)

	stats, err := b.UpdateGraph(ctx, []string{"Phishing", "Phishing"})
	if err != nil {
		t.Fatalf("UpdateGraph: %v", err)
	}
	if stats.Packs != 1 || stats.Items != 2 {
		t.Errorf("stats = %+v", stats)
	}

	fresh, fg := newBuilder(t, root)
	if _, err := fresh.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}

	gotNodes, gotRels := contents(t, g)
	wantNodes, wantRels := contents(t, fg)
	if !reflect.DeepEqual(gotNodes, wantNodes) {
		t.Errorf("nodes after update = %v\nfull create = %v", nodeIDs(gotNodes), nodeIDs(wantNodes))
	}
	if !reflect.DeepEqual(gotRels, wantRels) {
		t.Errorf("relationships differ: %d after update, %d from full create", len(gotRels), len(wantRels))
	}
}

func mailIntegration(id, marketplace string) string {
	return `commonfields:
  id: ` + id + `
name: ` + id + `
marketplaces:
- ` + marketplace + `
script:
  type: python
  commands:
  - name: shared-cmd
`
}

func TestUpdateGraphRebuildsCommandMarketplaces(t *testing.T) {
	ctx := context.Background()
	root := writeRepo(t, map[string]string{
		"Packs/A/pack_metadata.json":     `{"name": "A", "marketplaces": ["xsoar", "marketplacev2"]}`,
		"Packs/A/Integrations/IA/IA.yml": mailIntegration("IA", "xsoar"),
		"Packs/B/pack_metadata.json":     `{"name": "B", "marketplaces": ["xsoar", "marketplacev2"]}`,
		"Packs/B/Integrations/IB/IB.yml": mailIntegration("IB", "marketplacev2"),
	})
	b, g := newBuilder(t, root)
	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "Packs/A/Integrations/IA/IA.yml", mailIntegration("IA", "marketplacev2"))
	if _, err := b.UpdateGraph(ctx, []string{"A"}); err != nil {
		t.Fatal(err)
	}

	fresh, fg := newBuilder(t, root)
	if _, err := fresh.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}
	gotNodes, _ := contents(t, g)
	wantNodes, _ := contents(t, fg)
	for i, n := range gotNodes {
		if n.NodeID == "Command:shared-cmd" {
			if want := []content.Marketplace{content.MarketplaceV2}; !slices.Equal(n.Marketplaces, want) {
				t.Errorf("command marketplaces = %v, want %v", n.Marketplaces, want)
			}
		}
		if i < len(wantNodes) && !reflect.DeepEqual(n, wantNodes[i]) {
			t.Errorf("node %s after update = %+v\nfull create = %+v", n.NodeID, n, wantNodes[i])
		}
	}
	if len(gotNodes) != len(wantNodes) {
		t.Errorf("nodes after update = %v\nfull create = %v", nodeIDs(gotNodes), nodeIDs(wantNodes))
	}
}

const dupScript = `commonfields:
  id: Dup
name: Dup
script: '-'
`

// inPackTargets returns the packs the IN_PACK edges of nodeID point to.
func inPackTargets(t *testing.T, g *graph.Graph, nodeID string) []string {
	t.Helper()
	_, rels := contents(t, g)
	var out []string
	for _, r := range rels {
		if r.Type == content.InPack && r.SourceID == nodeID {
			out = append(out, r.Target.ObjectID)
		}
	}
	return out
}

func TestCollidingItemsBelongToFirstPack(t *testing.T) {
	ctx := context.Background()
	root := writeRepo(t, map[string]string{
		"Packs/A/pack_metadata.json":  `{"name": "A"}`,
		"Packs/A/Scripts/Dup/Dup.yml": dupScript,
		"Packs/B/pack_metadata.json":  `{"name": "B"}`,
		"Packs/B/Scripts/Dup/Dup.yml": dupScript,
	})
	b, g := newBuilder(t, root)
	stats, err := b.CreateGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []Collision{{NodeID: "Script:Dup", Owner: "A", Dropped: "B"}}
	if !reflect.DeepEqual(stats.Collisions, want) {
		t.Errorf("collisions = %+v, want %+v", stats.Collisions, want)
	}
	if got := inPackTargets(t, g, "Script:Dup"); !slices.Equal(got, []string{"A"}) {
		t.Fatalf("IN_PACK targets after create = %v", got)
	}
	created, createdRels := contents(t, g)

	for _, pack := range []string{"A", "B"} {
		stats, err := b.UpdateGraph(ctx, []string{pack})
		if err != nil {
			t.Fatal(err)
		}
		if pack == "B" && len(stats.Collisions) != 1 {
			t.Errorf("update(B) collisions = %+v", stats.Collisions)
		}
		nodes, rels := contents(t, g)
		if !reflect.DeepEqual(nodes, created) || !reflect.DeepEqual(rels, createdRels) {
			t.Errorf("update(%s) on an unchanged repository changed the graph; owners = %v", pack, inPackTargets(t, g, "Script:Dup"))
		}
	}
}

func TestUpdateGraphTakesOverItemFromLaterPack(t *testing.T) {
	ctx := context.Background()
	root := writeRepo(t, map[string]string{
		"Packs/A/pack_metadata.json":  `{"name": "A"}`,
		"Packs/B/pack_metadata.json":  `{"name": "B"}`,
		"Packs/B/Scripts/Dup/Dup.yml": dupScript,
	})
	b, g := newBuilder(t, root)
	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "Packs/A/Scripts/Dup/Dup.yml", dupScript)
	stats, err := b.UpdateGraph(ctx, []string{"A"})
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.Collisions) != 1 || stats.Collisions[0].Owner != "A" {
		t.Errorf("collisions = %+v", stats.Collisions)
	}
	if got := inPackTargets(t, g, "Script:Dup"); !slices.Equal(got, []string{"A"}) {
		t.Errorf("IN_PACK targets = %v, want [A]", got)
	}

	fresh, fg := newBuilder(t, root)
	if _, err := fresh.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}
	gotNodes, gotRels := contents(t, g)
	wantNodes, wantRels := contents(t, fg)
	if !reflect.DeepEqual(gotNodes, wantNodes) || !reflect.DeepEqual(gotRels, wantRels) {
		t.Errorf("update differs from full create: nodes %v vs %v", nodeIDs(gotNodes), nodeIDs(wantNodes))
	}
}

func TestUpdateGraphRemovesDeletedPack(t *testing.T) {
	ctx := context.Background()
	root := writeRepo(t, fixture)
	b, g := newBuilder(t, root)
	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.RemoveAll(filepath.Join(root, "Packs", "Phishing")); err != nil {
		t.Fatal(err)
	}
	stats, err := b.UpdateGraph(ctx, []string{"Phishing"})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(stats.RemovedPacks, []string{"Phishing"}) {
		t.Errorf("removed = %v", stats.RemovedPacks)
	}
	nodes, rels := contents(t, g)
	for _, n := range nodes {
		if n.PackID == "Phishing" {
			t.Errorf("%s survived pack deletion", n.NodeID)
		}
	}
	for _, r := range rels {
		if r.SourceID == "Playbook:PhishingPlaybook" || r.SourceID == "Pack:Phishing" {
			t.Errorf("relationship %s survived pack deletion", r.Key())
		}
	}
}

func TestUpdateGraphDropsOrphanCommands(t *testing.T) {
	ctx := context.Background()
	root := writeRepo(t, fixture)
	b, g := newBuilder(t, root)
	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.RemoveAll(filepath.Join(root, "Packs", "Core", "Integrations")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.UpdateGraph(ctx, []string{"Core"}); err != nil {
		t.Fatal(err)
	}
	nodes, _ := contents(t, g)
	if slices.Contains(nodeIDs(nodes), "Command:send-mail") {
		t.Error("command without a providing integration should be removed")
	}
	if !slices.Contains(nodeIDs(nodes), "Playbook:PhishingPlaybook") {
		t.Error("other packs must be untouched")
	}
}

func TestUpdateGraphKeepsPackWithBrokenMetadata(t *testing.T) {
	ctx := context.Background()
	root := writeRepo(t, fixture)
	b, g := newBuilder(t, root)
	if _, err := b.CreateGraph(ctx); err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "Packs/Phishing/pack_metadata.json", `{"name": `)
	stats, err := b.UpdateGraph(ctx, []string{"Phishing"})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(stats.FailedPacks, []string{"Phishing"}) {
		t.Errorf("failed = %v", stats.FailedPacks)
	}
	nodes, _ := contents(t, g)
	if !slices.Contains(nodeIDs(nodes), "Playbook:PhishingPlaybook") {
		t.Error("a pack whose manifest fails keeps its previous content")
	}
}

func TestParsePackMetadataErrors(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"Packs/NoName/pack_metadata.json":   `{"description": "missing name"}`,
		"Packs/BadMarket/pack_metadata.json": `{"name": "X", "marketplaces": ["nowhere"]}`,
	})
	b, _ := newBuilder(t, root)

	for _, id := range []string{"NoName", "BadMarket", "Missing"} {
		t.Run(id, func(t *testing.T) {
			_, err := b.ParsePack(context.Background(), id, nil)
			if !cgerrors.Is(err, cgerrors.ErrCodePackMetadata) {
				t.Errorf("err = %v, want PACK_METADATA", err)
			}
		})
	}
}

func TestUpdateGraphInputErrors(t *testing.T) {
	b, _ := newBuilder(t, writeRepo(t, fixture))
	_, err := b.UpdateGraph(context.Background(), []string{"../etc"})
	if !cgerrors.Is(err, cgerrors.ErrCodeInvalidPackID) {
		t.Errorf("err = %v, want INVALID_PACK_ID", err)
	}

	empty, _ := newBuilder(t, t.TempDir())
	if _, err := empty.CreateGraph(context.Background()); !cgerrors.Is(err, cgerrors.ErrCodeFileNotFound) {
		t.Errorf("err = %v, want FILE_NOT_FOUND", err)
	}
}

func TestCreateGraphCanceled(t *testing.T) {
	b, _ := newBuilder(t, writeRepo(t, fixture))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.CreateGraph(ctx); err == nil {
		t.Error("expected context error")
	}
}
