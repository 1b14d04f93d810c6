package neo4j

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/matzehuels/contentgraph/pkg/content"
)

func TestUpsertRelationshipsQuery(t *testing.T) {
	for _, rt := range content.AllRelationshipTypes {
		q, err := upsertRelationshipsQuery(rt)
		if err != nil {
			t.Fatalf("%s: %v", rt, err)
		}
		if !strings.Contains(q, "[e:"+string(rt)+" {key: r.key}]") {
			t.Errorf("%s: query does not merge on the relationship type:\n%s", rt, q)
		}
	}

	if _, err := upsertRelationshipsQuery("USES]->() DETACH DELETE (x"); err == nil {
		t.Error("expected error for a type outside the enum")
	}
}

func TestNodeParams(t *testing.T) {
	n := content.Node{
		NodeID:      "Script:Hello",
		ContentType: content.Script,
		ObjectID:    "Hello",
		PackID:      "Core",
		FilePath:    "Packs/Core/Scripts/Hello/Hello.yml",
		Properties:  map[string]any{"type": "python"},
	}
	params, err := nodeParams([]content.Node{n})
	if err != nil {
		t.Fatal(err)
	}
	if len(params) != 1 {
		t.Fatalf("len = %d", len(params))
	}
	p := params[0]
	if p["node_id"] != "Script:Hello" || p["content_type"] != "Script" || p["pack_id"] != "Core" {
		t.Errorf("identity params = %v", p)
	}

	var decoded content.Node
	if err := json.Unmarshal([]byte(p["data"].(string)), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Property("type") != "python" {
		t.Errorf("data property lost: %+v", decoded)
	}
}

func TestRelationshipParamsGroupByType(t *testing.T) {
	rels := []content.Relationship{
		{Type: content.Uses, SourceID: "Playbook:P", Target: content.Ref{Type: content.Script, ObjectID: "S"}, Mandatory: true},
		{Type: content.InPack, SourceID: "Playbook:P", Target: content.Ref{Type: content.Pack, ObjectID: "Core"}},
		{Type: content.Uses, SourceID: "Playbook:P", Target: content.Ref{Type: content.Playbook, ObjectID: "Q"}},
	}
	grouped, err := relationshipParams(rels)
	if err != nil {
		t.Fatal(err)
	}
	if len(grouped[content.Uses]) != 2 || len(grouped[content.InPack]) != 1 {
		t.Fatalf("grouped = %v", grouped)
	}
	first := grouped[content.Uses][0]
	if first["target"] != "Script:S" || first["mandatory"] != true || first["key"] != rels[0].Key() {
		t.Errorf("params = %v", first)
	}
}

func TestPackDependencyParams(t *testing.T) {
	params := packDependencyParams([]content.PackDependency{{Source: "Phishing", Target: "Core", Mandatory: true, MinDepth: 1}})
	want := map[string]any{"source": "Pack:Phishing", "target": "Pack:Core", "mandatory": true, "min_depth": int64(1)}
	for k, v := range want {
		if params[0][k] != v {
			t.Errorf("%s = %v, want %v", k, params[0][k], v)
		}
	}
}
