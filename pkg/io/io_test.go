package io

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/contentgraph/pkg/content"
)

func node(t content.ContentType, id, pack, name string) content.Node {
	return content.Node{
		NodeID:       content.NodeID(t, id, ""),
		ContentType:  t,
		ObjectID:     id,
		Name:         name,
		PackID:       pack,
		Marketplaces: []content.Marketplace{content.MarketplaceXSOAR},
	}
}

func uses(src content.Node, t content.ContentType, id string) content.Relationship {
	return content.Relationship{
		Type: content.Uses, SourceID: src.NodeID, SourceType: src.ContentType,
		Target: content.Ref{Type: t, ObjectID: id}, Mandatory: true, IsDirect: true,
	}
}

func sampleSnapshot() *Snapshot {
	pack := node(content.Pack, "Core", "Core", "Core")
	script := node(content.Script, "Hello", "Core", "Hello")
	return &Snapshot{
		Manifest:         Manifest{Marketplace: content.MarketplaceXSOAR, Commit: "abc"},
		Nodes:            []content.Node{script, pack},
		Relationships:    []content.Relationship{uses(script, content.Script, "Print")},
		PackDependencies: []content.PackDependency{{Source: "Core", Target: "Base", Mandatory: true, MinDepth: 1}},
	}
}

func TestExportImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", FileName(content.MarketplaceXSOAR))
	if err := ExportSnapshot(sampleSnapshot(), path); err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}

	s, err := ImportSnapshot(path)
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if s.Manifest.ID == "" || s.Manifest.CreatedAt.IsZero() {
		t.Errorf("manifest not filled in: %+v", s.Manifest)
	}
	if s.Manifest.Commit != "abc" || s.Manifest.Marketplace != content.MarketplaceXSOAR {
		t.Errorf("manifest = %+v", s.Manifest)
	}
	if len(s.Nodes) != 2 || s.Nodes[0].NodeID != "Pack:Core" {
		t.Errorf("nodes not sorted: %+v", s.Nodes)
	}
	if len(s.Relationships) != 1 || !s.Relationships[0].Mandatory {
		t.Errorf("relationships = %+v", s.Relationships)
	}
	if len(s.PackDependencies) != 1 {
		t.Errorf("pack dependencies = %+v", s.PackDependencies)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestExportIsDeterministic(t *testing.T) {
	a, b := sampleSnapshot(), sampleSnapshot()
	a.Manifest.ID, b.Manifest.ID = "fixed", "fixed"
	var bufA, bufB bytes.Buffer
	if err := WriteSnapshot(a, &bufA); err != nil {
		t.Fatal(err)
	}
	b.Manifest.CreatedAt = a.Manifest.CreatedAt
	if err := WriteSnapshot(b, &bufB); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Error("identical snapshots produced different archives")
	}
}

func TestReadSnapshotFailures(t *testing.T) {
	var valid bytes.Buffer
	if err := WriteSnapshot(sampleSnapshot(), &valid); err != nil {
		t.Fatal(err)
	}

	zipWith := func(members map[string]string) []byte {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		for name, body := range members {
			w, _ := zw.Create(name)
			w.Write([]byte(body))
		}
		zw.Close()
		return buf.Bytes()
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not a zip", []byte("definitely not a zip"), ErrCorrupt},
		{"truncated", valid.Bytes()[:valid.Len()/2], ErrCorrupt},
		{"missing nodes", zipWith(map[string]string{manifestFile: `{"schema_version": 1}`}), ErrCorrupt},
		{"bad json", zipWith(map[string]string{
			manifestFile: `{"schema_version": 1}`, nodesFile: `[{`,
			relationshipsFile: `[]`, packDependenciesFile: `[]`,
		}), ErrCorrupt},
		{"count mismatch", zipWith(map[string]string{
			manifestFile: `{"schema_version": 1, "stats": {"nodes": 3}}`, nodesFile: `[]`,
			relationshipsFile: `[]`, packDependenciesFile: `[]`,
		}), ErrCorrupt},
		{"future schema", zipWith(map[string]string{manifestFile: `{"schema_version": 99}`}), ErrIncompatible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSnapshot(bytes.NewReader(tt.data), int64(len(tt.data)))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestImportMissingFile(t *testing.T) {
	if _, err := ImportSnapshot(filepath.Join(t.TempDir(), "nope.zip")); err == nil {
		t.Error("expected error")
	}
}

func TestMergePrecedence(t *testing.T) {
	localFoo := node(content.Integration, "Foo", "FooPack", "version A")
	remoteFoo := node(content.Integration, "Foo", "FooPack", "version B")
	remoteOld := node(content.Script, "Removed", "FooPack", "deleted locally")
	remoteBar := node(content.Script, "Bar", "BarPack", "bar")
	cmd := node(content.Command, "foo-cmd", "", "foo-cmd")

	local := &Snapshot{
		Manifest:      Manifest{Marketplace: content.MarketplaceXSOAR, Commit: "local"},
		Nodes:         []content.Node{localFoo},
		Relationships: []content.Relationship{uses(localFoo, content.Script, "Bar")},
	}
	remote := &Snapshot{
		Manifest: Manifest{Marketplace: content.MarketplaceXSOAR, Commit: "remote"},
		Nodes:    []content.Node{remoteFoo, remoteOld, remoteBar, cmd},
		Relationships: []content.Relationship{
			uses(remoteFoo, content.Script, "Stale"),
			uses(remoteOld, content.Script, "Bar"),
			uses(remoteBar, content.Script, "Print"),
		},
		PackDependencies: []content.PackDependency{{Source: "FooPack", Target: "BarPack", MinDepth: 1}},
	}

	merged, err := MergeSnapshots(local, remote)
	if err != nil {
		t.Fatal(err)
	}

	byID := map[string]content.Node{}
	for _, n := range merged.Nodes {
		byID[n.NodeID] = n
	}
	if byID["Integration:Foo"].Name != "version A" {
		t.Errorf("local node should win, got %q", byID["Integration:Foo"].Name)
	}
	if _, ok := byID["Script:Removed"]; ok {
		t.Error("remote items of a locally present pack must be dropped")
	}
	if _, ok := byID["Script:Bar"]; !ok {
		t.Error("remote-only pack content must be kept")
	}
	if _, ok := byID["Command:foo-cmd"]; !ok {
		t.Error("remote commands must be kept")
	}

	var targets []string
	for _, r := range merged.Relationships {
		targets = append(targets, r.SourceID+"->"+r.Target.ObjectID)
	}
	want := []string{"Integration:Foo->Bar", "Script:Bar->Print"}
	if len(targets) != len(want) || targets[0] != want[0] || targets[1] != want[1] {
		t.Errorf("relationships = %v, want %v", targets, want)
	}
	if len(merged.PackDependencies) != 0 {
		t.Errorf("derived dependencies should be dropped, got %+v", merged.PackDependencies)
	}
	if merged.Manifest.Commit != "local" {
		t.Errorf("commit = %q, want local", merged.Manifest.Commit)
	}

	if local.Nodes[0].Name != "version A" || len(remote.Nodes) != 4 {
		t.Error("inputs were modified")
	}
}

func TestMergeMarketplaceMismatch(t *testing.T) {
	local := &Snapshot{Manifest: Manifest{Marketplace: content.MarketplaceXSOAR}}
	remote := &Snapshot{Manifest: Manifest{Marketplace: content.MarketplaceV2}}
	if _, err := MergeSnapshots(local, remote); !errors.Is(err, ErrMarketplaceMismatch) {
		t.Errorf("err = %v", err)
	}
}

func TestMergeFiles(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "local.zip")
	remotePath := filepath.Join(dir, "remote.zip")
	outPath := filepath.Join(dir, "merged", "xsoar.zip")

	if err := ExportSnapshot(sampleSnapshot(), localPath); err != nil {
		t.Fatal(err)
	}
	if err := MergeFiles(localPath, remotePath, outPath); err == nil {
		t.Fatal("expected error for missing remote")
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Error("failed merge must not create output")
	}

	remote := &Snapshot{Nodes: []content.Node{node(content.Script, "Other", "OtherPack", "other")}}
	if err := ExportSnapshot(remote, remotePath); err != nil {
		t.Fatal(err)
	}
	if err := MergeFiles(localPath, remotePath, outPath); err != nil {
		t.Fatal(err)
	}
	merged, err := ImportSnapshot(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Nodes) != 3 {
		t.Errorf("merged nodes = %d, want 3", len(merged.Nodes))
	}
}

func TestFilter(t *testing.T) {
	s := sampleSnapshot()
	v2 := node(content.ParsingRule, "Rule", "Core", "Rule")
	v2.Marketplaces = []content.Marketplace{content.MarketplaceV2}
	s.Nodes = append(s.Nodes, v2)
	s.Relationships = append(s.Relationships, uses(v2, content.Script, "X"))

	f := s.Filter(content.MarketplaceXSOAR)
	if len(f.Nodes) != 2 || len(f.Relationships) != 1 {
		t.Errorf("filtered = %d nodes, %d rels", len(f.Nodes), len(f.Relationships))
	}
	if len(f.PackDependencies) != 0 {
		t.Errorf("dependency on a pack outside the snapshot should be dropped")
	}
	if len(s.Filter("").Nodes) != 3 {
		t.Error("empty marketplace should keep everything")
	}
}
