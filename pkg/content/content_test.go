package content

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestNodeID(t *testing.T) {
	tests := []struct {
		name      string
		typ       ContentType
		objectID  string
		toVersion string
		want      string
	}{
		{"no version", Integration, "Foo", "", "Integration:Foo"},
		{"default max", Integration, "Foo", DefaultToVersion, "Integration:Foo"},
		{"scoped", Integration, "Foo", "6.9.9", "Integration:Foo_6.9.9"},
		{"pack", Pack, "Core", "", "Pack:Core"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NodeID(tt.typ, tt.objectID, tt.toVersion); got != tt.want {
				t.Errorf("NodeID() = %q, want %q", got, tt.want)
			}
		})
	}

	if NodeID(Script, "X", "6.5.0") == NodeID(Script, "X", "") {
		t.Error("version-scoped duplicates must get distinct ids")
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", DefaultToVersion, false},
		{"6.0.0", "6.0.0", false},
		{"6.5", "6.5.0", false},
		{"v8.1.0", "8.1.0", false},
		{"abc", "", true},
		{"6.x.1", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeVersion(tt.in, DefaultToVersion)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeVersion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsSupportedToVersion(t *testing.T) {
	if IsSupportedToVersion("5.9.9") {
		t.Error("5.9.9 should be below the supported minimum")
	}
	if !IsSupportedToVersion("6.0.0") {
		t.Error("6.0.0 should be supported")
	}
	if !IsSupportedToVersion(DefaultToVersion) {
		t.Error("default toversion should be supported")
	}
}

func TestContentTypeMatches(t *testing.T) {
	if !BaseContent.Matches(Widget) {
		t.Error("BaseContent should match every type")
	}
	if !CommandOrScript.Matches(Command) || !CommandOrScript.Matches(Script) {
		t.Error("CommandOrScript should match commands and scripts")
	}
	if CommandOrScript.Matches(Playbook) {
		t.Error("CommandOrScript should not match playbooks")
	}
	if Script.Matches(Command) {
		t.Error("concrete types match only themselves")
	}
}

func TestParseContentType(t *testing.T) {
	for in, want := range map[string]ContentType{
		"IncidentType":  IncidentType,
		"INCIDENT_TYPE": IncidentType,
		"basecontent":   BaseContent,
		"TEST_PLAYBOOK": TestPlaybook,
	} {
		got, err := ParseContentType(in)
		if err != nil || got != want {
			t.Errorf("ParseContentType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseContentType("Nope"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestRelationshipValidate(t *testing.T) {
	tests := []struct {
		name    string
		rel     Relationship
		wantErr bool
	}{
		{
			name: "uses",
			rel:  Relationship{Type: Uses, SourceID: "Playbook:P", SourceType: Playbook, Target: Ref{Script, "S"}},
		},
		{
			name: "uses command or script",
			rel:  Relationship{Type: Uses, SourceID: "Playbook:P", SourceType: Playbook, Target: Ref{CommandOrScript, "S"}},
		},
		{
			name:    "in pack wrong target",
			rel:     Relationship{Type: InPack, SourceID: "Script:S", SourceType: Script, Target: Ref{Script, "X"}},
			wantErr: true,
		},
		{
			name:    "has command from script",
			rel:     Relationship{Type: HasCommand, SourceID: "Script:S", SourceType: Script, Target: Ref{Command, "c"}},
			wantErr: true,
		},
		{
			name:    "empty target",
			rel:     Relationship{Type: Uses, SourceID: "Script:S", SourceType: Script, Target: Ref{Script, ""}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			rel:     Relationship{Type: "LIKES", SourceID: "Script:S", SourceType: Script, Target: Ref{Script, "X"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.rel.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDedupeRelationships(t *testing.T) {
	optional := Relationship{Type: Uses, SourceID: "Playbook:P", SourceType: Playbook, Target: Ref{Script, "S"}}
	mandatory := optional
	mandatory.Mandatory = true
	other := Relationship{Type: Uses, SourceID: "Playbook:P", SourceType: Playbook, Target: Ref{Script, "T"}}

	got := DedupeRelationships([]Relationship{optional, other, mandatory})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].Mandatory {
		t.Error("duplicate declaration should OR the mandatory flag")
	}
}

func TestIntersectMarketplaces(t *testing.T) {
	got := IntersectMarketplaces(
		[]Marketplace{MarketplaceV2, MarketplaceXSOAR, MarketplaceXPANSE},
		DefaultPackMarketplaces,
	)
	want := []Marketplace{MarketplaceV2, MarketplaceXSOAR}
	if !slices.Equal(got, want) {
		t.Errorf("IntersectMarketplaces() = %v, want %v", got, want)
	}
}

func TestReadPackMetadata(t *testing.T) {
	dir := t.TempDir()
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, PackMetadataFile), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write(`{"name": "Core", "support": "xsoar", "currentVersion": "1.2.3"}`)
	meta, err := ReadPackMetadata(dir)
	if err != nil {
		t.Fatalf("ReadPackMetadata: %v", err)
	}
	if !slices.Equal(meta.EffectiveMarketplaces(), DefaultPackMarketplaces) {
		t.Errorf("marketplaces = %v, want defaults", meta.EffectiveMarketplaces())
	}

	write(`{"name": "Core", "marketplaces": ["nowhere"]}`)
	if _, err := ReadPackMetadata(dir); err == nil {
		t.Error("expected validation error for unknown marketplace")
	}

	write(`{"name": `)
	if _, err := ReadPackMetadata(dir); err == nil {
		t.Error("expected parse error")
	}

	write(`{"description": "no name"}`)
	if _, err := ReadPackMetadata(dir); err == nil {
		t.Error("expected error for missing name")
	}
}
