package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

const (
	// PacksDir is the repository directory holding all packs.
	PacksDir = "Packs"

	// PackMetadataFile is the pack manifest file name.
	PackMetadataFile = "pack_metadata.json"
)

// PackMetadata is the manifest at the root of every pack.
type PackMetadata struct {
	Name             string                        `json:"name" validate:"required"`
	Description      string                        `json:"description"`
	Support          string                        `json:"support" validate:"omitempty,oneof=xsoar partner developer community"`
	CurrentVersion   string                        `json:"currentVersion" validate:"omitempty,semver"`
	Author           string                        `json:"author"`
	Email            string                        `json:"email" validate:"omitempty,email"`
	URL              string                        `json:"url" validate:"omitempty,url"`
	Created          string                        `json:"created"`
	Tags             []string                      `json:"tags"`
	Categories       []string                      `json:"categories"`
	UseCases         []string                      `json:"useCases"`
	Keywords         []string                      `json:"keywords"`
	Hidden           bool                          `json:"hidden"`
	ServerMinVersion string                        `json:"serverMinVersion"`
	Marketplaces     []Marketplace                 `json:"marketplaces" validate:"dive,oneof=xsoar marketplacev2 xpanse xsoar_saas xsoar_on_prem"`
	Dependencies     map[string]PackDependencyDecl `json:"dependencies"`
}

// PackDependencyDecl is a hand-declared dependency in pack metadata.
type PackDependencyDecl struct {
	Mandatory   bool   `json:"mandatory"`
	DisplayName string `json:"display_name"`
}

// EffectiveMarketplaces returns the declared marketplaces or the defaults.
func (m PackMetadata) EffectiveMarketplaces() []Marketplace {
	if len(m.Marketplaces) == 0 {
		return append([]Marketplace(nil), DefaultPackMarketplaces...)
	}
	return append([]Marketplace(nil), m.Marketplaces...)
}

var metadataValidator = validator.New(validator.WithRequiredStructEnabled())

// ReadPackMetadata loads and validates the manifest in packDir.
func ReadPackMetadata(packDir string) (*PackMetadata, error) {
	path := filepath.Join(packDir, PackMetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var meta PackMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := metadataValidator.Struct(meta); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return &meta, nil
}

// PackNode builds the graph node for a pack.
func PackNode(packID, relPath, source string, meta *PackMetadata) Node {
	props := map[string]any{
		"support":         meta.Support,
		"current_version": meta.CurrentVersion,
		"author":          meta.Author,
		"hidden":          meta.Hidden,
	}
	if len(meta.Tags) > 0 {
		props["tags"] = meta.Tags
	}
	if len(meta.Categories) > 0 {
		props["categories"] = meta.Categories
	}
	return Node{
		NodeID:       PackNodeID(packID),
		ContentType:  Pack,
		ObjectID:     packID,
		Name:         meta.Name,
		Description:  meta.Description,
		FromVersion:  DefaultFromVersion,
		ToVersion:    DefaultToVersion,
		Marketplaces: meta.EffectiveMarketplaces(),
		Source:       source,
		FilePath:     relPath,
		PackID:       packID,
		Properties:   props,
	}
}
