package parsers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the serialization of a content item definition file.
type Format int

const (
	FormatYAML Format = iota + 1
	FormatJSON
)

// codeSuffixes are the languages a package directory may hold code in.
var codeSuffixes = []string{".py", ".js", ".ps1"}

// Document is a decoded definition file plus its location in the repository.
type Document struct {
	Path    string         // Absolute path of the definition file
	RelPath string         // Repository-relative path, slash separated
	Folder  string         // Content folder inside the pack, e.g. "Scripts"
	Format  Format         // YAML or JSON
	Data    map[string]any // Top-level mapping
	pkgDir  string         // Package directory when the item is not a unified file
}

// resolveDefinition maps a filesystem entry to its definition file. Package
// directories hold one YAML (or JSON) named after the directory, or exactly
// one candidate otherwise.
func resolveDefinition(path string) (file, pkgDir string, ok bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", false
	}
	if !info.IsDir() {
		return path, "", formatOf(path) != 0 && !isAuxiliaryFile(path)
	}

	base := filepath.Base(path)
	for _, ext := range []string{".yml", ".yaml", ".json"} {
		candidate := filepath.Join(path, base+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, path, true
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", "", false
	}
	var candidates []string
	for _, e := range entries {
		name := filepath.Join(path, e.Name())
		if e.IsDir() || formatOf(name) != FormatYAML || isAuxiliaryFile(name) {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) != 1 {
		return "", "", false
	}
	return candidates[0], path, true
}

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return 0
}

// isAuxiliaryFile reports files that sit next to definitions but never are one.
func isAuxiliaryFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, suffix := range []string{"_test", "_unified", "_schema", "_testdata", "_description"} {
		if strings.HasSuffix(stem, suffix) {
			return true
		}
	}
	return name == "pack_metadata.json" || strings.HasPrefix(name, ".")
}

// loadDocument decodes path, or returns a Skip when the file is unreadable
// or not a mapping.
func loadDocument(path, pkgDir, repoRoot string) (*Document, *Skip) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Skip{Path: path, Reason: SkipUnreadable, Detail: err.Error()}
	}

	format := formatOf(path)
	var data map[string]any
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(raw, &data)
	case FormatJSON:
		err = json.Unmarshal(raw, &data)
	default:
		return nil, &Skip{Path: path, Reason: SkipNotContentItem, Detail: "unsupported suffix"}
	}
	if err != nil {
		return nil, &Skip{Path: path, Reason: SkipUnreadable, Detail: err.Error()}
	}
	if data == nil {
		return nil, &Skip{Path: path, Reason: SkipNotContentItem, Detail: "empty document"}
	}

	rel := path
	if repoRoot != "" {
		if r, err := filepath.Rel(repoRoot, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)

	return &Document{
		Path:    path,
		RelPath: rel,
		Folder:  contentFolder(rel),
		Format:  format,
		Data:    data,
		pkgDir:  pkgDir,
	}, nil
}

// contentFolder returns the path component right below the pack directory:
// "Packs/Core/Scripts/X/X.yml" yields "Scripts".
func contentFolder(rel string) string {
	parts := strings.Split(rel, "/")
	i := slices.Index(parts, "Packs")
	if i < 0 || i+2 >= len(parts) {
		return ""
	}
	return parts[i+2]
}

// Code returns the item's source code: the inline script when present, otherwise
// the code file next to the definition in a package directory.
func (d *Document) Code() string {
	if script, ok := d.Data["script"].(string); ok && script != "" && script != "-" {
		return script
	}
	if inner, ok := d.Data["script"].(map[string]any); ok {
		if script, ok := inner["script"].(string); ok && script != "" && script != "-" {
			return script
		}
	}
	if d.pkgDir == "" {
		return ""
	}
	stem := strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
	for _, ext := range codeSuffixes {
		if data, err := os.ReadFile(filepath.Join(d.pkgDir, stem+ext)); err == nil {
			return string(data)
		}
	}
	return ""
}

// Has reports whether every key is present at the top level.
func (d *Document) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := d.Data[k]; !ok {
			return false
		}
	}
	return true
}

// =============================================================================
// Value helpers
// =============================================================================

// lookup walks nested mappings.
func lookup(data map[string]any, path ...string) any {
	var cur any = data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// str returns the first non-empty string among keys. Numbers are formatted.
func str(data map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case int, int64, float64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// strList flattens a string or list of strings, dropping empty values and "-".
func strList(v any) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && s != "-" {
			out = append(out, s)
		}
	}
	switch val := v.(type) {
	case string:
		add(val)
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range val {
			add(s)
		}
	}
	return out
}

// boolean interprets YAML/JSON truthy values.
func boolean(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true") || val == "yes"
	}
	return false
}

// mappings returns the mapping elements of a list.
func mappings(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// sortedKeys returns the keys of a mapping in sorted order.
func sortedKeys(v any) []string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// normalizeFieldName turns a field display name into its cli name:
// lower case, alphanumerics only.
func normalizeFieldName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
