package parsers

import (
	"slices"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// PackContext carries what every item inherits from its owning pack.
type PackContext struct {
	PackID       string
	Marketplaces []content.Marketplace
	RepoRoot     string
	Source       string
}

// Header holds the identity fields every content item carries.
type Header struct {
	ObjectID     string
	Name         string
	Description  string
	FromVersion  string
	ToVersion    string
	Marketplaces []string
	Deprecated   bool
}

// Parser handles one content type.
type Parser struct {
	Type   content.ContentType
	Format Format

	// Match reports whether the document is of this type. Parsers are tried in
	// registration order, so more specific predicates must be registered first.
	Match func(doc *Document) bool

	// Header extracts identity fields; nil uses the common YAML/JSON layout.
	Header func(doc *Document) Header

	// Connect declares relationships and type-specific properties.
	Connect func(doc *Document, e *Emitter)
}

// Registry dispatches paths to parsers.
type Registry struct {
	parsers []Parser
}

// NewRegistry creates a registry trying parsers in the given order.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: slices.Clone(parsers)}
}

// DefaultRegistry returns a registry with every built-in content type, most
// specific predicates first.
func DefaultRegistry() *Registry {
	return NewRegistry(
		// XSIAM content shares YAML/JSON shapes with generic items and must win first.
		parsingRuleParser,
		modelingRuleParser,
		correlationRuleParser,
		xsiamReportParser,
		xsiamDashboardParser,

		testScriptParser,
		testPlaybookParser,
		integrationParser,
		scriptParser,
		playbookParser,

		mapperParser,
		classifierParser,
		genericTypeParser,
		genericFieldParser,
		genericModuleParser,
		genericDefinitionParser,
		incidentTypeParser,
		incidentFieldParser,
		indicatorTypeParser,
		indicatorFieldParser,
		layoutParser,
		widgetParser,
		dashboardParser,
		reportParser,
		jobParser,
		listParser,
		triggerParser,
		wizardParser,
	)
}

// Register appends a parser at the lowest priority.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Types lists the registered content types in priority order.
func (r *Registry) Types() []content.ContentType {
	types := make([]content.ContentType, 0, len(r.parsers))
	for _, p := range r.parsers {
		if !slices.Contains(types, p.Type) {
			types = append(types, p.Type)
		}
	}
	return types
}

// Parse turns a file or package directory into a content item. Paths that are
// not content items come back as a Skip, never as an error.
func (r *Registry) Parse(path string, pc PackContext) Outcome {
	file, pkgDir, ok := resolveDefinition(path)
	if !ok {
		return skip(path, SkipNotContentItem, "no definition file")
	}

	doc, s := loadDocument(file, pkgDir, pc.RepoRoot)
	if s != nil {
		return Outcome{Skip: s}
	}

	for _, p := range r.parsers {
		if p.Format != doc.Format || !p.Match(doc) {
			continue
		}
		return p.parse(doc, pc)
	}
	return skip(doc.RelPath, SkipNotContentItem, "no parser matched folder %q", doc.Folder)
}

func (p Parser) parse(doc *Document, pc PackContext) Outcome {
	headerFn := p.Header
	if headerFn == nil {
		headerFn = defaultHeader
	}
	h := headerFn(doc)
	if h.ObjectID == "" {
		return skip(doc.RelPath, SkipMissingField, "%s has no id", p.Type)
	}

	from, err := content.NormalizeVersion(h.FromVersion, content.DefaultFromVersion)
	if err != nil {
		return skip(doc.RelPath, SkipInvalidVersion, "fromversion: %v", err)
	}
	to, err := content.NormalizeVersion(h.ToVersion, content.DefaultToVersion)
	if err != nil {
		return skip(doc.RelPath, SkipInvalidVersion, "toversion: %v", err)
	}
	if !content.IsSupportedToVersion(to) {
		return skip(doc.RelPath, SkipUnsupportedVersion, "toversion %s is below %s", to, content.MinimumSupportedVersion)
	}
	if content.CompareVersions(from, to) > 0 {
		return skip(doc.RelPath, SkipInvalidVersion, "fromversion %s is after toversion %s", from, to)
	}

	name := h.Name
	if name == "" {
		name = h.ObjectID
	}

	node := content.Node{
		NodeID:       content.NodeID(p.Type, h.ObjectID, to),
		ContentType:  p.Type,
		ObjectID:     h.ObjectID,
		Name:         name,
		Description:  h.Description,
		FromVersion:  from,
		ToVersion:    to,
		Marketplaces: itemMarketplaces(p.Type, h.Marketplaces, pc.Marketplaces),
		Deprecated:   h.Deprecated,
		Source:       pc.Source,
		FilePath:     doc.RelPath,
		PackID:       pc.PackID,
	}

	e := &Emitter{node: &node}
	if p.Connect != nil {
		p.Connect(doc, e)
	}

	return Outcome{Item: &Item{
		Node:          node,
		Relationships: content.DedupeRelationships(e.rels),
		Extra:         e.extra,
	}}
}

// itemMarketplaces narrows an item's marketplaces to what its pack and its type allow.
// Items without an explicit list inherit the pack's.
func itemMarketplaces(t content.ContentType, declared []string, pack []content.Marketplace) []content.Marketplace {
	result := pack
	if len(declared) > 0 {
		var explicit []content.Marketplace
		for _, s := range declared {
			if m, err := content.ParseMarketplace(s); err == nil {
				explicit = append(explicit, m)
			}
		}
		result = content.IntersectMarketplaces(explicit, pack)
	}
	if supported := content.SupportedMarketplaces(t); supported != nil {
		result = content.IntersectMarketplaces(result, supported)
	}
	return content.SortMarketplaces(append([]content.Marketplace(nil), result...))
}

// defaultHeader reads the layout shared by most content items. YAML items keep
// their id under commonfields when they are integrations or scripts.
func defaultHeader(doc *Document) Header {
	id := ""
	if common, ok := doc.Data["commonfields"].(map[string]any); ok {
		id = str(common, "id")
	}
	if id == "" {
		id = str(doc.Data, "id")
	}
	return Header{
		ObjectID:     id,
		Name:         str(doc.Data, "name", "display", "brandName"),
		Description:  str(doc.Data, "description", "comment"),
		FromVersion:  str(doc.Data, "fromversion", "fromVersion"),
		ToVersion:    str(doc.Data, "toversion", "toVersion"),
		Marketplaces: strList(doc.Data["marketplaces"]),
		Deprecated:   boolean(doc.Data["deprecated"]),
	}
}
