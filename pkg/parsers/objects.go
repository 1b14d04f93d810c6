package parsers

import (
	"strings"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// fieldRef maps a document field to the content it references.
type fieldRef struct {
	path      []string
	target    content.ContentType
	mandatory bool
}

func ref(target content.ContentType, mandatory bool, path ...string) fieldRef {
	return fieldRef{path: path, target: target, mandatory: mandatory}
}

// connectRefs applies a reference policy table.
func connectRefs(refs ...fieldRef) func(*Document, *Emitter) {
	return func(doc *Document, e *Emitter) {
		for _, r := range refs {
			e.Uses(r.target, r.mandatory, strList(lookup(doc.Data, r.path...))...)
		}
	}
}

// chain runs several connect functions in order.
func chain(fns ...func(*Document, *Emitter)) func(*Document, *Emitter) {
	return func(doc *Document, e *Emitter) {
		for _, fn := range fns {
			fn(doc, e)
		}
	}
}

func inFolder(folder string) func(*Document) bool {
	return func(doc *Document) bool { return doc.Folder == folder }
}

// =============================================================================
// Incidents and indicators
// =============================================================================

var incidentTypeParser = Parser{
	Type:   content.IncidentType,
	Format: FormatJSON,
	Match:  inFolder("IncidentTypes"),
	Connect: connectRefs(
		ref(content.Playbook, true, "playbookId"),
		ref(content.Script, true, "preProcessingScript"),
		ref(content.Layout, true, "layout"),
	),
}

// fieldHeader uses the cli name as object id, which is how mappers and
// layouts refer to fields.
func fieldHeader(prefix string) func(*Document) Header {
	return func(doc *Document) Header {
		h := defaultHeader(doc)
		if cli := str(doc.Data, "cliName"); cli != "" {
			h.ObjectID = cli
		} else {
			h.ObjectID = strings.TrimPrefix(h.ObjectID, prefix)
		}
		return h
	}
}

func connectField(associated content.ContentType) func(*Document, *Emitter) {
	return func(doc *Document, e *Emitter) {
		e.Set("type", str(doc.Data, "type"))
		e.Set("cli_name", str(doc.Data, "cliName"))
		e.Set("associated_to_all", boolean(doc.Data["associatedToAll"]))
		connectRefs(
			ref(associated, false, "associatedTypes"),
			ref(associated, false, "systemAssociatedTypes"),
			ref(content.Script, true, "script"),
			ref(content.Script, true, "fieldCalcScript"),
		)(doc, e)
	}
}

var incidentFieldParser = Parser{
	Type:    content.IncidentField,
	Format:  FormatJSON,
	Match:   inFolder("IncidentFields"),
	Header:  fieldHeader("incident_"),
	Connect: connectField(content.IncidentType),
}

var indicatorFieldParser = Parser{
	Type:    content.IndicatorField,
	Format:  FormatJSON,
	Match:   inFolder("IndicatorFields"),
	Header:  fieldHeader("indicator_"),
	Connect: connectField(content.IndicatorType),
}

var indicatorTypeParser = Parser{
	Type:   content.IndicatorType,
	Format: FormatJSON,
	Match:  inFolder("IndicatorTypes"),
	Header: func(doc *Document) Header {
		h := defaultHeader(doc)
		h.Name = str(doc.Data, "details", "name")
		return h
	},
	Connect: chain(
		func(doc *Document, e *Emitter) { e.Set("regex", str(doc.Data, "regex")) },
		connectRefs(
			ref(content.Script, false, "reputationScriptName"),
			ref(content.Script, false, "enhancementScriptNames"),
			ref(content.Layout, true, "layout"),
		),
	),
}

// =============================================================================
// Classification and mapping
// =============================================================================

func classifierKind(doc *Document) string {
	return str(doc.Data, "type")
}

var mapperParser = Parser{
	Type:   content.Mapper,
	Format: FormatJSON,
	Match: func(doc *Document) bool {
		return doc.Folder == "Classifiers" && strings.HasPrefix(classifierKind(doc), "mapping")
	},
	Connect: func(doc *Document, e *Emitter) {
		e.Set("type", classifierKind(doc))
		mapping, _ := doc.Data["mapping"].(map[string]any)
		for _, incidentType := range sortedKeys(mapping) {
			if incidentType != "dbot_classification_incident_type_all" {
				e.Uses(content.IncidentType, false, incidentType)
			}
			inner, _ := mapping[incidentType].(map[string]any)
			for _, field := range sortedKeys(inner["internalMapping"]) {
				e.Uses(content.IncidentField, false, normalizeFieldName(field))
			}
		}
	},
}

var classifierParser = Parser{
	Type:   content.Classifier,
	Format: FormatJSON,
	Match: func(doc *Document) bool {
		return doc.Folder == "Classifiers" && (classifierKind(doc) == "classification" || doc.Has("keyTypeMap"))
	},
	Connect: func(doc *Document, e *Emitter) {
		keyTypeMap, _ := doc.Data["keyTypeMap"].(map[string]any)
		for _, key := range sortedKeys(keyTypeMap) {
			if t, ok := keyTypeMap[key].(string); ok {
				e.Uses(content.IncidentType, false, t)
			}
		}
		e.Uses(content.IncidentType, false, strList(doc.Data["defaultIncidentType"])...)
	},
}

// =============================================================================
// Layouts, widgets and dashboards
// =============================================================================

// collectKey gathers every string value stored under key anywhere in v.
func collectKey(v any, key string, out *[]string) {
	switch val := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(val) {
			if k == key {
				*out = append(*out, strList(val[k])...)
				continue
			}
			collectKey(val[k], key, out)
		}
	case []any:
		for _, item := range val {
			collectKey(item, key, out)
		}
	}
}

var layoutParser = Parser{
	Type:   content.Layout,
	Format: FormatJSON,
	Match:  inFolder("Layouts"),
	Connect: func(doc *Document, e *Emitter) {
		e.Set("group", str(doc.Data, "group"))
		var scripts []string
		collectKey(doc.Data, "scriptId", &scripts)
		e.Uses(content.Script, false, scripts...)
	},
}

var widgetParser = Parser{
	Type:   content.Widget,
	Format: FormatJSON,
	Match:  inFolder("Widgets"),
	Connect: func(doc *Document, e *Emitter) {
		dataType := str(doc.Data, "dataType")
		e.Set("data_type", dataType)
		e.Set("widget_type", str(doc.Data, "widgetType"))
		if dataType == "scripts" {
			e.Uses(content.Script, true, str(doc.Data, "query"))
		}
	},
}

// connectEmbeddedWidgets links script-backed widgets embedded in a dashboard or report layout.
func connectEmbeddedWidgets(doc *Document, e *Emitter) {
	for _, cell := range mappings(doc.Data["layout"]) {
		widget, _ := cell["widget"].(map[string]any)
		if widget != nil && str(widget, "dataType") == "scripts" {
			e.Uses(content.Script, false, str(widget, "query"))
		}
	}
}

var dashboardParser = Parser{
	Type:    content.Dashboard,
	Format:  FormatJSON,
	Match:   inFolder("Dashboards"),
	Connect: connectEmbeddedWidgets,
}

var reportParser = Parser{
	Type:    content.Report,
	Format:  FormatJSON,
	Match:   inFolder("Reports"),
	Connect: connectEmbeddedWidgets,
}

// =============================================================================
// Generic objects
// =============================================================================

var genericDefinitionParser = Parser{
	Type:   content.GenericDefinition,
	Format: FormatJSON,
	Match:  inFolder("GenericDefinitions"),
	Header: func(doc *Document) Header {
		h := defaultHeader(doc)
		h.Name = str(doc.Data, "name", "auditable")
		return h
	},
}

var genericModuleParser = Parser{
	Type:    content.GenericModule,
	Format:  FormatJSON,
	Match:   inFolder("GenericModules"),
	Connect: connectRefs(ref(content.GenericDefinition, true, "definitionIds")),
}

var genericTypeParser = Parser{
	Type:   content.GenericType,
	Format: FormatJSON,
	Match:  inFolder("GenericTypes"),
	Connect: connectRefs(
		ref(content.Layout, true, "layout"),
		ref(content.GenericDefinition, true, "definitionId"),
	),
}

var genericFieldParser = Parser{
	Type:   content.GenericField,
	Format: FormatJSON,
	Match:  inFolder("GenericFields"),
	Connect: connectRefs(
		ref(content.GenericType, false, "associatedTypes"),
		ref(content.GenericDefinition, true, "definitionId"),
	),
}

// =============================================================================
// Jobs, lists, triggers and wizards
// =============================================================================

var jobParser = Parser{
	Type:   content.Job,
	Format: FormatJSON,
	Match:  inFolder("Jobs"),
	Connect: chain(
		func(doc *Document, e *Emitter) { e.Set("is_feed", boolean(doc.Data["isFeed"])) },
		connectRefs(ref(content.Playbook, true, "playbookId")),
	),
}

var listParser = Parser{
	Type:   content.List,
	Format: FormatJSON,
	Match:  inFolder("Lists"),
	Connect: func(doc *Document, e *Emitter) {
		e.Set("type", str(doc.Data, "type"))
	},
}

var triggerParser = Parser{
	Type:   content.Trigger,
	Format: FormatJSON,
	Match:  inFolder("Triggers"),
	Header: func(doc *Document) Header {
		h := defaultHeader(doc)
		h.ObjectID = str(doc.Data, "trigger_id", "id")
		h.Name = str(doc.Data, "trigger_name", "name")
		return h
	},
	Connect: connectRefs(ref(content.Playbook, true, "playbook_id")),
}

var wizardParser = Parser{
	Type:   content.Wizard,
	Format: FormatJSON,
	Match:  inFolder("Wizards"),
	Connect: func(doc *Document, e *Emitter) {
		for _, group := range mappings(doc.Data["dependency_packs"]) {
			for _, pack := range mappings(group["packs"]) {
				e.Uses(content.Pack, true, str(pack, "name"))
			}
		}
		for _, integration := range mappings(lookup(doc.Data, "wizard", "fetching_integrations")) {
			e.Uses(content.Integration, true, str(integration, "name"))
		}
		for _, playbook := range mappings(lookup(doc.Data, "wizard", "set_playbook")) {
			e.Uses(content.Playbook, true, str(playbook, "name"))
		}
	},
}
