package parsers

import "github.com/matzehuels/contentgraph/pkg/content"

var parsingRuleParser = Parser{
	Type:   content.ParsingRule,
	Format: FormatYAML,
	Match: func(doc *Document) bool {
		return doc.Folder == "ParsingRules" && doc.Has("rules", "samples")
	},
}

var modelingRuleParser = Parser{
	Type:   content.ModelingRule,
	Format: FormatYAML,
	Match: func(doc *Document) bool {
		return doc.Folder == "ModelingRules" && doc.Has("rules", "schema")
	},
}

var correlationRuleParser = Parser{
	Type:   content.CorrelationRule,
	Format: FormatYAML,
	Match: func(doc *Document) bool {
		return doc.Folder == "CorrelationRules" && doc.Has("global_rule_id")
	},
	Header: func(doc *Document) Header {
		h := defaultHeader(doc)
		h.ObjectID = str(doc.Data, "global_rule_id")
		return h
	},
}

// firstEntry returns the first mapping in the list stored under key.
func firstEntry(doc *Document, key string) map[string]any {
	entries := mappings(doc.Data[key])
	if len(entries) == 0 {
		return nil
	}
	return entries[0]
}

var xsiamReportParser = Parser{
	Type:   content.XSIAMReport,
	Format: FormatJSON,
	Match: func(doc *Document) bool {
		return doc.Folder == "XSIAMReports" && doc.Has("templates_data")
	},
	Header: func(doc *Document) Header {
		data := firstEntry(doc, "templates_data")
		return Header{
			ObjectID:     str(data, "global_id"),
			Name:         str(data, "report_name"),
			Description:  str(data, "report_description"),
			FromVersion:  str(doc.Data, "fromVersion", "fromversion"),
			ToVersion:    str(doc.Data, "toVersion", "toversion"),
			Marketplaces: strList(doc.Data["marketplaces"]),
		}
	},
}

var xsiamDashboardParser = Parser{
	Type:   content.XSIAMDashboard,
	Format: FormatJSON,
	Match: func(doc *Document) bool {
		return doc.Folder == "XSIAMDashboards" && doc.Has("dashboards_data")
	},
	Header: func(doc *Document) Header {
		data := firstEntry(doc, "dashboards_data")
		return Header{
			ObjectID:     str(data, "global_id"),
			Name:         str(data, "name"),
			Description:  str(data, "description"),
			FromVersion:  str(doc.Data, "fromVersion", "fromversion"),
			ToVersion:    str(doc.Data, "toVersion", "toversion"),
			Marketplaces: strList(doc.Data["marketplaces"]),
		}
	},
}
