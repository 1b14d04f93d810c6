package content

import (
	"fmt"
	"slices"
	"strings"
)

// =============================================================================
// Content Types
// =============================================================================

// ContentType tags a node with the kind of content item it represents.
// The set is bounded; parsers and the store only accept values from AllContentTypes.
type ContentType string

const (
	Integration       ContentType = "Integration"
	Script            ContentType = "Script"
	Playbook          ContentType = "Playbook"
	TestPlaybook      ContentType = "TestPlaybook"
	Pack              ContentType = "Pack"
	Command           ContentType = "Command"
	Layout            ContentType = "Layout"
	Classifier        ContentType = "Classifier"
	Mapper            ContentType = "Mapper"
	IncidentType      ContentType = "IncidentType"
	IncidentField     ContentType = "IncidentField"
	IndicatorType     ContentType = "IndicatorType"
	IndicatorField    ContentType = "IndicatorField"
	Widget            ContentType = "Widget"
	Dashboard         ContentType = "Dashboard"
	Report            ContentType = "Report"
	GenericDefinition ContentType = "GenericDefinition"
	GenericModule     ContentType = "GenericModule"
	GenericType       ContentType = "GenericType"
	GenericField      ContentType = "GenericField"
	Job               ContentType = "Job"
	List              ContentType = "List"
	Trigger           ContentType = "Trigger"
	Wizard            ContentType = "Wizard"
	ParsingRule       ContentType = "ParsingRule"
	ModelingRule      ContentType = "ModelingRule"
	CorrelationRule   ContentType = "CorrelationRule"
	XSIAMReport       ContentType = "XSIAMReport"
	XSIAMDashboard    ContentType = "XSIAMDashboard"

	// CommandOrScript is a relationship target placeholder for playbook tasks
	// and script calls whose target may be either a command or a script.
	CommandOrScript ContentType = "CommandOrScript"

	// BaseContent matches any content type in queries.
	BaseContent ContentType = "BaseContent"
)

// AllContentTypes lists every concrete content type a node may carry.
var AllContentTypes = []ContentType{
	Integration, Script, Playbook, TestPlaybook, Pack, Command, Layout,
	Classifier, Mapper, IncidentType, IncidentField, IndicatorType, IndicatorField,
	Widget, Dashboard, Report, GenericDefinition, GenericModule, GenericType,
	GenericField, Job, List, Trigger, Wizard, ParsingRule, ModelingRule,
	CorrelationRule, XSIAMReport, XSIAMDashboard,
}

// IsValid reports whether t is a concrete node content type.
func (t ContentType) IsValid() bool {
	return slices.Contains(AllContentTypes, t)
}

// IsPlaceholder reports whether t is only valid as a relationship target or query filter.
func (t ContentType) IsPlaceholder() bool {
	return t == CommandOrScript || t == BaseContent
}

// Matches reports whether a node of type other satisfies a target or filter of type t.
func (t ContentType) Matches(other ContentType) bool {
	switch t {
	case BaseContent:
		return true
	case CommandOrScript:
		return other == Command || other == Script
	default:
		return t == other
	}
}

// ParseContentType resolves a user-supplied name, case-insensitively, to a content type.
// Both the canonical form ("IncidentType") and the upper snake form ("INCIDENT_TYPE") are accepted.
func ParseContentType(s string) (ContentType, error) {
	norm := strings.ToLower(strings.ReplaceAll(s, "_", ""))
	candidates := append(slices.Clone(AllContentTypes), CommandOrScript, BaseContent)
	for _, t := range candidates {
		if strings.ToLower(string(t)) == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown content type %q", s)
}

// =============================================================================
// Relationship Types
// =============================================================================

// RelationshipType is the label on a directed edge.
type RelationshipType string

const (
	Uses       RelationshipType = "USES"
	DependsOn  RelationshipType = "DEPENDS_ON"
	TestedBy   RelationshipType = "TESTED_BY"
	InPack     RelationshipType = "IN_PACK"
	Imports    RelationshipType = "IMPORTS"
	HasCommand RelationshipType = "HAS_COMMAND"
)

// AllRelationshipTypes lists the relationship labels in a stable order.
var AllRelationshipTypes = []RelationshipType{Uses, DependsOn, TestedBy, InPack, Imports, HasCommand}

// IsValid reports whether r is a known relationship type.
func (r RelationshipType) IsValid() bool {
	return slices.Contains(AllRelationshipTypes, r)
}

// CarriesMandatory reports whether the mandatorily flag is meaningful for r.
func (r RelationshipType) CarriesMandatory() bool {
	return r == Uses || r == DependsOn
}

// ParseRelationshipType resolves a user-supplied relationship name.
func ParseRelationshipType(s string) (RelationshipType, error) {
	r := RelationshipType(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown relationship type %q", s)
	}
	return r, nil
}

// =============================================================================
// Marketplaces
// =============================================================================

// Marketplace is a named target distribution channel.
type Marketplace string

const (
	MarketplaceXSOAR       Marketplace = "xsoar"
	MarketplaceV2          Marketplace = "marketplacev2"
	MarketplaceXPANSE      Marketplace = "xpanse"
	MarketplaceXSOARSaaS   Marketplace = "xsoar_saas"
	MarketplaceXSOAROnPrem Marketplace = "xsoar_on_prem"
)

// AllMarketplaces lists every known marketplace.
var AllMarketplaces = []Marketplace{
	MarketplaceXSOAR, MarketplaceV2, MarketplaceXPANSE, MarketplaceXSOARSaaS, MarketplaceXSOAROnPrem,
}

// DefaultPackMarketplaces applies to packs whose metadata omits marketplaces.
var DefaultPackMarketplaces = []Marketplace{MarketplaceXSOAR, MarketplaceV2}

// IsValid reports whether m is a known marketplace.
func (m Marketplace) IsValid() bool {
	return slices.Contains(AllMarketplaces, m)
}

// ParseMarketplace validates a marketplace name.
func ParseMarketplace(s string) (Marketplace, error) {
	m := Marketplace(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown marketplace %q", s)
	}
	return m, nil
}

// SupportedMarketplaces returns the marketplaces a content type may ship to.
// A nil result means the type is not restricted.
func SupportedMarketplaces(t ContentType) []Marketplace {
	switch t {
	case ParsingRule, ModelingRule, CorrelationRule, XSIAMReport, XSIAMDashboard:
		return []Marketplace{MarketplaceV2}
	default:
		return nil
	}
}

// IntersectMarketplaces returns the members of a that are also in b, in a's order.
func IntersectMarketplaces(a, b []Marketplace) []Marketplace {
	out := make([]Marketplace, 0, len(a))
	for _, m := range a {
		if slices.Contains(b, m) && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// SortMarketplaces sorts in place and removes duplicates.
func SortMarketplaces(ms []Marketplace) []Marketplace {
	slices.Sort(ms)
	return slices.Compact(ms)
}
