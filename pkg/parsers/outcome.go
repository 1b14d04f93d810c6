package parsers

import (
	"fmt"

	"github.com/matzehuels/contentgraph/pkg/content"
)

// SkipReason explains why a path did not produce a content item.
type SkipReason string

const (
	// SkipNotContentItem covers files with the wrong suffix or shape, and
	// directories without a primary definition file.
	SkipNotContentItem SkipReason = "not a content item"
	// SkipUnreadable means the YAML or JSON could not be decoded.
	SkipUnreadable SkipReason = "unreadable"
	// SkipMissingField means a mandatory identity field is absent.
	SkipMissingField SkipReason = "missing mandatory field"
	// SkipInvalidVersion means fromversion or toversion does not parse.
	SkipInvalidVersion SkipReason = "invalid version"
	// SkipUnsupportedVersion means toversion is below the supported minimum.
	SkipUnsupportedVersion SkipReason = "unsupported version"
)

// Skip describes an excluded path. It is a normal outcome, not an error.
type Skip struct {
	Path   string
	Reason SkipReason
	Detail string
}

// String formats the skip for logs.
func (s Skip) String() string {
	if s.Detail == "" {
		return fmt.Sprintf("%s: %s", s.Path, s.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", s.Path, s.Reason, s.Detail)
}

// Item is a parsed content item: its node, the edges it declares, and any
// sub-entity nodes it defines (integration commands).
type Item struct {
	Node          content.Node
	Relationships []content.Relationship
	Extra         []content.Node
}

// Outcome is the result of parsing one path: exactly one of Item and Skip is set.
type Outcome struct {
	Item *Item
	Skip *Skip
}

// Skipped reports whether the path was excluded.
func (o Outcome) Skipped() bool { return o.Skip != nil }

func skip(path string, reason SkipReason, format string, args ...any) Outcome {
	return Outcome{Skip: &Skip{Path: path, Reason: reason, Detail: fmt.Sprintf(format, args...)}}
}
