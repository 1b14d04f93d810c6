package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/contentgraph/pkg/content"
	"github.com/matzehuels/contentgraph/pkg/graph"
)

// stdout receives command output. Tests replace it.
var stdout io.Writer = os.Stdout

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleCommand     = lipgloss.NewStyle().Foreground(colorBlue)

	styleTableBorder = lipgloss.NewStyle().Foreground(colorDim)
	styleTableHeader = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	styleTableCell   = lipgloss.NewStyle().Padding(0, 1)
)

const (
	iconSuccess = "✓"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) {
	fmt.Fprintln(stdout, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(stdout, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	fmt.Fprintln(stdout, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// printDetail prints an indented detail line.
func printDetail(format string, args ...any) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

func printFile(path string) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(14)
	fmt.Fprintln(stdout, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

func printNextStep(description, cmd string) {
	fmt.Fprintln(stdout, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

// =============================================================================
// Tables
// =============================================================================

// printTable renders rows in a rounded-border table under title.
func printTable(title string, headers []string, rows [][]string) {
	fmt.Fprintln(stdout, StyleTitle.Render(title))
	if len(rows) == 0 {
		printDetail("none")
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleTableBorder).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return styleTableCell
		})
	fmt.Fprintln(stdout, t.Render())
}

// recordRows formats relationship records as File Path, Min Depth and
// Mandatory columns. The last column is omitted for relationship types
// without the flag.
func recordRows(records []graph.Record) (headers []string, rows [][]string) {
	withFlag := false
	for _, r := range records {
		if r.Mandatorily != nil {
			withFlag = true
			break
		}
	}
	headers = []string{"File Path", "Min Depth"}
	if withFlag {
		headers = append(headers, "Mandatory")
	}
	for _, r := range records {
		row := []string{r.FilePath, strconv.Itoa(r.MinDepth)}
		if withFlag {
			row = append(row, yesNo(r.Mandatorily != nil && *r.Mandatorily))
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func dependencyRows(packDeps []content.PackDependency) [][]string {
	rows := make([][]string, 0, len(packDeps))
	for _, d := range packDeps {
		rows = append(rows, []string{d.Source, d.Target, strconv.Itoa(d.MinDepth), yesNo(d.Mandatory)})
	}
	return rows
}

func danglingRows(refs []graph.DanglingReference) [][]string {
	rows := make([][]string, 0, len(refs))
	for _, d := range refs {
		source := d.SourcePath
		if source == "" {
			source = d.SourceID
		}
		rows = append(rows, []string{source, string(d.Type), d.Target.String(), yesNo(d.Mandatory)})
	}
	return rows
}

// countsByType formats a per-type count map sorted by type.
func countsByType(m map[content.ContentType]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[content.ContentType(k)]))
	}
	return strings.Join(parts, " ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
