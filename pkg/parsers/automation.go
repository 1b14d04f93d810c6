package parsers

import (
	"regexp"
	"slices"

	"github.com/matzehuels/contentgraph/pkg/content"
)

var (
	apiModuleImport = regexp.MustCompile(`(?m)^\s*from\s+(\w+ApiModule)\s+import\s+\*`)
	executeCommand  = regexp.MustCompile(`(?:execute_command|executeCommand|demisto\.executeCommand)\(\s*["']([\w-]+)["']`)
)

// =============================================================================
// Integrations
// =============================================================================

var integrationParser = Parser{
	Type:   content.Integration,
	Format: FormatYAML,
	Match: func(doc *Document) bool {
		_, isMap := doc.Data["script"].(map[string]any)
		return doc.Folder == "Integrations" && isMap
	},
	Header: func(doc *Document) Header {
		h := defaultHeader(doc)
		h.Name = str(doc.Data, "display", "name")
		return h
	},
	Connect: func(doc *Document, e *Emitter) {
		script, _ := doc.Data["script"].(map[string]any)
		e.Set("category", str(doc.Data, "category"))
		e.Set("type", str(script, "type"))
		e.Set("docker_image", str(script, "dockerimage"))
		e.Set("is_fetch", boolean(script["isfetch"]) || boolean(script["isfetchevents"]))
		e.Set("is_feed", boolean(script["feed"]))

		for _, cmd := range mappings(script["commands"]) {
			e.HasCommand(str(cmd, "name"), str(cmd, "description"), boolean(cmd["deprecated"]))
		}
		e.TestedBy(strList(doc.Data["tests"])...)
		connectImports(doc, e)
	},
}

// =============================================================================
// Scripts
// =============================================================================

func isScript(doc *Document) bool {
	_, hasCommon := doc.Data["commonfields"]
	_, hasScript := doc.Data["script"]
	return hasCommon && hasScript
}

func connectScript(doc *Document, e *Emitter) {
	e.Set("type", str(doc.Data, "type"))
	e.Set("subtype", str(doc.Data, "subtype"))
	e.Set("docker_image", str(doc.Data, "dockerimage"))
	if tags := strList(doc.Data["tags"]); len(tags) > 0 {
		e.Set("tags", tags)
	}

	for _, ref := range strList(lookup(doc.Data, "dependson", "must")) {
		e.UsesCommandOrScript(ref, true)
	}
	for _, ref := range strList(lookup(doc.Data, "dependson", "should")) {
		e.UsesCommandOrScript(ref, false)
	}

	code := doc.Code()
	var called []string
	for _, m := range executeCommand.FindAllStringSubmatch(code, -1) {
		if !slices.Contains(called, m[1]) {
			called = append(called, m[1])
		}
	}
	for _, ref := range called {
		e.UsesCommandOrScript(ref, false)
	}

	e.TestedBy(strList(doc.Data["tests"])...)
	connectImports(doc, e)
}

func connectImports(doc *Document, e *Emitter) {
	code := doc.Code()
	seen := map[string]bool{}
	for _, m := range apiModuleImport.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			e.Imports(m[1])
		}
	}
}

var scriptParser = Parser{
	Type:   content.Script,
	Format: FormatYAML,
	Match: func(doc *Document) bool {
		return doc.Folder == "Scripts" && isScript(doc)
	},
	Connect: connectScript,
}

// testScriptParser handles scripts that live with test playbooks.
var testScriptParser = Parser{
	Type:   content.Script,
	Format: FormatYAML,
	Match: func(doc *Document) bool {
		return doc.Folder == "TestPlaybooks" && isScript(doc)
	},
	Connect: func(doc *Document, e *Emitter) {
		e.MarkTest()
		connectScript(doc, e)
	},
}

// =============================================================================
// Playbooks
// =============================================================================

// connectPlaybook walks the task graph. A task flagged skipunavailable degrades
// its references to optional.
func connectPlaybook(doc *Document, e *Emitter) {
	tasks, _ := doc.Data["tasks"].(map[string]any)
	for _, key := range sortedKeys(tasks) {
		wrapper, ok := tasks[key].(map[string]any)
		if !ok {
			continue
		}
		task, _ := wrapper["task"].(map[string]any)
		if task == nil {
			continue
		}
		mandatory := !boolean(wrapper["skipunavailable"])

		if name := str(task, "scriptName"); name != "" {
			e.UsesCommandOrScript(name, mandatory)
		} else if script := str(task, "script"); script != "" {
			e.UsesCommandOrScript(script, mandatory)
		}
		if pb := str(task, "playbookName", "playbookId"); pb != "" {
			e.Uses(content.Playbook, mandatory, pb)
		}
	}
	e.TestedBy(strList(doc.Data["tests"])...)
}

var playbookParser = Parser{
	Type:   content.Playbook,
	Format: FormatYAML,
	Match: func(doc *Document) bool {
		return doc.Folder == "Playbooks" && doc.Has("tasks")
	},
	Connect: connectPlaybook,
}

var testPlaybookParser = Parser{
	Type:   content.TestPlaybook,
	Format: FormatYAML,
	Match: func(doc *Document) bool {
		return doc.Folder == "TestPlaybooks" && doc.Has("tasks")
	},
	Connect: func(doc *Document, e *Emitter) {
		e.MarkTest()
		connectPlaybook(doc, e)
	},
}
