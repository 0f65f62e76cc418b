package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	lsp "go.lsp.dev/protocol"
)

func TestRenderHoverContentsUnions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"markup content", `{"kind":"markdown","value":"**const** x"}`, "**const** x"},
		{"plain marked string", `"const x: number"`, "const x: number"},
		{"code marked string", `{"language":"go","value":"func main()"}`, "func main()"},
		{"marked string array", `["part one",{"language":"ts","value":"part two"}]`, "part one\n\npart two"},
		{"empty array", `[]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderHoverContents(json.RawMessage(tt.raw)))
		})
	}
}

func TestFormatLocationsIsOneBased(t *testing.T) {
	locs := []lsp.Location{{
		URI:   "file:///src/main.go",
		Range: lsp.Range{Start: lsp.Position{Line: 9, Character: 4}},
	}}
	text := formatLocations("definition", locs)
	assert.Contains(t, text, "/src/main.go:10:5")

	assert.Equal(t, "No definitions found.", formatLocations("definition", nil))
}

func TestFormatDiagnosticsSeverities(t *testing.T) {
	diags := []lsp.Diagnostic{
		{Severity: lsp.DiagnosticSeverityError, Message: "broken", Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 0}}},
		{Severity: lsp.DiagnosticSeverityWarning, Message: "dubious", Range: lsp.Range{Start: lsp.Position{Line: 2, Character: 3}}},
		{Severity: lsp.DiagnosticSeverityHint, Message: "consider", Range: lsp.Range{Start: lsp.Position{Line: 4, Character: 0}}},
	}
	text := formatDiagnostics(diags)
	assert.Contains(t, text, "error at line 1, character 1: broken")
	assert.Contains(t, text, "warning at line 3, character 4: dubious")
	assert.Contains(t, text, "hint at line 5, character 1: consider")

	assert.Equal(t, "No errors or warnings. The file is clean.", formatDiagnostics(nil))
}

func TestFormatCompletionsTruncates(t *testing.T) {
	items := make([]lsp.CompletionItem, maxCompletionItems+10)
	for i := range items {
		items[i] = lsp.CompletionItem{Label: "item"}
	}
	text := formatCompletions(items)
	assert.Contains(t, text, "... and 10 more")
}

func TestFormatDocumentSymbolsHierarchy(t *testing.T) {
	symbols := []lsp.DocumentSymbol{{
		Name:           "Server",
		Kind:           lsp.SymbolKindClass,
		SelectionRange: lsp.Range{Start: lsp.Position{Line: 4}},
		Children: []lsp.DocumentSymbol{{
			Name:           "Start",
			Kind:           lsp.SymbolKindMethod,
			SelectionRange: lsp.Range{Start: lsp.Position{Line: 9}},
		}},
	}}
	text := formatDocumentSymbols(symbols, nil)
	assert.Contains(t, text, "class Server  (line 5)")
	assert.Contains(t, text, "  method Start  (line 10)")
}

func TestFormatWorkspaceEditNilIsExplained(t *testing.T) {
	text := formatWorkspaceEdit("newName", nil)
	assert.Contains(t, text, "no edits")
}
