package server

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	lsp "go.lsp.dev/protocol"

	"lsmcp/src/utils"
)

// Formatting of LSP results into tool output text. This is the presentation
// boundary: positions render 1-based here, URIs render as file paths, and
// nothing below this layer ever converts coordinates.

const maxCompletionItems = 50

// place renders a URI plus 0-based position as path:line:character, 1-based.
func place(uri string, pos lsp.Position) string {
	return fmt.Sprintf("%s:%d:%d", utils.URIToFilePath(uri), pos.Line+1, pos.Character+1)
}

func formatHover(hover *HoverResult) string {
	if hover == nil {
		return "No hover information available at this position."
	}
	text := renderHoverContents(hover.Contents)
	if text == "" {
		return "No hover information available at this position."
	}
	return text
}

// renderHoverContents flattens the MarkupContent | MarkedString |
// MarkedString[] union into plain text.
func renderHoverContents(raw json.RawMessage) string {
	var markup struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &markup); err == nil && markup.Value != "" {
		return markup.Value
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err == nil {
		var rendered []string
		for _, part := range parts {
			if text := renderHoverContents(part); text != "" {
				rendered = append(rendered, text)
			}
		}
		return strings.Join(rendered, "\n\n")
	}

	// MarkedString object form {language, value}.
	var code struct {
		Language string `json:"language"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(raw, &code); err == nil && code.Value != "" {
		return code.Value
	}
	return ""
}

func formatLocations(kind string, locs []lsp.Location) string {
	if len(locs) == 0 {
		return fmt.Sprintf("No %ss found.", kind)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s(s):\n", len(locs), kind)
	for _, loc := range locs {
		fmt.Fprintf(&b, "  %s\n", place(string(loc.URI), loc.Range.Start))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCompletions(items []lsp.CompletionItem) string {
	if len(items) == 0 {
		return "No completions available at this position."
	}

	shown := items
	truncated := false
	if len(shown) > maxCompletionItems {
		shown = shown[:maxCompletionItems]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d completion(s):\n", len(items))
	for _, item := range shown {
		if item.Detail != "" {
			fmt.Fprintf(&b, "  %s  (%s)\n", item.Label, item.Detail)
		} else {
			fmt.Fprintf(&b, "  %s\n", item.Label)
		}
	}
	if truncated {
		fmt.Fprintf(&b, "  ... and %d more\n", len(items)-maxCompletionItems)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSignatureHelp(help *lsp.SignatureHelp) string {
	if help == nil || len(help.Signatures) == 0 {
		return "No signature help available at this position."
	}

	var b strings.Builder
	for i, sig := range help.Signatures {
		marker := "  "
		if uint32(i) == help.ActiveSignature {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%s\n", marker, sig.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCodeActions(actions []CodeActionOrCommand) string {
	if len(actions) == 0 {
		return "No code actions available here."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d code action(s):\n", len(actions))
	for _, action := range actions {
		if action.Kind != "" {
			fmt.Fprintf(&b, "  [%s] %s\n", action.Kind, action.Title)
		} else {
			fmt.Fprintf(&b, "  %s\n", action.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatWorkspaceEdit(newName string, edit *lsp.WorkspaceEdit) string {
	if edit == nil || len(edit.Changes) == 0 {
		return fmt.Sprintf("Rename to %q produced no edits. The symbol may not be renameable.", newName)
	}

	uris := make([]string, 0, len(edit.Changes))
	total := 0
	for uri, edits := range edit.Changes {
		uris = append(uris, string(uri))
		total += len(edits)
	}
	sort.Strings(uris)

	var b strings.Builder
	fmt.Fprintf(&b, "Rename to %q touches %d file(s), %d edit(s):\n", newName, len(uris), total)
	for _, uri := range uris {
		edits := edit.Changes[lsp.DocumentURI(uri)]
		fmt.Fprintf(&b, "  %s (%d edits)\n", utils.URIToFilePath(uri), len(edits))
		for _, e := range edits {
			fmt.Fprintf(&b, "    line %d: %q\n", e.Range.Start.Line+1, e.NewText)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTextEdits(edits []lsp.TextEdit) string {
	if len(edits) == 0 {
		return "Document is already formatted."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Formatting produced %d edit(s):\n", len(edits))
	for _, e := range edits {
		fmt.Fprintf(&b, "  lines %d-%d: %q\n", e.Range.Start.Line+1, e.Range.End.Line+1, e.NewText)
	}
	return strings.TrimRight(b.String(), "\n")
}

func severityName(severity lsp.DiagnosticSeverity) string {
	switch severity {
	case lsp.DiagnosticSeverityError:
		return "error"
	case lsp.DiagnosticSeverityWarning:
		return "warning"
	case lsp.DiagnosticSeverityInformation:
		return "info"
	case lsp.DiagnosticSeverityHint:
		return "hint"
	}
	return "diagnostic"
}

func formatDiagnostics(diags []lsp.Diagnostic) string {
	if len(diags) == 0 {
		return "No errors or warnings. The file is clean."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d finding(s):\n", len(diags))
	for _, d := range diags {
		fmt.Fprintf(&b, "  %s at line %d, character %d: %s\n",
			severityName(d.Severity), d.Range.Start.Line+1, d.Range.Start.Character+1, d.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

var symbolKindNames = map[lsp.SymbolKind]string{
	lsp.SymbolKindFile:          "file",
	lsp.SymbolKindModule:        "module",
	lsp.SymbolKindNamespace:     "namespace",
	lsp.SymbolKindPackage:       "package",
	lsp.SymbolKindClass:         "class",
	lsp.SymbolKindMethod:        "method",
	lsp.SymbolKindProperty:      "property",
	lsp.SymbolKindField:         "field",
	lsp.SymbolKindConstructor:   "constructor",
	lsp.SymbolKindEnum:          "enum",
	lsp.SymbolKindInterface:     "interface",
	lsp.SymbolKindFunction:      "function",
	lsp.SymbolKindVariable:      "variable",
	lsp.SymbolKindConstant:      "constant",
	lsp.SymbolKindString:        "string",
	lsp.SymbolKindNumber:        "number",
	lsp.SymbolKindBoolean:       "boolean",
	lsp.SymbolKindArray:         "array",
	lsp.SymbolKindObject:        "object",
	lsp.SymbolKindKey:           "key",
	lsp.SymbolKindNull:          "null",
	lsp.SymbolKindEnumMember:    "enum member",
	lsp.SymbolKindStruct:        "struct",
	lsp.SymbolKindEvent:         "event",
	lsp.SymbolKindOperator:      "operator",
	lsp.SymbolKindTypeParameter: "type parameter",
}

func symbolKindName(kind lsp.SymbolKind) string {
	if name, ok := symbolKindNames[kind]; ok {
		return name
	}
	return "symbol"
}

func formatDocumentSymbols(hierarchical []lsp.DocumentSymbol, flat []lsp.SymbolInformation) string {
	if len(hierarchical) == 0 && len(flat) == 0 {
		return "No symbols found in this document."
	}

	var b strings.Builder
	if len(hierarchical) > 0 {
		writeDocumentSymbols(&b, hierarchical, 0)
	} else {
		for _, sym := range flat {
			fmt.Fprintf(&b, "%s %s  %s\n", symbolKindName(sym.Kind), sym.Name,
				place(string(sym.Location.URI), sym.Location.Range.Start))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeDocumentSymbols(b *strings.Builder, symbols []lsp.DocumentSymbol, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, sym := range symbols {
		fmt.Fprintf(b, "%s%s %s  (line %d)\n", indent, symbolKindName(sym.Kind), sym.Name, sym.SelectionRange.Start.Line+1)
		if len(sym.Children) > 0 {
			writeDocumentSymbols(b, sym.Children, depth+1)
		}
	}
}

func formatSymbolInformation(query string, symbols []lsp.SymbolInformation) string {
	if len(symbols) == 0 {
		return fmt.Sprintf("No workspace symbols match %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d symbol(s) matching %q:\n", len(symbols), query)
	for _, sym := range symbols {
		name := sym.Name
		if sym.ContainerName != "" {
			name = sym.ContainerName + "." + sym.Name
		}
		fmt.Fprintf(&b, "  %s %s  %s\n", symbolKindName(sym.Kind), name,
			place(string(sym.Location.URI), sym.Location.Range.Start))
	}
	return strings.TrimRight(b.String(), "\n")
}
