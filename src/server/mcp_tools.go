package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	lsp "go.lsp.dev/protocol"

	"lsmcp/src/internal/registry"
	"lsmcp/src/server/protocol"
	"lsmcp/src/utils"
)

// diagnosticsWait bounds how long get_diagnostics waits for the server's
// first publish after a document is opened.
const diagnosticsWait = 3 * time.Second

// toolDefinitions lists the MCP tools this server offers. All line and
// character arguments are 1-based; conversion to LSP's 0-based coordinates
// happens at this boundary and nowhere else.
func toolDefinitions() []map[string]interface{} {
	positionProps := func(extra map[string]interface{}) map[string]interface{} {
		props := map[string]interface{}{
			"filePath": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file, absolute or relative to the workspace root",
			},
			"line": map[string]interface{}{
				"type":        "number",
				"description": "1-based line number",
			},
			"character": map[string]interface{}{
				"type":        "number",
				"description": "1-based character offset within the line",
			},
		}
		for k, v := range extra {
			props[k] = v
		}
		return props
	}
	positionSchema := func(extra map[string]interface{}, required ...string) map[string]interface{} {
		return map[string]interface{}{
			"type":       "object",
			"properties": positionProps(extra),
			"required":   append([]string{"filePath", "line", "character"}, required...),
		}
	}
	fileSchema := func(extra map[string]interface{}) map[string]interface{} {
		props := map[string]interface{}{
			"filePath": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file, absolute or relative to the workspace root",
			},
		}
		for k, v := range extra {
			props[k] = v
		}
		return map[string]interface{}{
			"type":       "object",
			"properties": props,
			"required":   []string{"filePath"},
		}
	}

	return []map[string]interface{}{
		{
			"name":        "get_hover",
			"description": "Get type and documentation info for the symbol at a position. Returns the language server's hover text.",
			"inputSchema": positionSchema(nil),
		},
		{
			"name":        "get_definitions",
			"description": "Find where the symbol at a position is defined. Returns file paths with 1-based line numbers.",
			"inputSchema": positionSchema(nil),
		},
		{
			"name":        "find_references",
			"description": "Find all references to the symbol at a position across the workspace.",
			"inputSchema": positionSchema(map[string]interface{}{
				"includeDeclaration": map[string]interface{}{
					"type":        "boolean",
					"description": "Include the declaration site itself (default: true)",
				},
			}),
		},
		{
			"name":        "get_completions",
			"description": "Get completion suggestions at a position.",
			"inputSchema": positionSchema(nil),
		},
		{
			"name":        "get_signature_help",
			"description": "Get call signature information at a position inside a function call.",
			"inputSchema": positionSchema(nil),
		},
		{
			"name":        "get_code_actions",
			"description": "List quick fixes and refactorings available at a position or range.",
			"inputSchema": positionSchema(map[string]interface{}{
				"endLine": map[string]interface{}{
					"type":        "number",
					"description": "1-based end line of the range (default: same as line)",
				},
				"endCharacter": map[string]interface{}{
					"type":        "number",
					"description": "1-based end character of the range (default: same as character)",
				},
			}),
		},
		{
			"name":        "rename_symbol",
			"description": "Compute the workspace-wide edits for renaming the symbol at a position. Edits are reported, not applied.",
			"inputSchema": positionSchema(map[string]interface{}{
				"newName": map[string]interface{}{
					"type":        "string",
					"description": "The new symbol name",
				},
			}, "newName"),
		},
		{
			"name":        "format_document",
			"description": "Compute formatting edits for a whole document. Edits are reported, not applied.",
			"inputSchema": fileSchema(map[string]interface{}{
				"tabSize": map[string]interface{}{
					"type":        "number",
					"description": "Spaces per indentation level (default: 4)",
				},
				"insertSpaces": map[string]interface{}{
					"type":        "boolean",
					"description": "Indent with spaces instead of tabs (default: true)",
				},
			}),
		},
		{
			"name":        "get_diagnostics",
			"description": "Get the language server's current errors and warnings for a file.",
			"inputSchema": fileSchema(nil),
		},
		{
			"name":        "get_document_symbols",
			"description": "Get the symbol outline (functions, classes, variables) of a file.",
			"inputSchema": fileSchema(nil),
		},
		{
			"name":        "search_workspace_symbols",
			"description": "Search the whole workspace for symbols matching a query.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Symbol name or prefix to search for",
					},
					"filePath": map[string]interface{}{
						"type":        "string",
						"description": "Any file of the language to search; selects which language server answers. Defaults to the most recently used one.",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// handleToolCall dispatches one tools/call request.
func (m *MCPServer) handleToolCall(req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	params, ok := req.Params.(map[string]interface{})
	if !ok {
		response := m.responseFactory.CreateInvalidParams(req.ID, fmt.Sprintf("expected object, got %T", req.Params))
		return &response
	}

	name, ok := params["name"].(string)
	if !ok {
		response := m.responseFactory.CreateInvalidParams(req.ID, "missing required parameter: name")
		return &response
	}

	args, _ := params["arguments"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	var text string
	var err error
	switch name {
	case "get_hover":
		text, err = m.handleGetHover(args)
	case "get_definitions":
		text, err = m.handleGetDefinitions(args)
	case "find_references":
		text, err = m.handleFindReferences(args)
	case "get_completions":
		text, err = m.handleGetCompletions(args)
	case "get_signature_help":
		text, err = m.handleGetSignatureHelp(args)
	case "get_code_actions":
		text, err = m.handleGetCodeActions(args)
	case "rename_symbol":
		text, err = m.handleRenameSymbol(args)
	case "format_document":
		text, err = m.handleFormatDocument(args)
	case "get_diagnostics":
		text, err = m.handleGetDiagnostics(args)
	case "get_document_symbols":
		text, err = m.handleGetDocumentSymbols(args)
	case "search_workspace_symbols":
		text, err = m.handleSearchWorkspaceSymbols(args)
	default:
		response := m.responseFactory.CreateMethodNotFound(req.ID, fmt.Sprintf("tool not found: %s", name))
		return &response
	}

	if err != nil {
		response := m.responseFactory.CreateInternalError(req.ID, err)
		return &response
	}

	result := map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	}
	response := m.responseFactory.CreateSuccess(req.ID, result)
	return &response
}

// Argument helpers. MCP arguments arrive as generic JSON, so numbers are
// float64 and everything needs a type check.

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	return v, nil
}

func intArg(args map[string]interface{}, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// positionArg reads the 1-based line/character pair and converts to LSP's
// 0-based coordinates.
func positionArg(args map[string]interface{}) (lsp.Position, error) {
	line := intArg(args, "line", 0)
	character := intArg(args, "character", 0)
	if line < 1 || character < 1 {
		return lsp.Position{}, fmt.Errorf("line and character are 1-based and required")
	}
	return lsp.Position{Line: uint32(line - 1), Character: uint32(character - 1)}, nil
}

// resolvePath makes filePath absolute relative to the workspace root.
func (m *MCPServer) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) {
		return filepath.Clean(filePath)
	}
	return filepath.Join(m.workspaceRoot, filePath)
}

// sessionForFile resolves the session responsible for filePath, starting it
// on first use, and makes sure the document is open with its on-disk text.
func (m *MCPServer) sessionForFile(filePath string) (*Session, string, error) {
	absPath := m.resolvePath(filePath)

	language := registry.DetectLanguage(absPath)
	if language == "" {
		return nil, "", fmt.Errorf("cannot determine language for %s", filePath)
	}

	clientCfg, err := m.config.ClientConfigFor(language)
	if err != nil {
		return nil, "", err
	}

	session, err := m.registry.Initialize(m.ctx, m.workspaceRoot, language, clientCfg)
	if err != nil {
		return nil, "", err
	}

	uri := utils.FilePathToURI(absPath)
	if !session.IsDocumentOpen(uri) {
		content, err := os.ReadFile(absPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", filePath, err)
		}
		if err := session.OpenDocument(uri, string(content), language); err != nil {
			return nil, "", err
		}
	}
	return session, uri, nil
}

// Tool handlers. Each resolves the session, runs the LSP request, and
// renders the result for an LLM reader.

func (m *MCPServer) handleGetHover(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}
	pos, err := positionArg(args)
	if err != nil {
		return "", err
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	hover, err := session.Hover(m.ctx, uri, pos)
	if err != nil {
		return "", err
	}
	return formatHover(hover), nil
}

func (m *MCPServer) handleGetDefinitions(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}
	pos, err := positionArg(args)
	if err != nil {
		return "", err
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	locs, err := session.Definition(m.ctx, uri, pos)
	if err != nil {
		return "", err
	}
	return formatLocations("definition", locs), nil
}

func (m *MCPServer) handleFindReferences(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}
	pos, err := positionArg(args)
	if err != nil {
		return "", err
	}
	includeDeclaration := boolArg(args, "includeDeclaration", true)

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	locs, err := session.References(m.ctx, uri, pos, includeDeclaration)
	if err != nil {
		return "", err
	}
	return formatLocations("reference", locs), nil
}

func (m *MCPServer) handleGetCompletions(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}
	pos, err := positionArg(args)
	if err != nil {
		return "", err
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	items, err := session.Completion(m.ctx, uri, pos)
	if err != nil {
		return "", err
	}
	return formatCompletions(items), nil
}

func (m *MCPServer) handleGetSignatureHelp(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}
	pos, err := positionArg(args)
	if err != nil {
		return "", err
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	help, err := session.SignatureHelp(m.ctx, uri, pos)
	if err != nil {
		return "", err
	}
	return formatSignatureHelp(help), nil
}

func (m *MCPServer) handleGetCodeActions(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}
	pos, err := positionArg(args)
	if err != nil {
		return "", err
	}

	end := pos
	if endLine := intArg(args, "endLine", 0); endLine >= 1 {
		end.Line = uint32(endLine - 1)
	}
	if endCharacter := intArg(args, "endCharacter", 0); endCharacter >= 1 {
		end.Character = uint32(endCharacter - 1)
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	// Hand the server the known findings for the range so it can target
	// its quick fixes.
	var rangeDiags []lsp.Diagnostic
	if diags, published, err := session.Diagnostics(uri); err == nil && published {
		rangeDiags = diags
	}

	actions, err := session.CodeActions(m.ctx, uri, lsp.Range{Start: pos, End: end}, rangeDiags)
	if err != nil {
		return "", err
	}
	return formatCodeActions(actions), nil
}

func (m *MCPServer) handleRenameSymbol(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}
	pos, err := positionArg(args)
	if err != nil {
		return "", err
	}
	newName, err := stringArg(args, "newName")
	if err != nil {
		return "", err
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	edit, err := session.Rename(m.ctx, uri, pos, newName)
	if err != nil {
		return "", err
	}
	return formatWorkspaceEdit(newName, edit), nil
}

func (m *MCPServer) handleFormatDocument(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	options := lsp.FormattingOptions{
		TabSize:      uint32(intArg(args, "tabSize", 4)),
		InsertSpaces: boolArg(args, "insertSpaces", true),
	}
	edits, err := session.FormatDocument(m.ctx, uri, options)
	if err != nil {
		return "", err
	}
	return formatTextEdits(edits), nil
}

func (m *MCPServer) handleGetDiagnostics(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	// Diagnostics are pushed, not pulled: give a freshly opened document a
	// moment to be analyzed before reporting.
	deadline := time.Now().Add(diagnosticsWait)
	for {
		diags, published, err := session.Diagnostics(uri)
		if err != nil {
			return "", err
		}
		if published {
			return formatDiagnostics(diags), nil
		}
		if time.Now().After(deadline) {
			return "No diagnostics reported yet. The language server has not finished analyzing this file.", nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (m *MCPServer) handleGetDocumentSymbols(args map[string]interface{}) (string, error) {
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return "", err
	}

	session, uri, err := m.sessionForFile(filePath)
	if err != nil {
		return "", err
	}

	hierarchical, flat, err := session.DocumentSymbols(m.ctx, uri)
	if err != nil {
		return "", err
	}
	return formatDocumentSymbols(hierarchical, flat), nil
}

func (m *MCPServer) handleSearchWorkspaceSymbols(args map[string]interface{}) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}

	var session *Session
	if filePath, ok := args["filePath"].(string); ok && filePath != "" {
		session, _, err = m.sessionForFile(filePath)
	} else {
		session, err = m.registry.Active()
		if err != nil {
			return "", fmt.Errorf("no language server is running yet; pass filePath to pick one")
		}
	}
	if err != nil {
		return "", err
	}

	symbols, err := session.WorkspaceSymbols(m.ctx, query)
	if err != nil {
		return "", err
	}
	return formatSymbolInformation(query, symbols), nil
}
