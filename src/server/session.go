// Package server hosts the LSP session layer and the MCP surface above it.
// A Session owns one language server subprocess end to end: process, wire,
// correlator, document state, and the typed request facade.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	lsp "go.lsp.dev/protocol"

	"lsmcp/src/internal/common"
	"lsmcp/src/internal/errors"
	"lsmcp/src/internal/types"
	"lsmcp/src/internal/version"
	"lsmcp/src/server/documents"
	"lsmcp/src/server/process"
	"lsmcp/src/server/protocol"
	"lsmcp/src/utils"
)

// SessionState tracks where a session is in its lifecycle. Transitions only
// move forward; a Terminated session is never revived.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateTerminated:
		return "Terminated"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

const (
	defaultRequestTimeout    = 5 * time.Second
	defaultInitializeTimeout = 30 * time.Second
)

// HoverResult is the hover response with the contents union left raw.
// Servers answer with MarkupContent, a MarkedString, or a MarkedString
// array depending on age; the formatter decodes what it finds.
type HoverResult struct {
	Contents json.RawMessage `json:"contents"`
	Range    *lsp.Range      `json:"range,omitempty"`
}

// CodeActionOrCommand is the loose union the codeAction response carries.
// Command is raw: a string for a bare Command literal, an object for a
// CodeAction's embedded command.
type CodeActionOrCommand struct {
	Title       string             `json:"title"`
	Kind        lsp.CodeActionKind `json:"kind,omitempty"`
	Diagnostics []lsp.Diagnostic   `json:"diagnostics,omitempty"`
	IsPreferred bool               `json:"isPreferred,omitempty"`
	Edit        *lsp.WorkspaceEdit `json:"edit,omitempty"`
	Command     json.RawMessage    `json:"command,omitempty"`
	Arguments   json.RawMessage    `json:"arguments,omitempty"`
}

// Session drives one language server: lifecycle handshake, document sync,
// and the typed request methods. All wire writes funnel through the
// correlator, all wire reads through the framer's read loop goroutine.
type Session struct {
	language string
	rootPath string
	config   types.ClientConfig

	framer     *protocol.LSPFramer
	correlator *protocol.Correlator
	store      *documents.Store

	processManager process.Manager
	processInfo    *process.Info

	mu           sync.RWMutex
	state        SessionState
	capabilities json.RawMessage
}

// NewSession creates a session for one (project root, language) pair. Start
// must be called before any other method.
func NewSession(language, rootPath string, config types.ClientConfig) *Session {
	return &Session{
		language:       language,
		rootPath:       rootPath,
		config:         config,
		store:          documents.NewStore(),
		processManager: process.NewLSPProcessManager(),
	}
}

func (s *Session) Language() string { return s.language }
func (s *Session) RootPath() string { return s.rootPath }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Capabilities returns the raw ServerCapabilities from the initialize
// response, nil before the handshake completes.
func (s *Session) Capabilities() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// requireReady gates every operation that touches the wire outside the
// lifecycle handshake. Out-of-state calls are rejected without writing.
func (s *Session) requireReady(operation string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return errors.NewStateError(operation, s.state.String())
	}
	return nil
}

func (s *Session) requestTimeout() time.Duration {
	if s.config.RequestTimeout > 0 {
		return s.config.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Session) initializeTimeout() time.Duration {
	if s.config.InitializeTimeout > 0 {
		return s.config.InitializeTimeout
	}
	return defaultInitializeTimeout
}

// Start spawns the server, wires up the read loop and monitor, and runs the
// initialize handshake. On return the session is Ready or Terminated.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return errors.NewStateError("start", state.String())
	}
	s.state = StateInitializing
	s.mu.Unlock()

	info, err := s.processManager.StartProcess(s.config, s.language)
	if err != nil {
		s.setState(StateTerminated)
		return errors.WrapWithContext("start session", err)
	}
	s.processInfo = info

	s.framer = protocol.NewLSPFramer(s.language)
	s.correlator = protocol.NewCorrelator(s.language, s.framer, info.Stdin)
	s.registerServerHandlers()

	go s.readLoop(info)
	go s.logStderr(info)
	go s.processManager.MonitorProcess(info, s.onProcessExit)

	if err := s.initialize(ctx); err != nil {
		common.LSPLogger.Error("Initialize failed for %s: %v", s.language, err)
		s.correlator.FailAll(errors.NewProcessExitError(s.language, err))
		_ = s.processManager.StopProcess(info, nil)
		s.setState(StateTerminated)
		return err
	}

	s.setState(StateReady)
	common.LSPLogger.Info("Session ready: language=%s, root=%s", s.language, s.rootPath)
	return nil
}

// registerServerHandlers installs the handlers for server-initiated traffic.
func (s *Session) registerServerHandlers() {
	s.correlator.OnNotification(types.MethodPublishDiagnostics, func(params json.RawMessage) {
		var p lsp.PublishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err != nil {
			common.LSPLogger.Warn("Dropping malformed publishDiagnostics from %s: %v", s.language, err)
			return
		}
		s.store.SetDiagnostics(string(p.URI), p.Diagnostics)
	})

	// Servers that pull configuration get one empty section per item asked
	// for; gopls and pylsp both accept this and fall back to defaults.
	s.correlator.OnRequest(types.MethodWorkspaceConfiguration, func(params json.RawMessage) (interface{}, error) {
		var p struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(params, &p); err != nil || len(p.Items) == 0 {
			return []interface{}{map[string]interface{}{}}, nil
		}
		sections := make([]interface{}, len(p.Items))
		for i := range sections {
			sections[i] = map[string]interface{}{}
		}
		return sections, nil
	})
}

// readLoop pumps server stdout into the correlator until the stream ends.
// A framing error is fatal for the session: the byte stream can no longer
// be trusted, so every pending and future call is rejected.
func (s *Session) readLoop(info *process.Info) {
	err := s.framer.ReadLoop(info.Stdout, s.correlator, info.StopCh)
	if err == nil {
		return
	}
	common.LSPLogger.Error("Transport failure on %s server: %v", s.language, err)
	s.correlator.FailAll(errors.NewTransportError(s.language, err))
	s.setState(StateTerminated)
}

// logStderr forwards server stderr to our own log so crashes leave a trail.
func (s *Session) logStderr(info *process.Info) {
	scanner := bufio.NewScanner(info.Stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "panic") || strings.Contains(lower, "fatal") {
			common.LSPLogger.Error("[%s stderr] %s", s.language, line)
		} else {
			common.LSPLogger.Debug("[%s stderr] %s", s.language, line)
		}
	}
}

// onProcessExit runs when the monitor reaps the subprocess. Deliberate stops
// are handled by the shutdown path; anything else fails the session.
func (s *Session) onProcessExit(err error) {
	if s.processInfo != nil && s.processInfo.IntentionalStop {
		return
	}
	s.correlator.FailAll(errors.NewProcessExitError(s.language, err))
	s.setState(StateTerminated)
}

// initialize runs the initialize request and the initialized notification.
func (s *Session) initialize(ctx context.Context) error {
	rootURI := utils.FilePathToURI(s.rootPath)

	initParams := map[string]interface{}{
		"processId": os.Getpid(),
		"clientInfo": map[string]interface{}{
			"name":    "lsmcp",
			"version": version.Version,
		},
		"rootUri":  rootURI,
		"rootPath": s.rootPath,
		"workspaceFolders": []map[string]interface{}{
			{"uri": rootURI, "name": s.rootPath},
		},
		"capabilities": clientCapabilities(),
	}
	if s.config.InitializationOptions != nil {
		initParams["initializationOptions"] = s.config.InitializationOptions
	}

	raw, err := s.correlator.Call(ctx, types.MethodInitialize, initParams, s.initializeTimeout())
	if err != nil {
		return errors.WrapWithContext("initialize", err)
	}

	var result struct {
		Capabilities json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return errors.WrapWithContext("initialize", fmt.Errorf("malformed initialize result: %w", err))
	}
	s.mu.Lock()
	s.capabilities = result.Capabilities
	s.mu.Unlock()

	if err := s.correlator.Notify(types.MethodInitialized, map[string]interface{}{}); err != nil {
		return errors.WrapWithContext("initialized", err)
	}
	return nil
}

// clientCapabilities announces what this client consumes. linkSupport stays
// off so definition responses arrive as plain Locations.
func clientCapabilities() map[string]interface{} {
	return map[string]interface{}{
		"textDocument": map[string]interface{}{
			"synchronization": map[string]interface{}{
				"didSave":             false,
				"dynamicRegistration": false,
			},
			"hover": map[string]interface{}{
				"contentFormat": []string{"markdown", "plaintext"},
			},
			"completion": map[string]interface{}{
				"completionItem": map[string]interface{}{
					"snippetSupport":          false,
					"documentationFormat":     []string{"markdown", "plaintext"},
					"resolveSupport":          map[string]interface{}{"properties": []string{"documentation", "detail"}},
					"deprecatedSupport":       true,
					"insertReplaceSupport":    false,
					"preselectSupport":        true,
					"commitCharactersSupport": false,
				},
				"contextSupport": true,
			},
			"definition": map[string]interface{}{
				"linkSupport": false,
			},
			"references": map[string]interface{}{},
			"signatureHelp": map[string]interface{}{
				"signatureInformation": map[string]interface{}{
					"documentationFormat": []string{"markdown", "plaintext"},
					"parameterInformation": map[string]interface{}{
						"labelOffsetSupport": true,
					},
				},
			},
			"documentSymbol": map[string]interface{}{
				"hierarchicalDocumentSymbolSupport": true,
			},
			"codeAction": map[string]interface{}{
				"codeActionLiteralSupport": map[string]interface{}{
					"codeActionKind": map[string]interface{}{
						"valueSet": []string{"quickfix", "refactor", "source"},
					},
				},
			},
			"formatting": map[string]interface{}{},
			"rename": map[string]interface{}{
				"prepareSupport": false,
			},
			"publishDiagnostics": map[string]interface{}{
				"relatedInformation": true,
				"versionSupport":     false,
			},
		},
		"workspace": map[string]interface{}{
			"symbol":        map[string]interface{}{},
			"configuration": true,
			"workspaceEdit": map[string]interface{}{
				"documentChanges": false,
			},
			"workspaceFolders": true,
		},
	}
}

// call issues one Ready-state request with the session's request timeout.
func (s *Session) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if err := s.requireReady(method); err != nil {
		return nil, err
	}
	return s.correlator.Call(ctx, method, params, s.requestTimeout())
}

// isNullResult reports a JSON null (or absent) result payload.
func isNullResult(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// Document synchronization

// OpenDocument announces uri to the server with version 1. Opening an
// already-open document is a no-op; the server sees exactly one didOpen per
// document lifecycle.
func (s *Session) OpenDocument(uri, text, languageID string) error {
	if err := s.requireReady(types.MethodTextDocumentDidOpen); err != nil {
		return err
	}

	_, opened := s.store.Open(uri, languageID, text)
	if !opened {
		return nil
	}

	params := lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        lsp.DocumentURI(uri),
			LanguageID: lsp.LanguageIdentifier(languageID),
			Version:    1,
			Text:       text,
		},
	}
	if err := s.correlator.Notify(types.MethodTextDocumentDidOpen, params); err != nil {
		// Keep tracking consistent with what the server actually saw.
		s.store.Close(uri)
		return errors.WrapWithContext("didOpen", err)
	}
	return nil
}

// UpdateDocument replaces the full text of an open document. version 0 means
// "advance by one"; explicit versions must move forward.
func (s *Session) UpdateDocument(uri, newText string, version int32) error {
	if err := s.requireReady(types.MethodTextDocumentDidChange); err != nil {
		return err
	}

	doc, err := s.store.Update(uri, newText, version)
	if err != nil {
		return err
	}

	params := lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(uri)},
			Version:                doc.Version,
		},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{
			{Text: newText},
		},
	}
	if err := s.correlator.Notify(types.MethodTextDocumentDidChange, params); err != nil {
		return errors.WrapWithContext("didChange", err)
	}
	return nil
}

// CloseDocument tells the server the document is closed and drops its
// tracked state. Closing an unopened URI is a silent no-op.
func (s *Session) CloseDocument(uri string) error {
	if err := s.requireReady(types.MethodTextDocumentDidClose); err != nil {
		return err
	}

	if !s.store.Close(uri) {
		return nil
	}

	params := lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(uri)},
	}
	if err := s.correlator.Notify(types.MethodTextDocumentDidClose, params); err != nil {
		return errors.WrapWithContext("didClose", err)
	}
	return nil
}

// IsDocumentOpen reports whether uri is currently announced to the server.
func (s *Session) IsDocumentOpen(uri string) bool {
	return s.store.IsOpen(uri)
}

// OpenDocuments lists the URIs currently announced to the server.
func (s *Session) OpenDocuments() []string {
	return s.store.OpenURIs()
}

// Diagnostics returns the last diagnostics push for uri. published=false
// means the server has not reported on the file yet, which is distinct from
// a clean (empty) publish.
func (s *Session) Diagnostics(uri string) ([]lsp.Diagnostic, bool, error) {
	if err := s.requireReady("diagnostics lookup"); err != nil {
		return nil, false, err
	}
	if !s.store.IsOpen(uri) {
		return nil, false, errors.NewDocumentError(uri, "diagnostics lookup on a document that is not open")
	}
	diags, published := s.store.Diagnostics(uri)
	return diags, published, nil
}

// Language feature requests

func positionParams(uri string, pos lsp.Position) lsp.TextDocumentPositionParams {
	return lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(uri)},
		Position:     pos,
	}
}

// Hover returns hover info at pos, nil when the server has nothing to say.
func (s *Session) Hover(ctx context.Context, uri string, pos lsp.Position) (*HoverResult, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentHover, lsp.HoverParams{
		TextDocumentPositionParams: positionParams(uri, pos),
	})
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var hover HoverResult
	if err := json.Unmarshal(raw, &hover); err != nil {
		return nil, errors.WrapWithContext("hover", err)
	}
	return &hover, nil
}

// decodeLocations normalizes the Location | Location[] | null union.
func decodeLocations(operation string, raw json.RawMessage) ([]lsp.Location, error) {
	if isNullResult(raw) {
		return nil, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var locs []lsp.Location
		if err := json.Unmarshal(raw, &locs); err != nil {
			return nil, errors.WrapWithContext(operation, err)
		}
		return locs, nil
	}
	var loc lsp.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, errors.WrapWithContext(operation, err)
	}
	return []lsp.Location{loc}, nil
}

// Definition resolves the definition sites of the symbol at pos.
func (s *Session) Definition(ctx context.Context, uri string, pos lsp.Position) ([]lsp.Location, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentDefinition, lsp.DefinitionParams{
		TextDocumentPositionParams: positionParams(uri, pos),
	})
	if err != nil {
		return nil, err
	}
	return decodeLocations("definition", raw)
}

// References finds all references to the symbol at pos.
func (s *Session) References(ctx context.Context, uri string, pos lsp.Position, includeDeclaration bool) ([]lsp.Location, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentReferences, lsp.ReferenceParams{
		TextDocumentPositionParams: positionParams(uri, pos),
		Context:                    lsp.ReferenceContext{IncludeDeclaration: includeDeclaration},
	})
	if err != nil {
		return nil, err
	}
	return decodeLocations("references", raw)
}

// Completion returns completion items at pos, unwrapping the bare-array and
// CompletionList response shapes to one flat slice.
func (s *Session) Completion(ctx context.Context, uri string, pos lsp.Position) ([]lsp.CompletionItem, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentCompletion, lsp.CompletionParams{
		TextDocumentPositionParams: positionParams(uri, pos),
	})
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var items []lsp.CompletionItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.WrapWithContext("completion", err)
		}
		return items, nil
	}
	var list lsp.CompletionList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.WrapWithContext("completion", err)
	}
	return list.Items, nil
}

// ResolveCompletionItem fills in lazily computed fields of item.
func (s *Session) ResolveCompletionItem(ctx context.Context, item lsp.CompletionItem) (*lsp.CompletionItem, error) {
	raw, err := s.call(ctx, types.MethodCompletionItemResolve, item)
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return &item, nil
	}
	var resolved lsp.CompletionItem
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return nil, errors.WrapWithContext("completionItem/resolve", err)
	}
	return &resolved, nil
}

// SignatureHelp returns call signature info at pos, nil when unavailable.
func (s *Session) SignatureHelp(ctx context.Context, uri string, pos lsp.Position) (*lsp.SignatureHelp, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentSignatureHelp, lsp.SignatureHelpParams{
		TextDocumentPositionParams: positionParams(uri, pos),
	})
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var help lsp.SignatureHelp
	if err := json.Unmarshal(raw, &help); err != nil {
		return nil, errors.WrapWithContext("signatureHelp", err)
	}
	return &help, nil
}

// CodeActions returns the actions and commands available for rng.
func (s *Session) CodeActions(ctx context.Context, uri string, rng lsp.Range, diagnostics []lsp.Diagnostic) ([]CodeActionOrCommand, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentCodeAction, lsp.CodeActionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(uri)},
		Range:        rng,
		Context:      lsp.CodeActionContext{Diagnostics: diagnostics},
	})
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var actions []CodeActionOrCommand
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, errors.WrapWithContext("codeAction", err)
	}
	return actions, nil
}

// FormatDocument formats the whole document and returns the edits to apply.
func (s *Session) FormatDocument(ctx context.Context, uri string, options lsp.FormattingOptions) ([]lsp.TextEdit, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentFormatting, lsp.DocumentFormattingParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(uri)},
		Options:      options,
	})
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var edits []lsp.TextEdit
	if err := json.Unmarshal(raw, &edits); err != nil {
		return nil, errors.WrapWithContext("formatting", err)
	}
	return edits, nil
}

// Rename computes the workspace edit for renaming the symbol at pos.
func (s *Session) Rename(ctx context.Context, uri string, pos lsp.Position, newName string) (*lsp.WorkspaceEdit, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentRename, lsp.RenameParams{
		TextDocumentPositionParams: positionParams(uri, pos),
		NewName:                    newName,
	})
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var edit lsp.WorkspaceEdit
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, errors.WrapWithContext("rename", err)
	}
	return &edit, nil
}

// DocumentSymbols returns the symbol outline of uri. The response is either
// hierarchical DocumentSymbols or a flat SymbolInformation list; exactly one
// of the returned slices is populated.
func (s *Session) DocumentSymbols(ctx context.Context, uri string) ([]lsp.DocumentSymbol, []lsp.SymbolInformation, error) {
	raw, err := s.call(ctx, types.MethodTextDocumentDocumentSymbol, lsp.DocumentSymbolParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(uri)},
	})
	if err != nil {
		return nil, nil, err
	}
	if isNullResult(raw) {
		return nil, nil, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, nil, errors.WrapWithContext("documentSymbol", err)
	}
	if len(elems) == 0 {
		return nil, nil, nil
	}

	// Sniff the first element: only DocumentSymbol has selectionRange.
	var probe struct {
		SelectionRange *lsp.Range `json:"selectionRange"`
	}
	if err := json.Unmarshal(elems[0], &probe); err != nil {
		return nil, nil, errors.WrapWithContext("documentSymbol", err)
	}
	if probe.SelectionRange != nil {
		var symbols []lsp.DocumentSymbol
		if err := json.Unmarshal(raw, &symbols); err != nil {
			return nil, nil, errors.WrapWithContext("documentSymbol", err)
		}
		return symbols, nil, nil
	}
	var flat []lsp.SymbolInformation
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, nil, errors.WrapWithContext("documentSymbol", err)
	}
	return nil, flat, nil
}

// WorkspaceSymbols searches the workspace for symbols matching query.
func (s *Session) WorkspaceSymbols(ctx context.Context, query string) ([]lsp.SymbolInformation, error) {
	raw, err := s.call(ctx, types.MethodWorkspaceSymbol, lsp.WorkspaceSymbolParams{
		Query: query,
	})
	if err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var symbols []lsp.SymbolInformation
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, errors.WrapWithContext("workspace/symbol", err)
	}
	return symbols, nil
}

// Shutdown

// SendShutdownRequest issues the LSP shutdown request. Part of the
// ShutdownSender contract the process manager drives during stop.
func (s *Session) SendShutdownRequest(ctx context.Context) error {
	_, err := s.correlator.Call(ctx, types.MethodShutdown, nil, 2*time.Second)
	return err
}

// SendExitNotification issues the LSP exit notification.
func (s *Session) SendExitNotification(ctx context.Context) error {
	return s.correlator.Notify(types.MethodExit, nil)
}

// Shutdown drives the shutdown/exit sequence and tears the session down.
// Idempotent: repeat calls and calls on a never-started session are no-ops.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateShuttingDown, StateTerminated:
		s.mu.Unlock()
		return nil
	case StateUninitialized:
		s.state = StateTerminated
		s.mu.Unlock()
		return nil
	}
	s.state = StateShuttingDown
	s.mu.Unlock()

	err := s.processManager.StopProcess(s.processInfo, s)

	// Anything still in flight when shutdown started will never resolve.
	s.correlator.FailAll(errors.NewStateError("request", StateShuttingDown.String()))
	s.store.Reset()
	s.setState(StateTerminated)

	if err != nil {
		return errors.WrapWithContext("shutdown", err)
	}
	common.LSPLogger.Info("Session terminated: language=%s, root=%s", s.language, s.rootPath)
	return nil
}
