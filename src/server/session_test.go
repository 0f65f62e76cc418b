package server

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lsp "go.lsp.dev/protocol"

	"lsmcp/src/internal/errors"
	"lsmcp/src/internal/types"
	"lsmcp/src/server/process"
	"lsmcp/src/server/protocol"
)

// fakeMessage is one request or notification the fake server received.
type fakeMessage struct {
	method string
	params json.RawMessage
}

// fakeLSPServer speaks framed JSON-RPC over an in-process pipe, standing in
// for a real language server. It answers initialize and shutdown by default;
// tests script other methods or swallow them to simulate a stalled server.
type fakeLSPServer struct {
	framer *protocol.LSPFramer
	outMu  sync.Mutex
	out    io.Writer

	mu            sync.Mutex
	requests      []fakeMessage
	notifications []fakeMessage
	handlers      map[string]func(params json.RawMessage) (interface{}, *protocol.RPCError)
	swallow       map[string]bool

	// onNotification, when set, runs after a notification is recorded. Used
	// by tests to push server traffic in reaction to didOpen and friends.
	onNotification func(method string, params json.RawMessage)
}

func newFakeLSPServer() *fakeLSPServer {
	return &fakeLSPServer{
		framer:   protocol.NewLSPFramer("fake"),
		handlers: make(map[string]func(params json.RawMessage) (interface{}, *protocol.RPCError)),
		swallow:  make(map[string]bool),
	}
}

func (s *fakeLSPServer) handle(method string, fn func(params json.RawMessage) (interface{}, *protocol.RPCError)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

func (s *fakeLSPServer) swallowMethod(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swallow[method] = true
}

func (s *fakeLSPServer) write(msg protocol.JSONRPCMessage) error {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return s.framer.WriteMessage(s.out, msg)
}

// notify pushes a server-initiated notification at the session.
func (s *fakeLSPServer) notify(method string, params interface{}) error {
	return s.write(protocol.CreateNotification(method, params))
}

func (s *fakeLSPServer) HandleRequest(method string, id json.RawMessage, params json.RawMessage) error {
	s.mu.Lock()
	s.requests = append(s.requests, fakeMessage{method, params})
	handler := s.handlers[method]
	swallowed := s.swallow[method]
	s.mu.Unlock()

	if swallowed {
		return nil
	}
	if handler != nil {
		result, rpcErr := handler(params)
		return s.write(protocol.CreateResponse(id, result, rpcErr))
	}

	switch method {
	case types.MethodInitialize:
		return s.write(protocol.CreateResponse(id, map[string]interface{}{
			"capabilities": map[string]interface{}{
				"hoverProvider":          true,
				"definitionProvider":     true,
				"textDocumentSync":       1,
				"documentSymbolProvider": true,
			},
		}, nil))
	default:
		return s.write(protocol.CreateResponse(id, json.RawMessage("null"), nil))
	}
}

func (s *fakeLSPServer) HandleResponse(id json.RawMessage, result json.RawMessage, rpcErr *protocol.RPCError) error {
	return nil
}

func (s *fakeLSPServer) HandleNotification(method string, params json.RawMessage) error {
	s.mu.Lock()
	s.notifications = append(s.notifications, fakeMessage{method, params})
	hook := s.onNotification
	s.mu.Unlock()

	if hook != nil {
		hook(method, params)
	}
	return nil
}

func (s *fakeLSPServer) countNotifications(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.notifications {
		if m.method == method {
			n++
		}
	}
	return n
}

func (s *fakeLSPServer) countRequests(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.requests {
		if m.method == method {
			n++
		}
	}
	return n
}

func (s *fakeLSPServer) lastNotification(method string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].method == method {
			return s.notifications[i].params, true
		}
	}
	return nil, false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeProcessManager wires a session to the fake server through io.Pipe
// pairs instead of a real subprocess.
type fakeProcessManager struct {
	server *fakeLSPServer

	mu     sync.Mutex
	exited bool
	exitCh chan error

	clientR *io.PipeReader
	clientW *io.PipeWriter
	serverR *io.PipeReader
	serverW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
}

func newFakeProcessManager(server *fakeLSPServer) *fakeProcessManager {
	return &fakeProcessManager{server: server, exitCh: make(chan error, 1)}
}

func (f *fakeProcessManager) StartProcess(config types.ClientConfig, language string) (*process.Info, error) {
	f.clientR, f.clientW = io.Pipe()
	f.serverR, f.serverW = io.Pipe()
	f.stderrR, f.stderrW = io.Pipe()
	f.server.out = f.serverW

	info := &process.Info{
		Stdin:    f.clientW,
		Stdout:   f.serverR,
		Stderr:   f.stderrR,
		StopCh:   make(chan struct{}),
		Done:     make(chan struct{}),
		Language: language,
	}

	go func() { _ = f.server.framer.ReadLoop(f.clientR, f.server, info.StopCh) }()
	return info, nil
}

func (f *fakeProcessManager) StopProcess(info *process.Info, sender process.ShutdownSender) error {
	if info == nil {
		return nil
	}
	info.IntentionalStop = true

	if sender != nil {
		ctx := context.Background()
		_ = sender.SendShutdownRequest(ctx)
		_ = sender.SendExitNotification(ctx)
	}

	select {
	case <-info.StopCh:
	default:
		close(info.StopCh)
	}
	f.terminate(nil)
	return nil
}

func (f *fakeProcessManager) MonitorProcess(info *process.Info, onExit func(error)) {
	err := <-f.exitCh
	close(info.Done)
	select {
	case <-info.StopCh:
	default:
		close(info.StopCh)
	}
	if onExit != nil {
		onExit(err)
	}
}

func (f *fakeProcessManager) CleanupProcess(info *process.Info) {}

// crash simulates the server process dying out from under the session.
func (f *fakeProcessManager) crash(err error) {
	f.terminate(err)
}

func (f *fakeProcessManager) terminate(err error) {
	f.mu.Lock()
	if f.exited {
		f.mu.Unlock()
		return
	}
	f.exited = true
	f.mu.Unlock()

	f.exitCh <- err
	f.clientW.Close()
	f.serverW.Close()
	f.stderrW.Close()
	f.clientR.Close()
	f.serverR.Close()
	f.stderrR.Close()
}

func newTestSession(t *testing.T) (*Session, *fakeProcessManager, *fakeLSPServer) {
	t.Helper()
	srv := newFakeLSPServer()
	fpm := newFakeProcessManager(srv)
	s := NewSession("typescript", "/tmp/project", types.ClientConfig{Command: "fake-server"})
	s.processManager = fpm
	return s, fpm, srv
}

func startTestSession(t *testing.T) (*Session, *fakeProcessManager, *fakeLSPServer) {
	t.Helper()
	s, fpm, srv := newTestSession(t)
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, StateReady, s.State())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, fpm, srv
}

func TestStartRunsInitializeHandshake(t *testing.T) {
	s, _, srv := startTestSession(t)

	assert.Equal(t, 1, srv.countRequests(types.MethodInitialize))
	waitFor(t, "initialized notification", func() bool {
		return srv.countNotifications(types.MethodInitialized) == 1
	})

	// Server capabilities from the handshake are retained.
	var caps map[string]interface{}
	require.NoError(t, json.Unmarshal(s.Capabilities(), &caps))
	assert.Equal(t, true, caps["hoverProvider"])

	// Initialize carried the project root.
	srv.mu.Lock()
	var initParams struct {
		RootURI string `json:"rootUri"`
	}
	require.NoError(t, json.Unmarshal(srv.requests[0].params, &initParams))
	srv.mu.Unlock()
	assert.Equal(t, "file:///tmp/project", initParams.RootURI)
}

func TestOperationsBeforeStartAreRejected(t *testing.T) {
	s, _, _ := newTestSession(t)

	_, err := s.Hover(context.Background(), "file:///a.ts", lsp.Position{})
	require.Error(t, err)
	assert.True(t, errors.IsStateError(err))

	err = s.OpenDocument("file:///a.ts", "x", "typescript")
	assert.True(t, errors.IsStateError(err))
}

func TestOpenHoverEndToEnd(t *testing.T) {
	s, _, srv := startTestSession(t)

	srv.handle(types.MethodTextDocumentHover, func(params json.RawMessage) (interface{}, *protocol.RPCError) {
		return map[string]interface{}{"contents": "const x: number"}, nil
	})

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))

	hover, err := s.Hover(context.Background(), uri, lsp.Position{Line: 0, Character: 6})
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.JSONEq(t, `"const x: number"`, string(hover.Contents))

	// The hover request referenced the opened document at the right spot.
	srv.mu.Lock()
	var hoverParams lsp.HoverParams
	for _, r := range srv.requests {
		if r.method == types.MethodTextDocumentHover {
			require.NoError(t, json.Unmarshal(r.params, &hoverParams))
		}
	}
	srv.mu.Unlock()
	assert.Equal(t, lsp.DocumentURI(uri), hoverParams.TextDocument.URI)
	assert.Equal(t, uint32(6), hoverParams.Position.Character)
}

func TestOpenIsIdempotentOnTheWire(t *testing.T) {
	s, _, srv := startTestSession(t)

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))
	require.NoError(t, s.OpenDocument(uri, "something else", "typescript"))

	// didChange flushes behind any didOpen on the same ordered pipe.
	require.NoError(t, s.UpdateDocument(uri, "const x = 2;", 0))
	waitFor(t, "didChange", func() bool {
		return srv.countNotifications(types.MethodTextDocumentDidChange) == 1
	})
	assert.Equal(t, 1, srv.countNotifications(types.MethodTextDocumentDidOpen))

	params, ok := srv.lastNotification(types.MethodTextDocumentDidChange)
	require.True(t, ok)
	var change lsp.DidChangeTextDocumentParams
	require.NoError(t, json.Unmarshal(params, &change))
	assert.Equal(t, int32(2), change.TextDocument.Version)
	require.Len(t, change.ContentChanges, 1)
	assert.Equal(t, "const x = 2;", change.ContentChanges[0].Text)
}

func TestUpdateUnopenedDocumentFails(t *testing.T) {
	s, _, srv := startTestSession(t)

	err := s.UpdateDocument("file:///tmp/project/never.ts", "x", 0)
	require.Error(t, err)
	assert.True(t, errors.IsDocumentError(err))
	assert.Equal(t, 0, srv.countNotifications(types.MethodTextDocumentDidChange))
}

func TestCloseUnopenedIsNoop(t *testing.T) {
	s, _, srv := startTestSession(t)

	require.NoError(t, s.CloseDocument("file:///tmp/project/never.ts"))
	assert.Equal(t, 0, srv.countNotifications(types.MethodTextDocumentDidClose))

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "x", "typescript"))
	require.NoError(t, s.CloseDocument(uri))
	require.NoError(t, s.CloseDocument(uri))
	waitFor(t, "didClose", func() bool {
		return srv.countNotifications(types.MethodTextDocumentDidClose) == 1
	})
}

func TestDiagnosticsPushAndLookup(t *testing.T) {
	s, _, srv := startTestSession(t)

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))

	// Before any push the session reports "not yet published".
	_, published, err := s.Diagnostics(uri)
	require.NoError(t, err)
	assert.False(t, published)

	require.NoError(t, srv.notify(types.MethodPublishDiagnostics, lsp.PublishDiagnosticsParams{
		URI: lsp.DocumentURI(uri),
		Diagnostics: []lsp.Diagnostic{
			{Message: "old finding"},
			{Message: "another"},
		},
	}))
	require.NoError(t, srv.notify(types.MethodPublishDiagnostics, lsp.PublishDiagnosticsParams{
		URI:         lsp.DocumentURI(uri),
		Diagnostics: []lsp.Diagnostic{{Message: "current finding"}},
	}))

	waitFor(t, "diagnostics", func() bool {
		diags, ok, err := s.Diagnostics(uri)
		return err == nil && ok && len(diags) == 1 && diags[0].Message == "current finding"
	})

	// Lookup for a never-opened URI is a document-state error.
	_, _, err = s.Diagnostics("file:///tmp/project/other.ts")
	require.Error(t, err)
	assert.True(t, errors.IsDocumentError(err))
}

func TestServerErrorResponseSurfacesAsProtocolError(t *testing.T) {
	s, _, srv := startTestSession(t)

	srv.handle(types.MethodTextDocumentDefinition, func(params json.RawMessage) (interface{}, *protocol.RPCError) {
		return nil, protocol.NewRPCError(-32602, "invalid position", nil)
	})

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))

	_, err := s.Definition(context.Background(), uri, lsp.Position{Line: 99})
	require.Error(t, err)
	assert.True(t, errors.IsProtocolError(err))
	var lspErr *errors.LSPError
	require.ErrorAs(t, err, &lspErr)
	assert.Equal(t, -32602, lspErr.Code)
}

func TestDefinitionNormalizesSingleLocation(t *testing.T) {
	s, _, srv := startTestSession(t)

	srv.handle(types.MethodTextDocumentDefinition, func(params json.RawMessage) (interface{}, *protocol.RPCError) {
		return map[string]interface{}{
			"uri":   "file:///tmp/project/def.ts",
			"range": map[string]interface{}{"start": map[string]int{"line": 3, "character": 1}, "end": map[string]int{"line": 3, "character": 5}},
		}, nil
	})

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))

	locs, err := s.Definition(context.Background(), uri, lsp.Position{Line: 0, Character: 6})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, uint32(3), locs[0].Range.Start.Line)
}

func TestCompletionUnwrapsListShape(t *testing.T) {
	s, _, srv := startTestSession(t)

	srv.handle(types.MethodTextDocumentCompletion, func(params json.RawMessage) (interface{}, *protocol.RPCError) {
		return map[string]interface{}{
			"isIncomplete": true,
			"items":        []map[string]interface{}{{"label": "toString"}, {"label": "toFixed"}},
		}, nil
	})

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))

	items, err := s.Completion(context.Background(), uri, lsp.Position{Line: 0, Character: 12})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "toString", items[0].Label)
}

func TestDocumentSymbolsSniffsUnionShape(t *testing.T) {
	s, _, srv := startTestSession(t)

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))

	srv.handle(types.MethodTextDocumentDocumentSymbol, func(params json.RawMessage) (interface{}, *protocol.RPCError) {
		return []map[string]interface{}{{
			"name": "x",
			"kind": 13,
			"range": map[string]interface{}{
				"start": map[string]int{"line": 0, "character": 0},
				"end":   map[string]int{"line": 0, "character": 12},
			},
			"selectionRange": map[string]interface{}{
				"start": map[string]int{"line": 0, "character": 6},
				"end":   map[string]int{"line": 0, "character": 7},
			},
		}}, nil
	})
	hier, flat, err := s.DocumentSymbols(context.Background(), uri)
	require.NoError(t, err)
	assert.Nil(t, flat)
	require.Len(t, hier, 1)
	assert.Equal(t, "x", hier[0].Name)

	srv.handle(types.MethodTextDocumentDocumentSymbol, func(params json.RawMessage) (interface{}, *protocol.RPCError) {
		return []map[string]interface{}{{
			"name": "x",
			"kind": 13,
			"location": map[string]interface{}{
				"uri": uri,
				"range": map[string]interface{}{
					"start": map[string]int{"line": 0, "character": 0},
					"end":   map[string]int{"line": 0, "character": 12},
				},
			},
		}}, nil
	})
	hier, flat, err = s.DocumentSymbols(context.Background(), uri)
	require.NoError(t, err)
	assert.Nil(t, hier)
	require.Len(t, flat, 1)
	assert.Equal(t, "x", flat[0].Name)
}

func TestServerExitFailsOutstandingCalls(t *testing.T) {
	s, fpm, srv := startTestSession(t)
	srv.swallowMethod(types.MethodTextDocumentHover)

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))

	const calls = 3
	done := make(chan error, calls)
	for i := 0; i < calls; i++ {
		go func() {
			_, err := s.Hover(context.Background(), uri, lsp.Position{})
			done <- err
		}()
	}
	waitFor(t, "hover requests on the wire", func() bool {
		return srv.countRequests(types.MethodTextDocumentHover) == calls
	})

	fpm.crash(io.ErrUnexpectedEOF)

	for i := 0; i < calls; i++ {
		select {
		case err := <-done:
			require.Error(t, err)
			// Depending on which goroutine observes the death first this is
			// a process-exit or a transport failure; both terminate the call.
			assert.True(t, errors.IsProcessExitError(err) || errors.IsTransportError(err), "got %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("outstanding call never rejected")
		}
	}

	// The session is Terminated; later calls fail fast with a state error.
	waitFor(t, "terminated state", func() bool { return s.State() == StateTerminated })
	_, err := s.Hover(context.Background(), uri, lsp.Position{})
	assert.True(t, errors.IsStateError(err))
}

func TestShutdownSequenceAndIdempotence(t *testing.T) {
	s, _, srv := startTestSession(t)

	uri := "file:///tmp/project/a.ts"
	require.NoError(t, s.OpenDocument(uri, "const x = 1;", "typescript"))

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, StateTerminated, s.State())

	assert.Equal(t, 1, srv.countRequests(types.MethodShutdown))
	waitFor(t, "exit notification", func() bool {
		return srv.countNotifications(types.MethodExit) == 1
	})

	// Document state did not survive the session.
	assert.Empty(t, s.OpenDocuments())

	// Again is a no-op.
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 1, srv.countRequests(types.MethodShutdown))

	_, err := s.Hover(context.Background(), uri, lsp.Position{})
	assert.True(t, errors.IsStateError(err))
}

func TestShutdownBeforeStart(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, StateTerminated, s.State())
}
