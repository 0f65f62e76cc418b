package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"lsmcp/src/config"
	"lsmcp/src/internal/common"
	versionpkg "lsmcp/src/internal/version"
	"lsmcp/src/server/protocol"
)

// MCPServer bridges Model Context Protocol tool calls onto LSP sessions.
// The MCP side speaks newline-delimited JSON-RPC over stdio; the LSP side
// is the session registry.
type MCPServer struct {
	config          *config.Config
	registry        *Registry
	responseFactory *protocol.ResponseFactory
	workspaceRoot   string
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewMCPServer creates an MCP server rooted at workspaceRoot. Sessions are
// started lazily, on the first tool call that touches each language.
func NewMCPServer(cfg *config.Config, workspaceRoot string) (*MCPServer, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MCPServer{
		config:          cfg,
		registry:        NewRegistry(),
		responseFactory: protocol.NewResponseFactory(),
		workspaceRoot:   workspaceRoot,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// Registry exposes the session registry, mainly for shutdown wiring.
func (m *MCPServer) Registry() *Registry { return m.registry }

// Stop tears down every LSP session and stops the serve loop.
func (m *MCPServer) Stop() {
	m.cancel()
	m.registry.ShutdownAll(context.Background())
}

// Run serves newline-delimited JSON-RPC until input closes. Stdout carries
// only protocol frames; all logging goes to stderr.
func (m *MCPServer) Run(input io.Reader, output io.Writer) error {
	defer m.Stop()

	scanner := bufio.NewScanner(input)
	// 64KB initial, 4MB max: workspace edits and symbol lists can be large.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		var req protocol.JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			common.MCPLogger.Error("decode error: %v", err)
			continue
		}

		response := m.handleRequest(&req)
		if response == nil {
			// Notification: nothing goes back on the wire.
			continue
		}

		responseBytes, err := json.Marshal(response)
		if err != nil {
			common.MCPLogger.Error("encode error: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(output, "%s\n", responseBytes); err != nil {
			common.MCPLogger.Error("write error: %v", err)
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("input scan error: %w", err)
	}
	return nil
}

// handleRequest routes one MCP message. Notifications return nil.
func (m *MCPServer) handleRequest(req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	if req.JSONRPC != protocol.JSONRPCVersion {
		response := m.responseFactory.CreateInvalidRequest(req.ID, "jsonrpc must be 2.0")
		return &response
	}

	switch req.Method {
	case "initialize":
		return m.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return m.handleToolsList(req)
	case "tools/call":
		return m.handleToolCall(req)
	default:
		if req.ID == nil {
			// Unknown notification, ignore per spec.
			return nil
		}
		response := m.responseFactory.CreateMethodNotFound(req.ID, fmt.Sprintf("method not found: %s", req.Method))
		return &response
	}
}

func (m *MCPServer) handleInitialize(req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	languages := make([]string, 0, len(m.config.Servers))
	for language := range m.config.Servers {
		languages = append(languages, language)
	}

	result := map[string]interface{}{
		"protocolVersion": "2025-06-18",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{
				"listChanged": false,
			},
		},
		"serverInfo": map[string]interface{}{
			"name":    "lsmcp",
			"version": versionpkg.Version,
			"title":   "Language Server MCP Bridge",
		},
		"_meta": map[string]interface{}{
			"lsmcp": map[string]interface{}{
				"workspaceRoot":      m.workspaceRoot,
				"supportedLanguages": languages,
			},
		},
	}

	response := m.responseFactory.CreateSuccess(req.ID, result)
	return &response
}

func (m *MCPServer) handleToolsList(req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	result := map[string]interface{}{
		"tools": toolDefinitions(),
	}
	response := m.responseFactory.CreateSuccess(req.ID, result)
	return &response
}
