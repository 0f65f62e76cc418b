package cli

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"lsmcp/src/config"
	"lsmcp/src/internal/common"
	"lsmcp/src/server"
)

// loadConfig resolves the config path and loads it, falling back to
// defaults when nothing is configured.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return config.LoadConfig(path)
}

// RunMCPServer starts the MCP server on stdio and blocks until stdin closes
// or a termination signal arrives. Every log line goes to stderr; stdout is
// reserved for protocol frames.
func RunMCPServer(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	workspaceRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine workspace root: %w", err)
	}

	mcpServer, err := server.NewMCPServer(cfg, workspaceRoot)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		common.CLILogger.Info("Received %v, shutting down language servers...", sig)
		mcpServer.Stop()
	}()

	common.CLILogger.Info("lsmcp MCP server listening on stdio (workspace: %s)", workspaceRoot)
	return mcpServer.Run(os.Stdin, os.Stdout)
}

// ShowStatus reports each configured language server and whether its binary
// is on PATH. Servers are not started; this is a fast, read-only check.
func ShowStatus(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	common.CLILogger.Info("lsmcp status")
	common.CLILogger.Info("%s", strings.Repeat("=", 50))
	common.CLILogger.Info("Configured languages: %d", len(cfg.Servers))

	languages := make([]string, 0, len(cfg.Servers))
	for language := range cfg.Servers {
		languages = append(languages, language)
	}
	sort.Strings(languages)

	available := 0
	for _, language := range languages {
		serverCfg := cfg.Servers[language]
		statusIcon := "❌"
		statusText := "not found on PATH"
		if _, err := exec.LookPath(serverCfg.Command); err == nil {
			statusIcon = "✅"
			statusText = "available"
			available++
		}
		common.CLILogger.Info("%s %s: %s", statusIcon, language, statusText)
		common.CLILogger.Info("   Command: %s %s", serverCfg.Command, strings.Join(serverCfg.Args, " "))
	}

	common.CLILogger.Info("%d of %d language servers available", available, len(languages))
	return nil
}
