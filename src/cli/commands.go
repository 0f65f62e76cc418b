// Package cli defines the lsmcp command tree.
package cli

import (
	"github.com/spf13/cobra"

	"lsmcp/src/internal/common"
	versionpkg "lsmcp/src/internal/version"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "lsmcp",
	Short: "lsmcp - Language server tools for AI assistants over MCP",
	Long: `lsmcp bridges Language Server Protocol servers to AI assistants through
the Model Context Protocol. It launches the right language server per file,
keeps documents in sync, and exposes hover, definitions, references,
completions, diagnostics, rename, and more as MCP tools.

QUICK START:
  lsmcp mcp                                # Start the MCP server on stdio
  lsmcp status                             # Check which language servers are installed

Configure servers in ~/.lsmcp/config.yaml or pass --config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			common.SetVerbose()
		}
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the MCP server. It reads newline-delimited JSON-RPC from stdin and
writes responses to stdout, so stdout carries nothing but protocol traffic.
Language servers are launched lazily, on the first tool call that needs them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunMCPServer(configPath)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured language servers and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ShowStatus(configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("lsmcp %s\n", versionpkg.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.lsmcp/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging on stderr")

	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
