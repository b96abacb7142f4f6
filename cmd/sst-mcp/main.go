package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags)
	root.AddCommand(
		createServeCommand(flags),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "sst-mcp",
		Short: "MCP server for managing SST workspaces",
		Long: `sst-mcp exposes SST workspace operations as MCP tools over stdio:
a supervised "sst dev" server per workspace plus deploy, diff, refresh,
remove, secret, and state commands.

Examples:
  sst-mcp serve
  sst-mcp serve --config=/etc/sst-mcp.toml
  sst-mcp version`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP protocol over stdin/stdout",
		Long: `Serve runs until the MCP client disconnects. All diagnostics go to
stderr; stdout carries only the protocol. Dev servers started during the
session keep running on exit and are re-adopted by the next instance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(context.Background(), flags.ConfigPath)
		},
	}
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(os.Stderr, "sst-mcp", Version)
		},
	}
}
