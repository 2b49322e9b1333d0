package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/adapters/driving/mcp"
	"github.com/custodia-labs/recall/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so agents can query and maintain memory.

By default, the server communicates over stdio using JSON-RPC.

Use --port to start an HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP
  - Prometheus metrics at /metrics

Use --metrics-port to serve /metrics alongside a stdio session.
Scheduled backups run in the background when [backup] schedule is set.

Examples:
  # Stdio mode (default)
  recall mcp serve

  # HTTP mode with metrics
  recall mcp serve --port 8080

Client configuration:
  {
    "mcpServers": {
      "recall": {
        "command": "/path/to/recall",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().Int("metrics-port", 0, "serve Prometheus metrics on this port in stdio mode")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	metricsPort, err := cmd.Flags().GetInt("metrics-port")
	if err != nil {
		return fmt.Errorf("getting metrics-port flag: %w", err)
	}

	ports := &mcp.Ports{
		Memory:         memoryService,
		Backup:         backupService,
		BackupDefaults: backupDefaults,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}
	if metricsHandler != nil {
		server.SetMetricsHandler(metricsHandler)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// The server is long-running, so it also drives scheduled backups.
	if schedulerEnabled && scheduler != nil {
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				logger.Warn("cli: scheduler stopped: %v", err)
			}
		}()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("cli: scheduler stop: %v", err)
			}
		}()
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(ctx, addr)
	}

	if metricsPort > 0 && metricsHandler != nil {
		addr := fmt.Sprintf(":%d", metricsPort)
		go func() {
			if err := mcp.ServeMetrics(ctx, addr, metricsHandler); err != nil {
				logger.Warn("cli: metrics server: %v", err)
			}
		}()
	}

	return server.Run(ctx)
}
