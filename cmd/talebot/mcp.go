package main

import (
	"log"
	"os"

	"github.com/aretw0/talebot"
	"github.com/aretw0/talebot/internal/cli"
	"github.com/aretw0/talebot/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes talebot as MCP tools (handle_turn, list_flows) so an assistant
can hold the conversation on a user's behalf.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		app := openApp(sc, cmd, nil)
		defer app.Close()
		logger := app.Logger()

		srv := mcp.NewServer(app, app.Flows, talebot.Version, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			// Keep stray log output off the JSON-RPC stream.
			log.SetOutput(os.Stderr)
			logger.Info("starting talebot MCP server (stdio)")
			if err := srv.ServeStdio(); err != nil {
				fail("MCP server failed: %v", err)
			}
		case "sse":
			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			if err := srv.ServeSSE(sc, addr, baseURL); err != nil {
				fail("MCP server failed: %v", err)
			}
		default:
			fail("Unknown transport %q (want stdio or sse)", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport: stdio or sse")
	mcpCmd.Flags().String("addr", ":8081", "Listen address for the sse transport")
	mcpCmd.Flags().String("base-url", "", "Public base URL for the sse transport")
}
