package cmd

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/templatemail/internal/resources"
	"github.com/teemow/templatemail/internal/server"
	"github.com/teemow/templatemail/internal/tools/template_tools"
)

func newMCPCmd() *cobra.Command {
	var yolo bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol (MCP) server on standard input/output so AI
assistants can list, read, edit and send templates.

Safety Mode:
  By default, the server operates in read-only mode and only offers
  template_list, template_get, template_check and the template resources.
  Use --yolo to also register template_rewrite (writes new files) and
  template_send (sends email).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, yolo)
		},
	}

	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (AI edits and email sending). Default is read-only mode.")

	return cmd
}

func runMCP(cmd *cobra.Command, yolo bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cmd, appOptions{instrument: true})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	mcpSrv := newMCPServer()

	// readOnly is the inverse of yolo
	readOnly := !yolo
	if readOnly {
		a.logger.Info("starting MCP server in read-only mode (use --yolo to enable write operations)")
	} else {
		a.logger.Info("starting MCP server with write operations enabled")
	}

	if err := registerAllTools(mcpSrv, a.sc, readOnly); err != nil {
		return err
	}
	if err := resources.RegisterTemplateResources(mcpSrv, a.sc); err != nil {
		return fmt.Errorf("failed to register template resources: %w", err)
	}
	return runStdioServer(mcpSrv)
}

func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("templatemail", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers every MCP tool. Shared by mcp and generate-docs.
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := template_tools.RegisterTemplateTools(mcpSrv, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register template tools: %w", err)
	}
	return nil
}
