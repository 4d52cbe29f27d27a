package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/jflat/internal/ingest"
)

// Version is reported to MCP clients.
var Version = "dev"

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the loaded configuration as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		resolver := ingest.NewSQLiteResolver()
		defer resolver.Close()
		return server.ServeStdio(newMCPServer(ingest.NewEngine(reg), resolver))
	},
}

func newMCPServer(engine *ingest.Engine, resolver *ingest.SQLiteResolver) *server.MCPServer {
	s := server.NewMCPServer("jflat", Version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("transform",
		mcp.WithDescription("Simplify one JSON document with the configuration selected by its action type"),
		mcp.WithString("document", mcp.Required(), mcp.Description("The JSON document to simplify")),
	), transformHandler(engine))

	s.AddTool(mcp.NewTool("transform_record",
		mcp.WithDescription("Simplify one record of a SQLite results table"),
		mcp.WithString("db", mcp.Required(), mcp.Description("Path to the SQLite database")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), transformRecordHandler(engine, resolver))

	s.AddTool(mcp.NewTool("list_actions",
		mcp.WithDescription("List the configured action types"),
	), listActionsHandler(engine))

	return s
}

func transformHandler(engine *ingest.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := req.RequireString("document")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := engine.ProcessString(doc)
		return toolResult(res, err)
	}
}

func transformRecordHandler(engine *ingest.Engine, resolver *ingest.SQLiteResolver) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		db, err := req.RequireString("db")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		raw, err := resolver.Raw(db, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := engine.ProcessString(raw)
		return toolResult(res, err)
	}
}

func listActionsHandler(engine *ingest.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names := engine.Registry.ActionTypes()
		if def, ok := engine.Registry.Default(); ok {
			names = append(names, fmt.Sprintf("(default: %s)", def.ActionType))
		}
		return mcp.NewToolResultText(strings.Join(names, "\n")), nil
	}
}

// toolResult renders a transformation as JSON text. Fail-fast aborts are
// reported as tool errors.
func toolResult(res *ingest.Result, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
