// Package mcp exposes the automation engine to agent hosts over the Model
// Context Protocol. Handlers stay thin: parse, delegate to store/engine,
// marshal.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/automat-dev/automat/internal/engine"
	"github.com/automat-dev/automat/internal/store"
	"github.com/automat-dev/automat/internal/validation"
)

// AutomatServerDeps holds the dependencies for creating an AutomatServer.
type AutomatServerDeps struct {
	Store     *store.Store
	Engine    *engine.Engine
	Runner    *engine.Runner
	Validator *validation.Validator
	Logger    *slog.Logger
}

// AutomatServer wraps an MCP server with the automation tool handlers.
type AutomatServer struct {
	store     *store.Store
	engine    *engine.Engine
	runner    *engine.Runner
	validator *validation.Validator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewAutomatServer creates a server with all automation tools registered.
func NewAutomatServer(deps AutomatServerDeps) *AutomatServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &AutomatServer{
		store:     deps.Store,
		engine:    deps.Engine,
		runner:    deps.Runner,
		validator: deps.Validator,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"automat",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Automat runs user-defined automation workflows. Use automation.create/update/delete/get/list to manage workflows, automation.execute to run one directly, automation.event to feed an event through trigger matching, and automation.history to inspect past runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *AutomatServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *AutomatServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *AutomatServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: createTool(), Handler: s.handleCreate},
		{Tool: updateTool(), Handler: s.handleUpdate},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: eventTool(), Handler: s.handleEvent},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: clearHistoryTool(), Handler: s.handleClearHistory},
	}
}

// --- Tool definitions ---

func createTool() mcp.Tool {
	return mcp.NewTool("automation.create",
		mcp.WithDescription("Create a workflow: a trigger plus an ordered list of actions"),
		mcp.WithString("name", mcp.Description("Workflow name")),
		mcp.WithString("description", mcp.Description("What the workflow does")),
		mcp.WithBoolean("enabled", mcp.Description("Whether the workflow is active (default true)")),
		mcp.WithObject("trigger", mcp.Description("Trigger: {type: manual|keyword|intent|schedule, keywords?, intents?, schedule_spec?}")),
		mcp.WithArray("actions", mcp.Description("Ordered action list; each action has a type plus type-specific fields")),
	)
}

func updateTool() mcp.Tool {
	return mcp.NewTool("automation.update",
		mcp.WithDescription("Update fields of an existing workflow; omitted fields are unchanged"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithBoolean("enabled", mcp.Description("Enable or disable the workflow")),
		mcp.WithObject("trigger", mcp.Description("Replacement trigger")),
		mcp.WithArray("actions", mcp.Description("Replacement action list")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("automation.delete",
		mcp.WithDescription("Delete a workflow"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("automation.get",
		mcp.WithDescription("Fetch a single workflow by ID"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("automation.list",
		mcp.WithDescription("List all workflows"),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewTool("automation.execute",
		mcp.WithDescription("Execute a workflow directly, bypassing trigger matching"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithObject("context", mcp.Description("Run context seeding {{placeholder}} substitution")),
	)
}

func eventTool() mcp.Tool {
	return mcp.NewTool("automation.event",
		mcp.WithDescription("Feed an event through trigger matching and run every matching enabled workflow"),
		mcp.WithObject("context", mcp.Required(), mcp.Description("Event context: message, intent, manual, plus any extra values")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("automation.history",
		mcp.WithDescription("List recent executions, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum records to return (default all retained)")),
	)
}

func clearHistoryTool() mcp.Tool {
	return mcp.NewTool("automation.clear_history",
		mcp.WithDescription("Drop all execution history"),
	)
}
