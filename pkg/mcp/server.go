package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/agentboard/internal/expressions"
	"github.com/rendis/agentboard/internal/graph"
	"github.com/rendis/agentboard/internal/layout"
	"github.com/rendis/agentboard/internal/streaming"
	"github.com/rendis/agentboard/pkg/schema"
)

// BoardAPI is the engine surface the MCP tools operate on.
// Satisfied by *engine.Board.
type BoardAPI interface {
	SubmitEvent(ctx context.Context, raw []byte) (*streaming.Update, *schema.ValidationResult, error)
	CurrentGraph() schema.GraphState
	CurrentLayout() layout.Layout
	Sequence() uint64
	Subscribe(ctx context.Context, filter streaming.Filter) (<-chan streaming.Update, func(), error)
}

// BoardServerDeps holds the dependencies for creating a BoardServer.
type BoardServerDeps struct {
	Board  BoardAPI
	Logger *slog.Logger
}

// BoardServer wraps an MCP server with board-specific tool handlers, so
// agents can report pipeline events and inspect the graph over MCP.
type BoardServer struct {
	board     BoardAPI
	logger    *slog.Logger
	sessions  *SessionRegistry
	engines   map[string]expressions.Engine
	mcpServer *server.MCPServer
}

// NewBoardServer creates a BoardServer with all 5 tools registered.
func NewBoardServer(deps BoardServerDeps) *BoardServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	jq := expressions.NewGoJQEngine()
	ex := expressions.NewExprEngine()

	s := &BoardServer{
		board:    deps.Board,
		logger:   logger,
		sessions: NewSessionRegistry(),
		engines: map[string]expressions.Engine{
			jq.Name(): jq,
			ex.Name(): ex,
		},
	}

	mcpSrv := server.NewMCPServer(
		"agentboard",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Agentboard visualizes an autonomous task pipeline. Use board.submit_event to report pipeline events, board.graph to read the current graph with layout, board.agents to list agent states, board.status for a pipeline summary, and board.query to run jq or expr expressions against the graph."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *BoardServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *BoardServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Watch forwards warning notifications from the update stream to the
// session of the agent they concern. Blocks until ctx is cancelled.
func (s *BoardServer) Watch(ctx context.Context) error {
	ch, cancel, err := s.board.Subscribe(ctx, streaming.Filter{Severity: graph.SeverityWarning})
	if err != nil {
		return err
	}
	defer cancel()

	notifier := NewMCPNotifier(s.mcpServer, s.sessions)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-ch:
			if !ok {
				return nil
			}
			for _, n := range update.Notifications {
				if n.Severity != graph.SeverityWarning {
					continue
				}
				payload := map[string]any{
					"kind":     n.Kind,
					"message":  n.Message,
					"severity": string(n.Severity),
					"sequence": update.Sequence,
				}
				if err := notifier.Notify(ctx, string(n.AgentID), payload); err != nil {
					s.logger.Warn("notification push failed",
						slog.String("agent_id", string(n.AgentID)),
						slog.Any("error", err))
				}
			}
		}
	}
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *BoardServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: submitEventTool(), Handler: s.handleSubmitEvent},
		{Tool: graphTool(), Handler: s.handleGraph},
		{Tool: agentsTool(), Handler: s.handleAgents},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func submitEventTool() mcp.Tool {
	return mcp.NewTool("board.submit_event",
		mcp.WithDescription("Submit a pipeline event to the board. The event object must carry eventType and timestamp plus the fields of that event type"),
		mcp.WithObject("event", mcp.Required(), mcp.Description("The wire event, e.g. {\"eventType\":\"progress\",\"timestamp\":\"...\",\"agentId\":\"codegen\",\"issueNumber\":42,\"progress\":60}")),
	)
}

func graphTool() mcp.Tool {
	return mcp.NewTool("board.graph",
		mcp.WithDescription("Read the current graph state, optionally with computed node positions"),
		mcp.WithBoolean("include_layout", mcp.Description("Include node positions and canvas bounds (default: true)")),
	)
}

func agentsTool() mcp.Tool {
	return mcp.NewTool("board.agents",
		mcp.WithDescription("List all agents on the board with status, progress, and current issue"),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("board.status",
		mcp.WithDescription("Summarize the pipeline: sequence, stage progress, and node counts"),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("board.query",
		mcp.WithDescription("Evaluate an expression against the serialized graph state"),
		mcp.WithString("expression", mcp.Required(), mcp.Description("The expression to evaluate")),
		mcp.WithString("engine",
			mcp.Enum("jq", "expr"),
			mcp.Description("Expression engine (default: jq)"),
		),
	)
}
