package panel

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/agentboard/internal/expressions"
	"github.com/rendis/agentboard/internal/layout"
	"github.com/rendis/agentboard/internal/streaming"
	"github.com/rendis/agentboard/pkg/schema"
)

// BoardAPI is the engine surface the panel exposes over HTTP.
// Satisfied by *engine.Board.
type BoardAPI interface {
	SubmitEvent(ctx context.Context, raw []byte) (*streaming.Update, *schema.ValidationResult, error)
	CurrentGraph() schema.GraphState
	CurrentLayout() layout.Layout
	Sequence() uint64
	Subscribe(ctx context.Context, filter streaming.Filter) (<-chan streaming.Update, func(), error)
}

// Deps holds the dependencies for the panel server.
type Deps struct {
	Board  BoardAPI
	Logger *slog.Logger
}

// Server exposes the board over HTTP: a JSON API for state and event
// ingest, plus SSE and WebSocket streams for live updates.
type Server struct {
	deps    Deps
	engines map[string]expressions.Engine
}

// NewServer creates a panel Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	jq := expressions.NewGoJQEngine()
	ex := expressions.NewExprEngine()

	return &Server{
		deps: deps,
		engines: map[string]expressions.Engine{
			jq.Name(): jq,
			ex.Name(): ex,
		},
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Board state and ingest.
	mux.HandleFunc("GET /api/graph", s.handleGraph)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("POST /api/events", s.handleSubmitEvent)
	mux.HandleFunc("POST /api/query", s.handleQuery)

	// Live streams.
	mux.HandleFunc("GET /sse/events", s.handleSSE)
	mux.HandleFunc("GET /ws/events", s.handleWebSocket)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sequence": s.deps.Board.Sequence(),
	})
}
