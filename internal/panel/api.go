package panel

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/rendis/agentboard/pkg/schema"
)

const maxEventBytes = 1 << 20 // 1 MiB

// graphResponse is the full board state payload.
type graphResponse struct {
	Sequence uint64             `json:"sequence"`
	Graph    schema.GraphState  `json:"graph"`
	Nodes    []*schema.Node     `json:"nodes"`
	Bounds   map[string]float64 `json:"bounds"`
}

// handleGraph returns the current graph with layout positions applied.
func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	l := s.deps.Board.CurrentLayout()
	writeJSON(w, http.StatusOK, graphResponse{
		Sequence: s.deps.Board.Sequence(),
		Graph:    s.deps.Board.CurrentGraph(),
		Nodes:    l.Nodes,
		Bounds: map[string]float64{
			"width":  l.Bounds.Width,
			"height": l.Bounds.Height,
		},
	})
}

// handleAgents returns the agent nodes sorted by id.
func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	state := s.deps.Board.CurrentGraph()
	agents := make([]*schema.AgentData, 0, len(state.Nodes))
	for _, n := range state.Nodes {
		if n.Kind == schema.NodeKindAgent && n.Agent != nil {
			agents = append(agents, n.Agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// handleSubmitEvent ingests one wire event. Validation failures come back
// as 422 with the full issue list; an accepted event returns the update
// it produced.
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, schema.NewError(schema.ErrCodeValidation, "failed to read request body"))
		return
	}
	if len(raw) > maxEventBytes {
		writeError(w, http.StatusRequestEntityTooLarge, schema.NewError(schema.ErrCodeValidation, "event payload too large"))
		return
	}

	update, result, err := s.deps.Board.SubmitEvent(r.Context(), raw)
	if err != nil {
		s.deps.Logger.Error("event apply failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if result != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"accepted": false,
			"errors":   result.Errors,
			"warnings": result.Warnings,
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":      true,
		"sequence":      update.Sequence,
		"eventType":     update.EventType,
		"notifications": update.Notifications,
	})
}

// queryRequest selects an expression engine and an expression to run
// against the serialized graph.
type queryRequest struct {
	Engine     string `json:"engine,omitempty"` // "jq" (default) or "expr"
	Expression string `json:"expression"`
}

// handleQuery evaluates an expression against the current graph.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, schema.NewError(schema.ErrCodeValidation, "invalid query request body"))
		return
	}
	if req.Engine == "" {
		req.Engine = "jq"
	}
	eng, ok := s.engines[req.Engine]
	if !ok {
		writeError(w, http.StatusBadRequest,
			schema.NewErrorf(schema.ErrCodeValidation, "unknown query engine %q", req.Engine))
		return
	}

	data, err := graphAsMap(s.deps.Board.CurrentGraph())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out, err := eng.Evaluate(r.Context(), req.Expression, data)
	if err != nil {
		status := http.StatusBadRequest
		var boardErr *schema.BoardError
		if errors.As(err, &boardErr) && boardErr.Code == schema.ErrCodeQuery {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"engine": eng.Name(),
		"result": out,
	})
}

// graphAsMap round-trips the graph through JSON into the generic form the
// expression engines consume.
func graphAsMap(state schema.GraphState) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeQuery, "failed to serialize graph").WithCause(err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, schema.NewError(schema.ErrCodeQuery, "failed to deserialize graph").WithCause(err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	var boardErr *schema.BoardError
	if errors.As(err, &boardErr) {
		writeJSON(w, status, map[string]any{
			"error":   boardErr.Message,
			"code":    boardErr.Code,
			"details": boardErr.Details,
		})
		return
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
