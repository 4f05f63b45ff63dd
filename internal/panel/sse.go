package panel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rendis/agentboard/internal/graph"
	"github.com/rendis/agentboard/internal/streaming"
	"github.com/rendis/agentboard/pkg/schema"
)

// filterFromQuery builds a subscription filter from URL query parameters:
// ?types=started,completed&severity=warning&expr=<expr-lang predicate>
func filterFromQuery(r *http.Request) streaming.Filter {
	var filter streaming.Filter
	if types := r.URL.Query().Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.EventTypes = append(filter.EventTypes, schema.EventType(t))
			}
		}
	}
	if r.URL.Query().Get("severity") == string(graph.SeverityWarning) {
		filter.Severity = graph.SeverityWarning
	}
	filter.Expression = r.URL.Query().Get("expr")
	return filter
}

// handleSSE streams board updates to the client via Server-Sent Events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel, err := s.deps.Board.Subscribe(r.Context(), filterFromQuery(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case <-r.Context().Done():
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", update.EventType, update.Sequence, data)
			flusher.Flush()
		}
	}
}
