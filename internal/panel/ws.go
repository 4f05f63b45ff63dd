package panel

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The panel is same-origin by deployment; cross-origin dashboards
	// connect through the reverse proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket is the bidirectional board channel: incoming text frames
// are submitted as wire events and acked, outgoing frames are filtered
// updates. The same filter query parameters as the SSE endpoint apply.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ch, cancel, err := s.deps.Board.Subscribe(r.Context(), filterFromQuery(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: submits client frames as events and hands acks to
	// the writer loop, which owns the connection's write side.
	done := make(chan struct{})
	acks := make(chan map[string]any, 8)
	go func() {
		defer close(done)
		for {
			kind, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage || len(raw) == 0 {
				continue
			}
			ack := s.ingestFrame(r, raw)
			select {
			case acks <- ack:
			case <-r.Context().Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ack := <-acks:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ack); err != nil {
				return
			}
		case update, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}
}

// ingestFrame submits one raw event and builds the ack frame for it.
func (s *Server) ingestFrame(r *http.Request, raw []byte) map[string]any {
	update, result, err := s.deps.Board.SubmitEvent(r.Context(), raw)
	switch {
	case err != nil:
		return map[string]any{"type": "ack", "accepted": false, "error": err.Error()}
	case result != nil:
		return map[string]any{
			"type":     "ack",
			"accepted": false,
			"errors":   result.Errors,
			"warnings": result.Warnings,
		}
	default:
		return map[string]any{
			"type":      "ack",
			"accepted":  true,
			"sequence":  update.Sequence,
			"eventType": update.EventType,
		}
	}
}
