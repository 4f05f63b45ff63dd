package panel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/agentboard/internal/engine"
	"github.com/rendis/agentboard/internal/streaming"
	"github.com/rendis/agentboard/internal/validation"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Board) {
	t.Helper()
	v, err := validation.NewEventValidator()
	require.NoError(t, err)

	board := engine.NewBoard(engine.Config{
		Validator: v,
		Hub:       streaming.NewMemoryHub(),
		Logger:    slog.New(slog.DiscardHandler),
	})
	t.Cleanup(board.Close)

	srv := httptest.NewServer(NewServer(Deps{Board: board, Logger: slog.New(slog.DiscardHandler)}).Handler())
	t.Cleanup(srv.Close)
	return srv, board
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

const eventTimestamp = "2026-08-28T10:00:00Z"

func discoveredBody(issue int, title string) string {
	return fmt.Sprintf(
		`{"eventType":"task:discovered","timestamp":%q,"tasks":[{"issueNumber":%d,"title":%q,"priority":"P2"}]}`,
		eventTimestamp, issue, title)
}

func startedBody(agent string, issue int) string {
	return fmt.Sprintf(
		`{"eventType":"started","timestamp":%q,"agentId":%q,"issueNumber":%d}`,
		eventTimestamp, agent, issue)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestSubmitEventAccepted(t *testing.T) {
	srv, board := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/events", discoveredBody(100, "fix login"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, float64(1), body["sequence"])
	assert.Equal(t, "task:discovered", body["eventType"])

	assert.Contains(t, board.CurrentGraph().Nodes, "issue-100")
}

func TestSubmitEventRejected(t *testing.T) {
	srv, board := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/events",
		`{"eventType":"progress","timestamp":"2026-08-28T10:00:00Z","agentId":"intern","issueNumber":1,"progress":250}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["accepted"])
	assert.NotEmpty(t, body["errors"])
	assert.Equal(t, uint64(0), board.Sequence())
}

func TestSubmitEventMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/events", `{"eventType":`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGraphEndpointIncludesLayout(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/events", discoveredBody(100, "a"))
	postJSON(t, srv.URL+"/api/events", startedBody("codegen", 100))

	resp, err := http.Get(srv.URL + "/api/graph")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sequence uint64             `json:"sequence"`
		Nodes    []json.RawMessage  `json:"nodes"`
		Bounds   map[string]float64 `json:"bounds"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint64(2), body.Sequence)
	assert.Len(t, body.Nodes, 2)
	assert.Greater(t, body.Bounds["width"], 0.0)
}

func TestAgentsEndpointSorted(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/events", discoveredBody(100, "a"))
	postJSON(t, srv.URL+"/api/events", startedBody("test", 100))
	postJSON(t, srv.URL+"/api/events", startedBody("codegen", 100))

	resp, err := http.Get(srv.URL + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Agents []struct {
			AgentID string `json:"agentId"`
			Status  string `json:"status"`
		} `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Agents, 2)
	assert.Equal(t, "codegen", body.Agents[0].AgentID)
	assert.Equal(t, "test", body.Agents[1].AgentID)
}

func TestQueryJQ(t *testing.T) {
	srv, _ := newTestServer(t)
	postJSON(t, srv.URL+"/api/events", discoveredBody(100, "fix login"))

	resp := postJSON(t, srv.URL+"/api/query",
		`{"expression":".nodes[\"issue-100\"].issue.title"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "jq", body["engine"])
	assert.Equal(t, "fix login", body["result"])
}

func TestQueryExprEngine(t *testing.T) {
	srv, _ := newTestServer(t)
	postJSON(t, srv.URL+"/api/events", discoveredBody(100, "a"))

	resp := postJSON(t, srv.URL+"/api/query",
		`{"engine":"expr","expression":"len(nodes) == 1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "expr", body["engine"])
	assert.Equal(t, true, body["result"])
}

func TestQueryUnknownEngine(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/query", `{"engine":"sql","expression":"1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryBadExpression(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/query", `{"expression":".nodes |"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSSEStreamsUpdates(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/sse/events?types=task:discovered", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		time.Sleep(100 * time.Millisecond)
		// The started event does not match the type filter and must be skipped.
		for _, body := range []string{startedBody("codegen", 1), discoveredBody(100, "streamed")} {
			r, err := http.Post(srv.URL+"/api/events", "application/json", strings.NewReader(body))
			if err == nil {
				r.Body.Close()
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}
	require.Equal(t, "event: task:discovered", eventLine)

	var update streaming.Update
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &update))
	assert.Equal(t, uint64(2), update.Sequence)
	require.NotNil(t, update.Graph)
	assert.Contains(t, update.Graph.Nodes, "issue-100")
}

func TestSSERejectsBadFilterExpression(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/sse/events?expr=" + "1%20%2B")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketStreamsUpdates(t *testing.T) {
	srv, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	postJSON(t, srv.URL+"/api/events", discoveredBody(7, "over websocket"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var update streaming.Update
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, uint64(1), update.Sequence)
	require.NotNil(t, update.Graph)
	assert.Contains(t, update.Graph.Nodes, "issue-7")
}

func TestWebSocketIngest(t *testing.T) {
	srv, board := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(discoveredBody(8, "over the socket"))))

	// Expect an ack and the resulting update, in either order.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ack, update map[string]any
	for range 2 {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == "ack" {
			ack = frame
		} else {
			update = frame
		}
	}
	require.NotNil(t, ack)
	assert.Equal(t, true, ack["accepted"])
	assert.Equal(t, float64(1), ack["sequence"])
	require.NotNil(t, update)
	assert.Equal(t, float64(1), update["sequence"])

	assert.Contains(t, board.CurrentGraph().Nodes, "issue-8")
}

func TestWebSocketIngestRejectsInvalid(t *testing.T) {
	srv, board := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"eventType":"nonsense"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, false, ack["accepted"])
	assert.NotEmpty(t, ack["errors"])
	assert.Equal(t, uint64(0), board.Sequence())
}

func TestSubmitEventPayloadTooLarge(t *testing.T) {
	srv, _ := newTestServer(t)

	huge := bytes.Repeat([]byte("x"), maxEventBytes+10)
	resp, err := http.Post(srv.URL+"/api/events", "application/json", bytes.NewReader(huge))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}
