package api

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appgen_server/internal/ai"
	"appgen_server/internal/preview"
	"appgen_server/internal/relay"
	"appgen_server/internal/session"
	"appgen_server/internal/types"
)

type scriptedStream struct {
	chunks []string
	err    error
}

func (s *scriptedStream) Recv() (string, error) {
	if len(s.chunks) > 0 {
		c := s.chunks[0]
		s.chunks = s.chunks[1:]
		return c, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error { return nil }

type scriptedStreamer struct {
	chunks []string
	err    error
}

func (s scriptedStreamer) StreamAppFiles(ctx context.Context, appName, description string) (ai.ChunkStream, error) {
	return &scriptedStream{chunks: append([]string(nil), s.chunks...), err: s.err}, nil
}

// blockingStream yields one chunk and then waits until its generation is
// cancelled.
type blockingStream struct {
	ctx       context.Context
	sent      bool
	cancelled chan struct{}
}

func (s *blockingStream) Recv() (string, error) {
	if !s.sent {
		s.sent = true
		return `[{"filePath": "frontend/src/App.jsx", `, nil
	}
	select {
	case <-s.ctx.Done():
		close(s.cancelled)
		return "", s.ctx.Err()
	case <-time.After(5 * time.Second):
		return "", io.EOF
	}
}

func (s *blockingStream) Close() error { return nil }

type blockingStreamer struct{ cancelled chan struct{} }

func (s blockingStreamer) StreamAppFiles(ctx context.Context, appName, description string) (ai.ChunkStream, error) {
	return &blockingStream{ctx: ctx, cancelled: s.cancelled}, nil
}

func todoFiles() []types.GeneratedFile {
	return []types.GeneratedFile{
		{FilePath: "frontend/src/App.jsx", Content: "import React, { useState } from 'react';\n\nexport default function App() {\n  const [tasks] = useState([]);\n  return <h1>Todo App {tasks.length}</h1>;\n}\n"},
		{FilePath: "backend/server.js", Content: "const express = require('express');\nconst app = express();\napp.listen(3001);\n"},
		{FilePath: "database/schema.sql", Content: "CREATE TABLE tasks (id INT PRIMARY KEY);"},
		{FilePath: "package.json", Content: `{"name":"todo-app"}`},
		{FilePath: ".env.example", Content: "PORT=3001"},
		{FilePath: "README.md", Content: "# Todo App\n\nTrack tasks."},
	}
}

func split(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func newTestRouter(streamer relay.Streamer) (*gin.Engine, *session.Store) {
	gin.SetMode(gin.TestMode)
	store := session.NewStore(context.Background(), 0)
	router := gin.New()
	RegisterRoutes(router, NewAPIHandler(streamer, store))
	return router, store
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func readEvents(t *testing.T, body io.Reader) []types.StreamEvent {
	t.Helper()
	var events []types.StreamEvent
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev types.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

// fakeOpenAI streams content as chat completion chunks.
func fakeOpenAI(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range split(content, 24) {
			payload, _ := json.Marshal(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": d}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestGenerateValidation(t *testing.T) {
	router, store := newTestRouter(scriptedStreamer{})
	tests := []struct {
		name string
		body any
	}{
		{"empty body", map[string]string{}},
		{"blank name", map[string]string{"appName": "   ", "description": "track tasks"}},
		{"blank description", map[string]string{"appName": "Todo App", "description": "\n\t"}},
		{"wrong types", map[string]any{"appName": 3, "description": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/api/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"App name and description are required"}`, w.Body.String())
		})
	}
	assert.Equal(t, 0, store.Len())
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	router, _ := newTestRouter(nil)
	w := postJSON(t, router, "/api/generate", map[string]string{"appName": "Todo App", "description": "track tasks"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"API key not configured"}`, w.Body.String())
}

func TestGenerateTodoAppEndToEnd(t *testing.T) {
	doc, err := json.Marshal(todoFiles())
	require.NoError(t, err)
	upstream := fakeOpenAI(t, "```json\n"+string(doc)+"\n```")
	defer upstream.Close()

	gen := ai.NewGenerator("test-key", ai.Options{BaseURL: upstream.URL, Model: "test-model"})
	router, _ := newTestRouter(gen)

	w := postJSON(t, router, "/api/generate", map[string]string{"appName": " Todo App ", "description": "track tasks"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	id := w.Header().Get("X-Session-ID")
	require.NotEmpty(t, id)

	events := readEvents(t, w.Body)
	require.NotEmpty(t, events)
	var text string
	last := 0
	terminals := 0
	for _, ev := range events {
		text += ev.Chunk
		if ev.Type == types.EventPartial {
			assert.GreaterOrEqual(t, len(ev.Files), last)
			last = len(ev.Files)
		}
		if ev.IsTerminal() {
			terminals++
		}
	}
	assert.Equal(t, "```json\n"+string(doc)+"\n```", text)
	assert.Equal(t, 1, terminals)
	final := events[len(events)-1]
	require.Equal(t, types.EventComplete, final.Type)
	assert.Equal(t, todoFiles(), final.Files)

	// Session
	w = get(router, "/api/session/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	var status session.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, session.StateReviewing, status.State)
	assert.Equal(t, "Todo App", status.AppName)
	assert.Equal(t, 6, status.Files)
	assert.Equal(t, preview.StateReady, status.Preview.State)

	// Preview
	w = get(router, "/api/preview/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sandbox allow-scripts", w.Header().Get("Content-Security-Policy"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Todo App {tasks.length}")
	assert.NotContains(t, w.Body.String(), "import React")

	// Review
	w = postJSON(t, router, "/api/review", map[string]string{"sessionId": id})
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		AppName string `json:"appName"`
		Buckets struct {
			Frontend []types.GeneratedFile `json:"frontend"`
			Backend  []types.GeneratedFile `json:"backend"`
			Database []types.GeneratedFile `json:"database"`
		} `json:"buckets"`
		Missing    []string `json:"missing"`
		ReadmeHTML string   `json:"readmeHtml"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "Todo App", summary.AppName)
	assert.Len(t, summary.Buckets.Frontend, 2)
	assert.Len(t, summary.Buckets.Backend, 1)
	assert.Len(t, summary.Buckets.Database, 1)
	assert.Empty(t, summary.Missing)
	assert.Contains(t, summary.ReadmeHTML, "<h1>Todo App</h1>")

	// Export
	w = postJSON(t, router, "/api/export", map[string]string{"sessionId": id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Regexp(t, `attachment; filename="Todo_App_generated_app_\d+\.zip"`, w.Header().Get("Content-Disposition"))
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{
		"frontend/src/App.jsx", "backend/server.js", "database/schema.sql",
		"package.json", ".env.example", "README.md",
	}, names)
}

func TestGenerateRateLimited(t *testing.T) {
	router, store := newTestRouter(scriptedStreamer{
		chunks: []string{`[{"filePath": "frontend/src/App.jsx", "content": "function App`},
		err:    fmt.Errorf("stream recv: %w", fmt.Errorf("rate limited")),
	})
	w := postJSON(t, router, "/api/generate", map[string]string{"appName": "Todo App", "description": "track tasks"})
	require.Equal(t, http.StatusOK, w.Code)

	events := readEvents(t, w.Body)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].Chunk)
	assert.Equal(t, types.EventError, events[1].Type)
	assert.Equal(t, "rate limited", events[1].Error)

	sess, err := store.Get(w.Header().Get("X-Session-ID"))
	require.NoError(t, err)
	assert.Equal(t, "rate limited", sess.Status().Error)
	assert.Equal(t, session.StateStreaming, sess.Status().State)
}

func TestGenerateParseError(t *testing.T) {
	router, _ := newTestRouter(scriptedStreamer{chunks: []string{"Sorry, I cannot help with that."}})
	w := postJSON(t, router, "/api/generate", map[string]string{"appName": "x", "description": "y"})
	events := readEvents(t, w.Body)
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.Equal(t, types.EventError, final.Type)
	assert.True(t, strings.HasPrefix(final.Error, "Parse error:"), final.Error)
	assert.Equal(t, "Sorry, I cannot help with that.", final.Excerpt)
}

func TestPreviewStates(t *testing.T) {
	router, store := newTestRouter(nil)

	w := get(router, "/api/preview/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)

	sess := store.Create("Todo App")
	w = get(router, "/api/preview/"+sess.ID)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"state":"loading"}`, w.Body.String())

	sess.Progress([]types.GeneratedFile{{FilePath: "src/App.jsx", Content: "import './x.css';\n"}}, "")
	w = get(router, "/api/preview/"+sess.ID)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"error"`)
	assert.Contains(t, w.Body.String(), `"type":"parse"`)
}

func TestPreviewEventsWebsocket(t *testing.T) {
	router, store := newTestRouter(nil)
	srv := httptest.NewServer(router)
	defer srv.Close()
	sess := store.Create("Todo App")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/preview/" + sess.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg PreviewStateResponse
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, preview.StateLoading, msg.State)

	sess.Progress([]types.GeneratedFile{{FilePath: "src/App.jsx", Content: "function App() { return null }"}}, "")
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, preview.StateReady, msg.State)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"preview-error","error":{"message":"x is not defined","type":"runtime"}}`)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, preview.StateError, msg.State)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "x is not defined", msg.Error.Message)
	assert.Equal(t, preview.ErrorRuntime, msg.Error.Type)
}

func TestExportDirectFiles(t *testing.T) {
	router, _ := newTestRouter(nil)
	w := postJSON(t, router, "/api/export", FilesRequest{
		AppName: "Todo App",
		Files:   []types.GeneratedFile{{FilePath: "frontend/src/App.jsx", Content: "x"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 4)
}

func TestExportAndReviewErrors(t *testing.T) {
	router, _ := newTestRouter(nil)
	for _, path := range []string{"/api/export", "/api/review"} {
		t.Run(path, func(t *testing.T) {
			w := postJSON(t, router, path, FilesRequest{AppName: "x"})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "No files available")

			w = postJSON(t, router, path, FilesRequest{SessionID: "nope"})
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestDeleteSession(t *testing.T) {
	router, store := newTestRouter(nil)
	sess := store.Create("x")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/session/"+sess.ID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/api/session/"+sess.ID).Code)
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(nil)
	w := get(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDeleteSessionCancelsGeneration(t *testing.T) {
	cancelled := make(chan struct{})
	router, store := newTestRouter(blockingStreamer{cancelled: cancelled})
	srv := httptest.NewServer(router)
	defer srv.Close()

	payload, err := json.Marshal(GenerateRequest{AppName: "Todo App", Description: "track tasks"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/generate", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	id := resp.Header.Get("X-Session-ID")
	require.NotEmpty(t, id)

	body := bufio.NewReader(resp.Body)
	first, err := body.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first, "data: "), first)
	var chunk types.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(first), "data: ")), &chunk))
	assert.NotEmpty(t, chunk.Chunk)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/session/"+id, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream stream was not cancelled")
	}

	events := readEvents(t, body)
	for _, ev := range events {
		assert.False(t, ev.IsTerminal(), "unexpected terminal event %+v", ev)
	}
	_, err = store.Get(id)
	assert.Error(t, err)
}
