package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"appgen_server/internal/export"
	"appgen_server/internal/preview"
	"appgen_server/internal/relay"
	"appgen_server/internal/review"
	"appgen_server/internal/session"
	"appgen_server/internal/types"
)

// APIHandler holds dependencies for API endpoints.
type APIHandler struct {
	streamer relay.Streamer // nil when no upstream credential is configured
	store    *session.Store
	upgrader websocket.Upgrader
}

// NewAPIHandler initializes a new API handler with its dependencies.
func NewAPIHandler(streamer relay.Streamer, store *session.Store) *APIHandler {
	return &APIHandler{
		streamer: streamer,
		store:    store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Sandboxed preview documents have an opaque origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// --- Structs for API Requests/Responses ---

type GenerateRequest struct {
	AppName     string `json:"appName"`
	Description string `json:"description"`
}

// FilesRequest names a file list directly or through a session.
type FilesRequest struct {
	SessionID string                `json:"sessionId"`
	AppName   string                `json:"appName"`
	Files     []types.GeneratedFile `json:"files"`
}

type PreviewStateResponse struct {
	State preview.State  `json:"state"`
	Error *preview.Error `json:"error,omitempty"`
}

// --- API Handlers ---

// POST /api/generate
func (h *APIHandler) Generate(c *gin.Context) {
	if h.streamer == nil {
		log.Println("ERROR: generation requested but OPENAI_API_KEY is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API key not configured"})
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid generate request body: %v", err)
	}
	appName := strings.TrimSpace(req.AppName)
	description := strings.TrimSpace(req.Description)
	if appName == "" || description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "App name and description are required"})
		return
	}

	sess := h.store.Create(appName)
	if err := sess.Transition(session.StateStreaming); err != nil {
		log.Printf("ERROR: session %s: %v", sess.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start generation"})
		return
	}
	ctx, cancel := sess.Start(c.Request.Context())
	defer cancel()
	log.Printf("Received generation request for %q (session %s)", appName, sess.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Session-ID", sess.ID)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	emit := func(ev types.StreamEvent) error {
		return writeSSE(c.Writer, ev)
	}
	run := relay.Request{AppName: appName, Description: description}
	err := relay.Run(ctx, h.streamer, run, emit, sess)
	if err != nil {
		log.Printf("Generation stream for session %s ended early: %v", sess.ID, err)
		return
	}
	log.Printf("Generation stream for session %s closed", sess.ID)
}

func writeSSE(w gin.ResponseWriter, ev types.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	w.Flush()
	return nil
}

// GET /api/session/:id
func (h *APIHandler) SessionStatus(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Status())
}

// DELETE /api/session/:id
func (h *APIHandler) DeleteSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	h.store.Delete(sess.ID)
	log.Printf("Session %s discarded", sess.ID)
	c.Status(http.StatusNoContent)
}

// GET /api/preview/:id
func (h *APIHandler) Preview(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	res := sess.Renderer.Snapshot()
	switch res.State {
	case preview.StateLoading:
		c.JSON(http.StatusAccepted, PreviewStateResponse{State: res.State})
		return
	case preview.StateError:
		c.JSON(http.StatusUnprocessableEntity, PreviewStateResponse{State: res.State, Error: res.Error})
		return
	}
	c.Header("Content-Security-Policy", "sandbox allow-scripts")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(res.Document))
}

// GET /api/preview/:id/events
func (h *APIHandler) PreviewEvents(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := sess.Subscribe()
	defer cancel()

	// Read goroutine - forwards messages posted by the preview document
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(64 * 1024)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket %s read error: %v", sess.ID, err)
				}
				return
			}
			if !sess.HandlePreviewMessage(raw) {
				log.Printf("WebSocket %s: ignored preview message", sess.ID)
			}
		}
	}()

	// Write loop - pushes preview state changes
	for {
		select {
		case res, open := <-updates:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(PreviewStateResponse{State: res.State, Error: res.Error}); err != nil {
				log.Printf("WebSocket %s write error: %v", sess.ID, err)
				return
			}
		case <-readDone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// POST /api/review
func (h *APIHandler) Review(c *gin.Context) {
	appName, files, ok := h.resolveFiles(c)
	if !ok {
		return
	}
	readme := export.BuildScaffold(appName, files).Readme
	summary, err := review.Summarize(appName, files, readme)
	if err != nil {
		log.Printf("Error building review for %q: %v", appName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build review"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// POST /api/export
func (h *APIHandler) Export(c *gin.Context) {
	appName, files, ok := h.resolveFiles(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if _, err := export.WriteZip(&buf, appName, files); err != nil {
		log.Printf("Error exporting %q: %v", appName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build archive"})
		return
	}
	fileName := export.FileName(appName, time.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// --- Helpers ---

func (h *APIHandler) lookupSession(c *gin.Context) (*session.Session, bool) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return sess, true
}

const noFilesMessage = "No files available to export. Please generate an application first."

// resolveFiles reads a FilesRequest, preferring the session's own files.
func (h *APIHandler) resolveFiles(c *gin.Context) (string, []types.GeneratedFile, bool) {
	var req FilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return "", nil, false
	}
	appName, files := strings.TrimSpace(req.AppName), req.Files
	if req.SessionID != "" {
		sess, err := h.store.Get(req.SessionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return "", nil, false
		}
		if len(files) == 0 {
			files = sess.Files()
		}
		if appName == "" {
			appName = sess.AppName
		}
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": noFilesMessage})
		return "", nil, false
	}
	if appName == "" {
		appName = "app"
	}
	return appName, files, true
}
