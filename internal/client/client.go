// Package client talks to the generation server: it opens the event stream
// and calls the review and export endpoints.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"appgen_server/internal/review"
	"appgen_server/internal/types"
)

// Client struct to interact with the generation server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. The HTTP client has
// no overall timeout because generation streams are long-lived; use the
// request context instead.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// HTTPError is a non-success response from the server.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func newHTTPError(resp *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(body))
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: payload.Error}
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to send request to %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, newHTTPError(resp)
	}
	return resp, nil
}

// EventStream reads the `data:` frames of a generation response in order.
type EventStream struct {
	// SessionID identifies the server-side session of this generation.
	SessionID string

	ctx    context.Context
	body   io.ReadCloser
	reader *bufio.Reader
}

// Stream starts a generation.
func (c *Client) Stream(ctx context.Context, appName, description string) (*EventStream, error) {
	log.Printf("Requesting generation of %q from %s", appName, c.baseURL)
	resp, err := c.post(ctx, "/api/generate", map[string]string{
		"appName":     appName,
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	return &EventStream{
		SessionID: resp.Header.Get("X-Session-ID"),
		ctx:       ctx,
		body:      resp.Body,
		reader:    bufio.NewReaderSize(resp.Body, 64*1024),
	}, nil
}

// Next returns the next event. Frames that do not decode are skipped. It
// returns io.EOF when the server closes the stream and the context's error
// once it is cancelled.
func (s *EventStream) Next() (types.StreamEvent, error) {
	var data strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if s.ctx.Err() != nil {
			return types.StreamEvent{}, s.ctx.Err()
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return types.StreamEvent{}, fmt.Errorf("failed to read event stream: %w", err)
		}
		eof := err != nil

		// Comments and fields other than data are ignored.
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "data:") {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if (line == "" || eof) && data.Len() > 0 {
			var ev types.StreamEvent
			jsonErr := json.Unmarshal([]byte(data.String()), &ev)
			if jsonErr == nil {
				return ev, nil
			}
			log.Printf("Skipping malformed event frame: %v", jsonErr)
			data.Reset()
		}
		if eof {
			return types.StreamEvent{}, io.EOF
		}
	}
}

func (s *EventStream) Close() error {
	return s.body.Close()
}

type filesRequest struct {
	SessionID string                `json:"sessionId,omitempty"`
	AppName   string                `json:"appName,omitempty"`
	Files     []types.GeneratedFile `json:"files,omitempty"`
}

// Review fetches the review of a session's files.
func (c *Client) Review(ctx context.Context, sessionID string) (review.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.post(ctx, "/api/review", filesRequest{SessionID: sessionID})
	if err != nil {
		return review.Summary{}, err
	}
	defer resp.Body.Close()

	var summary review.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return review.Summary{}, fmt.Errorf("failed to decode review: %w", err)
	}
	return summary, nil
}

// Export downloads the archive of a session and returns it with the file
// name the server chose.
func (c *Client) Export(ctx context.Context, sessionID string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := c.post(ctx, "/api/export", filesRequest{SessionID: sessionID})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read archive: %w", err)
	}
	name := "generated_app.zip"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	log.Printf("Downloaded %s (%d bytes)", name, len(data))
	return data, name, nil
}
