// Package preview builds a sandboxed live preview of the generated UI
// component from whatever part of the response has arrived.
package preview

import (
	"encoding/json"
	"errors"
	"sync"

	"appgen_server/internal/types"
)

// State is the lifecycle of a preview.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// ErrorKind says where a preview failure happened.
type ErrorKind string

const (
	// ErrorParse is a failure while assembling the component source.
	ErrorParse ErrorKind = "parse"
	// ErrorRuntime is a failure reported from inside the preview document.
	ErrorRuntime ErrorKind = "runtime"
)

// Error is a preview failure as shown to the user.
type Error struct {
	Message string    `json:"message"`
	Type    ErrorKind `json:"type"`
}

func (e *Error) Error() string {
	return string(e.Type) + ": " + e.Message
}

// Message is the envelope the preview document posts to its host.
type Message struct {
	Type  string `json:"type"`
	Error *Error `json:"error"`
}

// Result is a snapshot of the renderer.
type Result struct {
	State State  `json:"state"`
	Error *Error `json:"error,omitempty"`
	// Changed is set when Update produced a new document.
	Changed  bool   `json:"-"`
	Document string `json:"-"`
}

// Renderer keeps the preview of one generation. It only rebuilds the
// document when the component source changes.
type Renderer struct {
	mu       sync.Mutex
	lastCode string
	state    State
	err      *Error
	document string
}

func NewRenderer() *Renderer {
	return &Renderer{state: StateLoading}
}

// Update re-runs discovery against the latest file snapshot and raw buffer.
func (r *Renderer) Update(files []types.GeneratedFile, buffer string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	if f, ok := FindAppFile(files); ok && f.Content != "" {
		code = f.Content
	} else if buffer != "" {
		code, _ = ExtractFromStream(buffer)
	}

	if code == "" {
		if r.document == "" {
			r.state = StateLoading
		}
		return r.snapshot(false)
	}
	if code == r.lastCode {
		return r.snapshot(false)
	}
	r.lastCode = code

	doc, err := render(code)
	if err != nil {
		var perr *Error
		if !errors.As(err, &perr) {
			perr = &Error{Message: err.Error(), Type: ErrorParse}
		}
		r.state, r.err = StateError, perr
		return r.snapshot(false)
	}
	r.state, r.err, r.document = StateReady, nil, doc
	return r.snapshot(true)
}

func render(code string) (string, error) {
	prepared, err := PrepareComponentCode(code)
	if err != nil {
		return "", err
	}
	return BuildDocument(prepared)
}

// HandleMessage applies a message posted by the preview document. Only
// preview-error messages are recognised; anything else is ignored.
func (r *Renderer) HandleMessage(raw []byte) bool {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return false
	}
	if msg.Type != MessageType || msg.Error == nil {
		return false
	}
	kind := msg.Error.Type
	if kind == "" {
		kind = ErrorRuntime
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateError
	r.err = &Error{Message: msg.Error.Message, Type: kind}
	return true
}

// Snapshot returns the current state without re-rendering.
func (r *Renderer) Snapshot() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(false)
}

// Reset drops everything, as when a new generation starts.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCode, r.err, r.document = "", nil, ""
	r.state = StateLoading
}

func (r *Renderer) snapshot(changed bool) Result {
	return Result{State: r.state, Error: r.err, Changed: changed, Document: r.document}
}
