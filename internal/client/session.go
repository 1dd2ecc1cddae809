package client

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"

	"appgen_server/internal/preview"
	"appgen_server/internal/session"
	"appgen_server/internal/types"
)

// filePathPattern spots a record's path as soon as it has streamed in.
var filePathPattern = regexp.MustCompile(`"filePath"\s*:\s*"([^"]+)"`)

// A path can straddle two chunks, so each scan re-reads this many bytes of
// the previous buffer.
const pathScanOverlap = 512

type FileStatus string

const (
	FileGenerating FileStatus = "generating"
	FileComplete   FileStatus = "complete"
)

type FileProgress struct {
	Path   string
	Status FileStatus
}

// Hooks are optional callbacks fired while a generation runs. They are
// called on the Run goroutine and must not call Reset.
type Hooks struct {
	OnChunk   func(text string)
	OnFile    func(path string)
	OnFiles   func(files []types.GeneratedFile)
	OnPreview func(res preview.Result)
	OnState   func(state session.State)
}

// ValidationError lists the inputs that are missing.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, 2)
	for _, key := range []string{"appName", "description"} {
		if m, ok := e.Fields[key]; ok {
			msgs = append(msgs, m)
		}
	}
	return strings.Join(msgs, "; ")
}

// GenerationError is a failure reported by the server or the transport.
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string { return e.Message }

func (e *GenerationError) Unwrap() error { return e.Err }

// Session owns one generation on the host side: inputs, the accumulated
// stream, the latest files and the local preview.
type Session struct {
	AppName     string
	Description string
	ServerID    string

	hooks       Hooks
	machine     session.Machine
	buffer      strings.Builder
	scanned     int
	files       []types.GeneratedFile
	currentFile string
	progress    []FileProgress
	renderer    *preview.Renderer
	lastPreview preview.Result
	errMsg      string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(hooks Hooks) *Session {
	return &Session{
		hooks:       hooks,
		renderer:    preview.NewRenderer(),
		lastPreview: preview.Result{State: preview.StateLoading},
	}
}

func (s *Session) setState(to session.State) error {
	if err := s.machine.Transition(to); err != nil {
		return err
	}
	if s.hooks.OnState != nil {
		s.hooks.OnState(to)
	}
	return nil
}

// Validate starts a new generation with the given inputs. Any previous
// generation is discarded. On failure the session is back to idle.
func (s *Session) Validate(appName, description string) error {
	s.Reset()
	if err := s.setState(session.StateValidating); err != nil {
		return err
	}

	fields := map[string]string{}
	if strings.TrimSpace(appName) == "" {
		fields["appName"] = "App name required"
	}
	if strings.TrimSpace(description) == "" {
		fields["description"] = "Description required"
	}
	if len(fields) > 0 {
		s.Reset()
		return &ValidationError{Fields: fields}
	}
	s.AppName = strings.TrimSpace(appName)
	s.Description = strings.TrimSpace(description)
	return nil
}

// Run streams the validated generation from c and applies each event in
// order. A cancelled ctx or a concurrent Reset stops the run without
// recording an error.
func (s *Session) Run(ctx context.Context, c *Client) error {
	if err := s.setState(session.StateStreaming); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel, s.done = cancel, done
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		if s.done == done {
			s.cancel, s.done = nil, nil
		}
		s.mu.Unlock()
		close(done)
	}()

	stream, err := c.Stream(ctx, s.AppName, s.Description)
	if err != nil {
		return s.fail(ctx, err)
	}
	defer stream.Close()
	s.ServerID = stream.SessionID

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return s.fail(ctx, errors.New("stream ended before the generation completed"))
		}
		if err != nil {
			return s.fail(ctx, err)
		}
		done, err := s.apply(ev)
		if done || err != nil {
			return err
		}
	}
}

func (s *Session) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	s.errMsg = err.Error()
	return &GenerationError{Message: s.errMsg, Err: err}
}

// apply handles one event and reports whether it was terminal.
func (s *Session) apply(ev types.StreamEvent) (bool, error) {
	if ev.Error != "" || ev.Type == types.EventError {
		s.errMsg = ev.Error
		return true, &GenerationError{Message: ev.Error}
	}

	if ev.Chunk != "" {
		s.buffer.WriteString(ev.Chunk)
		if s.hooks.OnChunk != nil {
			s.hooks.OnChunk(ev.Chunk)
		}
		s.trackFiles()
	}

	switch ev.Type {
	case types.EventPartial:
		s.setFiles(ev.Files)
	case types.EventComplete:
		s.setFiles(ev.Files)
		s.completeProgress()
		s.refreshPreview()
		return true, s.setState(session.StateReviewing)
	}
	s.refreshPreview()
	return false, nil
}

func (s *Session) setFiles(files []types.GeneratedFile) {
	if len(files) == 0 {
		return
	}
	s.files = files
	if s.hooks.OnFiles != nil {
		s.hooks.OnFiles(files)
	}
}

// trackFiles records paths that appeared since the last scan. The previous
// file is complete once the next one starts.
func (s *Session) trackFiles() {
	buf := s.buffer.String()
	from := s.scanned - pathScanOverlap
	if from < 0 {
		from = 0
	}
	for _, m := range filePathPattern.FindAllStringSubmatchIndex(buf[from:], -1) {
		path := buf[from+m[2] : from+m[3]]
		if s.hasProgress(path) {
			continue
		}
		if n := len(s.progress); n > 0 {
			s.progress[n-1].Status = FileComplete
		}
		s.progress = append(s.progress, FileProgress{Path: path, Status: FileGenerating})
		s.currentFile = path
		if s.hooks.OnFile != nil {
			s.hooks.OnFile(path)
		}
	}
	s.scanned = len(buf)
}

func (s *Session) hasProgress(path string) bool {
	for _, p := range s.progress {
		if p.Path == path {
			return true
		}
	}
	return false
}

func (s *Session) completeProgress() {
	for _, f := range s.files {
		if !s.hasProgress(f.FilePath) {
			s.progress = append(s.progress, FileProgress{Path: f.FilePath})
		}
	}
	for i := range s.progress {
		s.progress[i].Status = FileComplete
	}
	s.currentFile = ""
}

func (s *Session) refreshPreview() {
	res := s.renderer.Update(s.files, s.buffer.String())
	if !res.Changed && res.State == s.lastPreview.State {
		return
	}
	s.lastPreview = res
	if s.hooks.OnPreview != nil {
		s.hooks.OnPreview(res)
	}
}

// Reset cancels a generation in flight, waits for its Run to return, then
// discards everything and returns to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	s.machine.Reset()
	s.AppName, s.Description, s.ServerID = "", "", ""
	s.buffer.Reset()
	s.scanned = 0
	s.files = nil
	s.currentFile = ""
	s.progress = nil
	s.renderer.Reset()
	s.lastPreview = preview.Result{State: preview.StateLoading}
	s.errMsg = ""
}

func (s *Session) State() session.State { return s.machine.State() }

func (s *Session) Buffer() string { return s.buffer.String() }

func (s *Session) Files() []types.GeneratedFile { return s.files }

func (s *Session) CurrentFile() string { return s.currentFile }

func (s *Session) Progress() []FileProgress { return append([]FileProgress(nil), s.progress...) }

func (s *Session) Preview() preview.Result { return s.renderer.Snapshot() }

// Err is the last failure message exactly as reported.
func (s *Session) Err() string { return s.errMsg }
