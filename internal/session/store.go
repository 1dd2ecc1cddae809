package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"appgen_server/internal/preview"
	"appgen_server/internal/types"
)

// Status is a read-only view of a server-side session.
type Status struct {
	ID        string         `json:"sessionId"`
	AppName   string         `json:"appName"`
	State     State          `json:"state"`
	Files     int            `json:"files"`
	Error     string         `json:"error,omitempty"`
	Preview   preview.Result `json:"preview"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Session is the server's record of one generation. It follows the relay
// and owns the preview renderer for that generation.
type Session struct {
	ID        string
	AppName   string
	CreatedAt time.Time
	Renderer  *preview.Renderer

	mu          sync.RWMutex
	machine     Machine
	files       []types.GeneratedFile
	errMsg      string
	updatedAt   time.Time
	lastPreview preview.Result
	nextSub     int
	subscribers map[int]chan preview.Result
	closed      bool
	cancel      context.CancelFunc
}

func newSession(appName string) *Session {
	now := time.Now()
	return &Session{
		ID:          uuid.New().String(),
		AppName:     appName,
		CreatedAt:   now,
		Renderer:    preview.NewRenderer(),
		updatedAt:   now,
		lastPreview: preview.Result{State: preview.StateLoading},
		subscribers: make(map[int]chan preview.Result),
	}
}

// Transition moves the session's state machine.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = time.Now()
	return s.machine.Transition(to)
}

// Progress records the latest snapshot and refreshes the preview.
func (s *Session) Progress(files []types.GeneratedFile, buffer string) {
	res := s.Renderer.Update(files, buffer)

	s.mu.Lock()
	if len(files) > 0 {
		s.files = files
	}
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.publish(res)
}

// Finished records the terminal event of the relay.
func (s *Session) Finished(ev types.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = time.Now()
	if ev.Type == types.EventComplete {
		s.files = ev.Files
		if err := s.machine.Transition(StateReviewing); err != nil {
			log.Printf("WARN: session %s: %v", s.ID, err)
		}
		return
	}
	s.errMsg = ev.Error
}

// HandlePreviewMessage applies a message relayed from the preview document.
func (s *Session) HandlePreviewMessage(raw []byte) bool {
	if !s.Renderer.HandleMessage(raw) {
		return false
	}
	s.publish(s.Renderer.Snapshot())
	return true
}

// Start derives the context the session's generation runs under. Cancel
// and Store.Delete cancel it.
func (s *Session) Start(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
	}
	s.cancel = cancel
	return ctx, cancel
}

// Cancel stops the generation started with Start, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Subscribe returns a channel of preview changes and a cancel function.
// The current preview is delivered first. A discarded session returns a
// closed channel.
func (s *Session) Subscribe() (<-chan preview.Result, func()) {
	ch := make(chan preview.Result, 8)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	ch <- s.Renderer.Snapshot()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}

func (s *Session) publish(res preview.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !res.Changed && res.State == s.lastPreview.State && sameError(res.Error, s.lastPreview.Error) {
		return
	}
	s.lastPreview = res
	for _, ch := range s.subscribers {
		select {
		case ch <- res:
		default:
			// Subscriber is behind; it will catch up on the next change.
		}
	}
}

func sameError(a, b *preview.Error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Files returns the latest file snapshot.
func (s *Session) Files() []types.GeneratedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		ID:        s.ID,
		AppName:   s.AppName,
		State:     s.machine.State(),
		Files:     len(s.files),
		Error:     s.errMsg,
		Preview:   s.Renderer.Snapshot(),
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) lastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

// Store keeps sessions in memory until they have been idle for ttl.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewStore starts a janitor that runs until ctx is cancelled.
func NewStore(ctx context.Context, ttl time.Duration) *Store {
	st := &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
	if ttl > 0 {
		go st.janitor(ctx)
	}
	return st
}

// Create registers a new session in the validating state.
func (st *Store) Create(appName string) *Session {
	s := newSession(appName)
	_ = s.machine.Transition(StateValidating)

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return s, nil
}

// Delete drops the session, cancels its generation and closes its
// subscribers.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok {
		s.Cancel()
		s.closeSubscribers()
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions idle since before cutoff and returns how many.
func (st *Store) Sweep(cutoff time.Time) int {
	st.mu.RLock()
	var expired []string
	for id, s := range st.sessions {
		if s.lastActive().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	st.mu.RUnlock()

	for _, id := range expired {
		st.Delete(id)
	}
	return len(expired)
}

func (st *Store) janitor(ctx context.Context) {
	ticker := time.NewTicker(st.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := st.Sweep(now.Add(-st.ttl)); n > 0 {
				log.Printf("Expired %d idle sessions", n)
			}
		}
	}
}
