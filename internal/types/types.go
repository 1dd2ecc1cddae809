package types

// GeneratedFile is one {filePath, content} record of the model's JSON array.
// Paths are relative and forward-slash separated. Duplicates are tolerated;
// consumers resolve them first-match-wins.
type GeneratedFile struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// EventType tags the non-chunk stream events.
type EventType string

const (
	EventPartial  EventType = "partial"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is the payload of one `data:` frame on the generation stream.
// A chunk event only carries Chunk; the other kinds set Type.
type StreamEvent struct {
	Chunk string          `json:"chunk,omitempty"`
	Type  EventType       `json:"type,omitempty"`
	Files []GeneratedFile `json:"files,omitempty"`
	Error string          `json:"error,omitempty"`
	// Excerpt holds the head of the raw response when extraction failed.
	Excerpt string `json:"excerpt,omitempty"`
}

func ChunkEvent(text string) StreamEvent {
	return StreamEvent{Chunk: text}
}

func PartialEvent(files []GeneratedFile) StreamEvent {
	return StreamEvent{Type: EventPartial, Files: files}
}

func CompleteEvent(files []GeneratedFile) StreamEvent {
	return StreamEvent{Type: EventComplete, Files: files}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Error: message}
}

// IsTerminal reports whether no further events may follow this one.
func (e StreamEvent) IsTerminal() bool {
	return e.Error != "" || e.Type == EventError || e.Type == EventComplete
}
