// Package extractor recovers the generated file list from the model's
// response while it is still streaming.
//
// The response is expected to be a JSON array of {filePath, content} records,
// but it arrives token by token and may be wrapped in code fences. Every parse
// attempt re-reads the whole buffer with a strict parser; a prefix that is not
// yet valid JSON simply yields nothing.
package extractor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/buger/jsonparser"

	"appgen_server/internal/types"
	"appgen_server/internal/utils"
)

// excerptLen bounds the raw response kept on a terminal parse failure.
const excerptLen = 500

// fencePattern matches a triple-backtick marker with an optional language tag
// and the whitespace that follows it, at the start of the input.
var fencePattern = regexp.MustCompile("^```[A-Za-z0-9_+-]*\\s*")

// ParseError is returned by Final when the completed response is not a
// non-empty JSON array.
type ParseError struct {
	Reason  string
	Excerpt string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// StripFences removes every fence marker from s that sits outside a JSON
// string literal. Fences inside file contents are kept verbatim.
func StripFences(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			i++
			continue
		}
		if c == '`' {
			if loc := fencePattern.FindStringIndex(s[i:]); loc != nil {
				i += loc[1]
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
		i++
	}
	return strings.TrimSpace(b.String())
}

// Parse attempts a strict parse of buffer. It returns false while the buffer
// is not a valid, non-empty array of file records.
func Parse(buffer string) ([]types.GeneratedFile, bool) {
	files, err := parse(buffer)
	if err != nil {
		return nil, false
	}
	return files, true
}

func parse(buffer string) ([]types.GeneratedFile, error) {
	cleaned := StripFences(buffer)
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &elems); err != nil {
		return nil, err
	}
	files := make([]types.GeneratedFile, 0, len(elems))
	for _, elem := range elems {
		path, err := jsonparser.GetString(elem, "filePath")
		if err != nil || path == "" {
			continue
		}
		// A missing content field is tolerated; the record is still usable.
		content, _ := jsonparser.GetString(elem, "content")
		files = append(files, types.GeneratedFile{FilePath: path, Content: content})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("invalid response format: expected a non-empty array of files")
	}
	return files, nil
}

// Extractor owns the accumulated response buffer of one generation.
type Extractor struct {
	buf     strings.Builder
	emitted int
}

func New() *Extractor {
	return &Extractor{}
}

// Write appends a chunk to the buffer.
func (e *Extractor) Write(chunk string) {
	e.buf.WriteString(chunk)
}

// Buffer returns everything written so far.
func (e *Extractor) Buffer() string {
	return e.buf.String()
}

// Partial returns the current snapshot only when it holds more files than
// the last snapshot it returned.
func (e *Extractor) Partial() ([]types.GeneratedFile, bool) {
	files, ok := Parse(e.buf.String())
	if !ok || len(files) <= e.emitted {
		return nil, false
	}
	e.emitted = len(files)
	return files, true
}

// Final parses the completed buffer. Its result is authoritative and does
// not depend on what Partial returned before.
func (e *Extractor) Final() ([]types.GeneratedFile, error) {
	raw := e.buf.String()
	files, err := parse(raw)
	if err != nil {
		return nil, &ParseError{Reason: err.Error(), Excerpt: utils.Excerpt(raw, excerptLen)}
	}
	e.emitted = len(files)
	return files, nil
}
