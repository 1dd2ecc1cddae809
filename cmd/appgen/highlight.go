package main

import (
	"io"
	"strings"

	"github.com/fatih/color"
)

type tokenClass int

const (
	classPlain tokenClass = iota
	classBracket
	classKey
	classPath
	classString
	classLiteral
)

// Colors for streamed JSON
var (
	colorBracket = color.New(color.FgHiBlack)
	colorKey     = color.New(color.FgMagenta)
	colorPath    = color.New(color.FgYellow, color.Bold)
	colorString  = color.New(color.FgGreen)
	colorLiteral = color.New(color.FgHiRed)
)

func paintClass(cls tokenClass, s string) string {
	switch cls {
	case classBracket:
		return colorBracket.Sprint(s)
	case classKey:
		return colorKey.Sprint(s)
	case classPath:
		return colorPath.Sprint(s)
	case classString:
		return colorString.Sprint(s)
	case classLiteral:
		return colorLiteral.Sprint(s)
	}
	return s
}

// Highlighter colours a JSON stream as it arrives. Tokens may be split
// across writes; the lexer state carries over.
type Highlighter struct {
	w     io.Writer
	paint func(tokenClass, string) string

	stack     []byte
	expectKey bool
	inString  bool
	escaped   bool
	strClass  tokenClass
	key       strings.Builder
	lastKey   string
}

func NewHighlighter(w io.Writer) *Highlighter {
	return &Highlighter{w: w, paint: paintClass}
}

func (h *Highlighter) Write(p []byte) (int, error) {
	var out strings.Builder
	start, cur := 0, classPlain
	for i, b := range p {
		cls := h.classify(b)
		if cls != cur && i > start {
			out.WriteString(h.paint(cur, string(p[start:i])))
			start = i
		}
		cur = cls
	}
	if start < len(p) {
		out.WriteString(h.paint(cur, string(p[start:])))
	}
	if _, err := io.WriteString(h.w, out.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h *Highlighter) classify(b byte) tokenClass {
	if h.inString {
		cls := h.strClass
		switch {
		case h.escaped:
			h.escaped = false
		case b == '\\':
			h.escaped = true
		case b == '"':
			h.inString = false
			if cls == classKey {
				h.lastKey = h.key.String()
				h.key.Reset()
			}
			return cls
		}
		if cls == classKey {
			h.key.WriteByte(b)
		}
		return cls
	}

	switch b {
	case '{', '[':
		h.stack = append(h.stack, b)
		h.expectKey = b == '{'
		return classBracket
	case '}', ']':
		if n := len(h.stack); n > 0 {
			h.stack = h.stack[:n-1]
		}
		h.expectKey = false
		return classBracket
	case ',':
		h.expectKey = h.inObject()
		return classPlain
	case ':':
		h.expectKey = false
		return classPlain
	case '"':
		if len(h.stack) == 0 {
			return classPlain
		}
		h.inString = true
		switch {
		case h.expectKey:
			h.strClass = classKey
		case h.lastKey == "filePath":
			h.strClass = classPath
		default:
			h.strClass = classString
		}
		return h.strClass
	case ' ', '\t', '\r', '\n':
		return classPlain
	}
	if len(h.stack) > 0 {
		return classLiteral
	}
	return classPlain
}

func (h *Highlighter) inObject() bool {
	return len(h.stack) > 0 && h.stack[len(h.stack)-1] == '{'
}
