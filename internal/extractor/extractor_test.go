package extractor

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appgen_server/internal/types"
)

var todoFiles = []types.GeneratedFile{
	{FilePath: "frontend/src/App.jsx", Content: "function App() {\n  return <div className=\"p-4\">Todo</div>;\n}\nexport default App;"},
	{FilePath: "backend/server.js", Content: "const express = require('express');\nconst app = express();"},
	{FilePath: "database/schema.sql", Content: "CREATE TABLE tasks (id INT PRIMARY KEY);"},
	{FilePath: "package.json", Content: "{\"name\": \"todo-app\"}"},
	{FilePath: ".env.example", Content: "DB_HOST=localhost"},
	{FilePath: "README.md", Content: "# Todo App\n\n```bash\nnpm install\n```"},
}

func todoDocument(t *testing.T) string {
	t.Helper()
	data, err := json.MarshalIndent(todoFiles, "", "  ")
	require.NoError(t, err)
	return string(data)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fences", in: `[{"a":1}]`, want: `[{"a":1}]`},
		{name: "json tagged", in: "```json\n[1]\n```", want: "[1]"},
		{name: "untagged", in: "```\n[1]\n```\n", want: "[1]"},
		{name: "mid stream marker", in: "[1,\n```\n2]", want: "[1,\n2]"},
		{name: "other tag", in: "```javascript [2]```", want: "[2]"},
		{name: "fence inside string", in: "```json\n[\"```bash\\nnpm i\\n```\"]\n```", want: "[\"```bash\\nnpm i\\n```\"]"},
		{name: "escaped quote inside string", in: "[\"say \\\"hi\\\" ```sh\"]", want: "[\"say \\\"hi\\\" ```sh\"]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestParseCompleteDocument(t *testing.T) {
	files, ok := Parse(todoDocument(t))
	require.True(t, ok)
	require.Len(t, files, 6)
	assert.Equal(t, "frontend/src/App.jsx", files[0].FilePath)
	assert.Equal(t, "README.md", files[5].FilePath)
	assert.Equal(t, todoFiles[1].Content, files[1].Content)
}

func TestParseKeepsFencesInContent(t *testing.T) {
	readme := types.GeneratedFile{
		FilePath: "README.md",
		Content:  "# Todo\n\n```bash\nnpm install\n```\n\n```js\nnode server.js\n```\n",
	}
	data, err := json.Marshal([]types.GeneratedFile{readme})
	require.NoError(t, err)

	for _, doc := range []string{string(data), "```json\n" + string(data) + "\n```"} {
		files, ok := Parse(doc)
		require.True(t, ok)
		assert.Equal(t, []types.GeneratedFile{readme}, files)
	}

	files, ok := Parse(todoDocument(t))
	require.True(t, ok)
	assert.Equal(t, todoFiles, files)
}

func TestParseIsIdempotent(t *testing.T) {
	doc := todoDocument(t)
	first, ok := Parse(doc)
	require.True(t, ok)
	second, ok := Parse(doc)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestParseFenceTolerance(t *testing.T) {
	doc := todoDocument(t)
	plain, ok := Parse(doc)
	require.True(t, ok)

	fenced, ok := Parse("```json\n" + doc + "\n```")
	require.True(t, ok)
	assert.Equal(t, len(plain), len(fenced))
	for i := range plain {
		assert.Equal(t, plain[i].FilePath, fenced[i].FilePath)
	}
}

func TestParseRejectsNonArrays(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "object", in: `{"filePath":"a.js","content":""}`},
		{name: "empty array", in: `[]`},
		{name: "no records", in: `[1, "two", null]`},
		{name: "prose", in: "Here are your files:"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files, ok := Parse(tc.in)
			assert.False(t, ok)
			assert.Nil(t, files)
		})
	}
}

func TestParseSkipsRecordsWithoutPath(t *testing.T) {
	files, ok := Parse(`[{"filePath":"a.js","content":"x"}, {"content":"orphan"}, {"filePath":"b.js"}]`)
	require.True(t, ok)
	assert.Equal(t, []types.GeneratedFile{
		{FilePath: "a.js", Content: "x"},
		{FilePath: "b.js", Content: ""},
	}, files)
}

func TestParseTruncatedPrefixesNeverSucceed(t *testing.T) {
	doc := todoDocument(t)
	for i := 0; i < len(doc); i++ {
		prefix := doc[:i]
		if json.Valid([]byte(StripFences(prefix))) {
			continue
		}
		files, ok := Parse(prefix)
		assert.False(t, ok, "prefix of length %d parsed", i)
		assert.Nil(t, files)
	}
}

func TestExtractorPartialIsMonotonic(t *testing.T) {
	doc := "```json\n" + todoDocument(t) + "\n```"
	e := New()
	last := 0
	emissions := 0
	for i := 0; i < len(doc); i += 7 {
		end := i + 7
		if end > len(doc) {
			end = len(doc)
		}
		e.Write(doc[i:end])
		if files, ok := e.Partial(); ok {
			assert.Greater(t, len(files), last)
			last = len(files)
			emissions++
		}
	}
	assert.Equal(t, doc, e.Buffer())
	assert.Equal(t, 1, emissions)
	assert.Equal(t, 6, last)

	// The same snapshot is not emitted twice.
	_, ok := e.Partial()
	assert.False(t, ok)
}

func TestExtractorFinalIsAuthoritative(t *testing.T) {
	e := New()
	e.Write(todoDocument(t))
	_, ok := e.Partial()
	require.True(t, ok)

	files, err := e.Final()
	require.NoError(t, err)
	assert.Len(t, files, 6)
}

func TestExtractorFinalParseError(t *testing.T) {
	e := New()
	e.Write(`[{"filePath": "frontend/src/App.jsx", "content": "function App() {`)

	files, err := e.Final()
	assert.Nil(t, files)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Error(), "parse error")
	assert.Equal(t, e.Buffer(), parseErr.Excerpt)
}

func TestExtractorFinalExcerptIsTruncated(t *testing.T) {
	e := New()
	for i := 0; i < 200; i++ {
		e.Write("not json ")
	}
	_, err := e.Final()
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Len(t, parseErr.Excerpt, excerptLen)
}
