// Package review groups a finished file list for tabbed display.
package review

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"appgen_server/internal/ai/prompts"
	"appgen_server/internal/types"
	"appgen_server/internal/utils"
)

// Category names a review tab.
type Category string

const (
	CategoryFrontend Category = "frontend"
	CategoryBackend  Category = "backend"
	CategoryDatabase Category = "database"
)

// File is a generated file annotated for display.
type File struct {
	types.GeneratedFile
	Language string `json:"language"`
}

// Buckets holds the files of each tab. A file may appear in several tabs.
type Buckets struct {
	Frontend []File `json:"frontend"`
	Backend  []File `json:"backend"`
	Database []File `json:"database"`
}

// Summary is everything the review stage shows.
type Summary struct {
	AppName    string   `json:"appName"`
	Buckets    Buckets  `json:"buckets"`
	Missing    []string `json:"missing,omitempty"`
	ReadmeHTML string   `json:"readmeHtml,omitempty"`
}

var frontendExt = regexp.MustCompile(`\.(jsx|js|tsx|ts|css)$`)

// Categories returns every tab a path belongs to.
func Categories(path string) []Category {
	var cats []Category
	if strings.Contains(path, "frontend") || strings.Contains(path, "src/") ||
		frontendExt.MatchString(path) || path == "App.jsx" || path == "App.js" {
		cats = append(cats, CategoryFrontend)
	}
	if strings.Contains(path, "backend") || strings.Contains(path, "server") ||
		strings.Contains(path, "routes") || strings.Contains(path, "api") {
		cats = append(cats, CategoryBackend)
	}
	if strings.Contains(path, "database") || strings.Contains(path, "schema") ||
		strings.HasSuffix(path, ".sql") {
		cats = append(cats, CategoryDatabase)
	}
	return cats
}

// Categorize sorts files into tabs, keeping their original order.
func Categorize(files []types.GeneratedFile) Buckets {
	b := Buckets{Frontend: []File{}, Backend: []File{}, Database: []File{}}
	for _, f := range files {
		rf := File{GeneratedFile: f, Language: utils.DetermineFileType(f.FilePath)}
		for _, c := range Categories(f.FilePath) {
			switch c {
			case CategoryFrontend:
				b.Frontend = append(b.Frontend, rf)
			case CategoryBackend:
				b.Backend = append(b.Backend, rf)
			case CategoryDatabase:
				b.Database = append(b.Database, rf)
			}
		}
	}
	return b
}

// Missing lists the requested paths the model did not produce.
func Missing(files []types.GeneratedFile) []string {
	have := make(map[string]bool, len(files))
	for _, f := range files {
		have[f.FilePath] = true
	}
	var missing []string
	for _, p := range prompts.ExpectedFiles {
		if !have[p] {
			missing = append(missing, p)
		}
	}
	return missing
}

// RenderReadme converts markdown to HTML.
func RenderReadme(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render readme: %w", err)
	}
	return buf.String(), nil
}

// Summarize builds the review of a finished generation. readme is the
// effective README (generated or synthesized).
func Summarize(appName string, files []types.GeneratedFile, readme string) (Summary, error) {
	s := Summary{
		AppName: appName,
		Buckets: Categorize(files),
		Missing: Missing(files),
	}
	if readme != "" {
		html, err := RenderReadme(readme)
		if err != nil {
			return Summary{}, err
		}
		s.ReadmeHTML = html
	}
	return s, nil
}
