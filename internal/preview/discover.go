package preview

import (
	"regexp"

	"github.com/buger/jsonparser"

	"appgen_server/internal/types"
)

// Entry-point conventions, most specific first.
var appPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(^|/)frontend/src/App\.(tsx|jsx|js)$`),
	regexp.MustCompile(`(?i)(^|/)src/App\.(tsx|jsx|js)$`),
	regexp.MustCompile(`(?i)(^|/)App\.(tsx|jsx|js)$`),
}

var (
	appDefinitionPattern = regexp.MustCompile(`function\s+App\s*\(|const\s+App\s*=|class\s+App\s+extends`)
	// Shortest array-of-objects shaped substring.
	streamArrayPattern = regexp.MustCompile(`\[\s*\{[\s\S]*?\}\s*\]`)
	bareAppPath        = appPathPatterns[len(appPathPatterns)-1]
)

// FindAppFile picks the file holding the application's root UI component.
// Path conventions win over content matches; within each pass the first
// matching file wins.
func FindAppFile(files []types.GeneratedFile) (types.GeneratedFile, bool) {
	for _, pat := range appPathPatterns {
		for _, f := range files {
			if pat.MatchString(f.FilePath) {
				return f, true
			}
		}
	}
	for _, f := range files {
		if appDefinitionPattern.MatchString(f.Content) {
			return f, true
		}
	}
	return types.GeneratedFile{}, false
}

// ExtractFromStream is the fallback used before any snapshot exists: it
// parses only the first array-shaped substring of the raw buffer and returns
// the content of the first App entry in it.
func ExtractFromStream(buffer string) (string, bool) {
	loc := streamArrayPattern.FindStringIndex(buffer)
	if loc == nil {
		return "", false
	}
	var content string
	found := false
	_, err := jsonparser.ArrayEach([]byte(buffer[loc[0]:loc[1]]), func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if found || err != nil || dataType != jsonparser.Object {
			return
		}
		path, perr := jsonparser.GetString(value, "filePath")
		if perr != nil || !bareAppPath.MatchString(path) {
			return
		}
		c, cerr := jsonparser.GetString(value, "content")
		if cerr != nil || c == "" {
			return
		}
		content, found = c, true
	})
	if err != nil {
		return "", false
	}
	return content, found
}
