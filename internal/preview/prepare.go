package preview

import (
	"regexp"
	"strings"
)

var (
	importPattern   = regexp.MustCompile(`\bimport\s+(?:[^;'"]*?\bfrom\s+)?['"][^'"\n]*['"];?\n?`)
	exportPattern   = regexp.MustCompile(`export\s+(default\s+)?`)
	appBinding      = regexp.MustCompile(`\b(?:const|let|var)\s+App\s*=|\bfunction\s+App\s*\(|\bclass\s+App\b`)
	scriptCloseTag  = regexp.MustCompile(`(?i)</script`)
	componentFinder = []*regexp.Regexp{
		regexp.MustCompile(`export\s+default\s+function\s+([A-Za-z0-9_]+)`),
		regexp.MustCompile(`function\s+([A-Za-z0-9_]+)\s*\(`),
		regexp.MustCompile(`const\s+([A-Za-z0-9_]+)\s*=\s*(?:\([^)]*\)\s*=>|function)`),
		regexp.MustCompile(`class\s+([A-Za-z0-9_]+)\s+extends\s+React\.Component`),
	}
)

// DetectComponentName returns the name of the component declared in code,
// trying the matchers in order. It falls back to App.
func DetectComponentName(code string) string {
	for _, pat := range componentFinder {
		if m := pat.FindStringSubmatch(code); m != nil {
			return m[1]
		}
	}
	return "App"
}

// PrepareComponentCode turns a module source file into a script body that
// defines App in the preview document, where React is already global.
func PrepareComponentCode(code string) (string, error) {
	stripped := importPattern.ReplaceAllString(code, "")
	stripped = strings.TrimSpace(exportPattern.ReplaceAllString(stripped, ""))
	if stripped == "" {
		return "", &Error{Message: "component source is empty after removing module statements", Type: ErrorParse}
	}

	name := DetectComponentName(code)
	if name != "App" && !appBinding.MatchString(stripped) {
		stripped += "\nconst App = " + name + ";"
	}
	// The code is inlined in a script element and must not be able to close it.
	return scriptCloseTag.ReplaceAllString(stripped, `<\/script`), nil
}
