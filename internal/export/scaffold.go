package export

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"appgen_server/internal/types"
)

const (
	EnvPath     = ".env.example"
	PackagePath = "package.json"
	ReadmePath  = "README.md"
)

const defaultEnv = `# Database Configuration
DB_HOST=localhost
DB_USER=root
DB_PASSWORD=your_password
DB_NAME=app_db

# Server Configuration
PORT=3001
NODE_ENV=production

# CORS Configuration
CORS_ORIGIN=http://localhost:3000`

const readmeTemplate = "# %s\n\n" +
	"## Description\n\n" +
	"This application was generated by the app generator.\n\n" +
	"## Setup Instructions\n\n" +
	"1. Extract all files from this archive\n" +
	"2. Install dependencies:\n" +
	"   ```bash\n   npm install\n   ```\n\n" +
	"3. Create a `.env` file in the root directory with the following variables:\n" +
	"   ```\n%s\n   ```\n\n" +
	"4. Set up the database:\n" +
	"   ```bash\n   mysql -u root -p < database/schema.sql\n   ```\n\n" +
	"5. Start the backend server:\n" +
	"   ```bash\n   npm run dev\n   ```\n\n" +
	"6. In a new terminal, start the frontend:\n" +
	"   ```bash\n   cd frontend && npm start\n   ```\n\n" +
	"## Project Structure\n\n" +
	"- `frontend/` - React frontend application\n" +
	"- `backend/` - Express.js backend server\n" +
	"- `database/` - SQL schema files\n\n" +
	"## Technologies Used\n\n" +
	"- Frontend: React, Tailwind CSS\n" +
	"- Backend: Express.js, Node.js\n" +
	"- Database: MySQL\n"

var slugSeparators = regexp.MustCompile(`\s+`)

// Scaffold holds the support files every archive carries.
type Scaffold struct {
	Env     string
	Package string
	Readme  string
}

// Files returns the scaffold as archive entries.
func (s Scaffold) Files() []types.GeneratedFile {
	return []types.GeneratedFile{
		{FilePath: EnvPath, Content: s.Env},
		{FilePath: PackagePath, Content: s.Package},
		{FilePath: ReadmePath, Content: s.Readme},
	}
}

// BuildScaffold prefers generated content and falls back to defaults.
func BuildScaffold(appName string, files []types.GeneratedFile) Scaffold {
	s := Scaffold{
		Env:     findContent(files, isEnvFile),
		Package: findContent(files, func(p string) bool { return filepath.Base(p) == PackagePath }),
		Readme:  findContent(files, func(p string) bool { return p == ReadmePath }),
	}
	if s.Env == "" {
		s.Env = defaultEnv
	}
	if s.Package == "" {
		s.Package = DefaultPackage(appName)
	}
	if s.Readme == "" {
		s.Readme = DefaultReadme(appName, s.Env)
	}
	return s
}

func isEnvFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".env")
}

func findContent(files []types.GeneratedFile, match func(string) bool) string {
	for _, f := range files {
		if match(f.FilePath) && strings.TrimSpace(f.Content) != "" {
			return f.Content
		}
	}
	return ""
}

// PackageName lowercases appName and joins words with dashes.
func PackageName(appName string) string {
	name := cases.Lower(language.Und).String(strings.TrimSpace(appName))
	name = slugSeparators.ReplaceAllString(name, "-")
	if name == "" {
		return "generated-app"
	}
	return name
}

type packageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Main            string            `json:"main"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// DefaultPackage returns a package.json for an Express backend.
func DefaultPackage(appName string) string {
	m := packageManifest{
		Name:        PackageName(appName),
		Version:     "1.0.0",
		Description: "Generated application: " + appName,
		Main:        "server.js",
		Scripts: map[string]string{
			"start":          "node server.js",
			"dev":            "nodemon server.js",
			"build":          "npm run build:frontend && npm run build:backend",
			"build:frontend": "cd frontend && npm run build",
			"build:backend":  "tsc",
			"test":           "jest",
		},
		Dependencies: map[string]string{
			"express":            "^4.18.2",
			"cors":               "^2.8.5",
			"mysql2":             "^3.6.0",
			"dotenv":             "^16.3.1",
			"helmet":             "^7.0.0",
			"compression":        "^1.7.4",
			"express-rate-limit": "^6.9.0",
		},
		DevDependencies: map[string]string{
			"@types/express": "^4.17.17",
			"@types/node":    "^20.5.0",
			"typescript":     "^5.1.6",
			"nodemon":        "^3.0.1",
			"jest":           "^29.6.2",
			"ts-jest":        "^29.1.1",
		},
	}
	out, _ := json.MarshalIndent(m, "", "  ")
	return string(out)
}

// DefaultReadme returns setup instructions embedding the env template.
func DefaultReadme(appName, env string) string {
	lines := strings.Split(env, "\n")
	for i, l := range lines {
		lines[i] = "   " + l
	}
	return fmt.Sprintf(readmeTemplate, appName, strings.Join(lines, "\n"))
}
