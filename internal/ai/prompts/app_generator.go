package prompts

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the model as a file generator.
const SystemPrompt = "You are a helpful AI assistant that generates complete application source files and answers with raw JSON only."

// ExpectedFiles are the relative paths the model is asked to produce.
var ExpectedFiles = []string{
	"frontend/src/App.jsx",
	"backend/server.js",
	"database/schema.sql",
	"package.json",
	".env.example",
	"README.md",
}

const appGenerationPromptTemplate = `Generate a complete, production-ready full-stack application for: %s

Requirements: %s

Create these files with COMPLETE working code:
1. frontend/src/App.jsx - Full React component with Tailwind CSS, all features implemented
2. backend/server.js - Complete Express.js server with all API routes, error handling, CORS, database connection
3. database/schema.sql - Complete MySQL schema with all tables, indexes, relationships
4. package.json - All required dependencies with correct versions
5. .env.example - All environment variables needed
6. README.md - Complete setup and deployment instructions

IMPORTANT:
- Frontend must have complete UI with all features working
- Backend must have all API endpoints fully implemented
- Database schema must be complete with proper constraints
- All code must be production-ready, no placeholders
- Include proper error handling and validation
- Frontend must connect to backend API endpoints
- Backend must connect to MySQL database

Return ONLY a valid JSON array with no markdown formatting, no code blocks, no explanations:
[{"filePath": "...", "content": "..."}]`

// GetAppGenerationPrompt builds the user prompt for one generation.
func GetAppGenerationPrompt(appName, description string) string {
	return fmt.Sprintf(appGenerationPromptTemplate, strings.TrimSpace(appName), strings.TrimSpace(description))
}
