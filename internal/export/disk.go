package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"appgen_server/internal/types"
)

// SaveFilesDisk writes the generated tree and its scaffold under dir.
// Files that fail to write are logged and skipped.
func SaveFilesDisk(dir, appName string, files []types.GeneratedFile) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	all := append(append([]types.GeneratedFile{}, files...), BuildScaffold(appName, files).Files()...)
	seen := make(map[string]bool, len(all))
	filesCount := 0
	for _, fileData := range all {
		name := CleanPath(fileData.FilePath)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		filePath := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			log.Printf("Failed to create directory path: %v", err)
			continue
		}
		if err := os.WriteFile(filePath, []byte(fileData.Content), 0644); err != nil {
			log.Printf("Failed to write file %s: %v", filePath, err)
			continue
		}
		filesCount++
	}

	log.Printf("Saved %s to %s: %d files", appName, dir, filesCount)
	if filesCount != len(seen) {
		log.Printf("WARN: Mismatch between files (%d) and stored files (%d) for %s.", len(seen), filesCount, appName)
	}
	return filesCount, nil
}
