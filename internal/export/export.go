// Package export packages a generated file list as a downloadable archive.
package export

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"path"
	"regexp"
	"strings"
	"time"

	"appgen_server/internal/types"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// FileName returns the archive name for appName created at now.
func FileName(appName string, now time.Time) string {
	return fmt.Sprintf("%s_generated_app_%d.zip", unsafeNameChars.ReplaceAllString(appName, "_"), now.UnixMilli())
}

// CleanPath makes p a relative slash path inside the archive root. It
// returns "" when nothing is left.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// WriteZip writes every generated file followed by any scaffold file the
// model did not produce. It returns the number of entries written.
func WriteZip(w io.Writer, appName string, files []types.GeneratedFile) (int, error) {
	zw := zip.NewWriter(w)
	written := make(map[string]bool, len(files)+3)
	count := 0

	add := func(f types.GeneratedFile) error {
		name := CleanPath(f.FilePath)
		if name == "" || written[name] {
			return nil
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to create archive entry %s: %w", name, err)
		}
		if _, err := io.WriteString(fw, f.Content); err != nil {
			return fmt.Errorf("failed to write archive entry %s: %w", name, err)
		}
		written[name] = true
		count++
		return nil
	}

	for _, f := range files {
		if err := add(f); err != nil {
			return count, err
		}
	}
	for _, f := range BuildScaffold(appName, files).Files() {
		if err := add(f); err != nil {
			return count, err
		}
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("failed to finalize archive: %w", err)
	}
	log.Printf("Exported %s: %d generated files, %d archive entries", appName, len(files), count)
	return count, nil
}
