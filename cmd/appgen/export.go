package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"appgen_server/internal/export"
)

type exportOptions struct {
	in   string
	name string
	out  string
}

func newExportCmd(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Re-export a saved file list as a zip archive",
		Long: `Reads a file list written by "generate --save" (or a bare JSON array of
{filePath, content} records) and writes the same archive the server would.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.in, "in", "i", "", "saved file list (JSON)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "application name (default from the file list)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "zip archive path")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func runExport(cmd *cobra.Command, root *rootOptions, opts *exportOptions) error {
	doc, err := readFileList(opts.in)
	if err != nil {
		return err
	}
	appName := strings.TrimSpace(opts.name)
	if appName == "" {
		appName = doc.AppName
	}
	if appName == "" {
		appName = strings.TrimSuffix(filepath.Base(opts.in), filepath.Ext(opts.in))
	}
	if len(doc.Files) == 0 {
		return errors.New("no files available to export")
	}

	var buf bytes.Buffer
	n, err := export.WriteZip(&buf, appName, doc.Files)
	if err != nil {
		return err
	}
	path := opts.out
	if path == "" {
		path = filepath.Join(root.cfg.OutDir, export.FileName(appName, time.Now()))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d entries)\n", colorSuccess.Sprint("Wrote"), path, n)
	return nil
}

// readFileList accepts either the --save document or a bare array.
func readFileList(path string) (savedFiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return savedFiles{}, fmt.Errorf("failed to read file list: %w", err)
	}
	var doc savedFiles
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &doc.Files)
	} else {
		err = json.Unmarshal(trimmed, &doc)
	}
	if err != nil {
		return savedFiles{}, fmt.Errorf("failed to parse file list: %w", err)
	}

	kept := doc.Files[:0]
	for _, f := range doc.Files {
		if f.FilePath != "" {
			kept = append(kept, f)
		}
	}
	doc.Files = kept
	return doc, nil
}
