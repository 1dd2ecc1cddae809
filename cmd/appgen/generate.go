package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"appgen_server/internal/client"
	"appgen_server/internal/export"
	"appgen_server/internal/preview"
	"appgen_server/internal/review"
	"appgen_server/internal/types"
)

var (
	colorInfo    = color.New(color.FgCyan)
	colorSuccess = color.New(color.FgGreen, color.Bold)
	colorWarn    = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed, color.Bold)
)

type generateOptions struct {
	name        string
	description string
	out         string
	outDir      string
	previewPath string
	savePath    string
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Stream a new application and export it",
		Example: `  appgen generate --name "Todo App" --description "Track tasks with due dates"
  appgen generate --name Shop --description "Small storefront" --out-dir ./shop --preview shop.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "application name")
	cmd.Flags().StringVarP(&opts.description, "description", "d", "", "what the application should do")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "zip archive path (default: server-chosen name in the output directory)")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "", "also write the files to this directory")
	cmd.Flags().StringVar(&opts.previewPath, "preview", "", "keep the latest preview document at this path")
	cmd.Flags().StringVar(&opts.savePath, "save", "", "save the generated file list as JSON for later export")
	return cmd
}

func runGenerate(cmd *cobra.Command, root *rootOptions, opts *generateOptions) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hl := NewHighlighter(out)
	sess := client.NewSession(client.Hooks{
		OnChunk: func(text string) {
			_, _ = hl.Write([]byte(text))
		},
		OnFile: func(path string) {
			fmt.Fprintf(errOut, "\n%s %s\n", colorInfo.Sprint("generating"), path)
		},
		OnPreview: func(res preview.Result) {
			reportPreview(errOut, opts.previewPath, res)
		},
	})

	if err := sess.Validate(opts.name, opts.description); err != nil {
		fmt.Fprintln(errOut, colorError.Sprint(err.Error()))
		return err
	}

	c := client.NewClient(root.cfg.Server)
	if err := sess.Run(ctx, c); err != nil {
		fmt.Fprintf(errOut, "\n%s %s\n", colorError.Sprint("Generation failed:"), sess.Err())
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(errOut, colorWarn.Sprint("\nGeneration cancelled."))
		return nil
	}
	fmt.Fprintln(out)

	for _, p := range sess.Progress() {
		fmt.Fprintf(errOut, "%s %s\n", colorSuccess.Sprint("✓"), p.Path)
	}

	summary, err := c.Review(ctx, sess.ServerID)
	if err != nil {
		return fmt.Errorf("failed to fetch review: %w", err)
	}

	data, name, err := c.Export(ctx, sess.ServerID)
	if err != nil {
		return fmt.Errorf("failed to export archive: %w", err)
	}
	archivePath := opts.out
	if archivePath == "" {
		archivePath = filepath.Join(root.cfg.OutDir, name)
	}
	if err := os.WriteFile(archivePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	if opts.outDir != "" {
		if _, err := export.SaveFilesDisk(opts.outDir, sess.AppName, sess.Files()); err != nil {
			return err
		}
	}
	if opts.savePath != "" {
		if err := saveFileList(opts.savePath, sess.AppName, sess.Files()); err != nil {
			return err
		}
	}

	return printReport(out, summary, archivePath)
}

func reportPreview(w io.Writer, path string, res preview.Result) {
	switch res.State {
	case preview.StateReady:
		if path == "" {
			return
		}
		if err := os.WriteFile(path, []byte(res.Document), 0644); err != nil {
			fmt.Fprintf(w, "%s %v\n", colorWarn.Sprint("preview:"), err)
		}
	case preview.StateError:
		if res.Error != nil {
			fmt.Fprintf(w, "\n%s %s\n", colorWarn.Sprint("preview error:"), res.Error.Message)
		}
	}
}

// savedFiles is the document written by --save and read by export --in.
type savedFiles struct {
	AppName string                `json:"appName"`
	Files   []types.GeneratedFile `json:"files"`
}

func saveFileList(path, appName string, files []types.GeneratedFile) error {
	doc := savedFiles{AppName: appName, Files: files}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode file list: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file list: %w", err)
	}
	return nil
}

type reviewReport struct {
	App      string   `yaml:"app"`
	Frontend []string `yaml:"frontend"`
	Backend  []string `yaml:"backend"`
	Database []string `yaml:"database"`
	Missing  []string `yaml:"missing,omitempty"`
	Archive  string   `yaml:"archive"`
}

func newReviewReport(summary review.Summary, archive string) reviewReport {
	label := func(files []review.File) []string {
		out := make([]string, 0, len(files))
		for _, f := range files {
			out = append(out, fmt.Sprintf("%s (%s)", f.FilePath, f.Language))
		}
		return out
	}
	return reviewReport{
		App:      summary.AppName,
		Frontend: label(summary.Buckets.Frontend),
		Backend:  label(summary.Buckets.Backend),
		Database: label(summary.Buckets.Database),
		Missing:  summary.Missing,
		Archive:  archive,
	}
}

func printReport(w io.Writer, summary review.Summary, archive string) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newReviewReport(summary, archive)); err != nil {
		return fmt.Errorf("failed to print review: %w", err)
	}
	return enc.Close()
}
