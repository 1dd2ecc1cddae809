package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type rootOptions struct {
	configPath string
	server     string
	noColor    bool
	cfg        *Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "appgen",
		Short: "Generate full-stack apps from a description",
		Long: `appgen asks the generation server for a complete application, shows the
model's output as it streams, keeps a live preview of the UI component, and
writes the result as a zip archive.

Available commands:
  generate - Stream a new application and export it
  export   - Re-export a saved file list as a zip archive`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.server != "" {
				cfg.Server = opts.server
			}
			opts.cfg = cfg
			color.NoColor = opts.noColor || cfg.NoColor || !term.IsTerminal(int(os.Stdout.Fd()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", "", "generation server URL (default from config or "+defaultServer+")")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(newGenerateCmd(opts))
	rootCmd.AddCommand(newExportCmd(opts))
	return rootCmd
}
