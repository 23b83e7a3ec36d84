package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fvrip/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set catalog.base_url before ripping remote books, or use --dir for mirrored ones.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, cfg)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cache_dir      = %s\n", cfg.Paths.CacheDir)
			fmt.Fprintf(out, "output_dir     = %s\n", cfg.Paths.OutputDir)
			fmt.Fprintf(out, "log_dir        = %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "catalog_url    = %s\n", cfg.Catalog.BaseURL)
			fmt.Fprintf(out, "renderer       = %s\n", cfg.Renderer.Binary)
			fmt.Fprintf(out, "export_format  = %s\n", cfg.Renderer.ExportFormat)
			fmt.Fprintf(out, "concurrency    = %d\n", cfg.Pipeline.Concurrency)
			fmt.Fprintf(out, "placeholders   = %t\n", cfg.Output.PlaceholderPages)
			return nil
		},
	}
}
