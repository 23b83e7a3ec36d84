package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fvrip/internal/fetch"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the download cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached object counts per book",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := fetch.OpenStore(cfg.Paths.CacheDir)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			if len(stats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
				return nil
			}
			rows := make([][]string, 0, len(stats))
			for _, bs := range stats {
				rows = append(rows, []string{bs.BookID, strconv.Itoa(bs.Objects), formatBytes(bs.Bytes)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Book", "Objects", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var bookID string
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached books",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !all && strings.TrimSpace(bookID) == "" {
				return fmt.Errorf("pass --book <id> or --all")
			}
			store, err := fetch.OpenStore(cfg.Paths.CacheDir)
			if err != nil {
				return err
			}
			defer store.Close()

			if all {
				entries, err := os.ReadDir(cfg.Paths.CacheDir)
				if err != nil {
					return fmt.Errorf("scan cache dir: %w", err)
				}
				for _, entry := range entries {
					if entry.IsDir() {
						if err := os.RemoveAll(filepath.Join(cfg.Paths.CacheDir, entry.Name())); err != nil {
							return fmt.Errorf("remove %s: %w", entry.Name(), err)
						}
					}
				}
				removed, err := store.ClearAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached objects.\n", removed)
				return nil
			}

			bookID = strings.TrimSpace(bookID)
			if err := os.RemoveAll(filepath.Join(cfg.Paths.CacheDir, bookID)); err != nil {
				return fmt.Errorf("remove book cache: %w", err)
			}
			removed, err := store.ClearBook(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached objects for %s.\n", removed, bookID)
			return nil
		},
	}

	cmd.Flags().StringVar(&bookID, "book", "", "Book identifier to clear")
	cmd.Flags().BoolVar(&all, "all", false, "Clear every cached book")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
