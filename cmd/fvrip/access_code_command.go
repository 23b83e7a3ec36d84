package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fvrip/internal/fetch"
	"fvrip/internal/pipeline"
)

func newAccessCodeCommand(ctx *commandContext) *cobra.Command {
	var flags sourceFlags

	cmd := &cobra.Command{
		Use:   "access-code",
		Short: "Recover and print a book's access code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source, err := flags.source(cfg)
			if err != nil {
				return err
			}
			store, err := fetch.OpenStore(cfg.Paths.CacheDir)
			if err != nil {
				return err
			}
			defer store.Close()
			cache, err := fetch.NewCache(cfg, source, store, fetch.WithSleeper(time.Sleep))
			if err != nil {
				return err
			}

			orch := pipeline.New(cfg, cache, nil, store)
			book, err := orch.Book(cmd.Context())
			if err != nil {
				return err
			}
			code, err := orch.AccessCode(cmd.Context(), book)
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]string{
					"book_id":     book.ID,
					"title":       book.Title,
					"access_code": code,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
