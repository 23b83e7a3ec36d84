package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fvrip/internal/fetch"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var bookID string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded rip runs",
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

			runs, err := store.Runs(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.FinishedAt.Local().Format(time.DateTime),
					run.BookID,
					strconv.Itoa(run.Rendered) + "/" + strconv.Itoa(run.Expected),
					strconv.Itoa(run.Missing),
					strconv.FormatBool(run.WrongKey),
					run.OutputPath,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Finished", "Book", "Rendered", "Missing", "Wrong Key", "Output"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&bookID, "book", "", "Only show runs for this book")
	return cmd
}
