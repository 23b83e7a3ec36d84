package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"fvrip/internal/fetch"
	"fvrip/internal/logging"
	"fvrip/internal/pipeline"
	"fvrip/internal/render"
)

func newRipCommand(ctx *commandContext) *cobra.Command {
	var flags sourceFlags

	cmd := &cobra.Command{
		Use:   "rip",
		Short: "Recover a book into a single PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			source, err := flags.source(cfg)
			if err != nil {
				return err
			}

			// One run per book at a time; a second invocation for the
			// same book fails fast instead of fighting over the cache.
			lock := flock.New(filepath.Join(cfg.Paths.CacheDir, source.ID()+".lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire book lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another rip of %s is already running", source.ID())
			}
			defer lock.Unlock()

			store, err := fetch.OpenStore(cfg.Paths.CacheDir)
			if err != nil {
				return err
			}
			defer store.Close()

			cache, err := fetch.NewCache(cfg, source, store, fetch.WithLogger(logger))
			if err != nil {
				return err
			}

			var flash render.Renderer = render.Unavailable{Reason: "renderer.binary not configured"}
			if cfg.Renderer.Binary != "" {
				if flash, err = render.NewFFDec(cfg.Renderer); err != nil {
					return err
				}
			}
			renderer := render.NewDispatcher(flash, render.NewRaster())

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orch := pipeline.New(cfg, cache, renderer, store,
				pipeline.WithLogger(logging.NewComponentLogger(logger, "pipeline")))
			report, err := orch.Run(runCtx)
			if err != nil && report == nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Book", "Pages", "Rendered", "Missing", "Wrong Key"},
				[][]string{{
					report.BookID,
					strconv.Itoa(report.ExpectedPages),
					strconv.Itoa(report.RenderedPages),
					strconv.Itoa(report.MissingPages),
					strconv.FormatBool(report.WrongKeySignal),
				}},
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			if len(report.Failures) > 0 {
				rows := make([][]string, 0, len(report.Failures))
				for _, failure := range report.Failures {
					rows = append(rows, []string{failure.Position, string(failure.Kind), failure.Message})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Position", "Kind", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
			}
			if report.WrongKeySignal {
				fmt.Fprintln(out, "Most pages failed to decrypt; the access code is probably wrong.")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %s\n", report.OutputPath)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
