package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"fvrip/internal/assemble"
	"fvrip/internal/config"
	"fvrip/internal/fetch"
	"fvrip/internal/fvcrypt"
	"fvrip/internal/logging"
	"fvrip/internal/manifest"
	"fvrip/internal/render"
	"fvrip/internal/services"
)

// State names the processing step an object is currently in. States only
// advance within a run; a failed object keeps the state it failed in.
type State string

const (
	StatePending    State = "pending"
	StateFetching   State = "fetching"
	StateDecrypting State = "decrypting"
	StateRendering  State = "rendering"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger to the orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator drives one book through fetch, decrypt, render and assembly
// with a bounded worker pool.
type Orchestrator struct {
	cfg      *config.Config
	cache    *fetch.Cache
	renderer render.Renderer
	store    *fetch.Store
	logger   *slog.Logger
}

// New wires an orchestrator over its collaborators.
func New(cfg *config.Config, cache *fetch.Cache, renderer render.Renderer, store *fetch.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		cache:    cache,
		renderer: renderer,
		store:    store,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Book fetches and parses the package document.
func (o *Orchestrator) Book(ctx context.Context) (*manifest.Book, error) {
	data, err := o.cache.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return manifest.Parse(o.cache.BookID(), data)
}

// AccessCode unwraps the book's access code from its embedded license.
func (o *Orchestrator) AccessCode(ctx context.Context, book *manifest.Book) (string, error) {
	licenseData, err := o.cache.Object(ctx, manifest.ObjectDescriptor{
		ID:   "license",
		Href: book.LicenseHref,
	})
	if err != nil {
		return "", services.Wrap(services.ErrMalformedAccessCode, "pipeline", "fetch license", book.LicenseHref, err)
	}
	return fvcrypt.AccessCodeFromLicense(licenseData)
}

// Run processes the whole book and returns the completeness report. Partial
// failures mark pages missing; only a malformed access code or an unusable
// manifest aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*assemble.Report, error) {
	startedAt := time.Now().UTC()
	runID := uuid.NewString()
	logger := o.logger.With(logging.String(logging.FieldRunID, runID))

	book, err := o.Book(ctx)
	if err != nil {
		return nil, err
	}
	logger = logger.With(logging.String(logging.FieldBookID, book.ID))
	logger.Info("starting run",
		logging.String("title", book.Title),
		logging.Int("pages", book.PageCount()),
		logging.Int("objects", len(book.Objects())))

	accessCode, err := o.AccessCode(ctx, book)
	if err != nil {
		return nil, err
	}

	asm := assemble.New(o.cfg, book, runID)
	o.processObjects(ctx, logger, book, accessCode, asm)
	if o.cfg.Fetch.AuxAssets {
		o.fetchAuxAssets(ctx, logger, book)
	}

	outputPath := filepath.Join(o.cfg.Paths.OutputDir, book.ID+".pdf")
	report, err := asm.Finalize(outputPath)
	if report != nil {
		report.StartedAt = startedAt
		report.FinishedAt = time.Now().UTC()
		if writeErr := report.Write(reportPath(outputPath)); writeErr != nil {
			logger.Warn("report write failed", logging.Error(writeErr))
		}
		o.recordRun(logger, report)
	}
	if err != nil {
		return report, err
	}

	logger.Info("run finished",
		logging.Int("rendered", report.RenderedPages),
		logging.Int("missing", report.MissingPages),
		logging.Bool("wrong_key_signal", report.WrongKeySignal))
	return report, nil
}

func (o *Orchestrator) processObjects(ctx context.Context, logger *slog.Logger, book *manifest.Book, accessCode string, asm *assemble.Assembler) {
	workers := o.cfg.Pipeline.Concurrency
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan manifest.ObjectDescriptor)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for desc := range jobs {
				if ctx.Err() != nil {
					asm.Fail(desc.Position, ctx.Err())
					continue
				}
				o.processObject(ctx, logger, accessCode, desc, asm)
			}
		}()
	}

	// Feed every object even after cancellation so the remainder is
	// reported as cancelled rather than silently dropped.
	for _, desc := range book.Objects() {
		jobs <- desc
	}
	close(jobs)
	wg.Wait()
}

func (o *Orchestrator) processObject(ctx context.Context, logger *slog.Logger, accessCode string, desc manifest.ObjectDescriptor, asm *assemble.Assembler) {
	objLogger := logger.With(
		logging.String(logging.FieldObjectID, desc.ID),
		logging.String(logging.FieldPosition, desc.Position.String()))

	state := StateFetching
	fail := func(err error) {
		objLogger.Warn("object failed",
			logging.String(logging.FieldState, string(state)),
			logging.Error(err))
		asm.Fail(desc.Position, err)
	}

	objLogger.Debug("object state", logging.String(logging.FieldState, string(state)))
	encrypted, err := o.cache.Object(ctx, desc)
	if err != nil {
		fail(err)
		return
	}

	state = StateDecrypting
	objLogger.Debug("object state", logging.String(logging.FieldState, string(state)))
	passphrase := fvcrypt.ObjectPassphrase(accessCode, desc.Position.Chapter, desc.Position.Page, desc.Position.Object)
	plain, err := fvcrypt.DecryptObjectBytes(passphrase, encrypted)
	if err != nil {
		fail(services.Wrap(services.ErrCipherMismatch, "pipeline", "decrypt", desc.ID, err))
		return
	}
	if err := fvcrypt.CheckPayload(desc.ContentType, plain); err != nil {
		fail(err)
		return
	}

	state = StateRendering
	objLogger.Debug("object state", logging.String(logging.FieldState, string(state)))
	result, err := o.renderer.Render(ctx, desc.ContentType, plain)
	if err != nil {
		fail(err)
		return
	}

	state = StateDone
	objLogger.Debug("object state", logging.String(logging.FieldState, string(state)))
	asm.Add(desc.Position, result)
}

// fetchAuxAssets caches the companion files the package declares: searchable
// text, the downloadable archive, the table of contents and page thumbnails.
// Best effort: a missing companion never affects the document.
func (o *Orchestrator) fetchAuxAssets(ctx context.Context, logger *slog.Logger, book *manifest.Book) {
	var companions []manifest.ObjectDescriptor
	if book.SearchableTextHref != "" {
		companions = append(companions, manifest.ObjectDescriptor{ID: "aux-text", Href: book.SearchableTextHref})
	}
	if book.ArchiveHref != "" {
		companions = append(companions, manifest.ObjectDescriptor{ID: "aux-archive", Href: book.ArchiveHref})
	}
	if book.TOCHref != "" {
		companions = append(companions, manifest.ObjectDescriptor{ID: "aux-toc", Href: book.TOCHref})
	}
	for _, chapter := range book.Chapters {
		for _, page := range chapter.Pages {
			if page.Thumbnail == "" {
				continue
			}
			companions = append(companions, manifest.ObjectDescriptor{
				ID:   fmt.Sprintf("aux-thumb-%d-%d", chapter.Index, page.Index),
				Href: page.Thumbnail,
			})
		}
	}
	for _, desc := range companions {
		if _, err := o.cache.Object(ctx, desc); err != nil {
			logger.Warn("companion fetch failed",
				logging.String(logging.FieldObjectID, desc.ID),
				logging.Error(err))
		}
	}
}

func (o *Orchestrator) recordRun(logger *slog.Logger, report *assemble.Report) {
	rec := fetch.RunRecord{
		RunID:      report.RunID,
		BookID:     report.BookID,
		OutputPath: report.OutputPath,
		Expected:   report.ExpectedPages,
		Rendered:   report.RenderedPages,
		Missing:    report.MissingPages,
		WrongKey:   report.WrongKeySignal,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	// Provenance is best effort and never fails a run that produced output.
	if err := o.store.RecordRun(context.Background(), rec); err != nil {
		logger.Warn("run record failed", logging.Error(err))
	}
}

func reportPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return fmt.Sprintf("%s.report.json", outputPath[:len(outputPath)-len(ext)])
}
