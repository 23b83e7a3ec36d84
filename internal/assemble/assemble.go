package assemble

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/phpdave11/gofpdf"
	"golang.org/x/image/bmp"

	"fvrip/internal/config"
	"fvrip/internal/manifest"
	"fvrip/internal/render"
	"fvrip/internal/services"
)

// pixelPoints converts a 96dpi pixel dimension to PDF points.
func pixelPoints(px int) float64 {
	return float64(px) * 72.0 / 96.0
}

// Assembler collects rendered pages as workers finish and writes them out as
// one PDF in reading order. Add and Fail are safe for concurrent use;
// Finalize is called once after all workers stop.
type Assembler struct {
	book         *manifest.Book
	runID        string
	placeholders bool

	mu               sync.Mutex
	rendered         map[manifest.Position]*render.Result
	failures         map[manifest.Position]PageFailure
	attempted        int
	cipherMismatches int
}

// New prepares an assembler for one book run.
func New(cfg *config.Config, book *manifest.Book, runID string) *Assembler {
	return &Assembler{
		book:         book,
		runID:        runID,
		placeholders: cfg.Output.PlaceholderPages,
		rendered:     make(map[manifest.Position]*render.Result),
		failures:     make(map[manifest.Position]PageFailure),
	}
}

// Add records a successfully rendered object. The first successful object
// for a page wins; later objects for the same page are kept only as backup
// when nothing rendered yet.
func (a *Assembler) Add(pos manifest.Position, result *render.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempted++
	pageKey := manifest.Position{Chapter: pos.Chapter, Page: pos.Page}
	if existing, ok := a.rendered[pageKey]; !ok || existing == nil {
		a.rendered[pageKey] = result
	}
	delete(a.failures, pageKey)
}

// Fail records a failed object. The failure sticks to the page unless some
// other object for that page already rendered.
func (a *Assembler) Fail(pos manifest.Position, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kind := services.Classify(err)
	if kind != services.FailureCancelled {
		a.attempted++
	}
	if kind == services.FailureCipher {
		a.cipherMismatches++
	}
	pageKey := manifest.Position{Chapter: pos.Chapter, Page: pos.Page}
	if _, ok := a.rendered[pageKey]; ok {
		return
	}
	a.failures[pageKey] = PageFailure{
		Position: pos.String(),
		Kind:     kind,
		Message:  err.Error(),
	}
}

// Finalize writes the PDF and returns the run report. Pages that never
// rendered become placeholders or gaps depending on configuration.
func (a *Assembler) Finalize(outputPath string) (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pagePositions := pageOrder(a.book)
	report := &Report{
		RunID:         a.runID,
		BookID:        a.book.ID,
		Title:         a.book.Title,
		OutputPath:    outputPath,
		ExpectedPages: len(pagePositions),
	}

	doc := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 595.28, Ht: 841.89}})
	doc.SetTitle(a.book.Title, true)
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)

	for _, pageKey := range pagePositions {
		result, ok := a.rendered[pageKey]
		if ok && result != nil {
			if err := embedPage(doc, pageKey, result); err != nil {
				return nil, err
			}
			report.RenderedPages++
			continue
		}

		failure, failed := a.failures[pageKey]
		if !failed {
			failure = PageFailure{
				Position: pageKey.String(),
				Kind:     services.FailureUnknown,
				Message:  "page produced no result",
			}
		}
		report.Failures = append(report.Failures, failure)
		report.MissingPages++
		if a.placeholders {
			placeholderPage(doc, pageKey)
		}
	}

	report.WrongKeySignal = wrongKeySignal(a.cipherMismatches, a.attempted)

	// A run that got this far always yields a document, even one made
	// entirely of placeholders. The report carries the damage.
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return report, fmt.Errorf("ensure output dir: %w", err)
	}
	if err := doc.OutputFileAndClose(outputPath); err != nil {
		return report, fmt.Errorf("write pdf: %w", err)
	}
	return report, nil
}

func pageOrder(book *manifest.Book) []manifest.Position {
	var pages []manifest.Position
	seen := make(map[manifest.Position]struct{})
	for _, pos := range book.Positions() {
		pageKey := manifest.Position{Chapter: pos.Chapter, Page: pos.Page}
		if _, ok := seen[pageKey]; ok {
			continue
		}
		seen[pageKey] = struct{}{}
		pages = append(pages, pageKey)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Less(pages[j]) })
	return pages
}

func embedPage(doc *gofpdf.Fpdf, pos manifest.Position, result *render.Result) error {
	data := result.Data
	imageType := result.Format
	if imageType == "bmp" {
		transcoded, err := bmpToPNG(data)
		if err != nil {
			return services.Wrap(services.ErrRenderFailed, "assemble", "transcode bmp", pos.String(), err)
		}
		data = transcoded
		imageType = "png"
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return services.Wrap(services.ErrRenderFailed, "assemble", "probe image", pos.String(), err)
	}
	width := pixelPoints(cfg.Width)
	height := pixelPoints(cfg.Height)

	name := "page-" + pos.String()
	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: false}
	doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	doc.AddPageFormat("P", gofpdf.SizeType{Wd: width, Ht: height})
	doc.ImageOptions(name, 0, 0, width, height, false, opts, 0, "")
	if doc.Err() {
		return services.Wrap(services.ErrRenderFailed, "assemble", "embed page", pos.String(), doc.Error())
	}
	return nil
}

func placeholderPage(doc *gofpdf.Fpdf, pos manifest.Position) {
	doc.AddPageFormat("P", gofpdf.SizeType{Wd: 595.28, Ht: 841.89})
	doc.SetFont("Helvetica", "", 14)
	doc.SetTextColor(128, 128, 128)
	doc.Text(60, 420, fmt.Sprintf("Page %s could not be recovered", pos.String()))
	doc.SetTextColor(0, 0, 0)
}

func bmpToPNG(data []byte) ([]byte, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
