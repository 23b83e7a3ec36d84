package assemble_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"fvrip/internal/assemble"
	"fvrip/internal/manifest"
	"fvrip/internal/render"
	"fvrip/internal/services"
	"fvrip/internal/testsupport"
)

func pageImage(t *testing.T) *render.Result {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 6, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 6; x++ {
			img.Set(x, y, color.RGBA{R: 0x20, G: uint8(40 * y), B: uint8(40 * x), A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return &render.Result{Format: "png", Data: buf.Bytes()}
}

func pos(page int) manifest.Position {
	return manifest.Position{Chapter: 0, Page: page, Object: 0}
}

func TestFinalizeCompleteBook(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	book := testsupport.MustParseBook(t, "book", 5)
	asm := assemble.New(cfg, book, "run-1")

	// Deliver pages out of order to check reading-order output.
	order := rand.Perm(5)
	for _, p := range order {
		asm.Add(pos(p), pageImage(t))
	}

	output := filepath.Join(cfg.Paths.OutputDir, "book.pdf")
	report, err := asm.Finalize(output)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !report.Complete() {
		t.Fatalf("report not complete: %+v", report)
	}
	if report.ExpectedPages != 5 || report.RenderedPages != 5 || report.MissingPages != 0 {
		t.Fatalf("report counts = %+v", report)
	}
	if report.WrongKeySignal {
		t.Fatal("WrongKeySignal set on clean run")
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF, starts with %q", data[:8])
	}
}

func TestFinalizePartialFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPlaceholders(true))
	book := testsupport.MustParseBook(t, "book", 10)
	asm := assemble.New(cfg, book, "run-2")

	renderErr := services.Wrap(services.ErrRenderFailed, "render", "export frame", "boom", nil)
	for p := 0; p < 10; p++ {
		if p == 3 || p == 7 {
			asm.Fail(pos(p), renderErr)
			continue
		}
		asm.Add(pos(p), pageImage(t))
	}

	output := filepath.Join(cfg.Paths.OutputDir, "book.pdf")
	report, err := asm.Finalize(output)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if report.Complete() {
		t.Fatal("report claims complete run with failed pages")
	}
	if report.RenderedPages != 8 || report.MissingPages != 2 {
		t.Fatalf("report counts = %+v", report)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("failures = %+v", report.Failures)
	}
	for _, failure := range report.Failures {
		if failure.Kind != services.FailureRender {
			t.Fatalf("failure kind = %q", failure.Kind)
		}
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("pdf missing after partial run: %v", err)
	}
}

func TestFinalizeSuccessBeatsFailureOnSamePage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	book := testsupport.MustParseBook(t, "book", 1)
	asm := assemble.New(cfg, book, "run-3")

	asm.Fail(manifest.Position{Chapter: 0, Page: 0, Object: 0},
		services.Wrap(services.ErrCipherMismatch, "pipeline", "decrypt", "bad magic", nil))
	asm.Add(manifest.Position{Chapter: 0, Page: 0, Object: 1}, pageImage(t))

	report, err := asm.Finalize(filepath.Join(cfg.Paths.OutputDir, "book.pdf"))
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !report.Complete() {
		t.Fatalf("page with one good object counted missing: %+v", report)
	}
}

func TestFinalizeWrongKeySignal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPlaceholders(false))
	book := testsupport.MustParseBook(t, "book", 4)
	asm := assemble.New(cfg, book, "run-4")

	mismatch := services.Wrap(services.ErrCipherMismatch, "pipeline", "decrypt", "bad magic", nil)
	asm.Add(pos(0), pageImage(t))
	for p := 1; p < 4; p++ {
		asm.Fail(pos(p), mismatch)
	}

	report, err := asm.Finalize(filepath.Join(cfg.Paths.OutputDir, "book.pdf"))
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !report.WrongKeySignal {
		t.Fatalf("WrongKeySignal not set: %+v", report)
	}
}

func TestFinalizeNothingRendered(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPlaceholders(true))
	book := testsupport.MustParseBook(t, "book", 2)
	asm := assemble.New(cfg, book, "run-5")

	for p := 0; p < 2; p++ {
		asm.Fail(pos(p), services.Wrap(services.ErrFetchFailed, "fetch", "object", "gone", nil))
	}

	output := filepath.Join(cfg.Paths.OutputDir, "book.pdf")
	report, err := asm.Finalize(output)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if report.RenderedPages != 0 || report.MissingPages != 2 {
		t.Fatalf("report counts = %+v", report)
	}

	// Even a total failure yields a document of placeholder pages.
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read pdf after empty run: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF, starts with %q", data[:8])
	}
}

func TestWrongKeySignalCountsObjects(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPlaceholders(true))
	book := testsupport.MustParseBook(t, "book", 2)
	asm := assemble.New(cfg, book, "run-7")

	// Page 0 carries three objects, all decrypting to garbage; page 1 is
	// fine. Three of four attempted objects mismatched, so the signal fires
	// even though only one of two pages is affected.
	mismatch := services.Wrap(services.ErrCipherMismatch, "pipeline", "decrypt", "bad magic", nil)
	for obj := 0; obj < 3; obj++ {
		asm.Fail(manifest.Position{Chapter: 0, Page: 0, Object: obj}, mismatch)
	}
	asm.Add(pos(1), pageImage(t))

	report, err := asm.Finalize(filepath.Join(cfg.Paths.OutputDir, "book.pdf"))
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !report.WrongKeySignal {
		t.Fatalf("WrongKeySignal not set: %+v", report)
	}
}

func TestWrongKeySignalIgnoresCancelledObjects(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPlaceholders(true))
	book := testsupport.MustParseBook(t, "book", 4)
	asm := assemble.New(cfg, book, "run-8")

	mismatch := services.Wrap(services.ErrCipherMismatch, "pipeline", "decrypt", "bad magic", nil)
	asm.Add(pos(0), pageImage(t))
	asm.Fail(pos(1), mismatch)
	asm.Fail(pos(2), mismatch)
	asm.Fail(pos(3), context.Canceled)

	report, err := asm.Finalize(filepath.Join(cfg.Paths.OutputDir, "book.pdf"))
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	// Two of three attempted objects mismatched; the cancelled object does
	// not dilute the ratio.
	if !report.WrongKeySignal {
		t.Fatalf("WrongKeySignal not set: %+v", report)
	}
}

func TestReportWrite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	book := testsupport.MustParseBook(t, "book", 1)
	asm := assemble.New(cfg, book, "run-6")
	asm.Add(pos(0), pageImage(t))

	report, err := asm.Finalize(filepath.Join(cfg.Paths.OutputDir, "book.pdf"))
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	path := filepath.Join(cfg.Paths.OutputDir, "book.report.json")
	if err := report.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded assemble.Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.RunID != "run-6" || decoded.BookID != "book" || decoded.ExpectedPages != 1 {
		t.Fatalf("decoded report = %+v", decoded)
	}
}
