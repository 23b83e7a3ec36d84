package assemble

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"fvrip/internal/services"
)

// PageFailure records why one page is absent from the output document.
type PageFailure struct {
	Position string               `json:"position"`
	Kind     services.FailureKind `json:"kind"`
	Message  string               `json:"message"`
}

// Report summarizes a completed rip run.
type Report struct {
	RunID          string        `json:"run_id"`
	BookID         string        `json:"book_id"`
	Title          string        `json:"title"`
	OutputPath     string        `json:"output_path"`
	ExpectedPages  int           `json:"expected_pages"`
	RenderedPages  int           `json:"rendered_pages"`
	MissingPages   int           `json:"missing_pages"`
	WrongKeySignal bool          `json:"wrong_key_signal"`
	Failures       []PageFailure `json:"failures,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Complete reports whether every expected page made it into the document.
func (r *Report) Complete() bool {
	return r.MissingPages == 0 && r.RenderedPages == r.ExpectedPages
}

// Write stores the report as JSON beside the output document.
func (r *Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// wrongKeySignal flags runs where most attempted objects failed decrypting,
// which means the access code is almost certainly wrong rather than the pages
// damaged. Objects that were never attempted (cancellation) stay out of the
// denominator.
func wrongKeySignal(mismatched, attempted int) bool {
	return attempted > 0 && mismatched*2 > attempted
}
