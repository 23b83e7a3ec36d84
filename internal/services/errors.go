package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Run-fatal markers. When either of these surfaces the book cannot be
// processed at all, so the pipeline aborts before touching objects.
var (
	ErrMalformedAccessCode = errors.New("malformed access code")
	ErrManifestIncomplete  = errors.New("manifest incomplete")
)

// Per-object markers. These mark a single object as missing and never abort
// the run.
var (
	ErrFetchFailed    = errors.New("fetch failed")
	ErrCipherMismatch = errors.New("cipher mismatch")
	ErrRenderFailed   = errors.New("render failed")
)

// Ambient markers shared by all stages.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RunFatal reports whether an error must abort the whole book run rather than
// marking a single object missing.
func RunFatal(err error) bool {
	return errors.Is(err, ErrMalformedAccessCode) || errors.Is(err, ErrManifestIncomplete)
}

// FailureKind is the machine-readable classification recorded in the
// completeness report for a missing page.
type FailureKind string

const (
	FailureFetch     FailureKind = "fetch_failed"
	FailureCipher    FailureKind = "cipher_mismatch"
	FailureRender    FailureKind = "render_failed"
	FailureCancelled FailureKind = "cancelled"
	FailureUnknown   FailureKind = "unknown"
)

// Classify maps a per-object error to its report kind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	case errors.Is(err, ErrFetchFailed):
		return FailureFetch
	case errors.Is(err, ErrCipherMismatch):
		return FailureCipher
	case errors.Is(err, ErrRenderFailed):
		return FailureRender
	default:
		return FailureUnknown
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
