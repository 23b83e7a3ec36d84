package services

import (
	"errors"
	"testing"
)

func TestWrapPreservesMarker(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(ErrFetchFailed, "fetch", "get object", "object p3-1", base)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected marker to survive wrapping: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected cause to survive wrapping: %v", err)
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := Wrap(nil, "stage", "op", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient fallback, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want FailureKind
	}{
		{Wrap(ErrFetchFailed, "fetch", "", "", nil), FailureFetch},
		{Wrap(ErrCipherMismatch, "decrypt", "", "", nil), FailureCipher},
		{Wrap(ErrRenderFailed, "render", "", "", nil), FailureRender},
		{errors.New("other"), FailureUnknown},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRunFatal(t *testing.T) {
	if !RunFatal(Wrap(ErrMalformedAccessCode, "key", "derive", "", nil)) {
		t.Fatal("access code failures must be run fatal")
	}
	if !RunFatal(Wrap(ErrManifestIncomplete, "manifest", "validate", "", nil)) {
		t.Fatal("manifest failures must be run fatal")
	}
	if RunFatal(Wrap(ErrRenderFailed, "render", "", "", nil)) {
		t.Fatal("render failures must not be run fatal")
	}
}
