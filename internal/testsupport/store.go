package testsupport

import (
	"testing"

	"fvrip/internal/config"
	"fvrip/internal/fetch"
)

// MustOpenStore opens a fetch.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *fetch.Store {
	t.Helper()

	store, err := fetch.OpenStore(cfg.Paths.CacheDir)
	if err != nil {
		t.Fatalf("fetch.OpenStore: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
