package fetch_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fvrip/internal/fetch"
	"fvrip/internal/manifest"
	"fvrip/internal/services"
	"fvrip/internal/testsupport"
)

type fakeSource struct {
	mu       sync.Mutex
	metadata []byte
	assets   map[string][]byte
	failures map[string]int
	calls    map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		metadata: []byte("<package/>"),
		assets:   make(map[string][]byte),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (s *fakeSource) ID() string { return "2008_06_etwx08_main" }

func (s *fakeSource) FetchMetadata(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["metadata"]++
	return s.metadata, nil
}

func (s *fakeSource) FetchAsset(_ context.Context, href string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[href]++
	if s.failures[href] > 0 {
		s.failures[href]--
		return nil, services.Wrap(services.ErrTransient, "catalog", "get", href+": status 503", nil)
	}
	data, ok := s.assets[href]
	if !ok {
		return nil, services.Wrap(services.ErrFetchFailed, "catalog", "get", href+": status 404", nil)
	}
	return data, nil
}

func (s *fakeSource) callCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func newTestCache(t *testing.T, source *fakeSource, opts ...testsupport.ConfigOption) (*fetch.Cache, *fetch.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	cache, err := fetch.NewCache(cfg, source, store, fetch.WithSleeper(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	return cache, store
}

func descriptor(id, href string) manifest.ObjectDescriptor {
	return manifest.ObjectDescriptor{
		ID:          id,
		Href:        href,
		ContentType: manifest.ContentTypeFlash,
	}
}

func TestObjectCachesOnDisk(t *testing.T) {
	source := newFakeSource()
	source.assets["files/page/1.swf"] = []byte("FWS payload")
	cache, store := newTestCache(t, source)

	ctx := context.Background()
	desc := descriptor("page1", "files/page/1.swf")
	for i := 0; i < 3; i++ {
		data, err := cache.Object(ctx, desc)
		if err != nil {
			t.Fatalf("Object() call %d error = %v", i, err)
		}
		if string(data) != "FWS payload" {
			t.Fatalf("Object() = %q", data)
		}
	}
	if got := source.callCount("files/page/1.swf"); got != 1 {
		t.Fatalf("source fetched %d times, want 1", got)
	}

	entry, err := store.LookupObject(ctx, source.ID(), "page1")
	if err != nil {
		t.Fatalf("LookupObject() error = %v", err)
	}
	if entry == nil {
		t.Fatal("LookupObject() = nil, want index entry")
	}
	if entry.Size != int64(len("FWS payload")) {
		t.Fatalf("entry.Size = %d", entry.Size)
	}
	if len(entry.SHA256) != 64 {
		t.Fatalf("entry.SHA256 = %q, want hex digest", entry.SHA256)
	}
}

func TestObjectRetriesTransientFailures(t *testing.T) {
	source := newFakeSource()
	source.assets["files/page/2.swf"] = []byte("FWS")
	source.failures["files/page/2.swf"] = 2
	cache, _ := newTestCache(t, source, testsupport.WithFetchAttempts(4))

	data, err := cache.Object(context.Background(), descriptor("page2", "files/page/2.swf"))
	if err != nil {
		t.Fatalf("Object() error = %v", err)
	}
	if string(data) != "FWS" {
		t.Fatalf("Object() = %q", data)
	}
	if got := source.callCount("files/page/2.swf"); got != 3 {
		t.Fatalf("source fetched %d times, want 3", got)
	}
}

func TestObjectExhaustsRetryBudget(t *testing.T) {
	source := newFakeSource()
	source.assets["files/page/3.swf"] = []byte("FWS")
	source.failures["files/page/3.swf"] = 10
	cache, _ := newTestCache(t, source, testsupport.WithFetchAttempts(2))

	_, err := cache.Object(context.Background(), descriptor("page3", "files/page/3.swf"))
	if !errors.Is(err, services.ErrFetchFailed) {
		t.Fatalf("Object() error = %v, want ErrFetchFailed", err)
	}
	if got := source.callCount("files/page/3.swf"); got != 2 {
		t.Fatalf("source fetched %d times, want 2", got)
	}
}

func TestObjectPermanentFailureSkipsRetry(t *testing.T) {
	source := newFakeSource()
	cache, _ := newTestCache(t, source, testsupport.WithFetchAttempts(4))

	_, err := cache.Object(context.Background(), descriptor("missing", "files/page/404.swf"))
	if !errors.Is(err, services.ErrFetchFailed) {
		t.Fatalf("Object() error = %v, want ErrFetchFailed", err)
	}
	if got := source.callCount("files/page/404.swf"); got != 1 {
		t.Fatalf("source fetched %d times, want 1", got)
	}
}

func TestObjectConcurrentRequestsShareFetch(t *testing.T) {
	source := newFakeSource()
	source.assets["files/page/4.swf"] = []byte("FWS shared")
	cache, _ := newTestCache(t, source)

	const goroutines = 8
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Object(context.Background(), descriptor("page4", "files/page/4.swf"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: Object() error = %v", i, err)
		}
	}
	if got := source.callCount("files/page/4.swf"); got != 1 {
		t.Fatalf("source fetched %d times, want 1", got)
	}
}

func TestMetadataCached(t *testing.T) {
	source := newFakeSource()
	cache, _ := newTestCache(t, source)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		data, err := cache.Metadata(ctx)
		if err != nil {
			t.Fatalf("Metadata() call %d error = %v", i, err)
		}
		if string(data) != "<package/>" {
			t.Fatalf("Metadata() = %q", data)
		}
	}
	if got := source.callCount("metadata"); got != 1 {
		t.Fatalf("metadata fetched %d times, want 1", got)
	}
}

func TestClearRemovesBook(t *testing.T) {
	source := newFakeSource()
	source.assets["files/page/5.swf"] = []byte("FWS")
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cache, err := fetch.NewCache(cfg, source, store, fetch.WithSleeper(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}

	ctx := context.Background()
	if _, err := cache.Object(ctx, descriptor("page5", "files/page/5.swf")); err != nil {
		t.Fatalf("Object() error = %v", err)
	}
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	bookDir := filepath.Join(cfg.Paths.CacheDir, source.ID())
	if _, err := os.Stat(bookDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("book dir still present after Clear: %v", err)
	}
	entry, err := store.LookupObject(ctx, source.ID(), "page5")
	if err != nil {
		t.Fatalf("LookupObject() error = %v", err)
	}
	if entry != nil {
		t.Fatal("index entry survived Clear")
	}

	if _, err := cache.Object(ctx, descriptor("page5", "files/page/5.swf")); err != nil {
		t.Fatalf("Object() after Clear error = %v", err)
	}
	if got := source.callCount("files/page/5.swf"); got != 2 {
		t.Fatalf("source fetched %d times, want 2", got)
	}
}

func TestStoreStatsAndRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := store.RecordObject(ctx, fetch.Entry{
			BookID:    "book_a",
			ObjectID:  fmt.Sprintf("obj%d", i),
			Href:      fmt.Sprintf("files/page/%d.swf", i),
			Size:      100,
			Attempts:  1,
			FetchedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("RecordObject() error = %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if len(stats) != 1 || stats[0].BookID != "book_a" || stats[0].Objects != 3 || stats[0].Bytes != 300 {
		t.Fatalf("Stats() = %+v", stats)
	}

	rec := fetch.RunRecord{
		RunID:      "run-1",
		BookID:     "book_a",
		OutputPath: "/tmp/book_a.pdf",
		Expected:   12,
		Rendered:   11,
		Missing:    1,
		StartedAt:  time.Now().UTC().Add(-time.Minute),
		FinishedAt: time.Now().UTC(),
	}
	if err := store.RecordRun(ctx, rec); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	runs, err := store.Runs(ctx, "book_a")
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].Rendered != 11 {
		t.Fatalf("Runs() = %+v", runs)
	}
}

func TestRecordObjectUpsert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	entry := fetch.Entry{BookID: "b", ObjectID: "o", Href: "h", Size: 1, Attempts: 1, FetchedAt: time.Now().UTC()}
	if err := store.RecordObject(ctx, entry); err != nil {
		t.Fatalf("RecordObject() error = %v", err)
	}
	entry.Size = 2
	entry.Attempts = 3
	if err := store.RecordObject(ctx, entry); err != nil {
		t.Fatalf("RecordObject() upsert error = %v", err)
	}

	got, err := store.LookupObject(ctx, "b", "o")
	if err != nil {
		t.Fatalf("LookupObject() error = %v", err)
	}
	if got == nil || got.Size != 2 || got.Attempts != 3 {
		t.Fatalf("LookupObject() = %+v", got)
	}
}
