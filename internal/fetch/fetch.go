package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fvrip/internal/catalog"
	"fvrip/internal/config"
	"fvrip/internal/logging"
	"fvrip/internal/manifest"
	"fvrip/internal/services"
)

// Source is where a book's bytes come from, remote or mirrored.
type Source interface {
	ID() string
	FetchMetadata(ctx context.Context) ([]byte, error)
	FetchAsset(ctx context.Context, href string) ([]byte, error)
}

// Option customizes cache behavior.
type Option func(*Cache)

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Cache) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger to the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache stores fetched book assets on disk so repeated runs do not touch the
// origin again. Objects land under <cache_dir>/<book_id>/objects/<object_id>
// and are indexed in SQLite alongside.
type Cache struct {
	root        string
	source      Source
	store       *Store
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(time.Duration)

	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// NewCache builds a cache over a source using the fetch configuration.
func NewCache(cfg *config.Config, source Source, store *Store, opts ...Option) (*Cache, error) {
	if source == nil {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "new cache", "nil source", nil)
	}
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "new cache", "nil store", nil)
	}
	cache := &Cache{
		root:        cfg.Paths.CacheDir,
		source:      source,
		store:       store,
		logger:      logging.NewNop(),
		maxAttempts: cfg.Fetch.MaxAttempts,
		baseDelay:   time.Duration(cfg.Fetch.RetryBaseDelayMS) * time.Millisecond,
		maxDelay:    time.Duration(cfg.Fetch.RetryMaxDelayMS) * time.Millisecond,
		inFlight:    make(map[string]chan struct{}),
	}
	if cache.maxAttempts <= 0 {
		cache.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

// BookID is the cache namespace of the underlying source.
func (c *Cache) BookID() string {
	return c.source.ID()
}

func (c *Cache) bookDir() string {
	return filepath.Join(c.root, c.source.ID())
}

func (c *Cache) objectPath(objectID string) string {
	return filepath.Join(c.bookDir(), "objects", objectID)
}

// Metadata returns the book's package document, fetching it once and caching
// it beside the objects.
func (c *Cache) Metadata(ctx context.Context) ([]byte, error) {
	path := filepath.Join(c.bookDir(), "book.xml")
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	data, err := c.fetchWithRetry(ctx, "metadata", c.source.FetchMetadata)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, data); err != nil {
		return nil, services.Wrap(services.ErrFetchFailed, "fetch", "cache metadata", path, err)
	}
	return data, nil
}

// Object returns the encrypted bytes for a manifest object, from disk when
// cached and from the source otherwise. Concurrent requests for the same
// object share one fetch.
func (c *Cache) Object(ctx context.Context, desc manifest.ObjectDescriptor) ([]byte, error) {
	path := c.objectPath(desc.ID)

	var token chan struct{}
	for token == nil {
		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		}

		c.mu.Lock()
		done, waiting := c.inFlight[desc.ID]
		if !waiting {
			token = make(chan struct{})
			c.inFlight[desc.ID] = token
		}
		c.mu.Unlock()
		if !waiting {
			break
		}

		select {
		case <-done:
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrFetchFailed, "fetch", "object", desc.ID, ctx.Err())
		}
	}

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, desc.ID)
		c.mu.Unlock()
		close(token)
	}()

	attempts := 0
	data, err := c.fetchWithRetry(ctx, desc.ID, func(ctx context.Context) ([]byte, error) {
		attempts++
		return c.source.FetchAsset(ctx, desc.Href)
	})
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, data); err != nil {
		return nil, services.Wrap(services.ErrFetchFailed, "fetch", "cache object", path, err)
	}
	sum := sha256.Sum256(data)
	if err := c.store.RecordObject(ctx, Entry{
		BookID:    c.source.ID(),
		ObjectID:  desc.ID,
		Href:      desc.Href,
		Size:      int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
		Attempts:  attempts,
		FetchedAt: time.Now().UTC(),
	}); err != nil {
		c.logger.Warn("cache index update failed",
			logging.String(logging.FieldObjectID, desc.ID),
			logging.Error(err))
	}
	return data, nil
}

func (c *Cache) fetchWithRetry(ctx context.Context, what string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		data, err := fn(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !catalog.Retryable(err) || attempt == c.maxAttempts {
			break
		}
		delay := c.backoffDelay(attempt)
		c.logger.Debug("retrying fetch",
			logging.String(logging.FieldObjectID, what),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, services.Wrap(services.ErrFetchFailed, "fetch", what, "cancelled during backoff", err)
		}
	}
	return nil, services.Wrap(services.ErrFetchFailed, "fetch", what,
		fmt.Sprintf("failed after %d attempts", c.maxAttempts), lastErr)
}

// backoffDelay doubles per attempt, capped at maxDelay.
func (c *Cache) backoffDelay(attempt int) time.Duration {
	if c.baseDelay <= 0 {
		return 0
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		if c.maxDelay > 0 && delay > c.maxDelay/2 {
			return c.maxDelay
		}
		delay *= 2
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func (c *Cache) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear removes this book's cached files and index rows.
func (c *Cache) Clear(ctx context.Context) error {
	if err := os.RemoveAll(c.bookDir()); err != nil {
		return fmt.Errorf("remove cache dir: %w", err)
	}
	if _, err := c.store.ClearBook(ctx, c.source.ID()); err != nil {
		return err
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".fetch-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
