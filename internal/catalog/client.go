package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fvrip/internal/config"
	"fvrip/internal/services"
)

// BookLocator names a book inside the origin's fixed path scheme.
type BookLocator struct {
	Prefix string // viewer flavor: "flipbooks" or "fliphtml5"
	Year   string
	Month  string
	Series string
	Name   string
}

// webRoot is the directory that holds a book's metadata document and all of
// its assets.
func (l BookLocator) webRoot() string {
	return fmt.Sprintf("%s/password/main/qikan/etwx/%s/%s/%s/web", l.Prefix, l.Year, l.Month, l.Series)
}

// MetadataPath is the origin-relative path of the package document.
func (l BookLocator) MetadataPath() string {
	return l.webRoot() + "/" + l.Name + ".xml"
}

// AssetPath resolves an href from the package document against the book's
// web root.
func (l BookLocator) AssetPath(href string) string {
	return l.webRoot() + "/" + strings.TrimPrefix(href, "/")
}

// ID is the cache namespace for the book.
func (l BookLocator) ID() string {
	return fmt.Sprintf("%s_%s_%s_%s", l.Year, l.Month, l.Series, l.Name)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (primarily for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client fetches metadata documents and raw object bytes from the catalog
// origin. It performs single requests; retry policy belongs to the fetch
// layer.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// New constructs a catalog client from configuration.
func New(cfg config.Catalog, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "new", "catalog.base_url required for remote books", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "new", "invalid catalog.base_url", err)
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		baseURL:    base,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchMetadata retrieves a book's package document.
func (c *Client) FetchMetadata(ctx context.Context, locator BookLocator) ([]byte, error) {
	return c.get(ctx, locator.MetadataPath())
}

// FetchAsset retrieves raw bytes for an href inside the book.
func (c *Client) FetchAsset(ctx context.Context, locator BookLocator, href string) ([]byte, error) {
	return c.get(ctx, locator.AssetPath(href))
}

func (c *Client) get(ctx context.Context, originPath string) ([]byte, error) {
	fullURL := c.baseURL + "/" + strings.TrimPrefix(originPath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "get", fullURL, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		marker := services.ErrFetchFailed
		if isTimeout(err) {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, "catalog", "get", fullURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrTransient, "catalog", "get",
			fmt.Sprintf("%s: status %d", fullURL, resp.StatusCode), nil)
	default:
		return nil, services.Wrap(services.ErrFetchFailed, "catalog", "get",
			fmt.Sprintf("%s: status %d", fullURL, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "catalog", "read body", fullURL, err)
	}
	return body, nil
}

// BookSource binds a client to one book so callers can fetch by href alone.
type BookSource struct {
	client  *Client
	locator BookLocator
}

// Book scopes the client to a single book.
func (c *Client) Book(locator BookLocator) *BookSource {
	return &BookSource{client: c, locator: locator}
}

// ID is the cache namespace for the book.
func (s *BookSource) ID() string { return s.locator.ID() }

// FetchMetadata retrieves the book's package document.
func (s *BookSource) FetchMetadata(ctx context.Context) ([]byte, error) {
	return s.client.FetchMetadata(ctx, s.locator)
}

// FetchAsset retrieves raw bytes for an href inside the book.
func (s *BookSource) FetchAsset(ctx context.Context, href string) ([]byte, error) {
	return s.client.FetchAsset(ctx, s.locator, href)
}

// Retryable reports whether an error is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, services.ErrTransient)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
