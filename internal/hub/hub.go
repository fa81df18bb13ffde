// Package hub defines the origin-hub boundary: the capability to fetch a
// snapshot of a model identifier into a target directory. The default
// binding speaks the Hugging Face hub HTTP API; the cache engine only sees
// the Fetcher interface.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Sentinel errors for origin fetch failures, checked with errors.Is.
var (
	// ErrModelNotFound indicates the hub has no model under the identifier.
	ErrModelNotFound = errors.New("model not found in hub")

	// ErrUnauthorized indicates the hub rejected the provided credentials,
	// typically for a private or gated model.
	ErrUnauthorized = errors.New("hub authorization failed")
)

// Fetcher fetches a snapshot of a model into a destination directory.
// Implementations must leave destDir untouched or partially written only;
// the caller owns cleanup on failure.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, id, destDir string) error
}

// DefaultBaseURL is the public Hugging Face hub endpoint.
const DefaultBaseURL = "https://huggingface.co"

// defaultFileConcurrency bounds concurrent file downloads per snapshot.
const defaultFileConcurrency = 4

// HTTPFetcher fetches snapshots over the hub's HTTP API: one manifest
// request listing the repository files, then one ranged-free GET per file.
type HTTPFetcher struct {
	baseURL     string
	token       string
	client      *http.Client
	concurrency int
}

// HTTPFetcherConfig configures an HTTPFetcher.
type HTTPFetcherConfig struct {
	// BaseURL overrides the hub endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// Token is an optional bearer token forwarded for private models.
	Token string

	// Client overrides the HTTP client, e.g. to set timeouts or proxies.
	Client *http.Client

	// FileConcurrency bounds concurrent file downloads. Defaults to 4.
	FileConcurrency int
}

// NewHTTPFetcher creates a hub fetcher for the given configuration.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	concurrency := cfg.FileConcurrency
	if concurrency <= 0 {
		concurrency = defaultFileConcurrency
	}
	return &HTTPFetcher{
		baseURL:     base,
		token:       cfg.Token,
		client:      client,
		concurrency: concurrency,
	}
}

// modelManifest is the subset of the hub's model metadata the fetcher needs.
type modelManifest struct {
	Siblings []struct {
		Rfilename string `json:"rfilename"`
	} `json:"siblings"`
}

// FetchSnapshot downloads every file of the model's main revision into
// destDir, preserving relative paths.
func (f *HTTPFetcher) FetchSnapshot(ctx context.Context, id, destDir string) error {
	manifest, err := f.fetchManifest(ctx, id)
	if err != nil {
		return err
	}
	if len(manifest.Siblings) == 0 {
		return fmt.Errorf("%w: %s has no files", ErrModelNotFound, id)
	}

	// Validate every name before any download starts, so a bad manifest
	// never leaves orphaned writers racing the caller's cleanup of destDir.
	for _, sibling := range manifest.Siblings {
		if !filepath.IsLocal(sibling.Rfilename) {
			return fmt.Errorf("hub returned unsafe file path %q", sibling.Rfilename)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.concurrency)

	for _, sibling := range manifest.Siblings {
		name := sibling.Rfilename
		eg.Go(func() error {
			return f.fetchFile(egCtx, id, name, destDir)
		})
	}
	return eg.Wait()
}

// fetchManifest retrieves the file listing for a model.
func (f *HTTPFetcher) fetchManifest(ctx context.Context, id string) (*modelManifest, error) {
	endpoint := fmt.Sprintf("%s/api/models/%s", f.baseURL, id)
	resp, err := f.do(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch model manifest: %w", err)
	}
	defer resp.Body.Close()

	if err := f.checkStatus(resp, id); err != nil {
		return nil, err
	}

	var manifest modelManifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decode model manifest: %w", err)
	}
	return &manifest, nil
}

// fetchFile downloads one repository file into destDir.
func (f *HTTPFetcher) fetchFile(ctx context.Context, id, name, destDir string) error {
	endpoint := fmt.Sprintf("%s/%s/resolve/main/%s", f.baseURL, id, escapePath(name))
	resp, err := f.do(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if err := f.checkStatus(resp, id); err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}

	dest := filepath.Join(destDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return out.Close()
}

// escapePath escapes each segment of a repo-relative file path while
// keeping the slashes that separate them.
func escapePath(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func (f *HTTPFetcher) do(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	return f.client.Do(req)
}

func (f *HTTPFetcher) checkStatus(resp *http.Response, id string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, id)
	default:
		return fmt.Errorf("hub returned status %d for %s", resp.StatusCode, id)
	}
}

// Compile-time interface check.
var _ Fetcher = (*HTTPFetcher)(nil)
