package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mohammad-safakhou/mascot/config"
)

const (
	maxDocumentBytes = 2 << 20
	defaultRetries   = 2
)

// Validators are the conditional-request tokens of the last good fetch.
type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// FetchResult is the outcome of one fetch. When NotModified is set Body is
// empty and the previous snapshot is still current.
type FetchResult struct {
	Body        []byte
	NotModified bool
	Validators  Validators
}

// Source is where the registry document lives.
type Source interface {
	// Location identifies the document for origin; it doubles as cache key.
	Location(origin string) (string, error)
	Fetch(ctx context.Context, origin string, prev Validators) (FetchResult, error)
}

// NewSource picks the file source when a path is configured and the HTTP
// source otherwise.
func NewSource(cfg config.RegistryConfig, timeout time.Duration) Source {
	if cfg.Path != "" {
		return &FileSource{Path: cfg.Path}
	}
	return &HTTPSource{URL: cfg.URL, Origin: cfg.Origin, Timeout: timeout}
}

// HTTPSource fetches the registry over HTTP. A relative URL is resolved
// against Origin when it is set, otherwise against the origin of the request
// being served. Transient failures (transport errors, 5xx, 429) are retried
// within Timeout.
type HTTPSource struct {
	URL     string
	Origin  string
	Client  *http.Client
	Timeout time.Duration
	// Retries defaults to 2; a negative value disables retrying.
	Retries int
}

func (s *HTTPSource) Location(origin string) (string, error) {
	if pinned := strings.TrimSpace(s.Origin); pinned != "" {
		origin = pinned
	}
	ref, err := url.Parse(strings.TrimSpace(s.URL))
	if err != nil {
		return "", fmt.Errorf("registry url: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if strings.TrimSpace(origin) == "" {
		return "", errors.New("registry url is relative and no request origin is known")
	}
	base, err := url.Parse(origin)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("invalid request origin %q", origin)
	}
	return base.ResolveReference(ref).String(), nil
}

func (s *HTTPSource) Fetch(ctx context.Context, origin string, prev Validators) (FetchResult, error) {
	target, err := s.Location(origin)
	if err != nil {
		return FetchResult{}, err
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}

	resp, err := s.client().Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return FetchResult{NotModified: true, Validators: prev}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FetchResult{}, fmt.Errorf("fetch registry: %s returned %s", target, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return FetchResult{}, fmt.Errorf("read registry: %w", err)
	}
	return FetchResult{
		Body: body,
		Validators: Validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}

func (s *HTTPSource) client() *retryablehttp.Client {
	base := s.Client
	if base == nil {
		base = http.DefaultClient
	}
	retries := s.Retries
	switch {
	case retries == 0:
		retries = defaultRetries
	case retries < 0:
		retries = 0
	}
	return &retryablehttp.Client{
		HTTPClient:   base,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: time.Second,
		RetryMax:     retries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}
}

// FileSource reads the registry from local disk. The file modification
// time plays the role of Last-Modified.
type FileSource struct {
	Path string
}

func (s *FileSource) Location(string) (string, error) {
	return "file:" + s.Path, nil
}

func (s *FileSource) Fetch(_ context.Context, _ string, prev Validators) (FetchResult, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return FetchResult{}, fmt.Errorf("stat registry: %w", err)
	}
	modified := info.ModTime().UTC().Format(http.TimeFormat)
	if prev.LastModified == modified {
		return FetchResult{NotModified: true, Validators: prev}, nil
	}
	body, err := os.ReadFile(s.Path)
	if err != nil {
		return FetchResult{}, fmt.Errorf("read registry: %w", err)
	}
	return FetchResult{Body: body, Validators: Validators{LastModified: modified}}, nil
}
