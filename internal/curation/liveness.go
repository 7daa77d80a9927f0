package curation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/mascot/config"
	"github.com/mohammad-safakhou/mascot/internal/cache"
	"github.com/mohammad-safakhou/mascot/internal/helpers"
)

const (
	livenessKeyPrefix = "liveness:"
	unavailableMarker = "(link unavailable)"
)

type LivenessOptions struct {
	Timeout        time.Duration
	TTL            time.Duration
	Concurrency    int
	TrustedDomains []string
	BlockedDomains []string
	Client         *http.Client
}

// LivenessOptionsFrom maps the liveness configuration section.
func LivenessOptionsFrom(cfg config.LivenessConfig) LivenessOptions {
	cfg = cfg.Normalize()
	return LivenessOptions{
		Timeout:        cfg.Timeout,
		TTL:            cfg.TTL,
		Concurrency:    cfg.Concurrency,
		TrustedDomains: cfg.TrustedDomains,
		BlockedDomains: cfg.BlockedDomains,
	}
}

// LivenessChecker checks whether links still resolve. Results are cached
// per URL so a link is checked at most once per TTL.
type LivenessChecker struct {
	client      *http.Client
	store       cache.Store
	timeout     time.Duration
	ttl         time.Duration
	concurrency int
	trusted     []string
	blocked     []string
	log         zerolog.Logger
}

func NewLivenessChecker(store cache.Store, opts LivenessOptions, logger zerolog.Logger) *LivenessChecker {
	if opts.Timeout <= 0 {
		opts.Timeout = 4500 * time.Millisecond
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &LivenessChecker{
		client:      opts.Client,
		store:       store,
		timeout:     opts.Timeout,
		ttl:         opts.TTL,
		concurrency: opts.Concurrency,
		trusted:     opts.TrustedDomains,
		blocked:     opts.BlockedDomains,
		log:         logger,
	}
}

// Alive reports whether rawURL, its tracking-free form, or its origin
// answers with a 2xx to HEAD or GET.
func (c *LivenessChecker) Alive(ctx context.Context, rawURL string) bool {
	domain := helpers.NormalizedDomain(rawURL)
	if domain == "" || matchesDomain(domain, c.blocked) {
		return false
	}
	if matchesDomain(domain, c.trusted) {
		return true
	}

	key := livenessKeyPrefix + rawURL
	if canonical, err := helpers.CanonicalURL(rawURL); err == nil {
		key = livenessKeyPrefix + canonical
	}
	if v, err := c.store.Get(ctx, key); err == nil {
		return string(v) == "1"
	} else if !errors.Is(err, cache.ErrMiss) {
		c.log.Debug().Err(err).Str("key", key).Msg("liveness: cache read failed")
	}

	alive := false
	for _, candidate := range candidates(rawURL) {
		if c.reachable(ctx, candidate) {
			alive = true
			break
		}
	}
	if ctx.Err() != nil {
		return alive
	}
	value := []byte("0")
	if alive {
		value = []byte("1")
	}
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("liveness: cache write failed")
	}
	return alive
}

// CheckAll checks urls concurrently and returns one result per url.
func (c *LivenessChecker) CheckAll(ctx context.Context, urls []string) []bool {
	results := make([]bool, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = c.Alive(gctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Validate replaces sources whose link is dead with a title-only entry
// marked unavailable. File sources pass through untouched.
func (c *LivenessChecker) Validate(ctx context.Context, sources []Source) []Source {
	var idx []int
	var urls []string
	for i, s := range sources {
		if s.URL != "" {
			idx = append(idx, i)
			urls = append(urls, s.URL)
		}
	}
	out := append([]Source(nil), sources...)
	if len(urls) == 0 {
		return out
	}
	for k, alive := range c.CheckAll(ctx, urls) {
		if alive {
			continue
		}
		s := out[idx[k]]
		c.log.Info().Str("url", s.URL).Str("id", s.ID).Msg("liveness: link unavailable")
		out[idx[k]] = Source{ID: s.ID, Title: strings.TrimSpace(s.Title + " " + unavailableMarker)}
	}
	return out
}

func (c *LivenessChecker) reachable(ctx context.Context, target string) bool {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		if c.attempt(ctx, method, target) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

func (c *LivenessChecker) attempt(ctx context.Context, method, target string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", "mascot-linkcheck/1.0")
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// candidates lists the URL, the URL without tracking parameters and the
// bare origin, skipping repeats.
func candidates(rawURL string) []string {
	out := []string{rawURL}
	add := func(u string, err error) {
		if err != nil || u == "" {
			return
		}
		for _, seen := range out {
			if seen == u {
				return
			}
		}
		out = append(out, u)
	}
	add(helpers.StripTracking(rawURL))
	add(helpers.Origin(rawURL))
	return out
}

func matchesDomain(domain string, list []string) bool {
	for _, d := range list {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
