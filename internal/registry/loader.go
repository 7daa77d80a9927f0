package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mohammad-safakhou/mascot/internal/cache"
)

const keyPrefix = "registry:"

type snapshot struct {
	Entries    []Entry    `json:"entries"`
	Validators Validators `json:"validators"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

type Options struct {
	// TTL is how long a snapshot is served without revalidation.
	TTL time.Duration
	// StaleTTL is how long a snapshot is retained as a fallback for failed
	// refreshes.
	StaleTTL time.Duration
	Clock    cache.Clock
}

// Loader serves registry snapshots from a cache and refreshes them from the
// source when they age past TTL.
type Loader struct {
	source   Source
	store    cache.Store
	ttl      time.Duration
	staleTTL time.Duration
	clock    cache.Clock
	group    singleflight.Group
	log      zerolog.Logger
}

func NewLoader(source Source, store cache.Store, opts Options, logger zerolog.Logger) *Loader {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.StaleTTL < opts.TTL {
		opts.StaleTTL = 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = cache.SystemClock{}
	}
	return &Loader{
		source:   source,
		store:    store,
		ttl:      opts.TTL,
		staleTTL: opts.StaleTTL,
		clock:    opts.Clock,
		log:      logger,
	}
}

// Load returns the registry for the given request origin. On refresh
// failure a retained snapshot is served; the error is only returned when
// there is nothing to fall back to.
func (l *Loader) Load(ctx context.Context, origin string) ([]Entry, error) {
	location, err := l.source.Location(origin)
	if err != nil {
		return nil, err
	}
	key := keyPrefix + location
	v, err, _ := l.group.Do(key, func() (any, error) {
		return l.load(ctx, key, origin)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

func (l *Loader) load(ctx context.Context, key, origin string) ([]Entry, error) {
	snap, cached := l.readSnapshot(ctx, key)
	now := l.clock.Now()
	if cached && now.Sub(snap.FetchedAt) < l.ttl {
		return snap.Entries, nil
	}

	var prev Validators
	if cached {
		prev = snap.Validators
	}
	res, err := l.source.Fetch(ctx, origin, prev)
	if err == nil && res.NotModified && !cached {
		err = errors.New("registry source reported not modified without a snapshot")
	}
	var entries []Entry
	if err == nil && !res.NotModified {
		entries, err = Parse(res.Body)
	}
	if err != nil {
		if cached {
			l.log.Warn().Err(err).Str("key", key).Time("fetched_at", snap.FetchedAt).Msg("registry: refresh failed, serving stale snapshot")
			return snap.Entries, nil
		}
		return nil, fmt.Errorf("load registry: %w", err)
	}

	if res.NotModified {
		snap.FetchedAt = now
	} else {
		snap = snapshot{Entries: entries, Validators: res.Validators, FetchedAt: now}
		l.log.Debug().Str("key", key).Int("entries", len(entries)).Msg("registry: snapshot refreshed")
	}
	l.writeSnapshot(ctx, key, snap)
	return snap.Entries, nil
}

func (l *Loader) readSnapshot(ctx context.Context, key string) (snapshot, bool) {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			l.log.Warn().Err(err).Str("key", key).Msg("registry: cache read failed")
		}
		return snapshot{}, false
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("registry: discarding unreadable snapshot")
		return snapshot{}, false
	}
	return snap, true
}

func (l *Loader) writeSnapshot(ctx context.Context, key string, snap snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := l.store.Set(ctx, key, raw, l.staleTTL); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("registry: cache write failed")
	}
}
