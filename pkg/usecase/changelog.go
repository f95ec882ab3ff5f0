package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hirosegw/changeboard/pkg/domain/interfaces"
	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
	"github.com/hirosegw/changeboard/pkg/infra/forge"
	"github.com/hirosegw/changeboard/pkg/infra/httpclient"
	"github.com/hirosegw/changeboard/pkg/utils/async"
)

const (
	defaultCacheTTL     = 3 * time.Minute
	defaultFetchTimeout = 45 * time.Second
)

// FetcherFactory returns the adapter for a provider. Injected so tests can
// substitute fakes for the four real adapters.
type FetcherFactory func(provider types.Provider) (interfaces.ReleaseFetcher, error)

type cacheEntry struct {
	expiresAt time.Time
	payload   *model.UnifiedChangelog
}

type changelogUseCase struct {
	sources    interfaces.SourceStore
	snapshots  interfaces.SnapshotStore
	newFetcher FetcherFactory

	cacheTTL     time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

// ChangelogOption is a functional option for the orchestrator
type ChangelogOption func(*changelogUseCase)

// WithCacheTTL sets the freshness window for the in-memory cache and for
// snapshot promotion
func WithCacheTTL(d time.Duration) ChangelogOption {
	return func(uc *changelogUseCase) {
		uc.cacheTTL = d
	}
}

// WithFetchTimeout bounds one aggregation run so a stalled source cannot
// wedge a page indefinitely
func WithFetchTimeout(d time.Duration) ChangelogOption {
	return func(uc *changelogUseCase) {
		uc.fetchTimeout = d
	}
}

// WithFetcherFactory overrides how provider adapters are constructed
func WithFetcherFactory(f FetcherFactory) ChangelogOption {
	return func(uc *changelogUseCase) {
		uc.newFetcher = f
	}
}

// WithClock overrides the wall clock, for tests
func WithClock(now func() time.Time) ChangelogOption {
	return func(uc *changelogUseCase) {
		uc.now = now
	}
}

// NewChangelog creates the aggregation orchestrator. The in-memory cache is
// owned exclusively by the returned value and lives until Invalidate or
// process exit.
func NewChangelog(sources interfaces.SourceStore, snapshots interfaces.SnapshotStore, opts ...ChangelogOption) interfaces.ChangelogUseCase {
	client := httpclient.New(httpclient.DefaultPolicy())
	uc := &changelogUseCase{
		sources:   sources,
		snapshots: snapshots,
		newFetcher: func(provider types.Provider) (interfaces.ReleaseFetcher, error) {
			return forge.New(provider, client)
		},
		cacheTTL:     defaultCacheTTL,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		cache:        make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// GetUnifiedChangelog returns the merged feed for the page
func (uc *changelogUseCase) GetUnifiedChangelog(ctx context.Context, pageID string, forceRefresh bool) (*model.UnifiedChangelog, error) {
	if !forceRefresh {
		if payload := uc.cached(pageID); payload != nil {
			return payload, nil
		}

		// A recent snapshot from a previous process run counts as fresh.
		snap, err := uc.snapshots.GetSnapshot(ctx, pageID)
		if err != nil {
			ctxlog.From(ctx).Warn("failed to read snapshot, refreshing",
				"page_id", pageID,
				"error", err,
			)
		}
		if snap != nil && uc.now().Sub(snap.FetchedAt) < uc.cacheTTL {
			// The freshness window runs from the aggregation that produced
			// the snapshot, not from promotion time.
			uc.storeCacheUntil(pageID, snap, snap.FetchedAt.Add(uc.cacheTTL))
			return snap, nil
		}
	}

	// Concurrent refreshes of one page collapse into a single upstream round.
	// The round runs detached from the caller's cancellation so one joiner
	// disconnecting cannot fail every waiter; the fetch timeout still bounds it.
	v, err, _ := uc.group.Do(pageID, func() (any, error) {
		refreshCtx := ctxlog.With(context.Background(), ctxlog.From(ctx))
		return uc.refresh(refreshCtx, pageID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.UnifiedChangelog), nil
}

// Invalidate clears the cache for one page, or everything when pageID is
// empty. Persisted snapshots are untouched.
func (uc *changelogUseCase) Invalidate(pageID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if pageID == "" {
		uc.cache = make(map[string]cacheEntry)
		return
	}
	delete(uc.cache, pageID)
}

func (uc *changelogUseCase) cached(pageID string) *model.UnifiedChangelog {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	entry, ok := uc.cache[pageID]
	if !ok || uc.now().After(entry.expiresAt) {
		return nil
	}
	return entry.payload
}

func (uc *changelogUseCase) storeCache(pageID string, payload *model.UnifiedChangelog) {
	uc.storeCacheUntil(pageID, payload, uc.now().Add(uc.cacheTTL))
}

func (uc *changelogUseCase) storeCacheUntil(pageID string, payload *model.UnifiedChangelog, expiresAt time.Time) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.cache[pageID] = cacheEntry{
		expiresAt: expiresAt,
		payload:   payload,
	}
}

type fetchResult struct {
	releases []model.AggregatedRelease
	fetchErr *model.SourceFetchError
}

// refresh runs one full aggregation: fan out across all enabled sources,
// merge and sort, then apply the degradation and persistence rules
func (uc *changelogUseCase) refresh(ctx context.Context, pageID string) (*model.UnifiedChangelog, error) {
	logger := ctxlog.From(ctx)

	srcs, err := uc.sources.ListEnabledSources(ctx, pageID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load sources", goerr.V("page_id", pageID))
	}

	logger.Info("aggregating changelog",
		"page_id", pageID,
		"sources", len(srcs),
	)

	fetchCtx, cancel := context.WithTimeout(ctx, uc.fetchTimeout)
	defer cancel()

	results := make([]fetchResult, len(srcs))
	var wg sync.WaitGroup
	for i, src := range srcs {
		wg.Add(1)
		go func(i int, src model.SourceConfig) {
			defer wg.Done()
			results[i] = uc.fetchOne(fetchCtx, src)
		}(i, src)
	}
	wg.Wait()

	releases := make([]model.AggregatedRelease, 0)
	fetchErrs := make([]model.SourceFetchError, 0)
	for _, r := range results {
		if r.fetchErr != nil {
			fetchErrs = append(fetchErrs, *r.fetchErr)
			continue
		}
		releases = append(releases, r.releases...)
	}

	sort.Slice(releases, func(i, j int) bool {
		if releases[i].PublishedAt.Equal(releases[j].PublishedAt) {
			return releases[i].ID < releases[j].ID
		}
		return releases[i].PublishedAt.After(releases[j].PublishedAt)
	})

	payload := &model.UnifiedChangelog{
		FetchedAt: uc.now().UTC(),
		Releases:  releases,
		Errors:    fetchErrs,
	}

	// Stale-while-error: a run that produced nothing but errors serves the
	// last good releases alongside the new errors. The combined payload is
	// cached but never persisted, so the snapshot stays genuinely last-good.
	if len(releases) == 0 && len(fetchErrs) > 0 {
		snap, serr := uc.snapshots.GetSnapshot(ctx, pageID)
		if serr != nil {
			logger.Warn("failed to read snapshot for degradation",
				"page_id", pageID,
				"error", serr,
			)
		}
		if snap != nil && len(snap.Releases) > 0 {
			logger.Warn("all sources failed, serving last good snapshot",
				"page_id", pageID,
				"errors", len(fetchErrs),
				"snapshot_age", uc.now().Sub(snap.FetchedAt).String(),
			)
			combined := &model.UnifiedChangelog{
				FetchedAt: payload.FetchedAt,
				Releases:  snap.Releases,
				Errors:    payload.Errors,
			}
			uc.storeCache(pageID, combined)
			return combined, nil
		}
	}

	uc.storeCache(pageID, payload)
	if len(releases) > 0 || len(fetchErrs) == 0 {
		async.Dispatch(ctx, func(ctx context.Context) error {
			return uc.snapshots.SaveSnapshot(ctx, pageID, payload)
		})
	}

	return payload, nil
}

// fetchOne isolates a single source: any failure becomes a SourceFetchError
// and never aborts sibling fetches
func (uc *changelogUseCase) fetchOne(ctx context.Context, src model.SourceConfig) fetchResult {
	srcErr := func(err error) fetchResult {
		ctxlog.From(ctx).Warn("source fetch failed",
			"source_id", src.ID,
			"repository", src.Repository(),
			"provider", src.Provider,
			"error", err,
		)
		return fetchResult{fetchErr: &model.SourceFetchError{
			SourceID:   src.ID,
			SourceName: src.DisplayName,
			Repository: src.Repository(),
			Message:    err.Error(),
		}}
	}

	fetcher, err := uc.newFetcher(src.Provider)
	if err != nil {
		return srcErr(err)
	}

	releases, err := fetcher.FetchReleases(ctx, src)
	if err != nil {
		return srcErr(err)
	}
	return fetchResult{releases: releases}
}
