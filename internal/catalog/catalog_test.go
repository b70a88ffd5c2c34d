package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jp1648/portfolio/internal/github"
)

type mapStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	setErr  error
	getErr  error
	deletes int
}

func newMapStore() *mapStore {
	return &mapStore{values: make(map[string][]byte)}
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *mapStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.values, key)
	return nil
}

func (m *mapStore) put(t *testing.T, entry CacheEntry) {
	t.Helper()
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	m.values[DefaultCacheKey] = data
}

func (m *mapStore) entry(t *testing.T) (CacheEntry, bool) {
	t.Helper()
	data, ok := m.values[DefaultCacheKey]
	if !ok {
		return CacheEntry{}, false
	}
	var entry CacheEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	return entry, true
}

type fakeLister struct {
	mu     sync.Mutex
	repos  []github.Repo
	err    error
	calls  int
	owners []string
	// gate, when set, holds every call until it is closed.
	gate chan struct{}
}

func (f *fakeLister) ListUserRepos(_ context.Context, owner string) ([]github.Repo, error) {
	f.mu.Lock()
	f.calls++
	f.owners = append(f.owners, owner)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return f.repos, f.err
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func strPtr(s string) *string { return &s }

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *mapStore, lister *fakeLister) *Service {
	cache := NewCache(store, "", 0).WithClock(func() time.Time { return testNow })
	return NewService(lister, cache, Options{DefaultOwner: "jp1648", ExcludedName: "website2"})
}

func TestFilter(t *testing.T) {
	repos := []github.Repo{
		{Name: "jp1648", HTMLURL: "https://github.com/jp1648/jp1648"},
		{Name: "alpha", Description: strPtr("first"), HTMLURL: "https://github.com/jp1648/alpha"},
		{Name: "Website2", HTMLURL: "https://github.com/jp1648/Website2"},
		{Name: "beta", HTMLURL: "https://github.com/jp1648/beta"},
		{Name: "JP1648", HTMLURL: "https://github.com/jp1648/JP1648"},
	}

	got := Filter("jp1648", "website2", repos)

	require.Len(t, got, 3)
	for i, p := range got {
		assert.Equal(t, i, p.ID)
	}
	assert.Equal(t, "alpha", got[0].Name)
	assert.Equal(t, "first", *got[0].Description)
	assert.Equal(t, "https://github.com/jp1648/alpha", got[0].URL)
	assert.Equal(t, "beta", got[1].Name)
	assert.Nil(t, got[1].Description)
	// owner match is exact, so a differently cased profile name survives
	assert.Equal(t, "JP1648", got[2].Name)
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		name string
		repo string
		want bool
	}{
		{"owner profile repo", "jp1648", true},
		{"site repo lowercase", "website2", true},
		{"site repo mixed case", "WebSite2", true},
		{"regular repo", "dotfiles", false},
		{"prefix of site repo", "website", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Excluded("jp1648", "website2", tt.repo))
		})
	}

	assert.False(t, Excluded("jp1648", "", ""), "empty exclusion value matches nothing")
}

func TestDegrade(t *testing.T) {
	reason := errors.New("boom")

	t.Run("stale entry present", func(t *testing.T) {
		stale := &CacheEntry{Projects: []ProjectRecord{{ID: 0, Name: "foo"}}}
		res := Degrade(stale, reason)
		assert.Equal(t, SourceStale, res.Source)
		assert.Equal(t, stale.Projects, res.Projects)
		assert.ErrorIs(t, res.Reason, reason)
		assert.True(t, res.Degraded())
	})

	t.Run("stale entry with null projects", func(t *testing.T) {
		res := Degrade(&CacheEntry{}, reason)
		assert.Equal(t, SourceStale, res.Source)
		assert.NotNil(t, res.Projects)
		assert.Empty(t, res.Projects)
	})

	t.Run("nothing cached", func(t *testing.T) {
		res := Degrade(nil, reason)
		assert.Equal(t, SourceEmpty, res.Source)
		assert.NotNil(t, res.Projects)
		assert.Empty(t, res.Projects)
	})
}

func TestService_FreshCacheSkipsNetwork(t *testing.T) {
	store := newMapStore()
	cached := []ProjectRecord{{ID: 0, Name: "foo", Description: strPtr("bar"), URL: "https://x/foo"}}
	store.put(t, CacheEntry{Projects: cached, Timestamp: testNow.Add(-time.Hour).UnixMilli()})
	lister := &fakeLister{err: errors.New("must not be called")}

	res := newTestService(store, lister).Resolve(context.Background(), "")

	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, cached, res.Projects)
	assert.Zero(t, lister.calls)
}

func TestService_ExpiredCacheRefetches(t *testing.T) {
	store := newMapStore()
	store.put(t, CacheEntry{
		Projects:  []ProjectRecord{{ID: 0, Name: "old"}},
		Timestamp: testNow.Add(-25 * time.Hour).UnixMilli(),
	})
	lister := &fakeLister{repos: []github.Repo{
		{Name: "a", Description: strPtr("alpha"), HTMLURL: "https://github.com/jp1648/a"},
		{Name: "jp1648", HTMLURL: "https://github.com/jp1648/jp1648"},
	}}

	got := newTestService(store, lister).GetCatalog(context.Background(), "")

	want := []ProjectRecord{{ID: 0, Name: "a", Description: strPtr("alpha"), URL: "https://github.com/jp1648/a"}}
	assert.Equal(t, want, got)
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, []string{"jp1648"}, lister.owners)

	entry, ok := store.entry(t)
	require.True(t, ok)
	assert.Equal(t, want, entry.Projects)
	assert.Equal(t, testNow.UnixMilli(), entry.Timestamp)
}

func TestService_FetchFailureFallsBackToStale(t *testing.T) {
	store := newMapStore()
	stale := []ProjectRecord{{ID: 0, Name: "foo", URL: "https://x/foo"}, {ID: 1, Name: "bar", URL: "https://x/bar"}}
	store.put(t, CacheEntry{Projects: stale, Timestamp: testNow.Add(-48 * time.Hour).UnixMilli()})
	lister := &fakeLister{err: &github.APIError{StatusCode: 500, Status: "500 Internal Server Error"}}

	res := newTestService(store, lister).Resolve(context.Background(), "")

	assert.Equal(t, SourceStale, res.Source)
	assert.Equal(t, stale, res.Projects)
	var apiErr *github.APIError
	assert.ErrorAs(t, res.Reason, &apiErr)

	_, ok := store.entry(t)
	assert.False(t, ok, "expired entry is removed on read")
}

func TestService_FetchFailureWithoutCacheIsEmpty(t *testing.T) {
	store := newMapStore()
	lister := &fakeLister{err: errors.New("network unreachable")}

	got := newTestService(store, lister).GetCatalog(context.Background(), "")

	assert.NotNil(t, got)
	assert.Empty(t, got)
	_, ok := store.entry(t)
	assert.False(t, ok)
}

func TestService_MalformedCacheIsDiscarded(t *testing.T) {
	store := newMapStore()
	store.values[DefaultCacheKey] = []byte("{not json")
	lister := &fakeLister{repos: []github.Repo{{Name: "a", HTMLURL: "https://github.com/jp1648/a"}}}

	res := newTestService(store, lister).Resolve(context.Background(), "")

	assert.Equal(t, SourceNetwork, res.Source)
	assert.Len(t, res.Projects, 1)
	assert.Equal(t, 1, store.deletes)
	entry, ok := store.entry(t)
	require.True(t, ok)
	assert.Equal(t, "a", entry.Projects[0].Name)
}

func TestService_MalformedCacheAndFetchFailure(t *testing.T) {
	store := newMapStore()
	store.values[DefaultCacheKey] = []byte("garbage")
	lister := &fakeLister{err: errors.New("timeout")}

	res := newTestService(store, lister).Resolve(context.Background(), "")

	assert.Equal(t, SourceEmpty, res.Source)
	assert.Empty(t, res.Projects)
}

func TestService_StoreWriteFailureStillReturnsFetched(t *testing.T) {
	store := newMapStore()
	store.setErr = errors.New("quota exceeded")
	lister := &fakeLister{repos: []github.Repo{{Name: "a"}, {Name: "b"}}}

	res := newTestService(store, lister).Resolve(context.Background(), "")

	assert.Equal(t, SourceNetwork, res.Source)
	require.Len(t, res.Projects, 2)
	assert.Equal(t, 1, res.Projects[1].ID)
}

func TestService_StoreReadFailureFetches(t *testing.T) {
	store := newMapStore()
	store.getErr = errors.New("disk gone")
	lister := &fakeLister{repos: []github.Repo{{Name: "a"}}}

	res := newTestService(store, lister).Resolve(context.Background(), "")

	assert.Equal(t, SourceNetwork, res.Source)
	assert.Equal(t, 1, lister.calls)
}

func TestService_RepeatedCallsHitCache(t *testing.T) {
	store := newMapStore()
	lister := &fakeLister{repos: []github.Repo{{Name: "a"}}}
	svc := newTestService(store, lister)

	first := svc.Resolve(context.Background(), "")
	second := svc.Resolve(context.Background(), "")

	assert.Equal(t, SourceNetwork, first.Source)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Projects, second.Projects)
	assert.Equal(t, 1, lister.calls)
}

func TestService_ExplicitOwner(t *testing.T) {
	store := newMapStore()
	cached := []ProjectRecord{{ID: 0, Name: "portfolio-project"}}
	store.put(t, CacheEntry{Projects: cached, Timestamp: testNow.Add(-time.Hour).UnixMilli()})
	lister := &fakeLister{repos: []github.Repo{{Name: "someone"}, {Name: "tool"}}}
	svc := newTestService(store, lister)

	res := svc.Resolve(context.Background(), "someone")

	assert.Equal(t, SourceNetwork, res.Source, "a fresh default entry is not served for another owner")
	assert.Equal(t, []string{"someone"}, lister.owners)
	require.Len(t, res.Projects, 1)
	assert.Equal(t, "tool", res.Projects[0].Name)

	entry, ok := store.entry(t)
	require.True(t, ok)
	assert.Equal(t, cached, entry.Projects, "another owner's catalog is not stored")

	_, err := svc.Refresh(context.Background(), "someone")
	require.NoError(t, err)
	entry, _ = store.entry(t)
	assert.Equal(t, cached, entry.Projects)

	lister.err = errors.New("down")
	res = svc.Resolve(context.Background(), "someone")
	assert.Equal(t, SourceEmpty, res.Source)
	assert.Empty(t, res.Projects)
}

func resolveConcurrently(svc *Service, n int) []Resolution {
	results := make([]Resolution, n)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Resolve(context.Background(), "")
		}(i)
	}
	wg.Wait()
	return results
}

func TestService_ConcurrentResolvesShareOneFetch(t *testing.T) {
	store := newMapStore()
	lister := &fakeLister{repos: []github.Repo{{Name: "a"}, {Name: "b"}}}
	svc := newTestService(store, lister)

	results := resolveConcurrently(svc, 10)

	assert.Equal(t, 1, lister.callCount())
	for _, res := range results {
		assert.Len(t, res.Projects, 2)
		assert.Contains(t, []Source{SourceNetwork, SourceCache}, res.Source)
	}
}

func TestService_ConcurrentResolvesShareStaleFallback(t *testing.T) {
	store := newMapStore()
	stale := []ProjectRecord{{ID: 0, Name: "foo"}}
	store.put(t, CacheEntry{Projects: stale, Timestamp: testNow.Add(-48 * time.Hour).UnixMilli()})
	lister := &fakeLister{err: errors.New("rate limited"), gate: make(chan struct{})}
	svc := newTestService(store, lister)

	results := make([]Resolution, 10)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Resolve(context.Background(), "")
		}(i)
	}

	require.Eventually(t, func() bool { return lister.callCount() == 1 }, time.Second, time.Millisecond)
	// let the remaining callers join the in-flight resolve
	time.Sleep(50 * time.Millisecond)
	close(lister.gate)
	wg.Wait()

	assert.Equal(t, 1, lister.callCount())
	for _, res := range results {
		assert.Equal(t, SourceStale, res.Source)
		assert.Equal(t, stale, res.Projects)
	}
}

func TestService_RefreshJoinsInFlightFetch(t *testing.T) {
	store := newMapStore()
	lister := &fakeLister{repos: []github.Repo{{Name: "a"}}, gate: make(chan struct{})}
	svc := newTestService(store, lister)

	var wg sync.WaitGroup
	var refreshed []ProjectRecord
	var refreshErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.Resolve(context.Background(), "")
	}()
	require.Eventually(t, func() bool { return lister.callCount() == 1 }, time.Second, time.Millisecond)
	go func() {
		defer wg.Done()
		refreshed, refreshErr = svc.Refresh(context.Background(), "")
	}()
	time.Sleep(50 * time.Millisecond)
	close(lister.gate)
	wg.Wait()

	require.NoError(t, refreshErr)
	assert.Len(t, refreshed, 1)
	assert.Equal(t, 1, lister.callCount())
}

func TestService_SnapshotHasNoSideEffects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	store := newMapStore()
	stale := []ProjectRecord{{ID: 0, Name: "foo"}}
	stamp := testNow.Add(-48 * time.Hour)
	store.put(t, CacheEntry{Projects: stale, Timestamp: stamp.UnixMilli()})
	lister := &fakeLister{err: errors.New("must not be called")}
	cache := NewCache(store, "", 0).WithClock(func() time.Time { return testNow })
	svc := NewService(lister, cache, Options{DefaultOwner: "jp1648", Meter: provider.Meter("test")})

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, CacheExpired, snap.State)
	assert.Equal(t, stale, snap.Projects)
	assert.Equal(t, stamp, snap.UpdatedAt)
	assert.Zero(t, lister.calls)
	assert.Zero(t, store.deletes)
	_, ok := store.entry(t)
	assert.True(t, ok)

	assert.Empty(t, resolutionCounts(t, reader))

	// the stale entry is still there for the next real request
	res := svc.Resolve(context.Background(), "")
	assert.Equal(t, SourceStale, res.Source)
	assert.Equal(t, stale, res.Projects)
}

func TestService_SnapshotEmptyCache(t *testing.T) {
	svc := newTestService(newMapStore(), &fakeLister{})

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CacheMissing, snap.State)
	assert.NotNil(t, snap.Projects)
	assert.True(t, snap.UpdatedAt.IsZero())
}

func TestService_RefreshAndPurge(t *testing.T) {
	store := newMapStore()
	store.put(t, CacheEntry{Projects: []ProjectRecord{{Name: "old"}}, Timestamp: testNow.UnixMilli()})
	lister := &fakeLister{repos: []github.Repo{{Name: "new"}}}
	svc := newTestService(store, lister)

	projects, err := svc.Refresh(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "new", projects[0].Name)

	entry, ok := store.entry(t)
	require.True(t, ok)
	assert.Equal(t, "new", entry.Projects[0].Name)

	require.NoError(t, svc.Purge(context.Background()))
	_, ok = store.entry(t)
	assert.False(t, ok)

	lister.err = errors.New("down")
	_, err = svc.Refresh(context.Background(), "")
	assert.Error(t, err)
}

func TestService_RecordsResolutionSources(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	store := newMapStore()
	lister := &fakeLister{repos: []github.Repo{{Name: "a"}}}
	cache := NewCache(store, "", 0).WithClock(func() time.Time { return testNow })
	svc := NewService(lister, cache, Options{DefaultOwner: "jp1648", Meter: provider.Meter("test")})

	svc.Resolve(context.Background(), "")
	svc.Resolve(context.Background(), "")
	require.NoError(t, svc.Purge(context.Background()))
	lister.err = errors.New("down")
	svc.Resolve(context.Background(), "")

	counts := resolutionCounts(t, reader)
	assert.Equal(t, map[string]int64{"network": 1, "cache": 1, "empty": 1}, counts)
}

func resolutionCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "portfolio.catalog.resolutions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("source")
				counts[v.AsString()] += dp.Value
			}
		}
	}
	return counts
}
