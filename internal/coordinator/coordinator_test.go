package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

type fakeStore struct {
	mu           sync.Mutex
	hospitals    map[string]crawler.Hospital
	pages        map[string][]crawler.Page
	stats        []crawler.ScrapeStats
	replaceErr   error
	statsErr     error
	touchedAt    []time.Time
	touchedIDs   []string
	replaceCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hospitals: map[string]crawler.Hospital{},
		pages:     map[string][]crawler.Page{},
	}
}

func (s *fakeStore) GetHospital(_ context.Context, id string) (crawler.Hospital, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hospitals[id]
	if !ok {
		return crawler.Hospital{}, errors.New("hospital not found")
	}
	return h, nil
}

func (s *fakeStore) TouchScrapedAt(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchedIDs = append(s.touchedIDs, id)
	s.touchedAt = append(s.touchedAt, at)
	return nil
}

func (s *fakeStore) ReplacePages(_ context.Context, hospitalID string, pages []crawler.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls++
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.pages[hospitalID] = pages
	return nil
}

func (s *fakeStore) RecordStats(_ context.Context, stats crawler.ScrapeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statsErr != nil {
		return s.statsErr
	}
	s.stats = append(s.stats, stats)
	return nil
}

func (s *fakeStore) AggregateStats(_ context.Context, hospitalID string) (crawler.StatsAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := crawler.StatsAggregate{HospitalID: hospitalID}
	for _, st := range s.stats {
		if st.HospitalID == hospitalID {
			agg.Runs++
		}
	}
	return agg, nil
}

type fakeStrategy struct {
	method crawler.ScrapeMethod
	result crawler.RunResult
	err    error
	calls  int
}

func (f *fakeStrategy) Method() crawler.ScrapeMethod { return f.method }

func (f *fakeStrategy) Run(context.Context, string, string) (crawler.RunResult, error) {
	f.calls++
	if f.err != nil {
		return crawler.RunResult{}, f.err
	}
	return f.result, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixedID struct{}

func (fixedID) NewID() (string, error) { return "stats-1", nil }

func newCoordinator(store crawler.Store) *Coordinator {
	return New(store, fixedClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}, fixedID{}, zap.NewNop())
}

func somePages(hospitalID string, n int) []crawler.Page {
	pages := make([]crawler.Page, 0, n)
	for i := 0; i < n; i++ {
		pages = append(pages, crawler.Page{
			HospitalID: hospitalID,
			URL:        "https://example.org/",
			PageType:   crawler.PageTypeGeneral,
		})
	}
	return pages
}

func TestRunScrape_SuccessPersistsSnapshotAndStats(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	strat := &fakeStrategy{
		method: crawler.MethodNative,
		result: crawler.RunResult{
			Method:      crawler.MethodNative,
			Pages:       somePages("hosp-1", 3),
			PagesFailed: 1,
		},
	}

	outcome, err := newCoordinator(store).RunScrape(context.Background(), "hosp-1", "https://example.org", strat)
	require.NoError(t, err)
	require.Equal(t, 3, outcome.PagesScraped)
	require.Equal(t, crawler.MethodNative, outcome.Method)

	require.Len(t, store.pages["hosp-1"], 3)
	require.Equal(t, []string{"hosp-1"}, store.touchedIDs)

	require.Len(t, store.stats, 1)
	st := store.stats[0]
	require.True(t, st.Success)
	require.Equal(t, 3, st.PagesScraped)
	require.Equal(t, 1, st.PagesFailed)
	require.Equal(t, crawler.MethodNative, st.Method)
}

func TestRunScrape_InvalidURLFailsFastWithStatsRow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	strat := &fakeStrategy{method: crawler.MethodNative}

	_, err := newCoordinator(store).RunScrape(context.Background(), "hosp-1", "not a url", strat)
	var runErr *crawler.RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, crawler.ErrKindInput, runErr.Kind)

	require.Zero(t, strat.calls, "strategy must not run on invalid input")
	require.Empty(t, store.touchedIDs, "scraped_at untouched when nothing was attempted")
	require.Len(t, store.stats, 1)
	require.False(t, store.stats[0].Success)
}

func TestRunScrape_StrategyFailureLeavesPagesUntouched(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.pages["hosp-1"] = somePages("hosp-1", 2) // prior snapshot
	strat := &fakeStrategy{
		method: crawler.MethodNative,
		err: crawler.NewRunError(crawler.ErrKindConnectivity,
			"could not reach the hospital website", "Check the URL.", nil),
	}

	_, err := newCoordinator(store).RunScrape(context.Background(), "hosp-1", "https://example.org", strat)
	require.Error(t, err)

	require.Len(t, store.pages["hosp-1"], 2, "prior snapshot must survive a failed run")
	require.Zero(t, store.replaceCalls)
	require.Len(t, store.stats, 1)
	require.False(t, store.stats[0].Success)
	require.Contains(t, store.stats[0].ErrorMessage, "could not reach")
}

func TestRunScrape_ZeroResultIsNotAnError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.pages["hosp-1"] = somePages("hosp-1", 2)
	strat := &fakeStrategy{
		method: crawler.MethodCrawlAPI,
		result: crawler.RunResult{Method: crawler.MethodCrawlAPI},
	}

	outcome, err := newCoordinator(store).RunScrape(context.Background(), "hosp-1", "https://example.org", strat)
	require.NoError(t, err)
	require.Zero(t, outcome.PagesScraped)
	require.NotEmpty(t, outcome.Message)

	// Attempt happened: timestamp moves, stats row written, snapshot kept.
	require.Equal(t, []string{"hosp-1"}, store.touchedIDs)
	require.Len(t, store.pages["hosp-1"], 2)
	require.Len(t, store.stats, 1)
	require.False(t, store.stats[0].Success)
	require.Zero(t, store.stats[0].PagesScraped)
}

func TestRunScrape_PersistFailureSurfacesAndRecordsStats(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.replaceErr = errors.New("db down")
	strat := &fakeStrategy{
		method: crawler.MethodNative,
		result: crawler.RunResult{Method: crawler.MethodNative, Pages: somePages("hosp-1", 1)},
	}

	_, err := newCoordinator(store).RunScrape(context.Background(), "hosp-1", "https://example.org", strat)
	var runErr *crawler.RunError
	require.ErrorAs(t, err, &runErr)
	require.Len(t, store.stats, 1)
	require.False(t, store.stats[0].Success)
}

func TestRunScrape_ExactlyOneStatsRowPerAttempt(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	coord := newCoordinator(store)

	ok := &fakeStrategy{method: crawler.MethodNative,
		result: crawler.RunResult{Method: crawler.MethodNative, Pages: somePages("hosp-1", 1)}}
	failing := &fakeStrategy{method: crawler.MethodNative, err: errors.New("boom")}

	_, _ = coord.RunScrape(context.Background(), "hosp-1", "https://example.org", ok)
	_, _ = coord.RunScrape(context.Background(), "hosp-1", "https://example.org", failing)
	_, _ = coord.RunScrape(context.Background(), "hosp-1", "::bad::", ok)

	require.Len(t, store.stats, 3)
}
