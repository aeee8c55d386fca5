package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
	"github.com/mednetlabs/hospital-crawler/internal/extract"
	"github.com/mednetlabs/hospital-crawler/internal/scheduler"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeFetcher struct {
	pages map[string]string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (crawler.FetchResult, error) {
	if f.err != nil {
		return crawler.FetchResult{}, f.err
	}
	body, ok := f.pages[pageURL]
	if !ok {
		return crawler.FetchResult{}, fmt.Errorf("not found: %s", pageURL)
	}
	return crawler.FetchResult{URL: pageURL, StatusCode: 200, ContentType: "text/html", Body: []byte(body)}, nil
}

func testClock() fakeClock {
	return fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func nativeOver(fetcher crawler.Fetcher, timeout time.Duration) *Native {
	sched := scheduler.New(fetcher, extract.New(zap.NewNop()),
		scheduler.Config{Budget: crawler.Budget{MaxPages: 10, MaxDepth: 1}, HostQPS: 1000},
		zap.NewNop())
	return NewNative(sched, timeout, testClock(), zap.NewNop())
}

func TestSelector_Precedence(t *testing.T) {
	t.Parallel()

	sel := NewSelector(SelectorConfig{}, extract.New(nil), testClock(), zap.NewNop())

	tests := []struct {
		name  string
		creds crawler.Credentials
		want  crawler.ScrapeMethod
	}{
		{name: "no keys uses native", creds: crawler.Credentials{}, want: crawler.MethodNative},
		{name: "proxy key only", creds: crawler.Credentials{ProxyAPIKey: "p"}, want: crawler.MethodProxyAPI},
		{name: "crawl key only", creds: crawler.Credentials{CrawlAPIKey: "c"}, want: crawler.MethodCrawlAPI},
		{
			name:  "crawl key wins over proxy key",
			creds: crawler.Credentials{CrawlAPIKey: "c", ProxyAPIKey: "p"},
			want:  crawler.MethodCrawlAPI,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, sel.Select(tc.creds).Method())
		})
	}
}

func TestSelector_AdvancedIsNative(t *testing.T) {
	t.Parallel()

	sel := NewSelector(SelectorConfig{AdvancedTimeout: time.Second}, extract.New(nil), testClock(), zap.NewNop())
	require.Equal(t, crawler.MethodNative, sel.Advanced().Method())
}

func TestNative_RunProducesPages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.org/": `<html><title>Hospital</title><body><main>Welcome to our hospital campus page.</main><a href="/contact">c</a></body></html>`,
		"https://example.org/contact": `<html><title>Contact</title><body><main>Call us at the front desk today.</main></body></html>`,
	}}

	result, err := nativeOver(fetcher, 0).Run(context.Background(), "hosp-1", "https://example.org")
	require.NoError(t, err)
	require.Equal(t, crawler.MethodNative, result.Method)
	require.Len(t, result.Pages, 2)
	require.Equal(t, "hosp-1", result.Pages[0].HospitalID)
	require.Equal(t, testClock().Now(), result.Pages[0].ScrapedAt)
	require.Equal(t, crawler.PageTypeContact, result.Pages[1].PageType)
}

func TestNative_InvalidSeedFailsFast(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("must not be called")}
	_, err := nativeOver(fetcher, 0).Run(context.Background(), "hosp-1", "not a url")
	var runErr *crawler.RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, crawler.ErrKindInput, runErr.Kind)
}

func TestNative_SeedConnectivityFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	_, err := nativeOver(fetcher, 0).Run(context.Background(), "hosp-1", "https://example.org")
	var runErr *crawler.RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, crawler.ErrKindConnectivity, runErr.Kind)
	require.NotEmpty(t, runErr.Suggestion)
}

type slowFetcher struct{}

func (slowFetcher) Fetch(ctx context.Context, _ string) (crawler.FetchResult, error) {
	<-ctx.Done()
	return crawler.FetchResult{}, ctx.Err()
}

func TestNative_GlobalTimeoutReportsTimeoutKind(t *testing.T) {
	t.Parallel()

	_, err := nativeOver(slowFetcher{}, 50*time.Millisecond).
		Run(context.Background(), "hosp-1", "https://example.org")
	var runErr *crawler.RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, crawler.ErrKindTimeout, runErr.Kind)
	require.Contains(t, runErr.Suggestion, "Reduce")
}

func crawlAPIServer(t *testing.T, pollsUntilDone int32, finalStatus string) *httptest.Server {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "id": "job-1"})
	})
	mux.HandleFunc("/job-1", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&polls, 1) < pollsUntilDone {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "scraping"})
			return
		}
		if finalStatus != "completed" {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": finalStatus, "error": "provider exploded"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"data": []map[string]any{
				{
					"markdown": "# About Us\nOur mission is healing.",
					"metadata": map[string]any{"title": "About Us", "sourceURL": "https://example.org/about"},
				},
				{
					"markdown": "Call our physicians.",
					"metadata": map[string]any{"sourceURL": "https://example.org/team"},
				},
			},
		})
	})
	return httptest.NewServer(mux)
}

func newCrawlAPI(endpoint string, maxPolls int) *CrawlAPI {
	return NewCrawlAPI(CrawlAPIConfig{
		Endpoint:     endpoint,
		APIKey:       "fc-key",
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     maxPolls,
	}, testClock(), zap.NewNop())
}

func TestCrawlAPI_SubmitPollNormalize(t *testing.T) {
	t.Parallel()

	srv := crawlAPIServer(t, 3, "completed")
	defer srv.Close()

	result, err := newCrawlAPI(srv.URL, 10).Run(context.Background(), "hosp-1", "https://example.org")
	require.NoError(t, err)
	require.Equal(t, crawler.MethodCrawlAPI, result.Method)
	require.Len(t, result.Pages, 2)

	about := result.Pages[0]
	require.Equal(t, "About Us", about.Title)
	require.Equal(t, crawler.PageTypeAbout, about.PageType)
	require.Equal(t, "crawl_api", about.Metadata.Method)

	// Title falls back to a URL-derived label when the provider omits it.
	require.Equal(t, "Team", result.Pages[1].Title)
}

func TestCrawlAPI_ProviderFailureIsProviderKind(t *testing.T) {
	t.Parallel()

	srv := crawlAPIServer(t, 1, "failed")
	defer srv.Close()

	_, err := newCrawlAPI(srv.URL, 10).Run(context.Background(), "hosp-1", "https://example.org")
	var runErr *crawler.RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, crawler.ErrKindProvider, runErr.Kind)
	require.Contains(t, runErr.Message, "provider exploded")
}

func TestCrawlAPI_PollExhaustionIsTimeoutKind(t *testing.T) {
	t.Parallel()

	srv := crawlAPIServer(t, 1000, "completed")
	defer srv.Close()

	_, err := newCrawlAPI(srv.URL, 3).Run(context.Background(), "hosp-1", "https://example.org")
	var runErr *crawler.RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, crawler.ErrKindTimeout, runErr.Kind)
}

func TestCrawlAPI_UnauthorizedKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newCrawlAPI(srv.URL, 3).Run(context.Background(), "hosp-1", "https://example.org")
	var runErr *crawler.RunError
	require.ErrorAs(t, err, &runErr)
	require.Equal(t, crawler.ErrKindProvider, runErr.Kind)
	require.Contains(t, runErr.Message, "credentials")
}
