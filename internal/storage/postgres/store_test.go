package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, nil)
	require.NoError(t, err)
	return store, mock
}

func TestGetHospital(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	scrapedAt := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT id, website_url").
		WithArgs("hosp-1").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "website_url", "scraped_at", "auto_scrape_enabled", "scrape_frequency"},
		).AddRow("hosp-1", "https://stmarys.org", &scrapedAt, true, "weekly"))

	h, err := store.GetHospital(context.Background(), "hosp-1")
	require.NoError(t, err)
	require.Equal(t, "https://stmarys.org", h.WebsiteURL)
	require.Equal(t, &scrapedAt, h.ScrapedAt)
	require.True(t, h.AutoScrapeEnabled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchScrapedAt(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE hospitals SET scraped_at").
		WithArgs("hosp-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.TouchScrapedAt(context.Background(), "hosp-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchScrapedAt_UnknownHospital(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE hospitals SET scraped_at").
		WithArgs("missing", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.Error(t, store.TouchScrapedAt(context.Background(), "missing", at))
}

func TestReplacePages_DeleteThenInsertInOneTx(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	pages := []crawler.Page{
		{
			HospitalID: "hosp-1",
			URL:        "https://stmarys.org/",
			Title:      "Home",
			Content:    "Welcome",
			PageType:   crawler.PageTypeHome,
			ScrapedAt:  now,
		},
		{
			HospitalID: "hosp-1",
			URL:        "https://stmarys.org/contact",
			Title:      "Contact",
			Content:    "Call us",
			PageType:   crawler.PageTypeContact,
			Metadata:   crawler.PageMetadata{Emails: []string{"info@stmarys.org"}},
			ScrapedAt:  now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM hospital_pages").
		WithArgs("hosp-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectExec("INSERT INTO hospital_pages").
		WithArgs("hosp-1", "https://stmarys.org/", "Home", "Welcome", "home",
			pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO hospital_pages").
		WithArgs("hosp-1", "https://stmarys.org/contact", "Contact", "Call us", "contact",
			pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.ReplacePages(context.Background(), "hosp-1", pages))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePages_InsertFailureRollsBack(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM hospital_pages").
		WithArgs("hosp-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO hospital_pages").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := store.ReplacePages(context.Background(), "hosp-1", []crawler.Page{
		{HospitalID: "hosp-1", URL: "https://stmarys.org/", PageType: crawler.PageTypeHome},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStats(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	stats := crawler.ScrapeStats{
		ID:              "stats-1",
		HospitalID:      "hosp-1",
		Method:          crawler.MethodNative,
		PagesScraped:    12,
		PagesFailed:     2,
		DurationSeconds: 34.5,
		Success:         true,
		CreatedAt:       now,
	}

	mock.ExpectExec("INSERT INTO hospital_scraping_stats").
		WithArgs("stats-1", "hosp-1", "native", 12, 2, 34.5, true, nil, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordStats(context.Background(), stats))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStats_RequiresID(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	err := store.RecordStats(context.Background(), crawler.ScrapeStats{HospitalID: "hosp-1"})
	require.Error(t, err)
}

func TestAggregateStats(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	lastAt := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT").
		WithArgs("hosp-1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "success_rate", "avg_duration"}).
			AddRow(4, 0.75, 21.5))
	mock.ExpectQuery("SELECT method, created_at").
		WithArgs("hosp-1").
		WillReturnRows(pgxmock.NewRows([]string{"method", "created_at"}).
			AddRow("crawl_api", lastAt))

	agg, err := store.AggregateStats(context.Background(), "hosp-1")
	require.NoError(t, err)
	require.Equal(t, 4, agg.Runs)
	require.InDelta(t, 0.75, agg.SuccessRate, 1e-9)
	require.InDelta(t, 21.5, agg.AvgDurationSecs, 1e-9)
	require.Equal(t, crawler.MethodCrawlAPI, agg.LastMethod)
	require.Equal(t, &lastAt, agg.LastRunAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateStats_NoHistory(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs("no-hist").
		WillReturnRows(pgxmock.NewRows([]string{"count", "success_rate", "avg_duration"}).
			AddRow(0, 0.0, 0.0))

	agg, err := store.AggregateStats(context.Background(), "no-hist")
	require.NoError(t, err)
	require.Zero(t, agg.Runs)
	require.Nil(t, agg.LastRunAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
