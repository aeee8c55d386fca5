// Package postgres provides the pgx-backed persistence boundary: the
// hospitals, hospital_pages, and hospital_scraping_stats tables.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool abstracts pgxpool.Pool so pgxmock can stand in during tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements crawler.Store on Postgres.
type Store struct {
	pool   pool
	logger *zap.Logger
}

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p, logger)
}

// NewWithPool constructs a Store from an existing pool (primarily for tests).
func NewWithPool(p pool, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetHospital reads one hospital row.
func (s *Store) GetHospital(ctx context.Context, id string) (crawler.Hospital, error) {
	const query = `
SELECT id, website_url, scraped_at, auto_scrape_enabled, COALESCE(scrape_frequency, '')
FROM hospitals
WHERE id = $1`

	var h crawler.Hospital
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&h.ID, &h.WebsiteURL, &h.ScrapedAt, &h.AutoScrapeEnabled, &h.ScrapeFrequency,
	)
	if err != nil {
		return crawler.Hospital{}, fmt.Errorf("get hospital %s: %w", id, err)
	}
	return h, nil
}

// TouchScrapedAt records that a scrape attempt happened.
func (s *Store) TouchScrapedAt(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE hospitals SET scraped_at = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("touch scraped_at for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("hospital %s not found", id)
	}
	return nil
}

// ReplacePages swaps the hospital's page snapshot inside one transaction so
// readers never observe the old and new sets mixed.
func (s *Store) ReplacePages(ctx context.Context, hospitalID string, pages []crawler.Page) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace pages: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback replace pages", zap.Error(rbErr))
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM hospital_pages WHERE hospital_id = $1`, hospitalID); err != nil {
		return fmt.Errorf("delete pages for %s: %w", hospitalID, err)
	}

	const insert = `
INSERT INTO hospital_pages (hospital_id, url, title, content, page_type, metadata, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, page := range pages {
		metadata, err := json.Marshal(page.Metadata)
		if err != nil {
			return fmt.Errorf("marshal page metadata: %w", err)
		}
		if _, err := tx.Exec(ctx, insert,
			page.HospitalID,
			page.URL,
			page.Title,
			page.Content,
			string(page.PageType),
			metadata,
			page.ScrapedAt,
		); err != nil {
			return fmt.Errorf("insert page %s: %w", page.URL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace pages: %w", err)
	}
	return nil
}

// RecordStats appends one run row. Rows are never updated afterward.
func (s *Store) RecordStats(ctx context.Context, stats crawler.ScrapeStats) error {
	if stats.ID == "" {
		return errors.New("stats id is required")
	}
	const query = `
INSERT INTO hospital_scraping_stats (
	id, hospital_id, method, pages_scraped, pages_failed,
	duration_seconds, success, error_message, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		stats.ID,
		stats.HospitalID,
		string(stats.Method),
		stats.PagesScraped,
		stats.PagesFailed,
		stats.DurationSeconds,
		stats.Success,
		nullableString(stats.ErrorMessage),
		stats.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scrape stats: %w", err)
	}
	return nil
}

// AggregateStats summarizes the hospital's run history.
func (s *Store) AggregateStats(ctx context.Context, hospitalID string) (crawler.StatsAggregate, error) {
	const query = `
SELECT
	COUNT(*),
	COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0),
	COALESCE(AVG(duration_seconds), 0)
FROM hospital_scraping_stats
WHERE hospital_id = $1`

	agg := crawler.StatsAggregate{HospitalID: hospitalID}
	if err := s.pool.QueryRow(ctx, query, hospitalID).Scan(
		&agg.Runs, &agg.SuccessRate, &agg.AvgDurationSecs,
	); err != nil {
		return crawler.StatsAggregate{}, fmt.Errorf("aggregate stats for %s: %w", hospitalID, err)
	}
	if agg.Runs == 0 {
		return agg, nil
	}

	const lastQuery = `
SELECT method, created_at
FROM hospital_scraping_stats
WHERE hospital_id = $1
ORDER BY created_at DESC
LIMIT 1`

	var (
		method string
		lastAt time.Time
	)
	if err := s.pool.QueryRow(ctx, lastQuery, hospitalID).Scan(&method, &lastAt); err != nil {
		return crawler.StatsAggregate{}, fmt.Errorf("last stats row for %s: %w", hospitalID, err)
	}
	agg.LastMethod = crawler.ScrapeMethod(method)
	agg.LastRunAt = &lastAt
	return agg, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
