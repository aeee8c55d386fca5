// Package memory provides an in-memory crawler.Store for tests and local
// runs without a database.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mednetlabs/hospital-crawler/internal/crawler"
)

// Store keeps hospitals, page snapshots, and run stats in maps.
type Store struct {
	mu        sync.RWMutex
	hospitals map[string]crawler.Hospital
	pages     map[string][]crawler.Page
	stats     []crawler.ScrapeStats
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		hospitals: make(map[string]crawler.Hospital),
		pages:     make(map[string][]crawler.Page),
	}
}

// SeedHospital inserts or replaces a hospital record (test/local setup).
func (s *Store) SeedHospital(h crawler.Hospital) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hospitals[h.ID] = h
}

// GetHospital returns the hospital or an error when unknown.
func (s *Store) GetHospital(_ context.Context, id string) (crawler.Hospital, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hospitals[id]
	if !ok {
		return crawler.Hospital{}, fmt.Errorf("hospital %s not found", id)
	}
	return h, nil
}

// TouchScrapedAt records the attempt timestamp.
func (s *Store) TouchScrapedAt(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hospitals[id]
	if !ok {
		return fmt.Errorf("hospital %s not found", id)
	}
	h.ScrapedAt = &at
	s.hospitals[id] = h
	return nil
}

// ReplacePages swaps the snapshot under one lock, mirroring the transactional
// contract of the Postgres store.
func (s *Store) ReplacePages(_ context.Context, hospitalID string, pages []crawler.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[hospitalID] = append([]crawler.Page(nil), pages...)
	return nil
}

// Pages returns the current snapshot for a hospital.
func (s *Store) Pages(hospitalID string) []crawler.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Page(nil), s.pages[hospitalID]...)
}

// RecordStats appends a run row.
func (s *Store) RecordStats(_ context.Context, stats crawler.ScrapeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, stats)
	return nil
}

// Stats returns all recorded rows (tests).
func (s *Store) Stats() []crawler.ScrapeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.ScrapeStats(nil), s.stats...)
}

// AggregateStats summarizes the run history for a hospital.
func (s *Store) AggregateStats(_ context.Context, hospitalID string) (crawler.StatsAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := crawler.StatsAggregate{HospitalID: hospitalID}
	var (
		successes     int
		totalDuration float64
		last          *crawler.ScrapeStats
	)
	for i := range s.stats {
		st := s.stats[i]
		if st.HospitalID != hospitalID {
			continue
		}
		agg.Runs++
		totalDuration += st.DurationSeconds
		if st.Success {
			successes++
		}
		if last == nil || st.CreatedAt.After(last.CreatedAt) {
			last = &s.stats[i]
		}
	}
	if agg.Runs == 0 {
		return agg, nil
	}
	agg.SuccessRate = float64(successes) / float64(agg.Runs)
	agg.AvgDurationSecs = totalDuration / float64(agg.Runs)
	agg.LastMethod = last.Method
	lastAt := last.CreatedAt
	agg.LastRunAt = &lastAt
	return agg, nil
}
