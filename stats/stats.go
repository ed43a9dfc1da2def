// Package stats provides the read-only aggregation observers need: total
// counts across the index and a per-site breakdown, for the request
// surface's statistics endpoint and any dashboard built on it.
// Implemented as plain queries over Store plus the Coordinator's running
// flag.
package stats

import (
	"context"

	"github.com/codepr/searchengine/store"
)

// SiteStats is the per-site breakdown reported alongside the totals.
type SiteStats struct {
	URL        string
	Name       string
	Status     store.SiteStatus
	StatusTime string
	LastError  string
	PageCount  int
	LemmaCount int
}

// Totals aggregates the counts and per-site detail of a Statistics call.
type Totals struct {
	TotalSites  int
	TotalPages  int
	TotalLemmas int
	Indexing    bool
	Detailed    []SiteStats
}

// runner is the subset of Coordinator that Stats needs, kept narrow so
// this package does not import coordinator and create a cycle.
type runner interface {
	IsRunning() bool
}

// Stats reads aggregate counts from st and the running flag from r.
type Stats struct {
	store *store.Store
	r     runner
}

// New creates a Stats reading from st and r.
func New(st *store.Store, r runner) *Stats {
	return &Stats{store: st, r: r}
}

// Statistics gathers the index-wide totals and per-site breakdown.
func (s *Stats) Statistics(ctx context.Context) (Totals, error) {
	sites, err := s.store.Sites(ctx)
	if err != nil {
		return Totals{}, err
	}
	totalPages, err := s.store.TotalPages(ctx)
	if err != nil {
		return Totals{}, err
	}
	totalLemmas, err := s.store.TotalLemmas(ctx)
	if err != nil {
		return Totals{}, err
	}

	detailed := make([]SiteStats, 0, len(sites))
	for _, site := range sites {
		pageCount, err := s.store.CountPagesOfSite(ctx, site.ID)
		if err != nil {
			return Totals{}, err
		}
		lemmaCount, err := s.store.CountLemmasOfSite(ctx, site.ID)
		if err != nil {
			return Totals{}, err
		}
		detailed = append(detailed, SiteStats{
			URL:        site.URL,
			Name:       site.Name,
			Status:     site.Status,
			StatusTime: site.StatusTime.Format("2006-01-02T15:04:05Z07:00"),
			LastError:  site.LastError,
			PageCount:  pageCount,
			LemmaCount: lemmaCount,
		})
	}

	return Totals{
		TotalSites:  len(sites),
		TotalPages:  totalPages,
		TotalLemmas: totalLemmas,
		Indexing:    s.r.IsRunning(),
		Detailed:    detailed,
	}, nil
}
