package stats

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codepr/searchengine/store"
)

type fakeRunner struct{ running bool }

func (f fakeRunner) IsRunning() bool { return f.running }

func TestStatisticsAggregatesCounts(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	site, err := st.FindOrCreateSite(ctx, "https://example.com", "Example")
	if err != nil {
		t.Fatalf("FindOrCreateSite failed: %v", err)
	}
	page, err := st.UpsertPage(ctx, site, "/a", 200, "<html/>")
	if err != nil {
		t.Fatalf("UpsertPage failed: %v", err)
	}
	if err := st.WriteIndexBatch(ctx, page, []store.LemmaRank{{Text: "кот", Rank: 1}}); err != nil {
		t.Fatalf("WriteIndexBatch failed: %v", err)
	}
	if err := st.SetSiteStatus(ctx, site, store.StatusIndexed, ""); err != nil {
		t.Fatalf("SetSiteStatus failed: %v", err)
	}

	s := New(st, fakeRunner{running: true})
	totals, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if totals.TotalSites != 1 || totals.TotalPages != 1 || totals.TotalLemmas != 1 {
		t.Errorf("unexpected totals: %+v", totals)
	}
	if !totals.Indexing {
		t.Errorf("expected Indexing to reflect the runner's state")
	}
	if len(totals.Detailed) != 1 || totals.Detailed[0].PageCount != 1 || totals.Detailed[0].LemmaCount != 1 {
		t.Errorf("unexpected detail: %+v", totals.Detailed)
	}
	if totals.Detailed[0].Status != store.StatusIndexed {
		t.Errorf("expected INDEXED status, got %s", totals.Detailed[0].Status)
	}
}
