package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/codepr/searchengine/analyzer"
	"github.com/codepr/searchengine/coordinator"
	"github.com/codepr/searchengine/crawler"
	"github.com/codepr/searchengine/search"
	"github.com/codepr/searchengine/stats"
	"github.com/codepr/searchengine/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer(t *testing.T, sites []coordinator.Site) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	an := analyzer.New("russian")
	newCrawler := func() *crawler.Crawler { return crawler.New(crawler.DefaultSettings(), st, an) }
	co := coordinator.New(st, crawler.DefaultSettings(), sites, newCrawler)
	se := search.New(st, an)
	sf := stats.New(st, co)
	return NewServer(co, se, sf), st
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
	}
}

func TestStatisticsReportsEmptyIndex(t *testing.T) {
	s, _ := testServer(t, nil)
	router := NewRouter(s)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statistics", nil))

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["result"] != true {
		t.Fatalf("expected result true, got %v", body)
	}
}

func TestStartIndexingRejectsConcurrentStart(t *testing.T) {
	s, _ := testServer(t, []coordinator.Site{{URL: "https://example.com", Name: "Example"}})
	router := NewRouter(s)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/startIndexing", nil))
	var first map[string]interface{}
	decodeBody(t, rec, &first)
	if first["result"] != true {
		t.Fatalf("expected first startIndexing to succeed, got %v", first)
	}

	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/startIndexing", nil))
	var second map[string]interface{}
	decodeBody(t, rec2, &second)
	if second["result"] != false || second["error"] != "already running" {
		t.Fatalf("expected already running error, got %v", second)
	}

	s.coordinator.StopIndexing()
}

func TestStopIndexingRejectsWhenNotRunning(t *testing.T) {
	s, _ := testServer(t, nil)
	router := NewRouter(s)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stopIndexing", nil))
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["result"] != false || body["error"] != "not running" {
		t.Fatalf("expected not running error, got %v", body)
	}
}

func TestIndexPageRejectsUnconfiguredURL(t *testing.T) {
	s, _ := testServer(t, []coordinator.Site{{URL: "https://example.com", Name: "Example"}})
	router := NewRouter(s)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/indexPage?url=https://other.com/a", nil))
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["result"] != false || body["error"] != "page not in configured sites" {
		t.Fatalf("expected page not in configured sites error, got %v", body)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s, _ := testServer(t, nil)
	router := NewRouter(s)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?query=", nil))
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["result"] != false {
		t.Fatalf("expected empty query to fail, got %v", body)
	}
}

func TestSearchReturnsRankedResults(t *testing.T) {
	s, st := testServer(t, nil)
	ctx := context.Background()
	an := analyzer.New("russian")

	site, err := st.FindOrCreateSite(ctx, "https://example.com", "Example")
	if err != nil {
		t.Fatalf("FindOrCreateSite failed: %v", err)
	}
	page, err := st.UpsertPage(ctx, site, "/a", 200, "<body>кот собака</body>")
	if err != nil {
		t.Fatalf("UpsertPage failed: %v", err)
	}
	lemmas := an.CollectLemmas("кот собака")
	entries := make([]store.LemmaRank, 0, len(lemmas))
	for text, count := range lemmas {
		entries = append(entries, store.LemmaRank{Text: text, Rank: float64(count)})
	}
	if err := st.WriteIndexBatch(ctx, page, entries); err != nil {
		t.Fatalf("WriteIndexBatch failed: %v", err)
	}
	if err := st.SetSiteStatus(ctx, site, store.StatusIndexed, ""); err != nil {
		t.Fatalf("SetSiteStatus failed: %v", err)
	}

	router := NewRouter(s)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?query=кот", nil))

	var body struct {
		Result bool `json:"result"`
		Count  int  `json:"count"`
		Data   []struct {
			URI string `json:"uri"`
		} `json:"data"`
	}
	decodeBody(t, rec, &body)
	if !body.Result || body.Count != 1 || len(body.Data) != 1 || body.Data[0].URI != "/a" {
		t.Fatalf("unexpected search response: %+v", body)
	}
}
