package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codepr/searchengine/analyzer"
	"github.com/codepr/searchengine/crawler"
	"github.com/codepr/searchengine/messaging"
	"github.com/codepr/searchengine/store"
)

type recordingProducer struct {
	mu   sync.Mutex
	logs [][]byte
}

func (r *recordingProducer) Produce(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, data)
	return nil
}

func (r *recordingProducer) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *recordingProducer) first() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[0]
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func singlePageServer() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<body>hello world</body>`))
	})
	return httptest.NewServer(handler)
}

func TestStartIndexingRejectsConcurrentStart(t *testing.T) {
	server := singlePageServer()
	defer server.Close()
	st := testStore(t)
	an := analyzer.New("english", analyzer.WithCharset(analyzer.CharsetLatin))
	settings := crawler.DefaultSettings()
	settings.PolitenessDelay = time.Millisecond
	c := New(st, settings, []Site{{URL: server.URL, Name: "Test"}}, func() *crawler.Crawler {
		return crawler.New(settings, st, an)
	})

	if !c.StartIndexing() {
		t.Fatalf("expected first StartIndexing to succeed")
	}
	if c.StartIndexing() {
		t.Errorf("expected second StartIndexing to report already running")
	}
	c.StopIndexing()
}

func TestStopIndexingRejectsWhenNotRunning(t *testing.T) {
	st := testStore(t)
	an := analyzer.New("english", analyzer.WithCharset(analyzer.CharsetLatin))
	settings := crawler.DefaultSettings()
	c := New(st, settings, nil, func() *crawler.Crawler { return crawler.New(settings, st, an) })
	if c.StopIndexing() {
		t.Errorf("expected StopIndexing to report not running")
	}
}

func TestStartIndexingIndexesSiteAndTransitionsStatus(t *testing.T) {
	server := singlePageServer()
	defer server.Close()
	st := testStore(t)
	an := analyzer.New("english", analyzer.WithCharset(analyzer.CharsetLatin))
	settings := crawler.DefaultSettings()
	settings.PolitenessDelay = time.Millisecond
	c := New(st, settings, []Site{{URL: server.URL, Name: "Test"}}, func() *crawler.Crawler {
		return crawler.New(settings, st, an)
	})

	if !c.StartIndexing() {
		t.Fatalf("expected StartIndexing to succeed")
	}
	deadline := time.After(2 * time.Second)
	for {
		site, err := st.SiteByURL(context.Background(), server.URL)
		if err == nil && site.Status != store.StatusIndexing {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("crawl did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	site, err := st.SiteByURL(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("SiteByURL failed: %v", err)
	}
	if site.Status != store.StatusIndexed {
		t.Errorf("expected INDEXED, got %s", site.Status)
	}
}

func TestIndexPageRejectsUnconfiguredURL(t *testing.T) {
	st := testStore(t)
	an := analyzer.New("english", analyzer.WithCharset(analyzer.CharsetLatin))
	settings := crawler.DefaultSettings()
	c := New(st, settings, []Site{{URL: "https://example.com", Name: "Example"}},
		func() *crawler.Crawler { return crawler.New(settings, st, an) })

	err := c.IndexPage(context.Background(), "https://unconfigured.example.com/foo")
	if err == nil {
		t.Fatalf("expected an error for an unconfigured URL")
	}
}

func TestIndexPageIndexesSinglePage(t *testing.T) {
	server := singlePageServer()
	defer server.Close()
	st := testStore(t)
	an := analyzer.New("english", analyzer.WithCharset(analyzer.CharsetLatin))
	settings := crawler.DefaultSettings()
	c := New(st, settings, []Site{{URL: server.URL, Name: "Test"}},
		func() *crawler.Crawler { return crawler.New(settings, st, an) })

	if err := c.IndexPage(context.Background(), server.URL+"/"); err != nil {
		t.Fatalf("IndexPage failed: %v", err)
	}

	site, err := st.SiteByURL(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("SiteByURL failed: %v", err)
	}
	count, err := st.CountPagesOfSite(context.Background(), site.ID)
	if err != nil {
		t.Fatalf("CountPagesOfSite failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 page indexed, got %d", count)
	}
}

func TestStartIndexingPublishesSiteEvents(t *testing.T) {
	server := singlePageServer()
	defer server.Close()
	st := testStore(t)
	an := analyzer.New("english", analyzer.WithCharset(analyzer.CharsetLatin))
	settings := crawler.DefaultSettings()
	settings.PolitenessDelay = time.Millisecond
	producer := &recordingProducer{}
	c := New(st, settings, []Site{{URL: server.URL, Name: "Test"}}, func() *crawler.Crawler {
		return crawler.New(settings, st, an)
	}, WithEvents(producer))

	if !c.StartIndexing() {
		t.Fatalf("expected StartIndexing to succeed")
	}
	deadline := time.After(2 * time.Second)
	for producer.len() == 0 {
		select {
		case <-deadline:
			t.Fatalf("no site event published in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	var evt messaging.SiteEvent
	if err := json.Unmarshal(producer.first(), &evt); err != nil {
		t.Fatalf("decoding published event: %v", err)
	}
	if evt.SiteURL != server.URL || evt.Status != string(store.StatusIndexing) {
		t.Errorf("unexpected event: %+v", evt)
	}
	c.StopIndexing()
}
