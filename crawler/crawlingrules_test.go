package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codepr/searchengine/fetcher"
)

func serverWithRobotsTxt() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			`User-agent: *
Disallow: /baz/
Crawl-delay: 2`,
		))
	})
	return httptest.NewServer(handler)
}

func serverWithoutRobotsTxt() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/foo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(handler)
}

func TestCrawlingRulesObeysRobotsTxt(t *testing.T) {
	server := serverWithRobotsTxt()
	defer server.Close()
	fc := fetcher.New("test-agent", "", fetcher.NewGoqueryParser(), time.Second)

	rules := NewCrawlingRules(100 * time.Millisecond)
	if !rules.FetchRobotsTxt(context.Background(), fc, "test-agent", server.URL) {
		t.Fatalf("expected a robots.txt group to be found")
	}
	if rules.Allowed("/baz/bar") {
		t.Errorf("expected /baz/bar to be disallowed")
	}
	if !rules.Allowed("/foo") {
		t.Errorf("expected /foo to be allowed")
	}
	if rules.CrawlDelay() != 2*time.Second {
		t.Errorf("expected robots.txt Crawl-delay of 2s, got %s", rules.CrawlDelay())
	}
}

func TestCrawlingRulesAllowsEverythingWithoutRobotsTxt(t *testing.T) {
	server := serverWithoutRobotsTxt()
	defer server.Close()
	fc := fetcher.New("test-agent", "", fetcher.NewGoqueryParser(), time.Second)

	rules := NewCrawlingRules(100 * time.Millisecond)
	if rules.FetchRobotsTxt(context.Background(), fc, "test-agent", server.URL) {
		t.Errorf("expected no robots.txt group to be found")
	}
	if !rules.Allowed("/anything") {
		t.Errorf("expected every path to be allowed without a robots.txt")
	}
}
