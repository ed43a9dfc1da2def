package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func serverMock() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/foo/bar", resourceMock)
	handler.HandleFunc("/not-found", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	return httptest.NewServer(handler)
}

func resourceMock(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(
		`<head><title>Foo Bar</title></head>
		 <body>
			<a href="/foo/baz">baz</a>
			<a href="//other-host/protocol-relative">skip me</a>
			<a href="https://example.com/absolute">skip me too</a>
			<a href="/foo/baz">dup</a>
			<p>Hello lovely world</p>
		 </body>`,
	))
}

func TestStdHTTPFetcherFetchPage(t *testing.T) {
	server := serverMock()
	defer server.Close()
	f := New("test-agent", "https://referrer.example", NewGoqueryParser(), 10*time.Second)
	target := fmt.Sprintf("%s/foo/bar", server.URL)
	code, html, links, _, err := f.FetchPage(context.Background(), target)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if code != http.StatusOK {
		t.Errorf("FetchPage: expected 200 got %d", code)
	}
	if html == "" {
		t.Errorf("FetchPage: expected non-empty html")
	}
	expected := []string{"/foo/baz"}
	if !reflect.DeepEqual(links, expected) {
		t.Errorf("FetchPage: expected links %v got %v", expected, links)
	}
}

func TestStdHTTPFetcherFetchPageErrors(t *testing.T) {
	f := New("test-agent", "", NewGoqueryParser(), 10*time.Second)
	_, _, _, _, err := f.FetchPage(context.Background(), "http://127.0.0.1:0/unreachable")
	if err == nil {
		t.Errorf("FetchPage: expected error for unreachable host")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("FetchPage: expected a *FetchError, got %T", err)
	}
}
