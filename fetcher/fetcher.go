// Package fetcher defines and implements the downloading and parsing
// utilities used to retrieve a single remote page: an HTTP GET with a
// configured user-agent, referrer and timeout, returning the status code,
// the raw HTML body and the set of site-relative outbound links found in
// it.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

// Parser extracts site-relative outbound links from an HTML document.
type Parser interface {
	ParseLinks(r io.Reader) ([]string, error)
}

// FetchError wraps a network or protocol failure encountered while
// fetching a page. It is always retriable at the call site (the Crawler
// abandons the single path and continues with others; it never aborts
// the site crawl because of it).
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher performs a single GET request against a page and returns its
// status code, raw body and the outbound links discovered in it.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) (httpCode int, html string, links []string, elapsed time.Duration, err error)
}

// stdHTTPFetcher is the default Fetcher, backed by the standard library's
// http.Client wrapped with a retrying, exponentially-backed-off
// transport.
type stdHTTPFetcher struct {
	userAgent string
	referrer  string
	parser    Parser
	client    *http.Client
}

// New creates a new Fetcher with the given user-agent, referrer and
// request timeout. Temporary network errors are retried up to 3 times
// with an exponential jittered backoff; any error left after that, or any
// non-temporary error, is surfaced as a FetchError.
func New(userAgent, referrer string, parser Parser, timeout time.Duration) Fetcher {
	transport := rehttp.NewTransport(
		&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		rehttp.RetryAll(rehttp.RetryMaxRetries(3), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(1, 10*time.Second),
	)
	client := &http.Client{Timeout: timeout, Transport: transport}
	return &stdHTTPFetcher{userAgent: userAgent, referrer: referrer, parser: parser, client: client}
}

// FetchPage makes an HTTP GET request to targetURL and, on success, parses
// the body for outbound site-relative links via the configured Parser.
func (f *stdHTTPFetcher) FetchPage(ctx context.Context, targetURL string) (int, string, []string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return 0, "", nil, 0, &FetchError{URL: targetURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.referrer != "" {
		req.Header.Set("Referer", f.referrer)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, "", nil, elapsed, &FetchError{URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", nil, elapsed, &FetchError{URL: targetURL, Err: err}
	}
	html := string(body)

	var links []string
	if f.parser != nil {
		links, err = f.parser.ParseLinks(strings.NewReader(html))
		if err != nil {
			return resp.StatusCode, html, nil, elapsed, &FetchError{URL: targetURL, Err: err}
		}
	}

	return resp.StatusCode, html, links, elapsed, nil
}
