// Package crawler implements the per-site crawling logic: a bounded pool
// of worker goroutines drains a shared frontier of site-relative paths,
// fetching, lemmatizing and persisting each one, and discovering further
// paths to enqueue, until the frontier drains or the crawl is cancelled.
package crawler

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codepr/searchengine/analyzer"
	"github.com/codepr/searchengine/fetcher"
	"github.com/codepr/searchengine/store"
)

// FatalSiteError reports that a site crawl was aborted by an unrecoverable
// condition in a worker, rather than draining normally or being cancelled
// by the caller.
type FatalSiteError struct {
	Site string
	Err  error
}

func (e *FatalSiteError) Error() string {
	return fmt.Sprintf("crawler: fatal error crawling %s: %v", e.Site, e.Err)
}

func (e *FatalSiteError) Unwrap() error { return e.Err }

// Settings configures a Crawler. The zero value is not usable; construct
// via DefaultSettings and override as needed.
type Settings struct {
	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration
	// Concurrency is the number of worker goroutines draining the
	// frontier for a single site crawl.
	Concurrency int
	// UserAgent is sent on every request and used to select the
	// robots.txt group to obey.
	UserAgent string
	// Referrer, if non-empty, is sent as the Referer header.
	Referrer string
	// PolitenessDelay is the minimum pause a worker takes after each
	// page it indexes; CrawlingRules may lengthen it (robots.txt Crawl-delay, slow
	// responses, random jitter).
	PolitenessDelay time.Duration
	// MaxPages caps the number of pages crawled per site, as a safety
	// valve against runaway or unbounded sites. 0 means unlimited.
	MaxPages int
}

// DefaultSettings returns reasonable defaults: a 10s fetch timeout, 4
// concurrent workers per site, a searchengine-bot user agent and a 500ms
// politeness delay.
func DefaultSettings() Settings {
	return Settings{
		FetchTimeout:    10 * time.Second,
		Concurrency:     4,
		UserAgent:       "searchengine-bot",
		PolitenessDelay: 500 * time.Millisecond,
	}
}

// Crawler drives a single site's crawl: fetch, persist the page, lemmatize
// its text into the index, then enqueue its unseen outbound links.
type Crawler struct {
	settings Settings
	store    *store.Store
	analyzer *analyzer.Analyzer
	logger   *log.Logger
}

// New creates a Crawler that persists to st and lemmatizes page text with
// an.
func New(settings Settings, st *store.Store, an *analyzer.Analyzer) *Crawler {
	return &Crawler{
		settings: settings,
		store:    st,
		analyzer: an,
		logger:   log.New(os.Stderr, "crawler: ", log.LstdFlags),
	}
}

func (c *Crawler) newFetcher() fetcher.Fetcher {
	return fetcher.New(c.settings.UserAgent, c.settings.Referrer, fetcher.NewGoqueryParser(), c.settings.FetchTimeout)
}

// CrawlSite crawls site starting from its root path "/", fetching,
// indexing and recursing over every discovered site-relative path, and
// sets site's final status before returning:
//
//   - StatusIndexed if the frontier drained on its own
//   - StatusFailed with "stopped by user" if ctx was cancelled by the caller
//   - StatusFailed with the failure detail if a worker hit a fatal,
//     unrecoverable condition
//
// A per-page fetch or store error is logged and that path is abandoned;
// it never aborts the rest of the site crawl. CrawlSite returns nil on a
// normal drain, and a non-nil error (ctx.Err() or a *FatalSiteError)
// otherwise.
func (c *Crawler) CrawlSite(ctx context.Context, site *store.Site) error {
	siteCtx, cancelSite := context.WithCancel(ctx)
	defer cancelSite()

	fetchClient := c.newFetcher()
	rules := NewCrawlingRules(c.settings.PolitenessDelay)
	if rules.FetchRobotsTxt(siteCtx, fetchClient, c.settings.UserAgent, site.URL) {
		c.logger.Printf("loaded robots.txt group for %s", site.URL)
	}

	visited := NewVisitedSet()
	front := newFrontier()
	visited.Add("/")
	front.push("/")

	concurrency := c.settings.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var pageCount atomic.Int64
	maxPages := int64(c.settings.MaxPages)

	var fatal atomic.Pointer[FatalSiteError]
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fatal.Store(&FatalSiteError{Site: site.URL, Err: fmt.Errorf("panic: %v", r)})
					cancelSite()
				}
			}()
			for {
				path, ok := front.pop(siteCtx)
				if !ok {
					return
				}
				c.crawlPath(siteCtx, site, path, rules, visited, front, fetchClient, &pageCount, maxPages)
				front.taskDone()
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-siteCtx.Done():
		front.wake()
		<-done
	}

	if f := fatal.Load(); f != nil {
		_ = c.store.SetSiteStatus(context.Background(), site, store.StatusFailed, f.Error())
		return f
	}
	if ctx.Err() != nil {
		_ = c.store.SetSiteStatus(context.Background(), site, store.StatusFailed, "stopped by user")
		return ctx.Err()
	}
	_ = c.store.SetSiteStatus(context.Background(), site, store.StatusIndexed, "")
	return nil
}

// crawlPath carries out the per-path procedure for a single site-relative
// path: a page-cap check, a robots.txt check, a cancellation check, a
// fetch, a page upsert and then lemma extraction and indexing (each store
// write in its own retrying transaction), a liveness touch on the site
// row, enqueueing of unseen outbound links, and a politeness pause of at
// least PolitenessDelay. Every failure past the cancellation check is logged and
// absorbed; it abandons only this path. Once pageCount reaches maxPages
// (when maxPages > 0), neither this nor any further path is indexed and
// no further links are enqueued, bringing the crawl to a drain.
func (c *Crawler) crawlPath(ctx context.Context, site *store.Site, path string, rules *CrawlingRules, visited *VisitedSet, front *frontier, fc fetcher.Fetcher, pageCount *atomic.Int64, maxPages int64) {
	if maxPages > 0 && pageCount.Load() >= maxPages {
		return
	}
	if !rules.Allowed(path) {
		return
	}
	pageCount.Add(1)
	links, err := c.indexPath(ctx, site, path, fc, rules)
	if err != nil {
		c.logger.Printf("abandoning %s%s: %v", site.URL, path, err)
		return
	}
	if maxPages > 0 && pageCount.Load() >= maxPages {
		return
	}
	for _, link := range links {
		if !strings.HasPrefix(link, "/") || strings.HasPrefix(link, "//") {
			continue
		}
		if visited.Add(link) {
			front.push(link)
		}
	}
	delay := rules.CrawlDelay()
	if delay < c.settings.PolitenessDelay {
		delay = c.settings.PolitenessDelay
	}
	time.Sleep(delay)
}

// IndexPath executes the §4.4 per-path procedure for a single site-relative
// path in isolation, independent of any frontier or visited set: fetch,
// upsert, lemmatize and index. Used by the Coordinator's single-page
// re-index, which must work even while no full site crawl is running.
func (c *Crawler) IndexPath(ctx context.Context, site *store.Site, path string) error {
	_, err := c.indexPath(ctx, site, path, c.newFetcher(), nil)
	return err
}

// indexPath is the shared core of crawlPath and IndexPath: it performs the
// cancellation check, fetch, page upsert and lemma indexing, returning the
// outbound links discovered on the page for the caller to decide whether to
// follow. rules may be nil, in which case no delay bookkeeping is updated.
func (c *Crawler) indexPath(ctx context.Context, site *store.Site, path string, fc fetcher.Fetcher, rules *CrawlingRules) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	code, html, links, elapsed, err := fc.FetchPage(ctx, site.URL+path)
	if rules != nil {
		rules.UpdateLastDelay(elapsed)
	}
	if err != nil {
		return nil, err
	}

	page, err := c.store.UpsertPage(ctx, site, path, code, html)
	if err != nil {
		return nil, fmt.Errorf("upserting page: %w", err)
	}

	if lemmas := c.analyzer.CollectLemmas(fetcher.ExtractText(html)); len(lemmas) > 0 {
		entries := make([]store.LemmaRank, 0, len(lemmas))
		for text, count := range lemmas {
			entries = append(entries, store.LemmaRank{Text: text, Rank: float64(count)})
		}
		if err := c.store.WriteIndexBatch(ctx, page, entries); err != nil {
			c.logger.Printf("store error indexing %s%s: %v", site.URL, path, err)
		}
	}

	if err := c.store.TouchSiteStatusTime(ctx, site); err != nil {
		c.logger.Printf("store error touching status time for %s: %v", site.URL, err)
	}

	return links, nil
}
