// Package coordinator owns the process-wide indexing lifecycle: starting
// and stopping a crawl across every configured site, and re-indexing a
// single page independent of that lifecycle, restartable for the
// lifetime of the process rather than a one-shot run.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codepr/searchengine/apperror"
	"github.com/codepr/searchengine/crawler"
	"github.com/codepr/searchengine/messaging"
	"github.com/codepr/searchengine/store"
)

// shutdownGrace bounds how long StopIndexing waits for active crawls to
// observe cancellation before it proceeds with the status-transition
// safety net regardless.
const shutdownGrace = 5 * time.Second

// Site is a single configured crawl target.
type Site struct {
	URL  string
	Name string
}

// Coordinator drives StartIndexing/StopIndexing/IndexPage over a fixed
// configured site list.
type Coordinator struct {
	store    *store.Store
	settings crawler.Settings
	sites    []Site

	running atomic.Bool

	mu         sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *log.Logger
	newCrawler func() *crawler.Crawler
	events     messaging.Producer
}

// Option configures optional Coordinator behavior at construction time.
type Option func(*Coordinator)

// WithEvents makes the Coordinator publish a messaging.SiteEvent through p
// every time a site's status transitions.
func WithEvents(p messaging.Producer) Option {
	return func(c *Coordinator) { c.events = p }
}

// New creates a Coordinator over the given configured sites, building a
// fresh Crawler per crawl job via newCrawler (typically crawler.New bound
// to a shared Store and Analyzer).
func New(st *store.Store, settings crawler.Settings, sites []Site, newCrawler func() *crawler.Crawler, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      st,
		settings:   settings,
		sites:      sites,
		logger:     log.New(os.Stderr, "coordinator: ", log.LstdFlags),
		newCrawler: newCrawler,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// publishStatus stamps site's status in the Store and, if an events
// Producer was configured, reports the transition downstream.
func (c *Coordinator) publishStatus(ctx context.Context, site *store.Site, status store.SiteStatus, lastError string) error {
	if err := c.store.SetSiteStatus(ctx, site, status, lastError); err != nil {
		return err
	}
	if err := messaging.PublishSiteEvent(c.events, messaging.SiteEvent{
		SiteURL:   site.URL,
		Status:    string(status),
		LastError: lastError,
	}); err != nil {
		c.logger.Printf("publishing status event for %s: %v", site.URL, err)
	}
	return nil
}

// IsRunning reports whether a crawl is currently in progress.
func (c *Coordinator) IsRunning() bool {
	return c.running.Load()
}

// StartIndexing spawns one Crawler job per configured site and returns
// true, or returns false without side effects if a crawl is already
// running.
func (c *Coordinator) StartIndexing() bool {
	if !c.running.CompareAndSwap(false, true) {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	for _, sc := range c.sites {
		site, err := c.store.FindOrCreateSite(ctx, sc.URL, sc.Name)
		if err != nil {
			c.logger.Printf("cannot register site %s: %v", sc.URL, err)
			continue
		}
		if err := c.store.PurgeSite(ctx, site); err != nil {
			c.logger.Printf("cannot purge site %s before re-index: %v", sc.URL, err)
			continue
		}
		if err := c.publishStatus(ctx, site, store.StatusIndexing, ""); err != nil {
			c.logger.Printf("cannot mark site %s as indexing: %v", sc.URL, err)
			continue
		}

		c.wg.Add(1)
		go func(site *store.Site) {
			defer c.wg.Done()
			cr := c.newCrawler()
			if err := cr.CrawlSite(ctx, site); err != nil {
				c.logger.Printf("crawl of %s ended: %v", site.URL, err)
			}
			// CrawlSite stamps the final status on site in place.
			if err := messaging.PublishSiteEvent(c.events, messaging.SiteEvent{
				SiteURL:   site.URL,
				Status:    string(site.Status),
				LastError: site.LastError,
			}); err != nil {
				c.logger.Printf("publishing status event for %s: %v", site.URL, err)
			}
		}(site)
	}
	return true
}

// StopIndexing cancels every active Crawler job, waits up to 5 seconds for
// them to unwind, then transitions any site still left in INDEXING to
// FAILED with "stopped by user" as a safety net against jobs that did not
// finish unwinding in time. Returns false without side effects if no crawl
// is running.
func (c *Coordinator) StopIndexing() bool {
	if !c.running.CompareAndSwap(true, false) {
		return false
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
	}

	sites, err := c.store.Sites(context.Background())
	if err != nil {
		c.logger.Printf("cannot sweep site statuses after stop: %v", err)
		return true
	}
	for _, site := range sites {
		if site.Status == store.StatusIndexing {
			if err := c.publishStatus(context.Background(), site, store.StatusFailed, "stopped by user"); err != nil {
				c.logger.Printf("cannot mark %s as failed after stop: %v", site.URL, err)
			}
		}
	}
	return true
}

// IndexPage re-indexes a single absolute page URL, independent of whether a
// full crawl is running. It reports an *apperror.InputError if url does not
// fall under any configured site.
func (c *Coordinator) IndexPage(ctx context.Context, pageURL string) error {
	sc, path, ok := c.resolveSite(pageURL)
	if !ok {
		return apperror.New("page not in configured sites")
	}
	site, err := c.store.FindOrCreateSite(ctx, sc.URL, sc.Name)
	if err != nil {
		return fmt.Errorf("coordinator: resolving site %s: %w", sc.URL, err)
	}
	return c.newCrawler().IndexPath(ctx, site, path)
}

// resolveSite finds the configured site owning pageURL and the
// site-relative path within it.
func (c *Coordinator) resolveSite(pageURL string) (Site, string, bool) {
	for _, sc := range c.sites {
		if !strings.HasPrefix(pageURL, sc.URL) {
			continue
		}
		path := strings.TrimPrefix(pageURL, sc.URL)
		if path == "" {
			path = "/"
		} else if !strings.HasPrefix(path, "/") {
			continue
		}
		return sc, path, true
	}
	return Site{}, "", false
}
