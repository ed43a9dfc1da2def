package crawler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/codepr/searchengine/fetcher"
)

const robotsTxtPath = "/robots.txt"

// CrawlingRules holds the politeness rules in effect for a single site
// crawl: the robots.txt exclusion group for the configured user-agent, if
// one was found, and the delay to respect between two requests to that
// site.
//
// There are 3 possible sources for that delay, and the largest of them
// is used:
//
//   - robots.txt delay
//   - delay = random value between 0.5*fixedDelay and 1.5*fixedDelay
//   - max(lastResponseTime^2, delay, robots.txt delay)
type CrawlingRules struct {
	robotsGroup *robotstxt.Group
	fixedDelay  time.Duration
	lastDelay   time.Duration
	mu          sync.RWMutex
}

// NewCrawlingRules creates a CrawlingRules with no robots.txt loaded yet
// and a fixed politeness delay of fixedDelay between requests.
func NewCrawlingRules(fixedDelay time.Duration) *CrawlingRules {
	return &CrawlingRules{fixedDelay: fixedDelay}
}

// Allowed reports whether path may be crawled under the robots.txt group
// loaded via FetchRobotsTxt. With no robots.txt loaded, every path is
// allowed.
func (r *CrawlingRules) Allowed(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.robotsGroup == nil {
		return true
	}
	return r.robotsGroup.Test(path)
}

// CrawlDelay returns the delay to respect before the next request to this
// site.
func (r *CrawlingRules) CrawlDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var robotsDelay time.Duration
	if r.robotsGroup != nil {
		robotsDelay = r.robotsGroup.CrawlDelay
	}
	randomDelay := randDelay(r.fixedDelay)
	baseDelay := time.Duration(math.Max(float64(randomDelay), float64(robotsDelay)))
	return time.Duration(math.Max(float64(r.lastDelay), float64(baseDelay)))
}

// UpdateLastDelay records lastResponseTime (squared, as a simple
// congestion backoff signal) as the delay floor for the next CrawlDelay
// call.
func (r *CrawlingRules) UpdateLastDelay(lastResponseTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastDelay = time.Duration(math.Pow(lastResponseTime.Seconds(), 2.0) * float64(time.Second))
}

// FetchRobotsTxt fetches and parses /robots.txt at siteURL via f, loading
// the exclusion group for userAgent if one is found. It reports whether a
// usable robots.txt was found; a missing, unreadable or unparsable
// robots.txt leaves every path allowed by default, matching the
// convention that no robots.txt means full access.
func (r *CrawlingRules) FetchRobotsTxt(ctx context.Context, f fetcher.Fetcher, userAgent, siteURL string) bool {
	code, body, _, _, err := f.FetchPage(ctx, siteURL+robotsTxtPath)
	if err != nil || code == 404 {
		return false
	}
	data, err := robotstxt.FromBytes([]byte(body))
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.robotsGroup = data.FindGroup(userAgent)
	return r.robotsGroup != nil
}

// randDelay returns a random value between 0.5*value and 1.5*value.
func randDelay(value time.Duration) time.Duration {
	if value <= 0 {
		return 0
	}
	max, min := 1.5*float64(value), 0.5*float64(value)
	return time.Duration(rand.Int63n(int64(max-min)) + int64(min))
}
