// Command searchengine starts the indexing/search HTTP service: it loads
// configuration, opens the SQLite store, and serves the indexing and
// search requests until interrupted.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codepr/searchengine/analyzer"
	"github.com/codepr/searchengine/config"
	"github.com/codepr/searchengine/coordinator"
	"github.com/codepr/searchengine/crawler"
	"github.com/codepr/searchengine/httpapi"
	"github.com/codepr/searchengine/messaging"
	"github.com/codepr/searchengine/search"
	"github.com/codepr/searchengine/stats"
	"github.com/codepr/searchengine/store"
)

func main() {
	logger := log.New(os.Stderr, "searchengine: ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("loading configuration: %v", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("opening store at %s: %v", cfg.DBPath, err)
	}
	defer st.Close()

	an := analyzer.New("english", analyzer.WithCharset(analyzer.CharsetLatin))

	events := messaging.NewChannelQueue()
	eventCh := make(chan []byte)
	go func() {
		if err := events.Consume(eventCh); err != nil {
			logger.Printf("event consumer stopped: %v", err)
		}
		close(eventCh)
	}()
	go logSiteEvents(logger, eventCh)

	sites := make([]coordinator.Site, len(cfg.Sites))
	copy(sites, cfg.Sites)

	newCrawler := func() *crawler.Crawler { return crawler.New(cfg.Crawler, st, an) }
	co := coordinator.New(st, cfg.Crawler, sites, newCrawler, coordinator.WithEvents(events))

	se := search.New(st, an)
	sf := stats.New(st, co)

	server := httpapi.NewServer(co, se, sf)
	router := httpapi.NewRouter(server)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Println("shutting down")
		co.StopIndexing()
		events.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
	}()

	logger.Printf("listening on :%s", cfg.HTTPPort)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server: %v", err)
	}
}

// logSiteEvents drains eventCh, logging each published messaging.SiteEvent
// until the channel is closed by events.Close().
func logSiteEvents(logger *log.Logger, eventCh <-chan []byte) {
	for payload := range eventCh {
		var evt messaging.SiteEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			logger.Printf("malformed site event: %v", err)
			continue
		}
		if evt.LastError != "" {
			logger.Printf("site %s -> %s (%s)", evt.SiteURL, evt.Status, evt.LastError)
		} else {
			logger.Printf("site %s -> %s", evt.SiteURL, evt.Status)
		}
	}
}
