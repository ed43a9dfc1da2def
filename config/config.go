// Package config loads the process-wide configuration from environment
// variables and a JSON sites file, producing the Coordinator's
// configured site list alongside crawler and server settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/codepr/searchengine/coordinator"
	"github.com/codepr/searchengine/crawler"
)

const (
	defaultUserAgent       = "searchengine-bot/1.0"
	defaultReferrer        = ""
	defaultFetchingTimeout = 10
	defaultConcurrency     = 4
	defaultMaxDepth        = 0
	defaultPolitenessDelay = 500
	defaultDBPath          = "searchengine.db"
	defaultHTTPPort        = "8080"
)

// GetEnv reads an environment variable, or returns defaultVal if unset.
func GetEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// GetEnvAsInt reads an environment variable as an integer, or returns
// defaultVal if unset or not parseable.
func GetEnvAsInt(key string, defaultVal int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

// Config is the process-wide configuration loaded once at startup.
type Config struct {
	DBPath    string
	HTTPPort  string
	UserAgent string
	Referrer  string
	Crawler   crawler.Settings
	Sites     []coordinator.Site
}

// siteFile is the on-disk shape of the SITES_CONFIG JSON file: an ordered
// list of {url, name}.
type siteFile struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Load reads Config from the environment. SITES_CONFIG, if set, is the
// path to a JSON array of {url, name} objects naming the crawl targets;
// if unset, Sites is empty: StartIndexing crawls nothing and IndexPage
// rejects every URL.
func Load() (*Config, error) {
	userAgent := GetEnv("USER_AGENT", defaultUserAgent)
	cfg := &Config{
		DBPath:    GetEnv("DB_PATH", defaultDBPath),
		HTTPPort:  GetEnv("HTTP_PORT", defaultHTTPPort),
		UserAgent: userAgent,
		Referrer:  GetEnv("REFERRER", defaultReferrer),
		Crawler: crawler.Settings{
			FetchTimeout:    time.Duration(GetEnvAsInt("FETCHING_TIMEOUT", defaultFetchingTimeout)) * time.Second,
			Concurrency:     GetEnvAsInt("CONCURRENCY", defaultConcurrency),
			UserAgent:       userAgent,
			Referrer:        GetEnv("REFERRER", defaultReferrer),
			PolitenessDelay: time.Duration(GetEnvAsInt("POLITENESS_DELAY", defaultPolitenessDelay)) * time.Millisecond,
			MaxPages:        GetEnvAsInt("MAX_DEPTH", defaultMaxDepth),
		},
	}

	if path := GetEnv("SITES_CONFIG", ""); path != "" {
		sites, err := loadSites(path)
		if err != nil {
			return nil, fmt.Errorf("config: loading SITES_CONFIG %s: %w", path, err)
		}
		cfg.Sites = sites
	}
	return cfg, nil
}

func loadSites(path string) ([]coordinator.Site, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []siteFile
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	sites := make([]coordinator.Site, 0, len(entries))
	for _, e := range entries {
		sites = append(sites, coordinator.Site{URL: e.URL, Name: e.Name})
	}
	return sites, nil
}
