// Package httpapi exposes five JSON requests over HTTP: statistics,
// startIndexing, stopIndexing, indexPage and search. Each handler is a
// thin adapter translating query/form parameters into a call against
// Coordinator, Search or Stats and marshaling the documented response
// shape through gin.
package httpapi

import (
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/codepr/searchengine/apperror"
	"github.com/codepr/searchengine/coordinator"
	"github.com/codepr/searchengine/search"
	"github.com/codepr/searchengine/stats"
)

const defaultSearchLimit = 20

// Server adapts Coordinator, Search and Stats onto the JSON request
// surface.
type Server struct {
	coordinator *coordinator.Coordinator
	search      *search.Search
	stats       *stats.Stats
	logger      *log.Logger
}

// NewServer creates a Server over the given components.
func NewServer(co *coordinator.Coordinator, se *search.Search, st *stats.Stats) *Server {
	return &Server{
		coordinator: co,
		search:      se,
		stats:       st,
		logger:      log.New(os.Stderr, "httpapi: ", log.LstdFlags),
	}
}

// Routes registers every endpoint on router.
func (s *Server) Routes(router gin.IRouter) {
	router.GET("/statistics", s.statistics)
	router.POST("/startIndexing", s.startIndexing)
	router.POST("/stopIndexing", s.stopIndexing)
	router.POST("/indexPage", s.indexPage)
	router.GET("/search", s.handleSearch)
}

// NewRouter builds a ready-to-run gin.Engine with every route registered.
func NewRouter(s *Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	s.Routes(router)
	return router
}

type siteStatsResponse struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	StatusTime string `json:"statusTime"`
	LastError  string `json:"lastError"`
	PageCount  int    `json:"pageCount"`
	LemmaCount int    `json:"lemmaCount"`
}

type statisticsResponse struct {
	TotalSites  int                 `json:"totalSites"`
	TotalPages  int                 `json:"totalPages"`
	TotalLemmas int                 `json:"totalLemmas"`
	Indexing    bool                `json:"indexing"`
	Detailed    []siteStatsResponse `json:"detailed"`
}

// statistics handles GET /statistics.
func (s *Server) statistics(c *gin.Context) {
	totals, err := s.stats.Statistics(c.Request.Context())
	if err != nil {
		s.logger.Printf("statistics: %v", err)
		c.JSON(http.StatusOK, gin.H{"result": false})
		return
	}
	detailed := make([]siteStatsResponse, 0, len(totals.Detailed))
	for _, d := range totals.Detailed {
		detailed = append(detailed, siteStatsResponse{
			URL:        d.URL,
			Name:       d.Name,
			Status:     string(d.Status),
			StatusTime: d.StatusTime,
			LastError:  d.LastError,
			PageCount:  d.PageCount,
			LemmaCount: d.LemmaCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"result": true,
		"statistics": statisticsResponse{
			TotalSites:  totals.TotalSites,
			TotalPages:  totals.TotalPages,
			TotalLemmas: totals.TotalLemmas,
			Indexing:    totals.Indexing,
			Detailed:    detailed,
		},
	})
}

// startIndexing handles POST /startIndexing.
func (s *Server) startIndexing(c *gin.Context) {
	if !s.coordinator.StartIndexing() {
		c.JSON(http.StatusOK, gin.H{"result": false, "error": "already running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": true})
}

// stopIndexing handles POST /stopIndexing.
func (s *Server) stopIndexing(c *gin.Context) {
	if !s.coordinator.StopIndexing() {
		c.JSON(http.StatusOK, gin.H{"result": false, "error": "not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": true})
}

// indexPage handles POST /indexPage?url=...
func (s *Server) indexPage(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		url = c.PostForm("url")
	}
	if err := s.coordinator.IndexPage(c.Request.Context(), url); err != nil {
		c.JSON(http.StatusOK, gin.H{"result": false, "error": errorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": true})
}

type searchResultResponse struct {
	Site      string  `json:"site"`
	SiteName  string  `json:"siteName"`
	URI       string  `json:"uri"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// handleSearch handles GET /search?query=...&site=...&offset=...&limit=...
func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("query")
	site := c.Query("site")
	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", defaultSearchLimit)

	total, results, err := s.search.Query(c.Request.Context(), query, site, offset, limit)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"result": false, "error": errorMessage(err)})
		return
	}
	data := make([]searchResultResponse, 0, len(results))
	for _, r := range results {
		data = append(data, searchResultResponse{
			Site:      r.SiteURL,
			SiteName:  r.SiteName,
			URI:       r.Path,
			Title:     r.Title,
			Snippet:   r.Snippet,
			Relevance: r.Relevance,
		})
	}
	c.JSON(http.StatusOK, gin.H{"result": true, "count": total, "data": data})
}

// errorMessage unwraps an *apperror.InputError to its bare message; any
// other error is reported generically rather than leaking internals to
// callers.
func errorMessage(err error) string {
	var inputErr *apperror.InputError
	if errors.As(err, &inputErr) {
		return inputErr.Message
	}
	return "internal error"
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n := 0
	for _, ch := range raw {
		if ch < '0' || ch > '9' {
			return def
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
