// Package search answers ranked multi-term queries over the persisted
// index: lemma document-frequency filtering, sorted-lemma page
// intersection, relevance normalization and snippet construction,
// implemented as plain Go over Store's query primitives — the matching
// model is a fixed bag-of-lemmas, which does not warrant a
// query-language library.
package search

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/codepr/searchengine/analyzer"
	"github.com/codepr/searchengine/apperror"
	"github.com/codepr/searchengine/fetcher"
	"github.com/codepr/searchengine/store"
)

// highFrequencyShare is the document-frequency share above which a lemma is
// dropped as too common to carry retrieval signal.
const highFrequencyShare = 0.8

// snippetWindow is the number of characters captured on each side of a
// matched term when building a result snippet.
const snippetWindow = 30

// snippetFallbackLength is the length of the snippet returned when not
// every query term was found verbatim in a page's text.
const snippetFallbackLength = 200

// Result is a single ranked match, ready for JSON serialization by the
// request surface.
type Result struct {
	SiteURL   string
	SiteName  string
	Path      string
	Title     string
	Snippet   string
	Relevance float64
}

// Search answers queries over an index built by a Store/Analyzer pair.
type Search struct {
	store    *store.Store
	analyzer *analyzer.Analyzer
}

// New creates a Search over st, using an to lemmatize query text.
func New(st *store.Store, an *analyzer.Analyzer) *Search {
	return &Search{store: st, analyzer: an}
}

// Query answers (query, siteURL?, offset, limit): it
// returns the total number of matching pages and the requested page of
// ranked results. siteURL, if non-empty, restricts the search to that
// site, which must be in the INDEXED state; an empty siteURL spans every
// stored site, whatever its status.
func (s *Search) Query(ctx context.Context, query, siteURL string, offset, limit int) (int, []Result, error) {
	lemmaCounts := s.analyzer.CollectLemmas(query)
	if len(lemmaCounts) == 0 {
		return 0, nil, apperror.New("empty query")
	}
	texts := make([]string, 0, len(lemmaCounts))
	for text := range lemmaCounts {
		texts = append(texts, text)
	}

	lemmasBySite, totalPages, err := s.matchedLemmas(ctx, siteURL, texts)
	if err != nil {
		return 0, nil, err
	}

	type candidate struct {
		page     *store.Page
		lemmaIDs []int64
	}
	var candidates []candidate
	for _, lemmas := range lemmasBySite {
		survivors := survivingLemmas(lemmas, totalPages)
		if len(survivors) == 0 {
			continue
		}
		pages, err := s.intersectPages(ctx, survivors)
		if err != nil {
			return 0, nil, err
		}
		ids := make([]int64, len(survivors))
		for i, l := range survivors {
			ids[i] = l.ID
		}
		for _, p := range pages {
			candidates = append(candidates, candidate{page: p, lemmaIDs: ids})
		}
	}

	type scored struct {
		page      *store.Page
		relevance float64
	}
	results := make([]scored, 0, len(candidates))
	maxRelevance := 0.0
	for _, c := range candidates {
		var sum float64
		for _, lemmaID := range c.lemmaIDs {
			rank, err := s.store.RankOf(ctx, c.page.ID, lemmaID)
			if err != nil {
				return 0, nil, err
			}
			sum += rank
		}
		if sum > maxRelevance {
			maxRelevance = sum
		}
		results = append(results, scored{page: c.page, relevance: sum})
	}
	if maxRelevance > 0 {
		for i := range results {
			results[i].relevance /= maxRelevance
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].relevance > results[j].relevance })

	total := len(results)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total || limit < 0 {
		end = total
	}

	queryTerms := rawTerms(query)
	page := make([]Result, 0, end-offset)
	for _, r := range results[offset:end] {
		site, err := s.store.SiteByID(ctx, r.page.SiteID)
		if err != nil {
			return 0, nil, err
		}
		page = append(page, Result{
			SiteURL:   site.URL,
			SiteName:  site.Name,
			Path:      r.page.Path,
			Title:     fetcher.ExtractTitle(r.page.Content),
			Snippet:   buildSnippet(r.page.Content, queryTerms),
			Relevance: r.relevance,
		})
	}
	return total, page, nil
}

// matchedLemmas resolves the Lemma rows matching texts, grouped by owning
// site, along with the document-count denominator to use for the
// high-frequency filter: per-site when siteURL is set, global otherwise.
func (s *Search) matchedLemmas(ctx context.Context, siteURL string, texts []string) (map[int64][]*store.Lemma, int, error) {
	if siteURL != "" {
		site, err := s.store.SiteByURL(ctx, siteURL)
		if err != nil {
			return nil, 0, apperror.New("site not found")
		}
		if site.Status != store.StatusIndexed {
			return nil, 0, apperror.New("site not indexed")
		}
		lemmas, err := s.store.LemmasBySiteAndTexts(ctx, site.ID, texts)
		if err != nil {
			return nil, 0, err
		}
		totalPages, err := s.store.CountPagesOfSite(ctx, site.ID)
		if err != nil {
			return nil, 0, err
		}
		return map[int64][]*store.Lemma{site.ID: lemmas}, totalPages, nil
	}

	lemmas, err := s.store.LemmasByTexts(ctx, texts)
	if err != nil {
		return nil, 0, err
	}
	totalPages, err := s.store.TotalPages(ctx)
	if err != nil {
		return nil, 0, err
	}
	bySite := make(map[int64][]*store.Lemma)
	for _, l := range lemmas {
		bySite[l.SiteID] = append(bySite[l.SiteID], l)
	}
	return bySite, totalPages, nil
}

// survivingLemmas drops every lemma whose frequency exceeds
// highFrequencyShare of totalPages, falling back to the single rarest
// lemma if that would leave none, then sorts the result ascending by
// frequency so intersectPages starts from the rarest candidate set.
func survivingLemmas(lemmas []*store.Lemma, totalPages int) []*store.Lemma {
	threshold := highFrequencyShare * float64(totalPages)
	kept := make([]*store.Lemma, 0, len(lemmas))
	for _, l := range lemmas {
		if float64(l.Frequency) <= threshold {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 && len(lemmas) > 0 {
		rarest := lemmas[0]
		for _, l := range lemmas[1:] {
			if l.Frequency < rarest.Frequency {
				rarest = l
			}
		}
		kept = []*store.Lemma{rarest}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Frequency < kept[j].Frequency })
	return kept
}

// intersectPages returns the pages common to every lemma in lemmas, which
// must already be sorted ascending by frequency so the intersection starts
// from the smallest candidate set and can exit early once it empties.
func (s *Search) intersectPages(ctx context.Context, lemmas []*store.Lemma) ([]*store.Page, error) {
	pages, err := s.store.PagesByLemma(ctx, lemmas[0].ID)
	if err != nil {
		return nil, err
	}
	for _, l := range lemmas[1:] {
		if len(pages) == 0 {
			break
		}
		next, err := s.store.PagesByLemma(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		pages = intersectByID(pages, next)
	}
	return pages, nil
}

func intersectByID(a, b []*store.Page) []*store.Page {
	present := make(map[int64]bool, len(b))
	for _, p := range b {
		present[p.ID] = true
	}
	out := make([]*store.Page, 0, len(a))
	for _, p := range a {
		if present[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

var wordPattern = regexp.MustCompile(`[\p{L}]+`)

// rawTerms tokenizes query into its literal lowercase words, for snippet
// matching against the page's raw text — distinct from the lemmatized
// terms used for index lookups, since a page's visible text contains
// inflected words, not their stems.
func rawTerms(query string) []string {
	return wordPattern.FindAllString(strings.ToLower(query), -1)
}

// buildSnippet constructs a result snippet: for each
// query term, a window of snippetWindow characters on either side of its
// first whole-word, case-insensitive occurrence, with the match itself
// wrapped in bold markers. If every term was found, the fragments are
// joined with " ... " and wrapped in leading/trailing "...". Otherwise the
// first snippetFallbackLength characters of the page text are returned.
func buildSnippet(html string, terms []string) string {
	text := fetcher.ExtractText(html)
	lower := strings.ToLower(text)

	fragments := make([]string, 0, len(terms))
	allMatched := len(terms) > 0
	for _, term := range terms {
		idx := indexWholeWord(lower, term)
		if idx < 0 {
			allMatched = false
			continue
		}
		start := idx
		for n := 0; n < snippetWindow && start > 0; n++ {
			_, size := utf8.DecodeLastRuneInString(text[:start])
			start -= size
		}
		end := idx + len(term)
		for n := 0; n < snippetWindow && end < len(text); n++ {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
		}
		fragments = append(fragments, boldWholeWord(text[start:end], term))
	}

	if allMatched && len(fragments) > 0 {
		return "..." + strings.Join(fragments, " ... ") + "..."
	}
	if runes := []rune(text); len(runes) > snippetFallbackLength {
		return string(runes[:snippetFallbackLength]) + "..."
	}
	return text + "..."
}

// boldWholeWord wraps term's first whole-word, case-insensitive occurrence
// in fragment with bold markers.
func boldWholeWord(fragment, term string) string {
	idx := indexWholeWord(strings.ToLower(fragment), term)
	if idx < 0 {
		return fragment
	}
	return fragment[:idx] + "**" + fragment[idx:idx+len(term)] + "**" + fragment[idx+len(term):]
}

// indexWholeWord returns the byte offset of needle's first whole-word
// occurrence in haystack (both assumed already lowercased), or -1 if
// none exists. A match is whole-word when the rune immediately before and
// after it, if any, is not a letter; the adjacent rune is decoded rather
// than read as a single byte so multi-byte alphabets (Cyrillic included)
// are not mistaken for non-letter boundaries.
func indexWholeWord(haystack, needle string) int {
	from := 0
	for {
		rel := strings.Index(haystack[from:], needle)
		if rel < 0 {
			return -1
		}
		idx := from + rel
		before := idx == 0
		if !before {
			r, _ := utf8.DecodeLastRuneInString(haystack[:idx])
			before = !unicode.IsLetter(r)
		}
		afterIdx := idx + len(needle)
		after := afterIdx >= len(haystack)
		if !after {
			r, _ := utf8.DecodeRuneInString(haystack[afterIdx:])
			after = !unicode.IsLetter(r)
		}
		if before && after {
			return idx
		}
		_, size := utf8.DecodeRuneInString(haystack[idx:])
		from = idx + size
		if from >= len(haystack) {
			return -1
		}
	}
}
