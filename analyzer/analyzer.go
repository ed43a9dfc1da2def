// Package analyzer reduces raw text to a mapping of lemma to occurrence
// count, filtering out short tokens and closed-class stop words before
// reducing the remainder to a base form via a Snowball stemmer.
//
// A morphological analyzer that reports a part-of-speech tag per word
// would let step 4 of the algorithm discard interjections, prepositions,
// conjunctions, particles and pronouns directly; kljensen/snowball has no
// such tagger, so a configurable stop-word table stands in for it (see
// DESIGN.md).
package analyzer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kljensen/snowball"
)

// Charset selects which letter-class the tokenizer treats as word
// characters; everything else is collapsed to a single separator.
type Charset int

const (
	CharsetLatin Charset = iota
	CharsetCyrillic
	CharsetBoth
)

var letterPatterns = map[Charset]string{
	CharsetLatin:    `[^a-z]+`,
	CharsetCyrillic: `[^а-яё]+`,
	CharsetBoth:     `[^a-zа-яё]+`,
}

const defaultMinLength = 3

// Analyzer lemmatizes text for a single configured language.
type Analyzer struct {
	language      string
	charset       Charset
	minLength     int
	stopWords     map[string]bool
	letterPattern *regexp.Regexp
}

// Option configures an Analyzer at construction time.
type Option func(*Analyzer)

// WithCharset overrides the default letter class (CharsetBoth).
func WithCharset(c Charset) Option {
	return func(a *Analyzer) { a.charset = c }
}

// WithMinLength overrides the minimum token length considered (default 3).
func WithMinLength(n int) Option {
	return func(a *Analyzer) { a.minLength = n }
}

// WithStopWords replaces the default stop-word table for the configured
// language with words.
func WithStopWords(words ...string) Option {
	return func(a *Analyzer) {
		set := make(map[string]bool, len(words))
		for _, w := range words {
			set[strings.ToLower(w)] = true
		}
		a.stopWords = set
	}
}

// New creates an Analyzer for language (a snowball.Stem language name,
// e.g. "english" or "russian").
func New(language string, opts ...Option) *Analyzer {
	a := &Analyzer{
		language:  language,
		charset:   CharsetBoth,
		minLength: defaultMinLength,
		stopWords: defaultStopWords(language),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.letterPattern = regexp.MustCompile(letterPatterns[a.charset])
	return a
}

// CollectLemmas lowercases text, splits it into tokens on runs of
// non-letter characters, discards tokens shorter than the configured
// minimum length or belonging to a stop class, reduces the remainder to
// its Snowball-stemmed base form, and returns a mapping from lemma to
// occurrence count.
//
// No error escapes CollectLemmas: a stemming failure on a single token is
// caught and the token is skipped. A nil or zero-value Analyzer returns an
// empty mapping, treated upstream as "no significant terms." Token length
// is measured in letters (runes), not bytes.
func (a *Analyzer) CollectLemmas(text string) map[string]int {
	counts := make(map[string]int)
	if a == nil || a.letterPattern == nil {
		return counts
	}
	normalized := a.letterPattern.ReplaceAllString(strings.ToLower(text), " ")
	for _, token := range strings.Fields(normalized) {
		if utf8.RuneCountInString(token) < a.minLength || a.stopWords[token] {
			continue
		}
		lemma, err := a.stem(token)
		if err != nil {
			continue
		}
		counts[lemma]++
	}
	return counts
}

func (a *Analyzer) stem(token string) (lemma string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyzer: panic stemming %q: %v", token, r)
		}
	}()
	return snowball.Stem(token, a.language, true)
}

func defaultStopWords(language string) map[string]bool {
	var words []string
	switch language {
	case "russian":
		words = []string{
			"и", "в", "во", "не", "что", "он", "она", "оно", "они", "как", "а", "но",
			"я", "ты", "мы", "вы", "это", "тот", "этот", "к", "у", "же", "ли", "бы",
			"за", "из", "от", "по", "для", "о", "об", "но", "да", "или", "его", "ее",
			"их", "ну", "ах", "ох", "эй", "уже", "только", "на", "с", "так",
		}
	case "english":
		words = []string{
			"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
			"of", "with", "he", "she", "it", "they", "we", "you", "i", "is", "are",
			"was", "were", "oh", "ah", "well", "this", "that", "as", "by", "be",
		}
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
