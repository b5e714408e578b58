// Package analysis turns raw user queries into the token form used by the
// inverted index. Multi-word scientific names are captured whole before any
// lemmatisation, Arabic tokens lose their definite article, and numbers pass
// through untouched.
package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
	"golang.org/x/text/unicode/norm"
)

const DefaultMaxNGram = 4

var tokenPattern = regexp.MustCompile(`[a-zA-Z\x{00C0}-\x{00FF}\x{0600}-\x{06FF}]+|\d+[.,]\d+|\d+|%`)

const arabicArticle = "ال"

// Result is the output of Normalize. Tokens holds numbers first, then the
// scientific captures, then the lemmatised words.
type Result struct {
	Tokens     []string `json:"tokens"`
	Scientific []string `json:"scientific_terms"`
}

// Empty reports whether nothing indexable was found.
func (r Result) Empty() bool { return len(r.Tokens) == 0 }

// Normalizer is safe for concurrent use once built.
type Normalizer struct {
	vocabulary resources.TermSet
	maxN       int
	lemmatizer Lemmatizer
	stopWords  wordSet
}

type Option func(*Normalizer)

// WithLemmatizer replaces the default identity lemmatizer.
func WithLemmatizer(l Lemmatizer) Option {
	return func(n *Normalizer) { n.lemmatizer = l }
}

// WithMaxNGram sets the longest scientific name, in words, to look for.
func WithMaxNGram(maxN int) Option {
	return func(n *Normalizer) {
		if maxN > 0 {
			n.maxN = maxN
		}
	}
}

// WithStopWords replaces the default stop-word list.
func WithStopWords(words ...string) Option {
	return func(n *Normalizer) { n.stopWords = newWordSet(words...) }
}

// NewNormalizer builds a normalizer that captures n-grams found in
// vocabulary.
func NewNormalizer(vocabulary resources.TermSet, opts ...Option) *Normalizer {
	n := &Normalizer{
		vocabulary: vocabulary,
		maxN:       DefaultMaxNGram,
		lemmatizer: IdentityLemmatizer{},
		stopWords:  defaultStopWords,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize never fails; a query with nothing indexable yields an empty
// Result.
func (n *Normalizer) Normalize(query string) Result {
	query = norm.NFC.String(query)

	var numeric, alpha []string
	for _, tok := range tokenPattern.FindAllString(query, -1) {
		if isNumeric(tok) {
			numeric = append(numeric, strings.ReplaceAll(tok, ",", "."))
			continue
		}
		alpha = append(alpha, tok)
	}

	scientific, remaining := n.captureScientific(alpha)

	seen := make(map[string]struct{}, len(numeric)+len(remaining))
	tokens := make([]string, 0, len(numeric)+len(scientific)+len(remaining))
	for _, tok := range numeric {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	tokens = append(tokens, scientific...)
	for _, tok := range remaining {
		lemma, ok := n.normalizeWord(tok)
		if !ok {
			continue
		}
		if _, dup := seen[lemma]; dup {
			continue
		}
		seen[lemma] = struct{}{}
		tokens = append(tokens, lemma)
	}

	if scientific == nil {
		scientific = []string{}
	}
	return Result{Tokens: tokens, Scientific: scientific}
}

// captureScientific scans left to right, emitting the longest window (up to
// maxN words) whose lower-cased form is in the vocabulary. Words not covered
// by a capture are returned in order.
func (n *Normalizer) captureScientific(words []string) (captured, remaining []string) {
	for i := 0; i < len(words); {
		matched := 0
		for size := min(n.maxN, len(words)-i); size >= 1; size-- {
			candidate := strings.ToLower(strings.Join(words[i:i+size], " "))
			if n.vocabulary.Contains(candidate) {
				captured = append(captured, candidate)
				matched = size
				break
			}
		}
		if matched == 0 {
			remaining = append(remaining, words[i])
			i++
			continue
		}
		i += matched
	}
	return captured, remaining
}

func (n *Normalizer) normalizeWord(word string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(word))
	if isArabic(lower) {
		stripped := strings.TrimPrefix(lower, arabicArticle)
		return stripped, utf8.RuneCountInString(stripped) > 1
	}
	if n.stopWords.has(lower) {
		return "", false
	}
	lemma := strings.ToLower(strings.TrimSpace(n.lemmatizer.Lemma(lower)))
	return lemma, utf8.RuneCountInString(lemma) > 1
}

func isNumeric(tok string) bool {
	if tok == "%" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(tok)
	return r >= '0' && r <= '9'
}

func isArabic(tok string) bool {
	for _, r := range tok {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}
