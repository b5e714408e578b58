// Package resources holds the immutable inputs of the ranker: the inverted
// index, document lengths, controlled vocabularies, thesaurus and lookup
// table. Everything here is loaded once and never mutated afterwards.
package resources

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// InvertedIndex maps a term to the raw frequency of that term per document.
type InvertedIndex map[string]map[string]int

// DocumentLengths maps a document id to its precomputed normalisation value.
type DocumentLengths map[string]float64

// TermSet is a set of lower-cased vocabulary entries of one to four words.
type TermSet map[string]struct{}

// ThesaurusEntry keeps the relations used for query expansion. NT, RT and
// SN are present in the source files but never read.
type ThesaurusEntry struct {
	BT []string `json:"BT"`
	UF []string `json:"UF"`
}

// Thesaurus maps a preferred term to its relations.
type Thesaurus map[string]ThesaurusEntry

// LookupTable maps a surface token to the thesaurus keys it belongs to.
type LookupTable map[string][]string

// Resources bundles every static input. It is safe for concurrent reads.
type Resources struct {
	Index      InvertedIndex
	Lengths    DocumentLengths
	Scientific TermSet
	Technical  TermSet
	Thesaurus  Thesaurus
	Lookup     LookupTable
}

// NewTermSet builds a TermSet, lower-casing and trimming each entry.
func NewTermSet(terms ...string) TermSet {
	s := make(TermSet, len(terms))
	for _, t := range terms {
		s.add(t)
	}
	return s
}

func (s TermSet) add(term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return
	}
	s[term] = struct{}{}
}

// Contains reports whether term is in the set.
func (s TermSet) Contains(term string) bool {
	_, ok := s[term]
	return ok
}

// Union returns a new set holding the entries of both sets.
func (s TermSet) Union(other TermSet) TermSet {
	out := make(TermSet, len(s)+len(other))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Contains reports whether term has at least one posting.
func (idx InvertedIndex) Contains(term string) bool {
	_, ok := idx[term]
	return ok
}

// Terms returns the vocabulary in lexical order.
func (idx InvertedIndex) Terms() []string {
	terms := make([]string, 0, len(idx))
	for t := range idx {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Documents returns every document id that appears in a posting, sorted.
func (idx InvertedIndex) Documents() []string {
	seen := make(map[string]struct{})
	for _, postings := range idx {
		for doc := range postings {
			seen[doc] = struct{}{}
		}
	}
	docs := make([]string, 0, len(seen))
	for d := range seen {
		docs = append(docs, d)
	}
	sort.Strings(docs)
	return docs
}

// Fingerprint hashes the vocabulary, the document ids and every posting.
// Two indexes with the same fingerprint produce the same LSA model.
func (idx InvertedIndex) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	for _, term := range idx.Terms() {
		h.Write([]byte(term))
		h.Write([]byte{0})
		postings := idx[term]
		docs := make([]string, 0, len(postings))
		for d := range postings {
			docs = append(docs, d)
		}
		sort.Strings(docs)
		for _, d := range docs {
			h.Write([]byte(d))
			binary.LittleEndian.PutUint64(buf[:], uint64(postings[d]))
			h.Write(buf[:])
		}
		h.Write([]byte{0xff})
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}

// NumDocuments is N in the idf formula: the size of the length table, or
// the number of distinct indexed documents when the table is empty.
func (r *Resources) NumDocuments() int {
	if len(r.Lengths) > 0 {
		return len(r.Lengths)
	}
	return len(r.Index.Documents())
}

// Validate checks the cross-file invariants. A null document decodes to a
// nil map and is rejected like any other malformed table.
func (r *Resources) Validate() error {
	switch {
	case len(r.Index) == 0:
		return fmt.Errorf("inverted index is null or empty")
	case len(r.Lengths) == 0:
		return fmt.Errorf("document length table is null or empty")
	case r.Thesaurus == nil:
		return fmt.Errorf("thesaurus is null")
	case r.Lookup == nil:
		return fmt.Errorf("thesaurus lookup is null")
	}
	var missing []string
	for term, postings := range r.Index {
		if len(postings) == 0 {
			return fmt.Errorf("term %q has no postings", term)
		}
		for doc, freq := range postings {
			if freq < 1 {
				return fmt.Errorf("term %q has frequency %d for %q, want at least 1", term, freq, doc)
			}
			if _, ok := r.Lengths[doc]; !ok {
				missing = append(missing, doc)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		missing = dedupSorted(missing)
		shown := missing
		if len(shown) > 5 {
			shown = shown[:5]
		}
		return fmt.Errorf("%d indexed documents have no length entry (e.g. %s)",
			len(missing), strings.Join(shown, ", "))
	}
	return nil
}

func dedupSorted(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}
