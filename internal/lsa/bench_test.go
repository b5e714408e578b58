package lsa

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/resources"
)

// syntheticIndex spreads terms over docs so every document shares a few
// terms with its neighbours.
func syntheticIndex(terms, docs int) resources.InvertedIndex {
	idx := make(resources.InvertedIndex, terms)
	for t := 0; t < terms; t++ {
		postings := make(map[string]int)
		for d := t % 7; d < docs; d += 7 + t%5 {
			postings[fmt.Sprintf("doc-%04d", d)] = 1 + (t+d)%4
		}
		idx[termName(t)] = postings
	}
	return idx
}

// termName spells t with letters so the normalizer keeps it as one token.
func termName(t int) string {
	digits := []byte(fmt.Sprintf("%04d", t))
	for i, d := range digits {
		digits[i] = 'a' + (d - '0')
	}
	return "term" + string(digits)
}

func BenchmarkBuild(b *testing.B) {
	for _, size := range []int{100, 400} {
		idx := syntheticIndex(size*2, size)
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Build(idx, BuildOptions{Rank: 30}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	m, err := Build(syntheticIndex(800, 400), BuildOptions{Rank: 30})
	if err != nil {
		b.Fatal(err)
	}
	holder := NewHolder()
	holder.Swap(m)
	s := NewSearcher(holder, analysis.NewNormalizer(resources.NewTermSet()), nil, nil, QueryOptions{})
	ctx := context.Background()
	query := termName(1) + " " + termName(42) + " " + termName(300)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := s.Search(ctx, query); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBundleRoundTrip(b *testing.B) {
	m, err := Build(syntheticIndex(800, 400), BuildOptions{Rank: 30})
	if err != nil {
		b.Fatal(err)
	}
	dir := b.TempDir()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path, err := WriteBundle(dir, m)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := ReadBundle(path); err != nil {
			b.Fatal(err)
		}
	}
}
