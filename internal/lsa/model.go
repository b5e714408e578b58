// Package lsa implements latent semantic ranking: an offline build that
// projects the term-document matrix onto its top singular vectors, and a
// query path that folds a query into that concept space.
package lsa

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Model is an immutable set of LSA artifacts. Rows of DocConcepts follow
// Documents, rows of TermConcepts and GlobalWeights follow Terms.
type Model struct {
	Terms         []string
	Documents     []string
	GlobalWeights []float64
	Sigma         []float64
	DocConcepts   *mat.Dense // docs x k
	TermConcepts  *mat.Dense // terms x k
	Fingerprint   string
	RequestedRank int
	BuiltAt       time.Time

	termIndex map[string]int
	docNorms  []float64
}

// K is the effective number of concepts.
func (m *Model) K() int { return len(m.Sigma) }

func (m *Model) prepare() error {
	k := len(m.Sigma)
	if k == 0 {
		return fmt.Errorf("model has no concepts")
	}
	if r, c := m.DocConcepts.Dims(); r != len(m.Documents) || c != k {
		return fmt.Errorf("document concepts are %dx%d, want %dx%d", r, c, len(m.Documents), k)
	}
	if r, c := m.TermConcepts.Dims(); r != len(m.Terms) || c != k {
		return fmt.Errorf("term concepts are %dx%d, want %dx%d", r, c, len(m.Terms), k)
	}
	if len(m.GlobalWeights) != len(m.Terms) {
		return fmt.Errorf("%d global weights for %d terms", len(m.GlobalWeights), len(m.Terms))
	}
	m.termIndex = make(map[string]int, len(m.Terms))
	for i, t := range m.Terms {
		m.termIndex[t] = i
	}
	m.docNorms = make([]float64, len(m.Documents))
	for d := range m.Documents {
		m.docNorms[d] = mat.Norm(m.DocConcepts.RowView(d), 2)
	}
	return nil
}

// TermIndex returns the row of term, if it was in the build vocabulary.
func (m *Model) TermIndex(term string) (int, bool) {
	i, ok := m.termIndex[term]
	return i, ok
}

// Holder publishes the serving model. Readers never block and always see a
// fully loaded model together with the generation it was installed as.
type Holder struct {
	current atomic.Pointer[published]
}

type published struct {
	model      *Model
	generation uint64
}

func NewHolder() *Holder { return &Holder{} }

// Load returns the current model, or nil before the first Swap.
func (h *Holder) Load() *Model {
	m, _ := h.Current()
	return m
}

// Current returns the model and its generation from the same Swap.
func (h *Holder) Current() (*Model, uint64) {
	p := h.current.Load()
	if p == nil {
		return nil, 0
	}
	return p.model, p.generation
}

// Swap installs m and returns the new generation number.
func (h *Holder) Swap(m *Model) uint64 {
	for {
		old := h.current.Load()
		next := &published{model: m, generation: 1}
		if old != nil {
			next.generation = old.generation + 1
		}
		if h.current.CompareAndSwap(old, next) {
			return next.generation
		}
	}
}

// Generation increases on every Swap. Zero means nothing was loaded.
func (h *Holder) Generation() uint64 {
	_, gen := h.Current()
	return gen
}

func vecNorm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
