package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// wrapperKeys are the object keys accepted for the single-list term set
// shape, e.g. {"scientific_terms": ["rosa damascena", ...]}.
var wrapperKeys = []string{"scientific_terms", "concepts", "terms"}

type setShape int

const (
	shapeArray setShape = iota
	shapeObjectKeys
	shapeWrappedArray
)

func (s setShape) String() string {
	switch s {
	case shapeArray:
		return "array"
	case shapeObjectKeys:
		return "object-keys"
	case shapeWrappedArray:
		return "wrapped-array"
	default:
		return "unknown"
	}
}

// Load reads every resource file concurrently and validates the result.
// Any missing or malformed file fails the whole load.
func Load(ctx context.Context, cfg config.ResourcesConfig) (*Resources, error) {
	start := time.Now()
	log := slog.Default().With("component", "resources")
	r := &Resources{}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return readJSON(cfg.IndexPath, &r.Index) })
	g.Go(func() error { return readJSON(cfg.LengthsPath, &r.Lengths) })
	g.Go(func() error {
		set, err := LoadTermSet(cfg.ScientificPath)
		r.Scientific = set
		return err
	})
	g.Go(func() error {
		set, err := LoadTermSet(cfg.TechnicalPath)
		r.Technical = set
		return err
	})
	g.Go(func() error { return readJSON(cfg.ThesaurusPath, &r.Thesaurus) })
	g.Go(func() error { return readJSON(cfg.LookupPath, &r.Lookup) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrResourceMalformed, err)
	}

	log.Info("resources loaded",
		"terms", len(r.Index),
		"documents", len(r.Lengths),
		"scientific_terms", len(r.Scientific),
		"technical_terms", len(r.Technical),
		"thesaurus_entries", len(r.Thesaurus),
		"lookup_entries", len(r.Lookup),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return r, nil
}

// LoadTermSet reads a vocabulary file. Accepted shapes are a JSON array of
// strings, an object whose keys are the terms, or an object holding one list
// under a wrapper key. Anything else is rejected.
func LoadTermSet(path string) (TermSet, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	set, shape, err := parseTermSet(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrResourceMalformed, path, err)
	}
	slog.Debug("term set loaded", "path", path, "shape", shape.String(), "terms", len(set))
	return set, nil
}

func parseTermSet(data []byte) (TermSet, setShape, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, 0, fmt.Errorf("empty document")
	}
	switch trimmed[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, 0, fmt.Errorf("array shape: %w", err)
		}
		return NewTermSet(list...), shapeArray, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, 0, fmt.Errorf("object shape: %w", err)
		}
		if len(obj) == 1 {
			for _, key := range wrapperKeys {
				raw, ok := obj[key]
				if !ok {
					continue
				}
				var list []string
				if err := json.Unmarshal(raw, &list); err == nil {
					return NewTermSet(list...), shapeWrappedArray, nil
				}
			}
		}
		set := make(TermSet, len(obj))
		for k := range obj {
			set.add(k)
		}
		return set, shapeObjectKeys, nil
	default:
		return nil, 0, fmt.Errorf("unsupported shape starting with %q", trimmed[0])
	}
}

// LoadLemmas reads a surface form to lemma table.
func LoadLemmas(path string) (map[string]string, error) {
	var lemmas map[string]string
	if err := readJSON(path, &lemmas); err != nil {
		return nil, err
	}
	return lemmas, nil
}

func readFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", apperrors.ErrResourceUnavailable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrResourceUnavailable, path, err)
	}
	return data, nil
}

func readJSON(path string, v any) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", apperrors.ErrResourceMalformed, path, err)
	}
	return nil
}
