// Package evaluation measures retrieval quality against a labelled dataset:
// per-query precision, recall and F1, summarised as micro and macro
// averages.
package evaluation

// QueryResult holds the confusion counts and scores of one query. Retrieved
// and relevant documents are compared as sets.
type QueryResult struct {
	Query          string   `json:"query"`
	Method         string   `json:"method,omitempty"`
	Retrieved      []string `json:"retrieved"`
	TP             int      `json:"tp"`
	FP             int      `json:"fp"`
	FN             int      `json:"fn"`
	Precision      float64  `json:"precision"`
	Recall         float64  `json:"recall"`
	F1             float64  `json:"f1"`
	RelevantCount  int      `json:"relevant_count"`
	RetrievedCount int      `json:"retrieved_count"`
}

// Summary aggregates a run. Micro scores come from the summed TP, FP and FN;
// macro scores are the mean of the per-query scores.
type Summary struct {
	Queries        int     `json:"queries"`
	TotalTP        int     `json:"total_tp"`
	TotalFP        int     `json:"total_fp"`
	TotalFN        int     `json:"total_fn"`
	MicroPrecision float64 `json:"micro_precision"`
	MicroRecall    float64 `json:"micro_recall"`
	MicroF1        float64 `json:"micro_f1"`
	MacroPrecision float64 `json:"macro_precision"`
	MacroRecall    float64 `json:"macro_recall"`
	MacroF1        float64 `json:"macro_f1"`
}

func EvaluateQuery(query string, relevant, retrieved []string) QueryResult {
	relevantSet := toSet(relevant)
	retrievedSet := toSet(retrieved)

	var tp int
	for doc := range retrievedSet {
		if _, ok := relevantSet[doc]; ok {
			tp++
		}
	}
	fp := len(retrievedSet) - tp
	fn := len(relevantSet) - tp
	p, r, f := scores(tp, fp, fn)

	return QueryResult{
		Query:          query,
		Retrieved:      retrieved,
		TP:             tp,
		FP:             fp,
		FN:             fn,
		Precision:      p,
		Recall:         r,
		F1:             f,
		RelevantCount:  len(relevantSet),
		RetrievedCount: len(retrievedSet),
	}
}

func Summarize(results []QueryResult) Summary {
	s := Summary{Queries: len(results)}
	if len(results) == 0 {
		return s
	}
	for _, r := range results {
		s.TotalTP += r.TP
		s.TotalFP += r.FP
		s.TotalFN += r.FN
		s.MacroPrecision += r.Precision
		s.MacroRecall += r.Recall
		s.MacroF1 += r.F1
	}
	n := float64(len(results))
	s.MacroPrecision /= n
	s.MacroRecall /= n
	s.MacroF1 /= n
	s.MicroPrecision, s.MicroRecall, s.MicroF1 = scores(s.TotalTP, s.TotalFP, s.TotalFN)
	return s
}

// scores returns zero for any ratio whose denominator is zero.
func scores(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
