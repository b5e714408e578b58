package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/errors"
)

// Case is one labelled query.
type Case struct {
	Query             string   `json:"query"`
	RelevantDocuments []string `json:"relevant_documents"`
}

// LoadDataset reads a JSON array of cases. Blank queries are rejected; a
// case with no relevant documents is allowed and can only score zero.
func LoadDataset(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: evaluation dataset %s not found", apperrors.ErrResourceUnavailable, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading evaluation dataset %s: %w", path, err)
	}
	return ParseDataset(data)
}

func ParseDataset(data []byte) ([]Case, error) {
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("%w: evaluation dataset: %v", apperrors.ErrResourceMalformed, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%w: evaluation dataset is empty", apperrors.ErrResourceMalformed)
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Query) == "" {
			return nil, fmt.Errorf("%w: evaluation case %d has no query", apperrors.ErrResourceMalformed, i)
		}
	}
	return cases, nil
}
