package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
)

// seedEntry is one passage in a seed file.
type seedEntry struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// LoadSeedFile reads a JSON array of knowledge passages for indexing.
//
// Each entry needs content; id defaults to passage_{index} and source may be
// empty. The format:
//
//	[{"id": "owasp-a03", "content": "...", "source": "OWASP Top 10"}, ...]
func LoadSeedFile(path string) ([]IndexDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	docs := make([]IndexDocument, 0, len(entries))
	for i, e := range entries {
		if e.Content == "" {
			return nil, fmt.Errorf("seed entry %d has no content", i)
		}
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("passage_%d", i)
		}
		docs = append(docs, IndexDocument{ID: id, Content: e.Content, Source: e.Source})
	}
	return docs, nil
}
