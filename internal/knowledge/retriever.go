// Package knowledge provides retrieval of remediation guidance passages.
//
// The analyzer queries a knowledge base of security standards (CWE/OWASP
// writeups, secure-coding guides) for passages relevant to a finding. The
// default implementation is an embedded chromem-go vector store with local
// embeddings; the Retriever interface keeps the stage testable and lets a
// hosted knowledge service be substituted.
package knowledge

import (
	"context"
	"fmt"
	"sort"
)

// Retrieval tuning shared by all implementations.
const (
	// MaxResults is the number of passages requested per query.
	MaxResults = 5

	// MinScore is the relevance cutoff. Passages must score strictly above
	// this value to be kept; a passage at exactly MinScore is dropped.
	MinScore = 0.5
)

// Passage is one retrieved knowledge-base excerpt.
type Passage struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

// Retriever finds passages relevant to a query.
type Retriever interface {
	// Retrieve returns up to maxResults passages ranked by relevance,
	// highest first. Implementations return raw results; callers apply
	// FilterPassages for the score cutoff.
	Retrieve(ctx context.Context, query string, maxResults int) ([]Passage, error)
}

// Query builds the retrieval query text for a finding.
func Query(vulnerabilityType, description string) string {
	return fmt.Sprintf(
		"Security vulnerability: %s\nDescription: %s\n\nProvide remediation guidance, best practices, and secure code examples.",
		vulnerabilityType, description,
	)
}

// FilterPassages keeps passages scoring strictly above MinScore, ordered by
// score descending, capped at MaxResults.
func FilterPassages(passages []Passage) []Passage {
	kept := make([]Passage, 0, len(passages))
	for _, p := range passages {
		if p.Score > MinScore {
			kept = append(kept, p)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > MaxResults {
		kept = kept[:MaxResults]
	}
	return kept
}
