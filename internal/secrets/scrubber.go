// Package secrets provides secret detection and redaction for code snippets.
//
// Scanner findings carry raw source lines, which routinely contain the very
// credentials the scan flagged. Every snippet passes through scrubbing before
// it is embedded in a reasoning prompt.
package secrets

import (
	"sort"
	"strings"
	"sync"
)

// Scrubber detects and redacts secrets from content.
type Scrubber interface {
	// Scrub redacts secrets from the content.
	Scrub(content string) *Result

	// IsEnabled returns whether scrubbing is enabled.
	IsEnabled() bool
}

// Result contains the scrubbing result.
type Result struct {
	// Scrubbed is the content with secrets redacted.
	Scrubbed string `json:"scrubbed"`

	// Findings contains the detected secrets (without actual values).
	Findings []Finding `json:"findings,omitempty"`

	// TotalFindings is the count of secrets found.
	TotalFindings int `json:"total_findings"`

	// ByRule maps rule IDs to finding counts.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding records a detected secret. The matched text is deliberately not
// included.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
	Line        int    `json:"line,omitempty"`
}

// HasFindings returns true if any secrets were found.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// scrubber is the default implementation using regexp patterns.
type scrubber struct {
	config *Config
	mu     sync.RWMutex
}

// redaction tracks a position to redact.
type redaction struct {
	start, end int
}

// New creates a Scrubber with the given configuration.
// If config is nil, DefaultConfig() is used.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &scrubber{config: cfg}, nil
}

// MustNew creates a Scrubber, panicking on error.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Scrub redacts secrets from the content.
func (s *scrubber) Scrub(content string) *Result {
	result := &Result{
		Scrubbed: content,
		Findings: make([]Finding, 0),
		ByRule:   make(map[string]int),
	}

	if !s.config.Enabled {
		return result
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	redactions := make([]redaction, 0)

	for _, rule := range s.config.compiledRules {
		// Keyword pre-filter avoids running expensive patterns on snippets
		// that cannot match.
		if len(rule.keywords) > 0 {
			hasKeyword := false
			for _, kw := range rule.keywords {
				if kw.MatchString(content) {
					hasKeyword = true
					break
				}
			}
			if !hasKeyword {
				continue
			}
		}

		matches := rule.pattern.FindAllStringIndex(content, -1)
		for _, match := range matches {
			if s.isAllowed(content[match[0]:match[1]]) {
				continue
			}

			result.Findings = append(result.Findings, Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				StartIndex:  match[0],
				EndIndex:    match[1],
				Line:        strings.Count(content[:match[0]], "\n") + 1,
			})
			result.ByRule[rule.ID]++
			redactions = append(redactions, redaction{start: match[0], end: match[1]})
		}
	}

	result.TotalFindings = len(result.Findings)

	// Merge overlapping spans, then replace back-to-front so earlier indexes
	// stay valid.
	if len(redactions) > 0 {
		sort.Slice(redactions, func(i, j int) bool {
			return redactions[i].start < redactions[j].start
		})
		merged := mergeRedactions(redactions)

		scrubbed := content
		for i := len(merged) - 1; i >= 0; i-- {
			r := merged[i]
			if r.start >= 0 && r.end <= len(scrubbed) && r.start < r.end {
				scrubbed = scrubbed[:r.start] + s.config.RedactionString + scrubbed[r.end:]
			}
		}
		result.Scrubbed = scrubbed
	}

	return result
}

// IsEnabled returns whether scrubbing is enabled.
func (s *scrubber) IsEnabled() bool {
	return s.config.Enabled
}

func (s *scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

// mergeRedactions merges overlapping or adjacent spans. Input must be sorted
// by start ascending.
func mergeRedactions(redactions []redaction) []redaction {
	merged := []redaction{redactions[0]}
	for _, curr := range redactions[1:] {
		last := &merged[len(merged)-1]
		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
		} else {
			merged = append(merged, curr)
		}
	}
	return merged
}

// NoopScrubber passes content through unchanged, for disabled mode and tests.
type NoopScrubber struct{}

func (n *NoopScrubber) Scrub(content string) *Result {
	return &Result{
		Scrubbed: content,
		Findings: make([]Finding, 0),
		ByRule:   make(map[string]int),
	}
}

func (n *NoopScrubber) IsEnabled() bool { return false }

var _ Scrubber = (*scrubber)(nil)
var _ Scrubber = (*NoopScrubber)(nil)
