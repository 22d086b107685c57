// Package patcher turns findings into patch suggestions and applies them to a
// working copy.
package patcher

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/llm"
	"github.com/fyrsmithlabs/dispatchd/internal/semgrep"
)

// Placeholder suggestions emitted by the planner's fallback paths.
const (
	reviewManually       = "# TODO: Review this issue manually."
	reviewVulnerableLine = "# TODO: Review this vulnerable line"
)

// Suggestion is one proposed patch: a file location and text to insert.
type Suggestion struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Suggestion  string `json:"suggestion"`
	Description string `json:"description,omitempty"`
}

// Planner asks the reasoning service for a patch plan in a single request.
//
// The planner is the terminal error-absorption point of the pipeline: it
// never returns an error. A failed call degrades to one placeholder
// suggestion per raw finding; an unparseable response degrades to a single
// placeholder carrying the raw text.
type Planner struct {
	client         llm.Client
	maxPromptChars int
	logger         *zap.Logger
}

// NewPlanner creates a planner. maxPromptChars bounds the findings payload
// embedded in the prompt; 0 means 8000.
func NewPlanner(client llm.Client, maxPromptChars int, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPromptChars == 0 {
		maxPromptChars = 8000
	}
	return &Planner{
		client:         client,
		maxPromptChars: maxPromptChars,
		logger:         logger,
	}
}

// Plan requests patch suggestions for the given raw findings.
func (p *Planner) Plan(ctx context.Context, findings []semgrep.Result) []Suggestion {
	payload, err := json.Marshal(semgrep.Output{Results: findings})
	if err != nil {
		// Results came out of a JSON decoder; this cannot realistically fail.
		p.logger.Error("encoding findings for planning prompt", zap.Error(err))
		return fallbackPerFinding(findings)
	}

	findingsText := string(payload)
	if len(findingsText) > p.maxPromptChars {
		findingsText = findingsText[:p.maxPromptChars]
	}

	prompt := fmt.Sprintf(
		"You are a senior security engineer. For each Semgrep finding below, "+
			"propose minimal, secure, context-aware code patches. "+
			"Output strictly as JSON in this format:\n\n"+
			`[{"file": "<path>", "line": <line_number>, "suggestion": "<patch>"}]`+
			"\n\nFindings:\n%s", findingsText)

	raw, err := p.client.Complete(ctx, prompt)
	if err != nil {
		p.logger.Warn("patch planning call failed, emitting per-finding placeholders", zap.Error(err))
		return fallbackPerFinding(findings)
	}

	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		p.logger.Warn("patch plan response was not a JSON list", zap.Error(err))
		text := raw
		if text == "" {
			text = reviewManually
		}
		return []Suggestion{{File: "unknown", Line: 0, Suggestion: text}}
	}
	return suggestions
}

// fallbackPerFinding emits one placeholder suggestion per raw finding.
func fallbackPerFinding(findings []semgrep.Result) []Suggestion {
	suggestions := make([]Suggestion, 0, len(findings))
	for _, f := range findings {
		file := f.Path
		if file == "" {
			file = "unknown"
		}
		suggestions = append(suggestions, Suggestion{
			File:       file,
			Line:       f.Start.Line,
			Suggestion: reviewVulnerableLine,
		})
	}
	return suggestions
}
