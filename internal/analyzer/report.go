package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/dispatchd/internal/llm"
	"github.com/fyrsmithlabs/dispatchd/internal/semgrep"
)

// maxTriageFindings caps the findings condensed into a triage prompt.
const maxTriageFindings = 30

const triagePromptHeader = "You are a senior application security analyst. Analyze the following static " +
	"analysis results and generate a JSON response with the fields: " +
	"`summary`, `risk_profile`, and `recommendations`. " +
	"`risk_profile` should group vulnerabilities by severity (High/Medium/Low) " +
	"and estimate exploitability (0–1) and business impact. " +
	"`recommendations` should outline prioritized actions developers should take. " +
	"Be concise but precise. Do not include explanations outside JSON.\n\n"

// condensedFinding is the per-finding shape embedded in a triage prompt.
type condensedFinding struct {
	RuleID   string           `json:"rule_id"`
	Severity string           `json:"severity"`
	Message  string           `json:"message"`
	Path     string           `json:"path"`
	Start    semgrep.Position `json:"start"`
	End      semgrep.Position `json:"end"`
	Lines    string           `json:"lines"`
}

// BuildTriagePrompt condenses raw findings into a risk-profile prompt. Only
// the first 30 findings are included.
func BuildTriagePrompt(findings []semgrep.Result) string {
	condensed := make([]condensedFinding, 0, len(findings))
	for _, r := range findings {
		if len(condensed) == maxTriageFindings {
			break
		}
		condensed = append(condensed, condensedFinding{
			RuleID:   r.CheckID,
			Severity: r.Extra.Severity,
			Message:  r.Extra.Message,
			Path:     r.Path,
			Start:    r.Start,
			End:      r.End,
			Lines:    r.Extra.Lines,
		})
	}

	payload, _ := json.MarshalIndent(condensed, "", "  ")
	return triagePromptHeader + fmt.Sprintf("Findings:\n%s", payload)
}

// Triage asks the reasoning service for a risk report over raw findings.
// A response that is not valid JSON is wrapped as {"summary": <text>}.
func Triage(ctx context.Context, client llm.Client, findings []semgrep.Result) (map[string]interface{}, error) {
	if len(findings) == 0 {
		return nil, fmt.Errorf("no findings to analyze")
	}

	raw, err := client.Complete(ctx, BuildTriagePrompt(findings))
	if err != nil {
		return nil, fmt.Errorf("triage analysis failed: %w", err)
	}

	var report map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return map[string]interface{}{"summary": raw}, nil
	}
	return report, nil
}
