package analyzer

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/dispatchd/internal/knowledge"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
)

// maxPromptPassages caps how many retrieved passages are embedded in the fix
// prompt. Retrieval keeps up to five; the prompt takes the top three.
const maxPromptPassages = 3

// noStandardsFallback is embedded when retrieval produced nothing usable.
const noStandardsFallback = "No specific standards found. Use general security best practices."

// BuildFixPrompt assembles the remediation prompt for one finding. The
// snippet parameter is the scrubbed code snippet; passages must already be
// filtered and ordered by relevance, highest first.
func BuildFixPrompt(f *scan.Finding, snippet string, passages []knowledge.Passage) string {
	contextText := noStandardsFallback
	if len(passages) > 0 {
		if len(passages) > maxPromptPassages {
			passages = passages[:maxPromptPassages]
		}
		refs := make([]string, len(passages))
		for i, p := range passages {
			refs[i] = fmt.Sprintf("Reference (relevance: %.2f):\n%s", p.Score, p.Text)
		}
		contextText = strings.Join(refs, "\n\n")
	}

	return fmt.Sprintf(`You are a security expert analyzing a code vulnerability. Generate a secure fix based on industry standards.

VULNERABILITY DETAILS:
- Type: %s
- File: %s
- Line: %d
- Severity: %s
- Description: %s

VULNERABLE CODE:
`+"```"+`
%s
`+"```"+`

SECURITY STANDARDS CONTEXT (from CWE/OWASP):
%s

TASK:
Generate a secure code fix that addresses this vulnerability. Provide:
1. The corrected code (only the fixed lines, maintain formatting)
2. A clear explanation of what was wrong and how the fix addresses it
3. Any relevant CWE/OWASP references

Format your response as JSON:
{
"code": "corrected code here",
"explanation": "explanation of the fix",
"references": ["CWE-89", "OWASP A03:2021"],
"confidence": 0.95
}

Respond ONLY with valid JSON, no additional text.`,
		f.Type, f.File, f.Line, f.Severity, f.Description, snippet, contextText)
}
