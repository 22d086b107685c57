package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFix(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		snippet string
		want    FixRecord
	}{
		{
			name: "clean JSON response",
			raw:  `{"code": "stmt.Exec(id)", "explanation": "use a prepared statement", "references": ["CWE-89"], "confidence": 0.95}`,
			want: FixRecord{
				Code:        "stmt.Exec(id)",
				Explanation: "use a prepared statement",
				References:  []string{"CWE-89"},
				Confidence:  0.95,
			},
		},
		{
			name: "JSON wrapped in prose",
			raw:  "Here is the fix:\n{\"code\": \"html.EscapeString(input)\", \"explanation\": \"escape output\", \"references\": []}\nLet me know if you need more.",
			want: FixRecord{
				Code:        "html.EscapeString(input)",
				Explanation: "escape output",
				References:  []string{},
				Confidence:  DefaultConfidence,
			},
		},
		{
			name: "missing confidence defaults",
			raw:  `{"code": "x", "explanation": "y"}`,
			want: FixRecord{
				Code:        "x",
				Explanation: "y",
				References:  []string{},
				Confidence:  DefaultConfidence,
			},
		},
		{
			name:    "unparseable response falls back to sentinel",
			raw:     "I cannot produce a fix for this finding.",
			snippet: "query := \"SELECT * FROM users WHERE id=\" + id",
			want: FixRecord{
				Code:        "query := \"SELECT * FROM users WHERE id=\" + id",
				Explanation: "Could not generate fix",
				References:  []string{},
				Confidence:  0.0,
			},
		},
		{
			name:    "JSON without code falls back to sentinel",
			raw:     `{"explanation": "no code provided"}`,
			snippet: "original",
			want: FixRecord{
				Code:        "original",
				Explanation: "Could not generate fix",
				References:  []string{},
				Confidence:  0.0,
			},
		},
		{
			name:    "malformed embedded JSON falls back to sentinel",
			raw:     "prefix {\"code\": broken} suffix",
			snippet: "original",
			want: FixRecord{
				Code:        "original",
				Explanation: "Could not generate fix",
				References:  []string{},
				Confidence:  0.0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFix(tt.raw, tt.snippet)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSentinelFixMatchesSnippet(t *testing.T) {
	fix := SentinelFix("snippet")
	assert.Equal(t, "snippet", fix.Code)
	assert.Zero(t, fix.Confidence)
}
