package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterPassages(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   []float64
	}{
		{
			name:   "cutoff is strictly greater than 0.5",
			scores: []float64{0.9, 0.6, 0.5, 0.4, 0.3},
			want:   []float64{0.9, 0.6},
		},
		{
			name:   "all below cutoff",
			scores: []float64{0.5, 0.1},
			want:   []float64{},
		},
		{
			name:   "unordered input sorted descending",
			scores: []float64{0.6, 0.95, 0.7},
			want:   []float64{0.95, 0.7, 0.6},
		},
		{
			name:   "capped at MaxResults",
			scores: []float64{0.99, 0.98, 0.97, 0.96, 0.95, 0.94, 0.93},
			want:   []float64{0.99, 0.98, 0.97, 0.96, 0.95},
		},
		{
			name:   "empty input",
			scores: nil,
			want:   []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passages := make([]Passage, len(tt.scores))
			for i, s := range tt.scores {
				passages[i] = Passage{Text: "p", Score: s}
			}

			got := FilterPassages(passages)
			gotScores := make([]float64, len(got))
			for i, p := range got {
				gotScores[i] = p.Score
			}
			assert.Equal(t, tt.want, gotScores)
		})
	}
}

func TestQuery(t *testing.T) {
	q := Query("sql-injection", "string concatenation in query")
	assert.Contains(t, q, "Security vulnerability: sql-injection")
	assert.Contains(t, q, "Description: string concatenation in query")
	assert.Contains(t, q, "remediation guidance")
}

func TestChromemConfigApplyDefaults(t *testing.T) {
	var cfg ChromemConfig
	cfg.ApplyDefaults()
	assert.Equal(t, "~/.config/dispatchd/knowledge", cfg.Path)
	assert.Equal(t, "security_standards", cfg.Collection)
}
