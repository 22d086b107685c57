package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name     string
		findings []Finding
		want     Stats
	}{
		{
			name: "empty document",
			want: Stats{},
		},
		{
			name: "one of each named severity",
			findings: []Finding{
				{ID: "finding_0", File: "a.go", Severity: SeverityHigh},
				{ID: "finding_1", File: "b.go", Severity: SeverityMedium},
				{ID: "finding_2", File: "c.go", Severity: SeverityLow},
			},
			want: Stats{
				TotalFilesScanned: 3,
				TotalFindings:     3,
				HighSeverity:      1,
				MediumSeverity:    1,
				LowSeverity:       1,
			},
		},
		{
			name: "unknown severity counts toward total only",
			findings: []Finding{
				{ID: "finding_0", File: "a.go", Severity: SeverityHigh},
				{ID: "finding_1", File: "a.go", Severity: SeverityUnknown},
			},
			want: Stats{
				TotalFilesScanned: 1,
				TotalFindings:     2,
				HighSeverity:      1,
			},
		},
		{
			name: "same file counted once",
			findings: []Finding{
				{ID: "finding_0", File: "a.go", Severity: SeverityLow},
				{ID: "finding_1", File: "a.go", Severity: SeverityLow},
			},
			want: Stats{
				TotalFilesScanned: 1,
				TotalFindings:     2,
				LowSeverity:       2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &Document{Findings: tt.findings}
			doc.ComputeStats()
			assert.Equal(t, tt.want, doc.Stats)
		})
	}
}

func TestComputeStatsNeverIncremented(t *testing.T) {
	doc := &Document{
		Findings: []Finding{{ID: "finding_0", File: "a.go", Severity: SeverityHigh}},
		// Stale carried-over values must be discarded, not added to.
		Stats: Stats{TotalFindings: 99, HighSeverity: 42},
	}
	doc.ComputeStats()
	assert.Equal(t, 1, doc.Stats.TotalFindings)
	assert.Equal(t, 1, doc.Stats.HighSeverity)
}

func TestComputeRemediationStats(t *testing.T) {
	doc := &Document{
		Findings: []Finding{
			{ID: "finding_0", File: "a.go", Severity: SeverityHigh},
			{ID: "finding_1", File: "b.go", Severity: SeverityMedium},
		},
		PatchPlan: []PatchPlanEntry{
			{FindingID: "finding_0", Severity: SeverityHigh},
		},
	}
	doc.ComputeRemediationStats()

	assert.Equal(t, 2, doc.Stats.TotalFindings)
	assert.Equal(t, 1, doc.Stats.TotalRemediations)
	assert.Equal(t, 1, doc.Stats.AutoFixable)
	// Severity buckets stay finding-derived even with a partial plan.
	assert.Equal(t, 1, doc.Stats.HighSeverity)
	assert.Equal(t, 1, doc.Stats.MediumSeverity)
}

func TestFindingIDs(t *testing.T) {
	doc := &Document{Findings: []Finding{{ID: "finding_0"}, {ID: "finding_1"}}}
	assert.Equal(t, []string{"finding_0", "finding_1"}, doc.FindingIDs())
}
