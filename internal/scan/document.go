// Package scan defines the scan document model shared by every pipeline stage.
//
// A Document is the aggregate record for one pipeline run, identified by its
// scan ID. The scanner stage creates it, the analyzer stage enriches it in
// place, the approval gate toggles per-finding flags, and the patch applier
// consumes it. Every stage rewrites the whole document; there is no partial
// update.
package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity is the normalized severity of a finding.
type Severity string

const (
	SeverityHigh    Severity = "high"
	SeverityMedium  Severity = "medium"
	SeverityLow     Severity = "low"
	SeverityUnknown Severity = "unknown"
)

// Stage identifies which pipeline stage last wrote a document.
type Stage string

const (
	StageScanner  Stage = "scanner"
	StageAnalyzer Stage = "analyzer"
	StageDeployer Stage = "deployer"
)

// Status is the coarse pipeline phase, parallel to Stage.
type Status string

const (
	StatusScanned  Status = "scanned"
	StatusAnalyzed Status = "analyzed"
	StatusPatched  Status = "patched"
)

// ApprovalState is the derived three-state approval of a finding.
//
// The stored schema keeps independent approved/rejected booleans for
// compatibility, but approve and reject are mutually exclusive here:
// approving clears a prior rejection and vice versa.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Sentinel placeholders used by the scanner stage for fields the analyzer
// fills in later.
const (
	PendingAnalysis = "Pending AI-driven analysis."
	PendingFix      = "Pending recommendation."
)

// Finding is one normalized static-analysis result.
//
// ID, File and Line are immutable once assigned by the scanner stage; the
// analyzer only fills in the LLM fields.
type Finding struct {
	ID             string   `json:"id"`
	Severity       Severity `json:"severity"`
	Type           string   `json:"type"`
	File           string   `json:"file"`
	Line           int      `json:"line"`
	EndLine        int      `json:"end_line,omitempty"`
	Description    string   `json:"description"`
	CodeSnippet    string   `json:"code_snippet"`
	LLMAnalysis    string   `json:"llm_analysis"`
	RecommendedFix string   `json:"recommended_fix"`
	Confidence     float64  `json:"confidence"`
	Approved       *bool    `json:"approved,omitempty"`
	Rejected       *bool    `json:"rejected,omitempty"`
}

// Approval returns the derived three-state approval of the finding.
func (f *Finding) Approval() ApprovalState {
	switch {
	case f.Rejected != nil && *f.Rejected:
		return ApprovalRejected
	case f.Approved != nil && *f.Approved:
		return ApprovalApproved
	default:
		return ApprovalPending
	}
}

// Approve marks the finding approved, clearing any prior rejection.
func (f *Finding) Approve() {
	t, fl := true, false
	f.Approved = &t
	f.Rejected = &fl
}

// Reject marks the finding rejected.
func (f *Finding) Reject() {
	t, fl := true, false
	f.Approved = &fl
	f.Rejected = &t
}

// PatchPlanEntry is one proposed remediation derived from a finding.
type PatchPlanEntry struct {
	FindingID     string   `json:"finding_id"`
	File          string   `json:"file"`
	Line          int      `json:"line"`
	EndLine       int      `json:"end_line"`
	Vulnerability string   `json:"vulnerability"`
	Severity      Severity `json:"severity"`
	OriginalCode  string   `json:"original_code"`
	FixedCode     string   `json:"fixed_code"`
	Explanation   string   `json:"explanation"`
	References    []string `json:"references"`
	Confidence    float64  `json:"confidence"`
}

// DependencyVulnerabilities is a reserved structure, always present and
// populated as empty by the scanner stage. No dependency scanner exists yet.
type DependencyVulnerabilities struct {
	TotalVulnerabilities int           `json:"total_vulnerabilities"`
	Vulnerabilities      []interface{} `json:"vulnerabilities"`
}

// Analysis is the one-line human summary plus the ids of the findings
// considered.
type Analysis struct {
	Summary  string   `json:"summary"`
	Findings []string `json:"findings"`
}

// Stats holds aggregate counters, recomputed from the current findings and
// patch plan on every stage write. They are never incremented in place.
type Stats struct {
	TotalFilesScanned int `json:"total_files_scanned"`
	TotalFindings     int `json:"total_findings"`
	HighSeverity      int `json:"high_severity"`
	MediumSeverity    int `json:"medium_severity"`
	LowSeverity       int `json:"low_severity"`
	AutoFixable       int `json:"auto_fixable"`
	TotalRemediations int `json:"total_remediations,omitempty"`
}

// Document is the aggregate scan record, persisted as a single JSON blob.
type Document struct {
	ScanID                    string                    `json:"scan_id"`
	Timestamp                 string                    `json:"timestamp"`
	RepoURL                   string                    `json:"repo_url"`
	Findings                  []Finding                 `json:"findings"`
	PatchPlan                 []PatchPlanEntry          `json:"patch_plan"`
	DependencyVulnerabilities DependencyVulnerabilities `json:"dependency_vulnerabilities"`
	Analysis                  Analysis                  `json:"analysis"`
	Stats                     Stats                     `json:"stats"`
	Stage                     Stage                     `json:"stage"`
	Status                    Status                    `json:"status"`
}

// NewScanID generates a fresh scan identifier of the form scan_{12 hex}.
func NewScanID() string {
	return "scan_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Key derives the blob-store key for a scan ID. The whole document lives at
// this single key.
func Key(scanID string) string {
	return fmt.Sprintf("scan-results/%s/result.json", scanID)
}

// Touch stamps the document with the current time and the writing stage.
func (d *Document) Touch(stage Stage, status Status) {
	d.Timestamp = time.Now().UTC().Format(time.RFC3339)
	d.Stage = stage
	d.Status = status
}

// FindingByID returns the finding with the given id, or nil if absent.
func (d *Document) FindingByID(id string) *Finding {
	for i := range d.Findings {
		if d.Findings[i].ID == id {
			return &d.Findings[i]
		}
	}
	return nil
}

// Validate checks the document's structural invariants: stats consistency and
// that every patch-plan entry references an existing finding.
func (d *Document) Validate() error {
	if d.Stats.TotalFindings != len(d.Findings) {
		return fmt.Errorf("stats.total_findings is %d, have %d findings", d.Stats.TotalFindings, len(d.Findings))
	}
	for _, e := range d.PatchPlan {
		if d.FindingByID(e.FindingID) == nil {
			return fmt.Errorf("patch plan entry references unknown finding %q", e.FindingID)
		}
	}
	return nil
}
