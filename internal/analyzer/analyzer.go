// Package analyzer implements the enrichment stage: per-finding knowledge
// retrieval, fix generation, and patch-plan assembly.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/knowledge"
	"github.com/fyrsmithlabs/dispatchd/internal/llm"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
	"github.com/fyrsmithlabs/dispatchd/internal/secrets"
)

// Request is the analyzer stage input.
type Request struct {
	ScanID string `json:"scan_id"`
}

// Result is the analyzer stage output.
type Result struct {
	ScanID            string `json:"scan_id"`
	RemediationsCount int    `json:"remediations_count"`
	Location          string `json:"location"`
}

// Stage enriches findings one at a time. A single finding's failure is
// contained: the finding is carried over unmodified and the loop continues.
type Stage struct {
	store     blobstore.Store
	retriever knowledge.Retriever
	client    llm.Client
	scrubber  secrets.Scrubber
	logger    *zap.Logger
}

// NewStage creates the analyzer stage. scrubber may be nil to disable
// snippet scrubbing.
func NewStage(store blobstore.Store, retriever knowledge.Retriever, client llm.Client, scrubber secrets.Scrubber, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scrubber == nil {
		scrubber = &secrets.NoopScrubber{}
	}
	return &Stage{
		store:     store,
		retriever: retriever,
		client:    client,
		scrubber:  scrubber,
		logger:    logger,
	}
}

// Run loads the scan document, enriches every finding, recomputes stats and
// persists the document as a full overwrite. A missing scan_id is fatal; the
// error wraps blobstore.ErrNotFound.
func (s *Stage) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ScanID == "" {
		return nil, fmt.Errorf("scan_id is required")
	}

	key := scan.Key(req.ScanID)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading scan %s: %w", req.ScanID, err)
	}

	var doc scan.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding scan %s: %w", req.ScanID, err)
	}

	logger := s.logger.With(zap.String("scan_id", req.ScanID))
	logger.Info("analyzing findings", zap.Int("count", len(doc.Findings)))

	for i := range doc.Findings {
		f := &doc.Findings[i]
		entry, err := s.enrich(ctx, f)
		if err != nil {
			logger.Warn("finding enrichment failed, carrying finding over unmodified",
				zap.String("finding_id", f.ID),
				zap.Error(err))
			continue
		}
		doc.PatchPlan = append(doc.PatchPlan, *entry)
	}

	doc.Analysis = scan.Analysis{
		Summary:  fmt.Sprintf("Automated analysis complete for %d findings.", len(doc.Findings)),
		Findings: doc.FindingIDs(),
	}
	doc.ComputeRemediationStats()
	doc.Touch(scan.StageAnalyzer, scan.StatusAnalyzed)

	out, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding scan document: %w", err)
	}
	if err := s.store.Put(ctx, key, out, "application/json"); err != nil {
		return nil, fmt.Errorf("persisting scan document: %w", err)
	}

	logger.Info("analysis complete", zap.Int("remediations", len(doc.PatchPlan)))

	return &Result{
		ScanID:            req.ScanID,
		RemediationsCount: len(doc.PatchPlan),
		Location:          key,
	}, nil
}

// enrich retrieves knowledge, generates a fix, merges it into the finding and
// builds the corresponding patch-plan entry. Retrieval and generation errors
// abort only this finding.
func (s *Stage) enrich(ctx context.Context, f *scan.Finding) (*scan.PatchPlanEntry, error) {
	passages, err := s.retriever.Retrieve(ctx, knowledge.Query(f.Type, f.Description), knowledge.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("knowledge retrieval: %w", err)
	}
	passages = knowledge.FilterPassages(passages)

	snippet := s.scrubber.Scrub(f.CodeSnippet).Scrubbed

	raw, err := s.client.Complete(ctx, BuildFixPrompt(f, snippet, passages))
	if err != nil {
		return nil, fmt.Errorf("fix generation: %w", err)
	}

	// Parse failures never abort: ParseFix degrades to a zero-confidence
	// sentinel whose code is the original snippet.
	fix := llm.ParseFix(raw, f.CodeSnippet)

	f.LLMAnalysis = fix.Explanation
	if f.LLMAnalysis == "" {
		f.LLMAnalysis = "No analysis generated."
	}
	f.RecommendedFix = fix.Code
	f.Confidence = fix.Confidence

	endLine := f.EndLine
	if endLine == 0 {
		endLine = f.Line
	}

	return &scan.PatchPlanEntry{
		FindingID:     f.ID,
		File:          f.File,
		Line:          f.Line,
		EndLine:       endLine,
		Vulnerability: f.Type,
		Severity:      f.Severity,
		OriginalCode:  f.CodeSnippet,
		FixedCode:     fix.Code,
		Explanation:   fix.Explanation,
		References:    fix.References,
		Confidence:    fix.Confidence,
	}, nil
}
