package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
	"github.com/fyrsmithlabs/dispatchd/internal/semgrep"
)

type mockRunner struct {
	results []semgrep.Result
	err     error
}

func (m *mockRunner) Scan(ctx context.Context, path string) ([]semgrep.Result, error) {
	return m.results, m.err
}

func okClone(ctx context.Context, repoURL, branch, targetDir, token string) error {
	return nil
}

func rawResult(checkID, path, severity, message string, line int) semgrep.Result {
	var r semgrep.Result
	r.CheckID = checkID
	r.Path = path
	r.Start.Line = line
	r.Extra.Severity = severity
	r.Extra.Message = message
	r.Extra.Lines = "snippet"
	return r
}

func TestRunRequiresRepoURL(t *testing.T) {
	stage := NewStage(blobstore.NewMemoryStore(), &mockRunner{}, okClone, nil, Config{}, nil)
	_, err := stage.Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrRepoURLRequired)
}

func TestRunCloneFailureIsFatal(t *testing.T) {
	store := blobstore.NewMemoryStore()
	failClone := func(ctx context.Context, repoURL, branch, targetDir, token string) error {
		return errors.New("branch not found")
	}
	stage := NewStage(store, &mockRunner{}, failClone, nil, Config{WorkDir: t.TempDir()}, nil)

	_, err := stage.Run(context.Background(), Request{RepoURL: "https://github.com/acme/widgets", ScanID: "scan_abc"})
	require.Error(t, err)

	// No document written on fatal failure.
	_, err = store.Get(context.Background(), scan.Key("scan_abc"))
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestRunEndToEndStats(t *testing.T) {
	runner := &mockRunner{results: []semgrep.Result{
		rawResult("go.lang.security.sql-injection", "db/query.go", "ERROR", "string concat in query", 10),
		rawResult("go.lang.security.weak-hash", "auth/hash.go", "WARNING", "md5 in use", 20),
		rawResult("go.lang.correctness.todo", "main.go", "INFO", "stray todo", 3),
	}}
	store := blobstore.NewMemoryStore()
	stage := NewStage(store, runner, okClone, nil, Config{WorkDir: t.TempDir()}, nil)

	result, err := stage.Run(context.Background(), Request{
		RepoURL: "https://github.com/acme/widgets",
		Branch:  "main",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.FindingsCount)
	assert.Equal(t, scan.Key(result.ScanID), result.Location)

	data, err := store.Get(context.Background(), result.Location)
	require.NoError(t, err)

	var doc scan.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NoError(t, doc.Validate())

	assert.Equal(t, scan.StageScanner, doc.Stage)
	assert.Equal(t, scan.StatusScanned, doc.Status)
	assert.Equal(t, 3, doc.Stats.TotalFindings)
	assert.Equal(t, 1, doc.Stats.HighSeverity)
	assert.Equal(t, 1, doc.Stats.MediumSeverity)
	assert.Equal(t, 1, doc.Stats.LowSeverity)
	assert.Empty(t, doc.PatchPlan)
	assert.Equal(t, 0, doc.Stats.AutoFixable)
	assert.Equal(t, "Initial scan complete. Awaiting LLM analysis.", doc.Analysis.Summary)
}

func TestRunGeneratesScanID(t *testing.T) {
	stage := NewStage(blobstore.NewMemoryStore(), &mockRunner{}, okClone, nil, Config{WorkDir: t.TempDir()}, nil)
	result, err := stage.Run(context.Background(), Request{RepoURL: "https://github.com/acme/widgets"})
	require.NoError(t, err)
	assert.Regexp(t, `^scan_[0-9a-f]{12}$`, result.ScanID)
}

func TestNormalizeIdempotentIDs(t *testing.T) {
	results := []semgrep.Result{
		rawResult("check-a", "a.go", "ERROR", "m1", 1),
		rawResult("check-b", "b.go", "WARNING", "m2", 2),
	}

	first := Normalize(results, "https://github.com/acme/widgets", "scan_fixed")
	second := Normalize(results, "https://github.com/acme/widgets", "scan_fixed")

	require.Len(t, first.Findings, 2)
	for i := range first.Findings {
		assert.Equal(t, first.Findings[i].ID, second.Findings[i].ID)
	}
	assert.Equal(t, "finding_0", first.Findings[0].ID)
	assert.Equal(t, "finding_1", first.Findings[1].ID)
}

func TestNormalizeFieldMapping(t *testing.T) {
	r := rawResult("", "pkg/x.go", "bogus", "desc", 7)
	r.End.Line = 0

	doc := Normalize([]semgrep.Result{r}, "https://github.com/acme/widgets", "scan_x")
	require.Len(t, doc.Findings, 1)
	f := doc.Findings[0]

	assert.Equal(t, scan.SeverityUnknown, f.Severity)
	assert.Equal(t, "Unknown", f.Type)
	assert.Equal(t, 7, f.Line)
	assert.Equal(t, 7, f.EndLine, "end line defaults to start line")
	assert.Equal(t, scan.PendingAnalysis, f.LLMAnalysis)
	assert.Equal(t, scan.PendingFix, f.RecommendedFix)
	assert.Equal(t, InitialConfidence, f.Confidence)

	// Unknown severity counts toward totals but no bucket.
	assert.Equal(t, 1, doc.Stats.TotalFindings)
	assert.Equal(t, 0, doc.Stats.HighSeverity+doc.Stats.MediumSeverity+doc.Stats.LowSeverity)
}

func TestRunSemgrepFailureIsFatal(t *testing.T) {
	store := blobstore.NewMemoryStore()
	runner := &mockRunner{err: errors.New("semgrep exploded")}
	stage := NewStage(store, runner, okClone, nil, Config{WorkDir: t.TempDir()}, nil)

	_, err := stage.Run(context.Background(), Request{RepoURL: "https://github.com/acme/widgets", ScanID: "scan_bad"})
	require.Error(t, err)
	_, err = store.Get(context.Background(), scan.Key("scan_bad"))
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
