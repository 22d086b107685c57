package approval

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
)

func seedDocument(t *testing.T, store blobstore.Store) *scan.Document {
	t.Helper()

	doc := &scan.Document{
		ScanID: "scan_test",
		Findings: []scan.Finding{
			{ID: "finding_0", Severity: scan.SeverityHigh, File: "a.go"},
			{ID: "finding_1", Severity: scan.SeverityLow, File: "b.go"},
		},
		PatchPlan: []scan.PatchPlanEntry{},
	}
	doc.ComputeStats()

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), scan.Key(doc.ScanID), data, "application/json"))
	return doc
}

func loadDocument(t *testing.T, store blobstore.Store) *scan.Document {
	t.Helper()
	data, err := store.Get(context.Background(), scan.Key("scan_test"))
	require.NoError(t, err)
	var doc scan.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	return &doc
}

func TestApproveUnknownScanID(t *testing.T) {
	gate := NewGate(blobstore.NewMemoryStore(), nil)
	err := gate.Approve(context.Background(), "scan_missing", "finding_0")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestApprove(t *testing.T) {
	store := blobstore.NewMemoryStore()
	seedDocument(t, store)
	gate := NewGate(store, nil)

	require.NoError(t, gate.Approve(context.Background(), "scan_test", "finding_0"))

	doc := loadDocument(t, store)
	assert.Equal(t, scan.ApprovalApproved, doc.FindingByID("finding_0").Approval())
	assert.Equal(t, scan.ApprovalPending, doc.FindingByID("finding_1").Approval())
}

func TestReject(t *testing.T) {
	store := blobstore.NewMemoryStore()
	seedDocument(t, store)
	gate := NewGate(store, nil)

	require.NoError(t, gate.Reject(context.Background(), "scan_test", "finding_1"))

	doc := loadDocument(t, store)
	assert.Equal(t, scan.ApprovalRejected, doc.FindingByID("finding_1").Approval())
}

func TestApproveThenRejectIsAuthoritative(t *testing.T) {
	store := blobstore.NewMemoryStore()
	seedDocument(t, store)
	gate := NewGate(store, nil)
	ctx := context.Background()

	require.NoError(t, gate.Approve(ctx, "scan_test", "finding_0"))
	require.NoError(t, gate.Reject(ctx, "scan_test", "finding_0"))
	assert.Equal(t, scan.ApprovalRejected, loadDocument(t, store).FindingByID("finding_0").Approval())

	// And the other way: approval clears the rejection.
	require.NoError(t, gate.Approve(ctx, "scan_test", "finding_0"))
	doc := loadDocument(t, store)
	f := doc.FindingByID("finding_0")
	assert.Equal(t, scan.ApprovalApproved, f.Approval())
	require.NotNil(t, f.Rejected)
	assert.False(t, *f.Rejected)
}

func TestUnknownFindingIsSilentNoOp(t *testing.T) {
	store := blobstore.NewMemoryStore()
	original := seedDocument(t, store)
	gate := NewGate(store, nil)

	require.NoError(t, gate.Approve(context.Background(), "scan_test", "finding_99"))

	doc := loadDocument(t, store)
	assert.Len(t, doc.Findings, len(original.Findings))
	for _, f := range doc.Findings {
		assert.Equal(t, scan.ApprovalPending, f.Approval())
	}
}
