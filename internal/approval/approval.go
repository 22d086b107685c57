// Package approval implements the human-in-the-loop gate over scan findings.
package approval

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
)

// Gate loads a scan document, toggles one finding's approval state, and
// persists the document as a full overwrite.
type Gate struct {
	store  blobstore.Store
	logger *zap.Logger
}

// NewGate creates the approval gate.
func NewGate(store blobstore.Store, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, logger: logger}
}

// Approve marks the finding approved, clearing any prior rejection.
func (g *Gate) Approve(ctx context.Context, scanID, findingID string) error {
	return g.update(ctx, scanID, findingID, (*scan.Finding).Approve)
}

// Reject marks the finding rejected.
func (g *Gate) Reject(ctx context.Context, scanID, findingID string) error {
	return g.update(ctx, scanID, findingID, (*scan.Finding).Reject)
}

// update applies mutate to the named finding. An unknown scan_id is an error
// wrapping blobstore.ErrNotFound; an unknown finding_id is a silent no-op and
// the document is written back unchanged.
func (g *Gate) update(ctx context.Context, scanID, findingID string, mutate func(*scan.Finding)) error {
	key := scan.Key(scanID)
	data, err := g.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("loading scan %s: %w", scanID, err)
	}

	var doc scan.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding scan %s: %w", scanID, err)
	}

	if f := doc.FindingByID(findingID); f != nil {
		mutate(f)
		g.logger.Info("finding approval updated",
			zap.String("scan_id", scanID),
			zap.String("finding_id", findingID),
			zap.String("state", string(f.Approval())))
	} else {
		g.logger.Warn("finding not found, persisting document unchanged",
			zap.String("scan_id", scanID),
			zap.String("finding_id", findingID))
	}

	out, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding scan %s: %w", scanID, err)
	}
	if err := g.store.Put(ctx, key, out, "application/json"); err != nil {
		return fmt.Errorf("persisting scan %s: %w", scanID, err)
	}
	return nil
}
