// Package invoker triggers pipeline stages asynchronously: through AWS
// Lambda in deployed environments, or in-process goroutines locally.
package invoker

import (
	"context"

	"github.com/fyrsmithlabs/dispatchd/internal/analyzer"
	"github.com/fyrsmithlabs/dispatchd/internal/scanner"
)

// Invoker fires a stage and returns without waiting for completion. Callers
// poll the scan document for progress.
type Invoker interface {
	InvokeScanner(ctx context.Context, req scanner.Request) error
	InvokeAnalyzer(ctx context.Context, req analyzer.Request) error
}

// ScannerStage runs the scanner synchronously.
type ScannerStage interface {
	Run(ctx context.Context, req scanner.Request) (*scanner.Result, error)
}

// AnalyzerStage runs the analyzer synchronously.
type AnalyzerStage interface {
	Run(ctx context.Context, req analyzer.Request) (*analyzer.Result, error)
}
