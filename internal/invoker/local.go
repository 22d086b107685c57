package invoker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/analyzer"
	"github.com/fyrsmithlabs/dispatchd/internal/scanner"
)

// defaultStageTimeout bounds one detached stage run.
const defaultStageTimeout = 15 * time.Minute

// LocalInvoker runs stages as in-process goroutines. InvokeScanner chains the
// analyzer after a successful scan, mirroring the deployed pipeline.
type LocalInvoker struct {
	scanner  ScannerStage
	analyzer AnalyzerStage
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewLocalInvoker creates an in-process invoker. timeout 0 means 15 minutes.
func NewLocalInvoker(scannerStage ScannerStage, analyzerStage AnalyzerStage, timeout time.Duration, logger *zap.Logger) *LocalInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout == 0 {
		timeout = defaultStageTimeout
	}
	return &LocalInvoker{
		scanner:  scannerStage,
		analyzer: analyzerStage,
		timeout:  timeout,
		logger:   logger,
	}
}

// InvokeScanner starts a scan in the background. The scan runs detached from
// the caller's context; completion is observable through the stored document.
func (l *LocalInvoker) InvokeScanner(_ context.Context, req scanner.Request) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		start := time.Now()
		result, err := l.scanner.Run(ctx, req)
		recordStageRun("scanner", time.Since(start).Seconds(), err)
		if err != nil {
			Invocations.WithLabelValues("scanner", "local", "error").Inc()
			l.logger.Error("scanner stage failed",
				zap.String("repo_url", req.RepoURL),
				zap.Error(err))
			return
		}
		Invocations.WithLabelValues("scanner", "local", "success").Inc()

		start = time.Now()
		_, err = l.analyzer.Run(ctx, analyzer.Request{ScanID: result.ScanID})
		recordStageRun("analyzer", time.Since(start).Seconds(), err)
		if err != nil {
			l.logger.Error("analyzer stage failed",
				zap.String("scan_id", result.ScanID),
				zap.Error(err))
		}
	}()
	return nil
}

// InvokeAnalyzer starts an analysis in the background.
func (l *LocalInvoker) InvokeAnalyzer(_ context.Context, req analyzer.Request) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		start := time.Now()
		_, err := l.analyzer.Run(ctx, req)
		recordStageRun("analyzer", time.Since(start).Seconds(), err)
		if err != nil {
			Invocations.WithLabelValues("analyzer", "local", "error").Inc()
			l.logger.Error("analyzer stage failed",
				zap.String("scan_id", req.ScanID),
				zap.Error(err))
			return
		}
		Invocations.WithLabelValues("analyzer", "local", "success").Inc()
	}()
	return nil
}

// Wait blocks until all in-flight stage runs finish. Used for graceful
// shutdown and tests.
func (l *LocalInvoker) Wait() {
	l.wg.Wait()
}

var _ Invoker = (*LocalInvoker)(nil)
