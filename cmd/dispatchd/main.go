// Dispatchd is the security-scan pipeline daemon.
//
// It exposes the scan HTTP API: trigger scans, poll results, record finding
// verdicts and apply patches. Pipeline stages run either in-process or as
// AWS Lambda functions, selected by invoker.mode.
//
// Usage:
//
//	# Start with defaults (in-process stages, in-memory storage)
//	dispatchd
//
//	# Configure via file and environment
//	dispatchd -config ~/.config/dispatchd/config.yaml
//	DISPATCHD_SERVER_PORT=9090 dispatchd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/analyzer"
	"github.com/fyrsmithlabs/dispatchd/internal/approval"
	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/config"
	"github.com/fyrsmithlabs/dispatchd/internal/github"
	"github.com/fyrsmithlabs/dispatchd/internal/gitrepo"
	"github.com/fyrsmithlabs/dispatchd/internal/httpapi"
	"github.com/fyrsmithlabs/dispatchd/internal/invoker"
	"github.com/fyrsmithlabs/dispatchd/internal/knowledge"
	"github.com/fyrsmithlabs/dispatchd/internal/llm"
	"github.com/fyrsmithlabs/dispatchd/internal/logging"
	"github.com/fyrsmithlabs/dispatchd/internal/patcher"
	"github.com/fyrsmithlabs/dispatchd/internal/scanner"
	"github.com/fyrsmithlabs/dispatchd/internal/secrets"
	"github.com/fyrsmithlabs/dispatchd/internal/semgrep"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dispatchd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run wires the pipeline and blocks until context cancellation.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting dispatchd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("invoker_mode", cfg.Invoker.Mode))

	store, err := initStore(cfg, logger)
	if err != nil {
		return err
	}

	tokens, err := github.ResolveTokenSource(cfg.GitHub, cfg.AWS)
	if err != nil {
		return fmt.Errorf("resolving github token source: %w", err)
	}

	clone := func(ctx context.Context, repoURL, branch, targetDir, token string) error {
		return gitrepo.Clone(ctx, repoURL, branch, targetDir, token, logger)
	}

	inv, localInv, err := initInvoker(cfg, store, tokens, scanner.CloneFunc(clone), logger)
	if err != nil {
		return err
	}

	deployer, err := initDeployer(ctx, cfg, store, tokens, patcher.CloneFunc(clone), logger)
	if err != nil {
		return err
	}

	gate := approval.NewGate(store, logger)

	srv, err := httpapi.NewServer(store, inv, gate, deployer, logger, &httpapi.Config{Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if localInv != nil {
		localInv.Wait()
	}
	return nil
}

// initStore picks S3 when a bucket is configured, otherwise an in-memory
// store suitable for local development only.
func initStore(cfg *config.Config, logger *zap.Logger) (blobstore.Store, error) {
	if cfg.AWS.Bucket != "" {
		store, err := blobstore.NewS3Store(blobstore.S3Config{
			Region: cfg.AWS.Region,
			Bucket: cfg.AWS.Bucket,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating s3 store: %w", err)
		}
		logger.Info("using s3 storage", zap.String("bucket", cfg.AWS.Bucket))
		return store, nil
	}

	logger.Warn("aws.bucket not configured, scan results are held in memory")
	return blobstore.NewMemoryStore(), nil
}

// initInvoker builds the stage invoker. Local mode also returns the concrete
// invoker so the caller can wait out in-flight stages on shutdown.
func initInvoker(cfg *config.Config, store blobstore.Store, tokens github.TokenSource, clone scanner.CloneFunc, logger *zap.Logger) (invoker.Invoker, *invoker.LocalInvoker, error) {
	if cfg.Invoker.Mode == "lambda" {
		inv, err := invoker.NewLambdaInvoker(cfg.AWS.Region, cfg.AWS.Endpoint, cfg.AWS.ScannerFunction, cfg.AWS.AnalyzerFunction, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating lambda invoker: %w", err)
		}
		return inv, nil, nil
	}

	runner := semgrep.NewCLIRunner(semgrep.Config{
		Binary:   cfg.Scanner.SemgrepBinary,
		Rulesets: cfg.Scanner.Rulesets,
	}, logger)
	scanStage := scanner.NewStage(store, runner, clone, tokens, scanner.Config{WorkDir: cfg.Scanner.WorkDir}, logger)

	analyzeStage, err := initAnalyzer(cfg, store, logger)
	if err != nil {
		return nil, nil, err
	}

	inv := invoker.NewLocalInvoker(scanStage, analyzeStage, 0, logger)
	return inv, inv, nil
}

func initAnalyzer(cfg *config.Config, store blobstore.Store, logger *zap.Logger) (*analyzer.Stage, error) {
	client, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey.Value(),
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	embedder, err := knowledge.NewFastEmbedProvider(knowledge.FastEmbedConfig{
		Model:    cfg.Knowledge.EmbeddingModel,
		CacheDir: cfg.Knowledge.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	retriever, err := knowledge.NewChromemRetriever(knowledge.ChromemConfig{
		Path:       cfg.Knowledge.Path,
		Collection: cfg.Knowledge.Collection,
	}, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge store: %w", err)
	}

	scrubber, err := secrets.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}

	return analyzer.NewStage(store, retriever, client, scrubber, logger), nil
}

func initDeployer(ctx context.Context, cfg *config.Config, store blobstore.Store, tokens github.TokenSource, clone patcher.CloneFunc, logger *zap.Logger) (*patcher.Deployer, error) {
	applier := patcher.NewApplier(nil, store, patcher.ApplierConfig{Push: cfg.Patcher.Push}, logger)

	var pr github.PullRequestCreator
	if cfg.Patcher.CreatePR && tokens != nil {
		client, err := github.NewClient(ctx, tokens, logger)
		if err != nil {
			return nil, fmt.Errorf("creating github client: %w", err)
		}
		pr = client
	}

	return patcher.NewDeployer(store, clone, applier, tokens, pr, patcher.DeployerConfig{
		WorkDir:  cfg.Scanner.WorkDir,
		CreatePR: cfg.Patcher.CreatePR,
	}, logger), nil
}
