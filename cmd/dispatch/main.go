// Package main implements the dispatch CLI for one-shot pipeline runs
// against a local working copy, without the daemon or any remote trigger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/analyzer"
	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/config"
	"github.com/fyrsmithlabs/dispatchd/internal/knowledge"
	"github.com/fyrsmithlabs/dispatchd/internal/llm"
	"github.com/fyrsmithlabs/dispatchd/internal/logging"
	"github.com/fyrsmithlabs/dispatchd/internal/patcher"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
	"github.com/fyrsmithlabs/dispatchd/internal/scanner"
	"github.com/fyrsmithlabs/dispatchd/internal/semgrep"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "One-shot security scan pipeline runs against a local project",
	Long: `dispatch runs pipeline stages directly against a local working copy:
scan for findings, analyze their risk, plan fixes, or apply them.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(indexCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Run static analysis and print the scan document",
	Long: `Run semgrep against a local project and print the normalized scan
document as JSON.

Examples:
  dispatch scan .
  dispatch scan ~/src/billing-service`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>",
	Short: "Scan and produce a risk report",
	Long: `Run semgrep against a local project and ask the reasoning service
for a risk report: summary, risk profile and prioritized recommendations.

Examples:
  dispatch analyze .`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var planCmd = &cobra.Command{
	Use:   "plan <path>",
	Short: "Scan and print fix suggestions without touching files",
	Long: `Run semgrep against a local project and print the generated patch
suggestions as JSON. No files are modified.

Examples:
  dispatch plan .`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var applyCmd = &cobra.Command{
	Use:   "apply <path>",
	Short: "Scan, plan and apply fixes on a new branch",
	Long: `Run the full local pipeline: scan the project, generate fix
suggestions, and apply them on a fresh fix branch with a single commit.
The project must be a git repository.

Examples:
  dispatch apply .
  dispatch apply ~/src/billing-service`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Seed the knowledge base from a passages file",
	Long: `Load remediation passages from a JSON file and index them into the
knowledge base used by the analyzer. The file is a JSON array of
{"id", "content", "source"} entries; only content is required.

Examples:
  dispatch index security-standards.json`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

// runtime holds collaborators shared by the subcommands.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	runner semgrep.Runner
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	runner := semgrep.NewCLIRunner(semgrep.Config{
		Binary:   cfg.Scanner.SemgrepBinary,
		Rulesets: cfg.Scanner.Rulesets,
	}, logger)

	return &runtime{cfg: cfg, logger: logger, runner: runner}, nil
}

func (r *runtime) llmClient() (llm.Client, error) {
	return llm.New(llm.Config{
		Provider:    r.cfg.LLM.Provider,
		Model:       r.cfg.LLM.Model,
		APIKey:      r.cfg.LLM.APIKey.Value(),
		BaseURL:     r.cfg.LLM.BaseURL,
		Timeout:     r.cfg.LLM.Timeout,
		MaxTokens:   r.cfg.LLM.MaxTokens,
		Temperature: r.cfg.LLM.Temperature,
	})
}

func (r *runtime) retriever() (*knowledge.ChromemRetriever, error) {
	embedder, err := knowledge.NewFastEmbedProvider(knowledge.FastEmbedConfig{
		Model:    r.cfg.Knowledge.EmbeddingModel,
		CacheDir: r.cfg.Knowledge.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	return knowledge.NewChromemRetriever(knowledge.ChromemConfig{
		Path:       r.cfg.Knowledge.Path,
		Collection: r.cfg.Knowledge.Collection,
	}, embedder, r.logger)
}

func (r *runtime) scanPath(ctx context.Context, path string) (string, []semgrep.Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", nil, fmt.Errorf("project path: %w", err)
	}

	results, err := r.runner.Scan(ctx, abs)
	if err != nil {
		return "", nil, err
	}
	return abs, results, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer logging.Sync(rt.logger)

	abs, results, err := rt.scanPath(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("Scanner error: %w", err)
	}

	doc := scanner.Normalize(results, abs, scan.NewScanID())
	return printJSON(doc)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer logging.Sync(rt.logger)

	_, results, err := rt.scanPath(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("Scanner error: %w", err)
	}

	client, err := rt.llmClient()
	if err != nil {
		return err
	}

	report, err := analyzer.Triage(cmd.Context(), client, results)
	if err != nil {
		return fmt.Errorf("Analyzer error: %w", err)
	}
	return printJSON(report)
}

func runPlan(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer logging.Sync(rt.logger)

	_, results, err := rt.scanPath(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("Scanner error: %w", err)
	}

	client, err := rt.llmClient()
	if err != nil {
		return err
	}

	planner := patcher.NewPlanner(client, rt.cfg.Patcher.MaxPromptChars, rt.logger)
	return printJSON(planner.Plan(cmd.Context(), results))
}

func runApply(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer logging.Sync(rt.logger)

	abs, results, err := rt.scanPath(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("Scanner error: %w", err)
	}
	if len(results) == 0 {
		fmt.Println(`{"status": "clean", "details": "no findings to patch"}`)
		return nil
	}

	client, err := rt.llmClient()
	if err != nil {
		return err
	}

	planner := patcher.NewPlanner(client, rt.cfg.Patcher.MaxPromptChars, rt.logger)
	suggestions := planner.Plan(cmd.Context(), results)

	store, err := reportStore(rt)
	if err != nil {
		return err
	}

	applier := patcher.NewApplier(nil, store, patcher.ApplierConfig{Push: rt.cfg.Patcher.Push}, rt.logger)
	result, err := applier.Apply(cmd.Context(), abs, suggestions, rt.cfg.GitHub.Token.Value())
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runIndex(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer logging.Sync(rt.logger)

	docs, err := knowledge.LoadSeedFile(args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("seed file %s contains no passages", args[0])
	}

	retriever, err := rt.retriever()
	if err != nil {
		return err
	}
	if err := retriever.Index(cmd.Context(), docs); err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"status":     "indexed",
		"passages":   len(docs),
		"collection": rt.cfg.Knowledge.Collection,
	})
}

// reportStore returns an S3-backed store for patch reports when a bucket is
// configured, nil otherwise (report upload is skipped).
func reportStore(rt *runtime) (blobstore.Store, error) {
	if rt.cfg.AWS.Bucket == "" {
		return nil, nil
	}
	store, err := blobstore.NewS3Store(blobstore.S3Config{
		Region: rt.cfg.AWS.Region,
		Bucket: rt.cfg.AWS.Bucket,
	}, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("creating s3 store: %w", err)
	}
	return store, nil
}
