package config

import (
	"fmt"
	"time"
)

// Config is the root dispatchd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	AWS       AWSConfig       `koanf:"aws"`
	Scanner   ScannerConfig   `koanf:"scanner"`
	LLM       LLMConfig       `koanf:"llm"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Patcher   PatcherConfig   `koanf:"patcher"`
	GitHub    GitHubConfig    `koanf:"github"`
	Invoker   InvokerConfig   `koanf:"invoker"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Port is the HTTP listen port (default: 8080)
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown (default: 10s)
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level: debug, info, warn, error (default: info)
	Level string `koanf:"level"`

	// Format: json or console (default: json)
	Format string `koanf:"format"`
}

// AWSConfig configures S3, Lambda and Secrets Manager access.
type AWSConfig struct {
	// Region is the AWS region (default: us-east-1)
	Region string `koanf:"region"`

	// Bucket stores scan documents and patch reports.
	Bucket string `koanf:"bucket"`

	// Endpoint overrides the AWS endpoint, mainly for localstack and tests.
	Endpoint string `koanf:"endpoint"`

	// ScannerFunction is the Lambda function name for the scanner stage.
	ScannerFunction string `koanf:"scanner_function"`

	// AnalyzerFunction is the Lambda function name for the analyzer stage.
	AnalyzerFunction string `koanf:"analyzer_function"`
}

// ScannerConfig configures the static-analysis stage.
type ScannerConfig struct {
	// SemgrepBinary is the semgrep executable (default: semgrep)
	SemgrepBinary string `koanf:"semgrep_binary"`

	// Rulesets passed to semgrep --config (default: [auto])
	Rulesets []string `koanf:"rulesets"`

	// WorkDir is where repositories are cloned (default: os.TempDir)
	WorkDir string `koanf:"work_dir"`
}

// LLMConfig configures the reasoning-service client.
type LLMConfig struct {
	// Provider: anthropic or openai (default: anthropic)
	Provider string `koanf:"provider"`

	// Model is the provider model identifier.
	Model string `koanf:"model"`

	// APIKey authenticates requests.
	APIKey Secret `koanf:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `koanf:"base_url"`

	// Timeout is the per-request timeout in seconds (default: 60)
	Timeout int `koanf:"timeout"`

	// MaxTokens caps completion length (default: 2000)
	MaxTokens int `koanf:"max_tokens"`

	// Temperature controls sampling (default: 0.1)
	Temperature float64 `koanf:"temperature"`
}

// KnowledgeConfig configures the security-standards knowledge store.
type KnowledgeConfig struct {
	// Path is the embedded vector store location
	// (default: ~/.config/dispatchd/knowledge)
	Path string `koanf:"path"`

	// Collection is the collection name (default: security_standards)
	Collection string `koanf:"collection"`

	// EmbeddingModel is the local embedding model
	// (default: BAAI/bge-small-en-v1.5)
	EmbeddingModel string `koanf:"embedding_model"`

	// CacheDir caches downloaded embedding model files.
	CacheDir string `koanf:"cache_dir"`
}

// PatcherConfig configures patch planning and application.
type PatcherConfig struct {
	// MaxPromptChars truncates the findings payload in planning prompts
	// (default: 8000)
	MaxPromptChars int `koanf:"max_prompt_chars"`

	// Push pushes the fix branch to the remote after committing.
	Push bool `koanf:"push"`

	// CreatePR opens a pull request after pushing. Requires github.token.
	CreatePR bool `koanf:"create_pr"`
}

// GitHubConfig configures repository access.
type GitHubConfig struct {
	// Token authenticates clones, pushes and PR creation.
	Token Secret `koanf:"token"`

	// TokenSecretID resolves the token from AWS Secrets Manager when Token
	// is unset.
	TokenSecretID string `koanf:"token_secret_id"`
}

// InvokerConfig selects how pipeline stages run.
type InvokerConfig struct {
	// Mode: local (in-process goroutines) or lambda (default: local)
	Mode string `koanf:"mode"`
}

// ApplyDefaults sets default values for missing configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}

	if c.Scanner.SemgrepBinary == "" {
		c.Scanner.SemgrepBinary = "semgrep"
	}
	if len(c.Scanner.Rulesets) == 0 {
		c.Scanner.Rulesets = []string{"auto"}
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}

	if c.Knowledge.Path == "" {
		c.Knowledge.Path = "~/.config/dispatchd/knowledge"
	}
	if c.Knowledge.Collection == "" {
		c.Knowledge.Collection = "security_standards"
	}
	if c.Knowledge.EmbeddingModel == "" {
		c.Knowledge.EmbeddingModel = "BAAI/bge-small-en-v1.5"
	}

	if c.Patcher.MaxPromptChars == 0 {
		c.Patcher.MaxPromptChars = 8000
	}

	if c.Invoker.Mode == "" {
		c.Invoker.Mode = "local"
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format invalid: %q", c.Logging.Format)
	}

	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider invalid: %q", c.LLM.Provider)
	}

	switch c.Invoker.Mode {
	case "local", "lambda":
	default:
		return fmt.Errorf("invoker.mode invalid: %q", c.Invoker.Mode)
	}
	if c.Invoker.Mode == "lambda" {
		if c.AWS.ScannerFunction == "" || c.AWS.AnalyzerFunction == "" {
			return fmt.Errorf("invoker.mode lambda requires aws.scanner_function and aws.analyzer_function")
		}
	}

	if c.Patcher.CreatePR && !c.GitHub.Token.IsSet() && c.GitHub.TokenSecretID == "" {
		return fmt.Errorf("patcher.create_pr requires github.token or github.token_secret_id")
	}

	return nil
}
