package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "semgrep", cfg.Scanner.SemgrepBinary)
	assert.Equal(t, []string{"auto"}, cfg.Scanner.Rulesets)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 60, cfg.LLM.Timeout)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
	assert.Equal(t, 0.1, cfg.LLM.Temperature)
	assert.Equal(t, "security_standards", cfg.Knowledge.Collection)
	assert.Equal(t, 8000, cfg.Patcher.MaxPromptChars)
	assert.Equal(t, "local", cfg.Invoker.Mode)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Server:  ServerConfig{Port: 9000},
		Logging: LoggingConfig{Level: "debug"},
		LLM:     LLMConfig{Provider: "openai", MaxTokens: 500},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var cfg Config
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad llm provider",
			mutate:  func(c *Config) { c.LLM.Provider = "bedrock" },
			wantErr: "llm.provider",
		},
		{
			name:    "lambda mode needs function names",
			mutate:  func(c *Config) { c.Invoker.Mode = "lambda" },
			wantErr: "scanner_function",
		},
		{
			name: "lambda mode with functions is valid",
			mutate: func(c *Config) {
				c.Invoker.Mode = "lambda"
				c.AWS.ScannerFunction = "dispatchd-scanner"
				c.AWS.AnalyzerFunction = "dispatchd-analyzer"
			},
		},
		{
			name:    "create_pr needs a token source",
			mutate:  func(c *Config) { c.Patcher.CreatePR = true },
			wantErr: "create_pr",
		},
		{
			name: "create_pr with secret id is valid",
			mutate: func(c *Config) {
				c.Patcher.CreatePR = true
				c.GitHub.TokenSecretID = "dispatchd/github-token"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-ant-real-value")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-ant-real-value", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-ant-real-value")
	assert.Contains(t, string(data), "[REDACTED]")
}

func TestSecretEmpty(t *testing.T) {
	var s Secret
	assert.Equal(t, "", s.String())
	assert.False(t, s.IsSet())
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
