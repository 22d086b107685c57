package semgrep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `{
  "results": [
    {
      "check_id": "go.lang.security.audit.sqli.string-concat",
      "path": "db/query.go",
      "start": {"line": 42},
      "end": {"line": 44},
      "extra": {
        "message": "SQL query built by string concatenation",
        "severity": "ERROR",
        "lines": "db.Query(\"SELECT * FROM t WHERE id=\" + id)"
      }
    },
    {
      "check_id": "go.lang.security.audit.crypto.weak-hash",
      "path": "auth/hash.go",
      "start": {"line": 7},
      "end": {"line": 7},
      "extra": {
        "message": "MD5 is a weak hash",
        "severity": "WARNING",
        "lines": "h := md5.Sum(data)"
      }
    }
  ]
}`

func TestParse(t *testing.T) {
	results, err := Parse([]byte(sampleOutput))
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "go.lang.security.audit.sqli.string-concat", first.CheckID)
	assert.Equal(t, "db/query.go", first.Path)
	assert.Equal(t, 42, first.Start.Line)
	assert.Equal(t, 44, first.End.Line)
	assert.Equal(t, "ERROR", first.Extra.Severity)
	assert.Contains(t, first.Extra.Lines, "db.Query")
}

func TestParsePreservesEmissionOrder(t *testing.T) {
	results, err := Parse([]byte(sampleOutput))
	require.NoError(t, err)
	assert.Equal(t, "go.lang.security.audit.sqli.string-concat", results[0].CheckID)
	assert.Equal(t, "go.lang.security.audit.crypto.weak-hash", results[1].CheckID)
}

func TestParseEmpty(t *testing.T) {
	results, err := Parse([]byte(`{"results": []}`))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing semgrep output")
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, "semgrep", cfg.Binary)
	assert.Equal(t, []string{"auto"}, cfg.Rulesets)

	custom := Config{Binary: "/usr/local/bin/semgrep", Rulesets: []string{"p/security-audit", "p/ci"}}
	custom.ApplyDefaults()
	assert.Equal(t, "/usr/local/bin/semgrep", custom.Binary)
	assert.Equal(t, []string{"p/security-audit", "p/ci"}, custom.Rulesets)
}
