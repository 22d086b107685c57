package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dispatchd/internal/semgrep"
)

type stubClient struct {
	response string
	err      error
}

func (s *stubClient) Complete(context.Context, string) (string, error) {
	return s.response, s.err
}

func triageFinding(path string, line int) semgrep.Result {
	var r semgrep.Result
	r.CheckID = "python.lang.security.dangerous-exec"
	r.Path = path
	r.Start.Line = line
	r.End.Line = line
	r.Extra.Severity = "ERROR"
	r.Extra.Message = "dangerous exec"
	r.Extra.Lines = "exec(cmd)"
	return r
}

func TestBuildTriagePrompt(t *testing.T) {
	prompt := BuildTriagePrompt([]semgrep.Result{triageFinding("app.py", 10)})

	assert.Contains(t, prompt, "senior application security analyst")
	assert.Contains(t, prompt, "`risk_profile`")
	assert.Contains(t, prompt, "dangerous exec")
	assert.Contains(t, prompt, "app.py")
}

func TestBuildTriagePromptCapsFindings(t *testing.T) {
	findings := make([]semgrep.Result, 40)
	for i := range findings {
		findings[i] = triageFinding("app.py", i+1)
	}

	prompt := BuildTriagePrompt(findings)
	assert.Equal(t, maxTriageFindings, strings.Count(prompt, `"rule_id"`))
}

func TestTriage(t *testing.T) {
	t.Run("parses structured report", func(t *testing.T) {
		client := &stubClient{response: `{"summary": "one critical issue", "recommendations": ["patch exec call"]}`}

		report, err := Triage(context.Background(), client, []semgrep.Result{triageFinding("app.py", 10)})
		require.NoError(t, err)
		assert.Equal(t, "one critical issue", report["summary"])
	})

	t.Run("wraps free text as summary", func(t *testing.T) {
		client := &stubClient{response: "The code executes arbitrary commands."}

		report, err := Triage(context.Background(), client, []semgrep.Result{triageFinding("app.py", 10)})
		require.NoError(t, err)
		assert.Equal(t, "The code executes arbitrary commands.", report["summary"])
	})

	t.Run("propagates client errors", func(t *testing.T) {
		client := &stubClient{err: errors.New("quota exceeded")}

		_, err := Triage(context.Background(), client, []semgrep.Result{triageFinding("app.py", 10)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("rejects empty findings", func(t *testing.T) {
		_, err := Triage(context.Background(), &stubClient{}, nil)
		assert.Error(t, err)
	})
}
