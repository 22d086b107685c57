package patcher

import (
	"fmt"
	"os"
)

// PatchStrategy mutates a file on disk with a suggested fix.
//
// The default strategy appends the suggestion as trailing content; it never
// parses or rewrites what is already there. A future strict-diff strategy can
// replace it without touching the branch/commit flow.
type PatchStrategy interface {
	Apply(absPath string, s Suggestion) error
}

// AppendStrategy appends the suggestion text after the existing content.
type AppendStrategy struct{}

func (AppendStrategy) Apply(absPath string, s Suggestion) error {
	original, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", absPath, err)
	}

	content := append(original, []byte("\n"+s.Suggestion+"\n")...)
	if err := os.WriteFile(absPath, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", absPath, err)
	}
	return nil
}

var _ PatchStrategy = AppendStrategy{}
