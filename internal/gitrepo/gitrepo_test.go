package gitrepo

import (
	"os"
	"path/filepath"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a git repository with one committed file and returns its path.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	wc, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, wc.Add("main.go"))
	_, err = wc.Commit("initial commit")
	require.NoError(t, err)

	return dir
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "nonexistent path", path: "/definitely/not/here"},
		{name: "plain directory", path: t.TempDir()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotGitRepo)
		})
	}
}

func TestCheckoutNewBranchAndCommit(t *testing.T) {
	dir := initRepo(t)

	wc, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, wc.CheckoutNewBranch("fix/autopatch-20260101000000"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\n// patched\n"), 0o644))
	require.NoError(t, wc.Add("main.go"))

	hash, err := wc.Commit("Apply automated security patches")
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/fix/autopatch-20260101000000", head.Name().String())
}

func TestCheckoutNewBranchReusesExisting(t *testing.T) {
	dir := initRepo(t)

	wc, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, wc.CheckoutNewBranch("fix/autopatch-x"))

	// Same branch name a second time must not fail.
	require.NoError(t, wc.CheckoutNewBranch("fix/autopatch-x"))
}

func TestTokenAuth(t *testing.T) {
	assert.Nil(t, tokenAuth(""))
	assert.NotNil(t, tokenAuth("ghp_sometoken"))
}
