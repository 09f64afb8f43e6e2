package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	f := NewFetcher(nil, nil)

	got, cleanup, err := f.Fetch(context.Background(), dir, "")
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, dir, got)
}

func TestFetchMissingDirectory(t *testing.T) {
	f := NewFetcher(nil, nil)

	_, cleanup, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope"), "")
	cleanup()
	assert.Error(t, err)
}

func TestFetchRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "index.md")
	require.NoError(t, os.WriteFile(file, []byte("# hi"), 0o644))

	_, cleanup, err := NewFetcher(nil, nil).Fetch(context.Background(), file, "")
	cleanup()
	assert.Error(t, err)
}

func TestFetchUnreachableRemote(t *testing.T) {
	f := NewFetcher(nil, nil)

	_, cleanup, err := f.Fetch(context.Background(), "http://127.0.0.1:1/blog.git", "main")
	cleanup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clone repo")
}

// initRepo creates a repository whose master branch holds index.md at "v2"
// and whose preview branch still points at "v1".
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	sig := &object.Signature{Name: "Blog Bot", Email: "bot@example.com", When: time.Unix(1700000000, 0)}
	commit := func(content string) plumbing.Hash {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "index.md"), []byte(content), 0o644))
		_, err := wt.Add("index.md")
		require.NoError(t, err)
		hash, err := wt.Commit("update index", &git.CommitOptions{Author: sig})
		require.NoError(t, err)
		return hash
	}

	first := commit("v1")
	require.NoError(t, repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("preview"), first)))
	commit("v2")
	return dir
}

func TestFetchClonesRemote(t *testing.T) {
	// go-git serves file:// remotes through git-upload-pack.
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	url := "file://" + filepath.ToSlash(initRepo(t))
	f := NewFetcher(nil, nil)

	tests := []struct {
		ref  string
		want string
	}{
		{"", "v2"},
		{"preview", "v1"},
	}
	for _, tt := range tests {
		t.Run("ref="+tt.ref, func(t *testing.T) {
			dir, cleanup, err := f.Fetch(context.Background(), url, tt.ref)
			require.NoError(t, err)

			got, err := os.ReadFile(filepath.Join(dir, "index.md"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))

			cleanup()
			_, err = os.Stat(dir)
			assert.True(t, os.IsNotExist(err))
		})
	}
}
