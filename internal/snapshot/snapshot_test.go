package snapshot

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	out := map[string]string{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(b)
	}
}

func TestDigest(t *testing.T) {
	site := map[string]string{
		"index.md":           "# hello",
		"_posts/first.md":    "first post",
		"_config.yml":        "title: blog",
		".git/HEAD":          "ref: refs/heads/main",
		"_site/index.html":   "<h1>stale</h1>",
		".dockerignore":      "_site\n",
		"assets/css/app.css": "body{}",
	}

	t.Run("stable across copies", func(t *testing.T) {
		a, err := Digest(writeTree(t, site))
		require.NoError(t, err)
		b, err := Digest(writeTree(t, site))
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.NoError(t, a.Validate())
	})

	t.Run("changes with content", func(t *testing.T) {
		a, err := Digest(writeTree(t, site))
		require.NoError(t, err)

		changed := map[string]string{}
		for k, v := range site {
			changed[k] = v
		}
		changed["index.md"] = "# hello, world"
		b, err := Digest(writeTree(t, changed))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("ignores excluded paths", func(t *testing.T) {
		a, err := Digest(writeTree(t, site))
		require.NoError(t, err)

		changed := map[string]string{}
		for k, v := range site {
			changed[k] = v
		}
		changed["_site/index.html"] = "<h1>regenerated</h1>"
		changed[".git/HEAD"] = "ref: refs/heads/other"
		b, err := Digest(writeTree(t, changed))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestDigestTracksMetadata(t *testing.T) {
	site := map[string]string{
		"prod.yml": "url: https://blog.example",
		"dev.yml":  "url: http://localhost:4000",
		"run.sh":   "#!/bin/sh\nexec jekyll serve\n",
	}

	t.Run("symlink target", func(t *testing.T) {
		dir := writeTree(t, site)
		link := filepath.Join(dir, "_config.yml")
		require.NoError(t, os.Symlink("prod.yml", link))
		a, err := Digest(dir)
		require.NoError(t, err)

		require.NoError(t, os.Remove(link))
		require.NoError(t, os.Symlink("dev.yml", link))
		b, err := Digest(dir)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("permission bits", func(t *testing.T) {
		dir := writeTree(t, site)
		a, err := Digest(dir)
		require.NoError(t, err)

		require.NoError(t, os.Chmod(filepath.Join(dir, "run.sh"), 0o755))
		b, err := Digest(dir)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty directory", func(t *testing.T) {
		dir := writeTree(t, site)
		a, err := Digest(dir)
		require.NoError(t, err)

		require.NoError(t, os.Mkdir(filepath.Join(dir, "_drafts"), 0o755))
		b, err := Digest(dir)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestBuildContext(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"index.md":         "# hello",
		".dockerignore":    "_site\n*.log\n",
		"_site/index.html": "built",
		"debug.log":        "noise",
		".git/config":      "[core]",
	})

	rc, err := BuildContext(dir, ".preview.Dockerfile", []byte("FROM scratch\n"))
	require.NoError(t, err)
	defer rc.Close()

	files := readTar(t, rc)
	assert.Equal(t, "# hello", files["index.md"])
	assert.Equal(t, "FROM scratch\n", files[".preview.Dockerfile"])
	assert.NotContains(t, files, "_site/index.html")
	assert.NotContains(t, files, "debug.log")
	assert.NotContains(t, files, ".git/config")
}

func TestExcludePatterns(t *testing.T) {
	t.Run("without ignore file", func(t *testing.T) {
		patterns, err := ExcludePatterns(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, []string{".git"}, patterns)
	})

	t.Run("with ignore file", func(t *testing.T) {
		dir := writeTree(t, map[string]string{".dockerignore": "# comment\n_site\n\nvendor/\n"})
		patterns, err := ExcludePatterns(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{".git", "_site", "vendor"}, patterns)
	})
}
