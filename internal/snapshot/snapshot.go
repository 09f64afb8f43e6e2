// Package snapshot turns a project directory into a docker build context
// and fingerprints its content.
package snapshot

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/docker/docker/pkg/archive"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/opencontainers/go-digest"
)

// IgnoreFile is read from the project root to exclude paths from the
// snapshot.
const IgnoreFile = ".dockerignore"

// alwaysExcluded never reaches the image.
var alwaysExcluded = []string{".git"}

// ExcludePatterns returns the exclusion patterns that apply to dir.
func ExcludePatterns(dir string) ([]string, error) {
	patterns := append([]string(nil), alwaysExcluded...)
	f, err := os.Open(filepath.Join(dir, IgnoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return patterns, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", IgnoreFile, err)
	}
	defer f.Close()

	extra, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFile, err)
	}
	return append(patterns, extra...), nil
}

// Digest fingerprints the entries under dir that would be copied into the
// image. Each entry contributes its path, type, permission bits and either
// its content (regular files) or its target (symlinks), in lexical order, so
// identical trees always produce the same digest regardless of mtimes.
func Digest(dir string) (digest.Digest, error) {
	patterns, err := ExcludePatterns(dir)
	if err != nil {
		return "", err
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return "", fmt.Errorf("invalid exclude patterns: %w", err)
	}

	var entries []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		excluded, err := pm.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if excluded {
			if d.IsDir() && !pm.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(entries)

	d := digest.Canonical.Digester()
	h := d.Hash()
	for _, rel := range entries {
		if err := hashEntry(h, rel, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return "", err
		}
	}
	return d.Digest(), nil
}

// hashEntry writes "path\x00type mode\x00payload\x00" for one entry.
func hashEntry(w io.Writer, rel, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	mode := info.Mode()
	fmt.Fprintf(w, "%s\x00%s %o\x00", rel, entryType(mode), mode.Perm())

	switch {
	case mode.IsRegular():
		if err := hashFile(w, path); err != nil {
			return err
		}
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", path, err)
		}
		io.WriteString(w, target)
	}
	_, err = w.Write([]byte{0})
	return err
}

func entryType(mode fs.FileMode) string {
	switch {
	case mode.IsDir():
		return "dir"
	case mode.IsRegular():
		return "file"
	case mode&fs.ModeSymlink != 0:
		return "symlink"
	default:
		return "other"
	}
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// BuildContext tars dir, honouring the ignore file, and injects dockerfile
// into the stream as dockerfileName. The caller must close the reader.
func BuildContext(dir, dockerfileName string, dockerfile []byte) (io.ReadCloser, error) {
	patterns, err := ExcludePatterns(dir)
	if err != nil {
		return nil, err
	}
	// The generated Dockerfile must never be excluded.
	patterns = append(patterns, "!"+dockerfileName)

	tarball, err := archive.TarWithOptions(dir, &archive.TarOptions{
		ExcludePatterns: patterns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}

	now := time.Unix(0, 0)
	return archive.ReplaceFileTarWrapper(tarball, map[string]archive.TarModifierFunc{
		dockerfileName: func(_ string, h *tar.Header, _ io.Reader) (*tar.Header, []byte, error) {
			hdr := &tar.Header{
				Name:       dockerfileName,
				Mode:       0o600,
				ModTime:    now,
				Typeflag:   tar.TypeReg,
				AccessTime: now,
				ChangeTime: now,
			}
			if h != nil {
				hdr.Uid, hdr.Gid = h.Uid, h.Gid
			}
			return hdr, dockerfile, nil
		},
	}), nil
}
