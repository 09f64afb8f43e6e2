package domain

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

// DefaultContainerPath is where project content is copied inside the image.
const DefaultContainerPath = "/app"

// ProjectMount describes which project is copied into the image and where.
// HostPath is either a local directory or a git URL.
type ProjectMount struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	Ref           string `json:"ref,omitempty"`
}

// IsRemote reports whether HostPath points at a git remote.
func (m ProjectMount) IsRemote() bool {
	p := m.HostPath
	for _, prefix := range []string{"https://", "http://", "ssh://", "git://", "git@", "file://"} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (m ProjectMount) Validate() error {
	if strings.TrimSpace(m.HostPath) == "" {
		return fmt.Errorf("%w: project host path is required", ErrInvalidSpec)
	}
	if !path.IsAbs(m.ContainerPath) {
		return fmt.Errorf("%w: container path %q must be absolute", ErrInvalidSpec, m.ContainerPath)
	}
	if path.Clean(m.ContainerPath) == "/" {
		return fmt.Errorf("%w: container path must not be the root directory", ErrInvalidSpec)
	}
	// WORKDIR and COPY split on whitespace and expand variables.
	if strings.IndexFunc(m.ContainerPath, func(r rune) bool { return unicode.IsSpace(r) || r == '$' }) >= 0 {
		return fmt.Errorf("%w: container path %q must not contain whitespace or '$'", ErrInvalidSpec, m.ContainerPath)
	}
	return nil
}
