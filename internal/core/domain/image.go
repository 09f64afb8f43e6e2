package domain

import (
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// Supported package managers for deriving install commands.
const (
	PackageManagerAPK  = "apk"
	PackageManagerAPT  = "apt"
	PackageManagerNone = "none"
)

// ImageSpec declares the runtime image a preview is built from.
type ImageSpec struct {
	BaseRuntime            string   `json:"base_runtime"`
	PackageManager         string   `json:"package_manager"`
	SystemPackages         []string `json:"system_packages"`
	PackageManagerCommands []string `json:"package_manager_commands"`
	CleanupCommands        []string `json:"cleanup_commands"`
	DependencyCommand      string   `json:"dependency_command"`
	ServeCommand           []string `json:"serve_command"`
}

// Clone returns a deep copy so a running build never observes later edits.
func (s ImageSpec) Clone() ImageSpec {
	out := s
	out.SystemPackages = append([]string(nil), s.SystemPackages...)
	out.PackageManagerCommands = append([]string(nil), s.PackageManagerCommands...)
	out.CleanupCommands = append([]string(nil), s.CleanupCommands...)
	out.ServeCommand = append([]string(nil), s.ServeCommand...)
	return out
}

// Packages returns SystemPackages with blanks and duplicates removed,
// keeping the first occurrence of each name.
func (s ImageSpec) Packages() []string {
	seen := make(map[string]struct{}, len(s.SystemPackages))
	out := make([]string, 0, len(s.SystemPackages))
	for _, p := range s.SystemPackages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// InstallCommands returns the package manager commands in execution order.
// Explicit PackageManagerCommands win over commands derived from the
// package manager and package list.
func (s ImageSpec) InstallCommands() []string {
	if len(s.PackageManagerCommands) > 0 {
		return append([]string(nil), s.PackageManagerCommands...)
	}
	pkgs := s.Packages()
	if len(pkgs) == 0 {
		return nil
	}
	list := strings.Join(pkgs, " ")
	switch s.PackageManager {
	case PackageManagerAPK:
		return []string{"apk add --no-cache " + list}
	case PackageManagerAPT:
		return []string{
			"apt-get update",
			"apt-get install -y --no-install-recommends " + list,
		}
	default:
		return nil
	}
}

// Validate checks the spec before any build step runs.
func (s ImageSpec) Validate() error {
	if strings.TrimSpace(s.BaseRuntime) == "" {
		return fmt.Errorf("%w: base runtime is required", ErrInvalidSpec)
	}
	if _, err := reference.ParseNormalizedNamed(s.BaseRuntime); err != nil {
		return fmt.Errorf("%w: base runtime %q: %v", ErrInvalidSpec, s.BaseRuntime, err)
	}
	switch s.PackageManager {
	case "", PackageManagerNone, PackageManagerAPK, PackageManagerAPT:
	default:
		return fmt.Errorf("%w: unknown package manager %q", ErrInvalidSpec, s.PackageManager)
	}
	if len(s.PackageManagerCommands) == 0 && len(s.Packages()) > 0 &&
		(s.PackageManager == "" || s.PackageManager == PackageManagerNone) {
		return fmt.Errorf("%w: system packages declared without a package manager", ErrInvalidSpec)
	}
	for i, c := range s.PackageManagerCommands {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: package manager command %d is empty", ErrInvalidSpec, i)
		}
	}
	if len(s.ServeCommand) == 0 {
		return fmt.Errorf("%w: serve command is required", ErrInvalidSpec)
	}
	return nil
}

// ValidateTag checks that tag is a usable image reference.
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: image tag is required", ErrInvalidSpec)
	}
	if _, err := reference.ParseNormalizedNamed(tag); err != nil {
		return fmt.Errorf("%w: image tag %q: %v", ErrInvalidSpec, tag, err)
	}
	return nil
}
