// Package dockerfile renders the Dockerfile a preview image is built from.
//
// The output is deterministic: the same spec, mount and binding always
// render byte-identical files, which is what the spec digest is taken over.
package dockerfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/melih/lighthouse-preview/internal/core/domain"
)

// Name is the file name the rendered Dockerfile is injected under in the
// build context. It is unlikely to collide with a project file.
const Name = ".lighthouse-preview.Dockerfile"

// Placeholders expanded in the serve command.
const (
	HostPlaceholder = "${HOST}"
	PortPlaceholder = "${PORT}"
)

// ServeCommand expands host and port placeholders in the serve command.
func ServeCommand(spec domain.ImageSpec, binding domain.ServerBinding) []string {
	r := strings.NewReplacer(HostPlaceholder, binding.HostInterface, PortPlaceholder, strconv.Itoa(binding.Port))
	out := make([]string, len(spec.ServeCommand))
	for i, arg := range spec.ServeCommand {
		out[i] = r.Replace(arg)
	}
	return out
}

// Render produces the Dockerfile for spec. It fails if the result does not
// parse as a Dockerfile.
func Render(spec domain.ImageSpec, mount domain.ProjectMount, binding domain.ServerBinding) ([]byte, error) {
	if err := mount.Validate(); err != nil {
		return nil, err
	}
	var b bytes.Buffer

	fmt.Fprintf(&b, "FROM %s\n", spec.BaseRuntime)
	for _, cmd := range spec.InstallCommands() {
		writeRun(&b, cmd)
	}
	for _, cmd := range spec.CleanupCommands {
		writeRun(&b, cmd)
	}
	fmt.Fprintf(&b, "WORKDIR %s\n", mount.ContainerPath)
	fmt.Fprintf(&b, "COPY . %s\n", mount.ContainerPath)
	if dep := strings.TrimSpace(spec.DependencyCommand); dep != "" {
		writeRun(&b, dep)
	}
	fmt.Fprintf(&b, "EXPOSE %d\n", binding.Port)

	cmd, err := json.Marshal(ServeCommand(spec, binding))
	if err != nil {
		return nil, fmt.Errorf("failed to encode serve command: %w", err)
	}
	fmt.Fprintf(&b, "CMD %s\n", cmd)

	if _, err := Instructions(b.Bytes()); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Instructions parses content and returns each instruction in order,
// upper-cased keyword first, e.g. "RUN apk add --no-cache git".
func Instructions(content []byte) ([]string, error) {
	res, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("invalid Dockerfile: %w", err)
	}
	out := make([]string, 0, len(res.AST.Children))
	for _, node := range res.AST.Children {
		out = append(out, strings.TrimSpace(node.Original))
	}
	return out, nil
}

func writeRun(b *bytes.Buffer, cmd string) {
	// One logical line per command; the parser would fold continuations anyway.
	cmd = strings.TrimSpace(strings.NewReplacer("\\\n", " ", "\n", " ").Replace(cmd))
	fmt.Fprintf(b, "RUN %s\n", cmd)
}
