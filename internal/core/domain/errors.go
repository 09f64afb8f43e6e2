package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidSpec is wrapped by every configuration validation failure.
var ErrInvalidSpec = errors.New("invalid preview spec")

// BuildError aborts artifact creation. Step names the pipeline step and,
// for image builds, Detail names the Dockerfile instruction that failed.
type BuildError struct {
	Step   string
	Detail string
	Code   int
	Err    error
}

func (e *BuildError) Error() string {
	msg := "build failed at " + e.Step
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// RuntimeError reports a preview that could not start or exited with a
// non-zero status.
type RuntimeError struct {
	Op       string
	ExitCode int64
	Err      error
}

func (e *RuntimeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: preview exited with status %d", e.Op, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
