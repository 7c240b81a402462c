// Package backends wraps the external documentation generators behind a
// uniform adapter contract and selects candidate adapters for a target.
package backends

import (
	"context"
	"fmt"

	"github.com/devildex/devildex/internal/docset"
)

// FailureKind classifies one adapter attempt's failure.
type FailureKind string

const (
	FailureToolMissing   FailureKind = "tool_missing"
	FailureInvocation    FailureKind = "invocation_failed"
	FailureNonZeroExit   FailureKind = "non_zero_exit"
	FailureTimeout       FailureKind = "timeout"
	FailureOutputMissing FailureKind = "output_not_produced"
)

// Transient reports whether the scheduler may retry this failure kind.
func (k FailureKind) Transient() bool {
	return k == FailureTimeout || k == FailureInvocation
}

// Failure is the failed variant of an adapter Result.
type Failure struct {
	Kind    FailureKind
	Message string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is the outcome of one adapter run: either an output path or a
// classified failure.
type Result struct {
	OutputPath string
	Failure    *Failure
}

// OK reports whether the run produced output.
func (r Result) OK() bool { return r.Failure == nil }

// Success builds a successful Result.
func Success(outputPath string) Result {
	return Result{OutputPath: outputPath}
}

// Fail builds a failed Result with a formatted message.
func Fail(kind FailureKind, format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// Source describes where a package's source tree is available. Path is empty
// for backends that fetch remotely (fetched-readthedocs).
type Source struct {
	Path string
}

// Adapter is the uniform wrapper around one external documentation generator.
// Adapters never write to the docset registry; only the scheduler does.
type Adapter interface {
	// Kind identifies the backend this adapter drives.
	Kind() docset.BackendKind
	// CanHandle reports whether the adapter applies to the given source tree.
	CanHandle(src Source) bool
	// Prepare creates the working layout under workdir before Run.
	Prepare(workdir string) error
	// Run invokes the generator. The context carries the build deadline;
	// expiry or cancellation must terminate the external process.
	Run(ctx context.Context, target docset.Target, src Source, workdir string) Result
	// OutputDir returns where Run places its output beneath workdir.
	OutputDir(workdir string) string
}
