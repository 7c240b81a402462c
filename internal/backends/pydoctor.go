package backends

import (
	"context"
	"os"
	"path/filepath"

	"github.com/devildex/devildex/internal/docset"
)

const defaultPydoctorBin = "pydoctor"

// Pydoctor generates API documentation for a Python package, favoured by
// Twisted-style codebases.
type Pydoctor struct {
	bin string
}

// NewPydoctor builds the adapter. An empty bin selects the default executable.
func NewPydoctor(bin string) *Pydoctor {
	if bin == "" {
		bin = defaultPydoctorBin
	}
	return &Pydoctor{bin: bin}
}

func (p *Pydoctor) Kind() docset.BackendKind { return docset.BackendPydoctor }

func (p *Pydoctor) CanHandle(src Source) bool {
	return src.Path != "" && findPackageDir(src.Path, filepath.Base(src.Path)) != ""
}

func (p *Pydoctor) Prepare(workdir string) error {
	return os.MkdirAll(p.OutputDir(workdir), 0o755)
}

func (p *Pydoctor) OutputDir(workdir string) string {
	return filepath.Join(workdir, "apidocs")
}

func (p *Pydoctor) Run(ctx context.Context, target docset.Target, src Source, workdir string) Result {
	pkgDir := findPackageDir(src.Path, target.PackageName)
	if pkgDir == "" {
		return Fail(FailureOutputMissing, "no importable package found under %s", src.Path)
	}

	out := p.OutputDir(workdir)
	args := []string{
		"--make-html",
		"--html-output", out,
		"--project-name", target.PackageName,
		pkgDir,
	}
	if f := runTool(ctx, p.bin, args, src.Path); f != nil {
		return Result{Failure: f}
	}
	if f := verifyIndex(out); f != nil {
		return Result{Failure: f}
	}
	return Success(out)
}
