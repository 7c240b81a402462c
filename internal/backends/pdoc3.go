package backends

import (
	"context"
	"os"
	"path/filepath"

	"github.com/devildex/devildex/internal/docset"
)

const defaultPdoc3Bin = "pdoc3"

// Pdoc3 generates API documentation straight from a Python package tree, with
// no documentation config required. Output lands under html/<package>/.
type Pdoc3 struct {
	bin string
}

// NewPdoc3 builds the adapter. An empty bin selects the default executable.
func NewPdoc3(bin string) *Pdoc3 {
	if bin == "" {
		bin = defaultPdoc3Bin
	}
	return &Pdoc3{bin: bin}
}

func (p *Pdoc3) Kind() docset.BackendKind { return docset.BackendPdoc3 }

func (p *Pdoc3) CanHandle(src Source) bool {
	// pdoc3 needs an importable package, not a docs config.
	return src.Path != "" && findPackageDir(src.Path, filepath.Base(src.Path)) != ""
}

func (p *Pdoc3) Prepare(workdir string) error {
	return os.MkdirAll(p.OutputDir(workdir), 0o755)
}

func (p *Pdoc3) OutputDir(workdir string) string {
	return filepath.Join(workdir, "html")
}

func (p *Pdoc3) Run(ctx context.Context, target docset.Target, src Source, workdir string) Result {
	pkgDir := findPackageDir(src.Path, target.PackageName)
	if pkgDir == "" {
		return Fail(FailureOutputMissing, "no importable package found under %s", src.Path)
	}

	out := p.OutputDir(workdir)
	if f := runTool(ctx, p.bin, []string{"--html", "--force", "-o", out, pkgDir}, src.Path); f != nil {
		return Result{Failure: f}
	}

	// pdoc3 nests the docset under the package's import name.
	docDir := filepath.Join(out, filepath.Base(pkgDir))
	if f := verifyIndex(docDir); f != nil {
		return Result{Failure: f}
	}
	return Success(docDir)
}
