package backends

import (
	"context"
	"os"
	"path/filepath"

	"github.com/devildex/devildex/internal/docset"
)

const defaultSphinxBin = "sphinx-build"

// Sphinx drives sphinx-build against a source tree carrying a conf.py.
type Sphinx struct {
	bin string
}

// NewSphinx builds the adapter. An empty bin selects the default executable.
func NewSphinx(bin string) *Sphinx {
	if bin == "" {
		bin = defaultSphinxBin
	}
	return &Sphinx{bin: bin}
}

func (s *Sphinx) Kind() docset.BackendKind { return docset.BackendSphinx }

func (s *Sphinx) CanHandle(src Source) bool {
	return src.Path != "" && findSphinxConfDir(src.Path) != ""
}

func (s *Sphinx) Prepare(workdir string) error {
	return os.MkdirAll(s.OutputDir(workdir), 0o755)
}

func (s *Sphinx) OutputDir(workdir string) string {
	return filepath.Join(workdir, "html")
}

func (s *Sphinx) Run(ctx context.Context, target docset.Target, src Source, workdir string) Result {
	confDir := findSphinxConfDir(src.Path)
	if confDir == "" {
		return Fail(FailureOutputMissing, "no conf.py found under %s", src.Path)
	}

	out := s.OutputDir(workdir)
	if f := runTool(ctx, s.bin, []string{"-b", "html", "-q", confDir, out}, src.Path); f != nil {
		return Result{Failure: f}
	}
	if f := verifyIndex(out); f != nil {
		return Result{Failure: f}
	}
	return Success(out)
}
