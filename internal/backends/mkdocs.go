package backends

import (
	"context"
	"os"
	"path/filepath"

	"github.com/devildex/devildex/internal/docset"
)

const defaultMkDocsBin = "mkdocs"

// MkDocs drives mkdocs build against a source tree carrying a mkdocs.yml.
type MkDocs struct {
	bin string
}

// NewMkDocs builds the adapter. An empty bin selects the default executable.
func NewMkDocs(bin string) *MkDocs {
	if bin == "" {
		bin = defaultMkDocsBin
	}
	return &MkDocs{bin: bin}
}

func (m *MkDocs) Kind() docset.BackendKind { return docset.BackendMkDocs }

func (m *MkDocs) CanHandle(src Source) bool {
	return src.Path != "" && findMkDocsConfig(src.Path) != ""
}

func (m *MkDocs) Prepare(workdir string) error {
	return os.MkdirAll(m.OutputDir(workdir), 0o755)
}

func (m *MkDocs) OutputDir(workdir string) string {
	return filepath.Join(workdir, "site")
}

func (m *MkDocs) Run(ctx context.Context, target docset.Target, src Source, workdir string) Result {
	cfg := findMkDocsConfig(src.Path)
	if cfg == "" {
		return Fail(FailureOutputMissing, "no mkdocs.yml found under %s", src.Path)
	}

	out := m.OutputDir(workdir)
	if f := runTool(ctx, m.bin, []string{"build", "-f", cfg, "-d", out}, src.Path); f != nil {
		return Result{Failure: f}
	}
	if f := verifyIndex(out); f != nil {
		return Result{Failure: f}
	}
	return Success(out)
}
