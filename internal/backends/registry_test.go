package backends

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devildex/devildex/internal/config"
	"github.com/devildex/devildex/internal/docset"
)

func kinds(adapters []Adapter) []docset.BackendKind {
	out := make([]docset.BackendKind, len(adapters))
	for i, a := range adapters {
		out[i] = a.Kind()
	}
	return out
}

func TestCandidatesDetectionOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "conf.py"), "")
	writeFile(t, filepath.Join(root, "mkdocs.yml"), "site_name: x\n")
	writeFile(t, filepath.Join(root, "pkg", "__init__.py"), "")

	r := NewRegistry(config.BackendsConfig{ReadTheDocsAPI: "https://readthedocs.org/api/v3"})
	got := kinds(r.Candidates(docset.Package{Name: "pkg"}, Source{Path: root}))

	assert.Equal(t, []docset.BackendKind{
		docset.BackendSphinx,
		docset.BackendMkDocs,
		docset.BackendPdoc3,
		docset.BackendPydoctor,
		docset.BackendReadTheDocs,
	}, got)
}

func TestCandidatesFetchOnlyForBareTree(t *testing.T) {
	r := NewRegistry(config.BackendsConfig{})
	got := kinds(r.Candidates(docset.Package{Name: "pkg"}, Source{Path: t.TempDir()}))
	assert.Equal(t, []docset.BackendKind{docset.BackendReadTheDocs}, got)
}

func TestCandidatesProjectOverride(t *testing.T) {
	r := NewRegistry(config.BackendsConfig{
		ProjectOverrides: map[string]string{"My.Package": "mkdocs"},
	})

	// Override matches against the normalized name and skips detection.
	got := kinds(r.Candidates(docset.Package{Name: "my-package"}, Source{Path: t.TempDir()}))
	assert.Equal(t, []docset.BackendKind{docset.BackendMkDocs, docset.BackendReadTheDocs}, got)
}

func TestCandidatesDeclaredDocTool(t *testing.T) {
	r := NewRegistry(config.BackendsConfig{})

	got := kinds(r.Candidates(docset.Package{Name: "twisted", DocTool: "pydoctor"}, Source{Path: t.TempDir()}))
	assert.Equal(t, []docset.BackendKind{docset.BackendPydoctor, docset.BackendReadTheDocs}, got)

	// An unknown declared tool falls back to detection.
	got = kinds(r.Candidates(docset.Package{Name: "weird", DocTool: "doxygen"}, Source{Path: t.TempDir()}))
	assert.Equal(t, []docset.BackendKind{docset.BackendReadTheDocs}, got)
}

func TestCandidatesOverrideIsFetch(t *testing.T) {
	r := NewRegistry(config.BackendsConfig{
		ProjectOverrides: map[string]string{"requests": "fetched-readthedocs"},
	})
	got := kinds(r.Candidates(docset.Package{Name: "requests"}, Source{Path: t.TempDir()}))
	assert.Equal(t, []docset.BackendKind{docset.BackendReadTheDocs}, got)
}

func TestGet(t *testing.T) {
	r := NewRegistry(config.BackendsConfig{})
	a, ok := r.Get(docset.BackendSphinx)
	require.True(t, ok)
	assert.Equal(t, docset.BackendSphinx, a.Kind())

	_, ok = r.Get(docset.BackendKind("nope"))
	assert.False(t, ok)
}
