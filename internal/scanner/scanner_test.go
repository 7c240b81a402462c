package scanner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devildex/devildex/internal/docset"
	dderrors "github.com/devildex/devildex/internal/errors"
)

const validScan = `{
	"project": {"name": "webapp", "root_path": "/srv/webapp", "interpreter": "/usr/bin/python3"},
	"packages": [
		{"name": "Flask", "version": "3.0.2", "source": "index", "summary": "A web framework."},
		{"name": "flask", "version": "3.0.2", "source": "index"},
		{"name": "mylib", "version": "0.1.0", "source": "path", "source_path": "/srv/mylib"},
		{"name": "forked-dep", "version": "2.0.0", "source": "vcs", "vcs_url": "https://example.com/dep.git", "doc_tool": "sphinx"}
	]
}`

func TestParseValid(t *testing.T) {
	result, err := Parse(strings.NewReader(validScan))
	require.NoError(t, err)

	assert.Equal(t, "webapp", result.Project.Name)
	require.Len(t, result.Packages, 3, "duplicate name+version collapses")

	assert.Equal(t, "flask", result.Packages[0].Name, "names are normalized")
	assert.Equal(t, "A web framework.", result.Packages[0].Summary)
	assert.Equal(t, docset.SourcePath, result.Packages[1].Source)
	assert.Equal(t, "sphinx", result.Packages[2].DocTool)
}

func TestParseRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{"project": `},
		{"unknown field", `{"project": {"name": "x", "root_path": "/x"}, "bogus": 1}`},
		{"missing project name", `{"project": {"root_path": "/x"}}`},
		{"missing root path", `{"project": {"name": "x"}}`},
		{"package without version", `{"project": {"name": "x", "root_path": "/x"},
			"packages": [{"name": "a", "source": "index"}]}`},
		{"unknown source kind", `{"project": {"name": "x", "root_path": "/x"},
			"packages": [{"name": "a", "version": "1", "source": "carrier-pigeon"}]}`},
		{"path without source_path", `{"project": {"name": "x", "root_path": "/x"},
			"packages": [{"name": "a", "version": "1", "source": "path"}]}`},
		{"vcs without url", `{"project": {"name": "x", "root_path": "/x"},
			"packages": [{"name": "a", "version": "1", "source": "vcs"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.body))
			require.Error(t, err)
			assert.True(t, dderrors.IsCategory(err, dderrors.CategoryScanInput))
		})
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("/nonexistent/scan.json")
	require.Error(t, err)
	assert.True(t, dderrors.IsCategory(err, dderrors.CategoryScanInput))
}
