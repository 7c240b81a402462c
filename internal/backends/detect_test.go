package backends

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFindSphinxConfDir(t *testing.T) {
	root := t.TempDir()
	assert.Empty(t, findSphinxConfDir(root))

	writeFile(t, filepath.Join(root, "docs", "conf.py"), "project = 'x'\n")
	assert.Equal(t, filepath.Join(root, "docs"), findSphinxConfDir(root))

	// A conf.py at the root wins over docs/.
	writeFile(t, filepath.Join(root, "conf.py"), "project = 'x'\n")
	assert.Equal(t, root, findSphinxConfDir(root))
}

func TestFindMkDocsConfig(t *testing.T) {
	root := t.TempDir()
	assert.Empty(t, findMkDocsConfig(root))

	writeFile(t, filepath.Join(root, "mkdocs.yaml"), "site_name: x\n")
	assert.Equal(t, filepath.Join(root, "mkdocs.yaml"), findMkDocsConfig(root))

	writeFile(t, filepath.Join(root, "mkdocs.yml"), "site_name: x\n")
	assert.Equal(t, filepath.Join(root, "mkdocs.yml"), findMkDocsConfig(root))
}

func TestFindPackageDir(t *testing.T) {
	t.Run("distribution name maps to import name", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "my_tool", "__init__.py"), "")
		assert.Equal(t, filepath.Join(root, "my_tool"), findPackageDir(root, "My-Tool"))
	})

	t.Run("src layout", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "src", "widget", "__init__.py"), "")
		assert.Equal(t, filepath.Join(root, "src", "widget"), findPackageDir(root, "widget"))
	})

	t.Run("falls back to any top-level package", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "somepkg", "__init__.py"), "")
		assert.Equal(t, filepath.Join(root, "somepkg"), findPackageDir(root, "unrelated-name"))
	})

	t.Run("no package", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "README.md"), "hi")
		assert.Empty(t, findPackageDir(root, "anything"))
	})
}

func TestVerifyIndex(t *testing.T) {
	root := t.TempDir()

	f := verifyIndex(filepath.Join(root, "missing"))
	require.NotNil(t, f)
	assert.Equal(t, FailureOutputMissing, f.Kind)

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))
	f = verifyIndex(empty)
	require.NotNil(t, f)
	assert.Equal(t, FailureOutputMissing, f.Kind)

	good := filepath.Join(root, "good")
	writeFile(t, filepath.Join(good, "index.html"), "<html></html>")
	assert.Nil(t, verifyIndex(good))
}

func TestFailureKindTransient(t *testing.T) {
	assert.True(t, FailureTimeout.Transient())
	assert.True(t, FailureInvocation.Transient())
	assert.False(t, FailureToolMissing.Transient())
	assert.False(t, FailureNonZeroExit.Transient())
	assert.False(t, FailureOutputMissing.Transient())
}
