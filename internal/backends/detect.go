package backends

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/devildex/devildex/internal/docset"
)

// sphinxConfDirs are the standard locations of a Sphinx conf.py relative to
// the source root.
var sphinxConfDirs = []string{".", "docs", "doc", filepath.Join("docs", "source")}

// findSphinxConfDir returns the directory holding conf.py, or "" when the
// tree carries no Sphinx configuration.
func findSphinxConfDir(root string) string {
	for _, rel := range sphinxConfDirs {
		dir := filepath.Join(root, rel)
		if fileExists(filepath.Join(dir, "conf.py")) {
			return dir
		}
	}
	return ""
}

// findMkDocsConfig returns the mkdocs configuration file path, or "".
func findMkDocsConfig(root string) string {
	for _, name := range []string{"mkdocs.yml", "mkdocs.yaml"} {
		p := filepath.Join(root, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// findPackageDir resolves the importable package directory for pkgName under
// root. It prefers the conventional layouts (root/<name>, root/src/<name>)
// and falls back to the first top-level directory holding an __init__.py.
func findPackageDir(root, pkgName string) string {
	// Import names use underscores where distribution names use dashes.
	importName := strings.ReplaceAll(docset.NormalizeName(pkgName), "-", "_")

	for _, candidate := range []string{
		filepath.Join(root, importName),
		filepath.Join(root, "src", importName),
	} {
		if fileExists(filepath.Join(candidate, "__init__.py")) {
			return candidate
		}
	}

	for _, base := range []string{root, filepath.Join(root, "src")} {
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			dir := filepath.Join(base, e.Name())
			if fileExists(filepath.Join(dir, "__init__.py")) {
				return dir
			}
		}
	}
	return ""
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// verifyIndex confirms the generator actually produced a browsable docset:
// the directory exists and carries an index.html entry point.
func verifyIndex(dir string) *Failure {
	if !dirExists(dir) {
		return &Failure{Kind: FailureOutputMissing, Message: "output directory " + dir + " was not created"}
	}
	if !fileExists(filepath.Join(dir, "index.html")) {
		return &Failure{Kind: FailureOutputMissing, Message: "no index.html under " + dir}
	}
	return nil
}
