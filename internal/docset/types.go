// Package docset defines the core identity model: projects, packages,
// docset targets and their deterministic build fingerprints.
package docset

import (
	"fmt"
	"time"
)

// BackendKind identifies one documentation generator strategy.
type BackendKind string

const (
	BackendSphinx      BackendKind = "sphinx"
	BackendMkDocs      BackendKind = "mkdocs"
	BackendPdoc3       BackendKind = "pdoc3"
	BackendPydoctor    BackendKind = "pydoctor"
	BackendReadTheDocs BackendKind = "fetched-readthedocs"
)

// DefaultBackendOrder is the fixed tie-break priority when neither a project
// override nor a declared documentation tool selects a backend. The
// readthedocs download is a last resort and is appended by the adapter
// registry, not listed here.
var DefaultBackendOrder = []BackendKind{BackendSphinx, BackendMkDocs, BackendPdoc3, BackendPydoctor}

// Valid reports whether k is a member of the closed backend enumeration.
func (k BackendKind) Valid() bool {
	switch k {
	case BackendSphinx, BackendMkDocs, BackendPdoc3, BackendPydoctor, BackendReadTheDocs:
		return true
	}
	return false
}

// ParseBackendKind converts a string into a BackendKind, rejecting unknown values.
func ParseBackendKind(s string) (BackendKind, error) {
	k := BackendKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown backend kind %q", s)
	}
	return k, nil
}

// SourceKind describes where a package was resolved from.
type SourceKind string

const (
	SourceIndex SourceKind = "index" // installed from a package index
	SourcePath  SourceKind = "path"  // local path install
	SourceVCS   SourceKind = "vcs"   // direct VCS install
)

// Valid reports whether s is a known source kind.
func (s SourceKind) Valid() bool {
	switch s {
	case SourceIndex, SourcePath, SourceVCS:
		return true
	}
	return false
}

// Project is a registered source tree with an associated interpreter.
type Project struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	RootPath     string    `json:"root_path"`
	Interpreter  string    `json:"interpreter"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Package is a single dependency resolved for a project snapshot. Immutable
// once recorded; a rescan supersedes the whole snapshot.
type Package struct {
	Name        string            `json:"name"` // normalized
	Version     string            `json:"version"`
	Source      SourceKind        `json:"source"`
	Summary     string            `json:"summary,omitempty"`
	ProjectURLs map[string]string `json:"project_urls,omitempty"`
	SourcePath  string            `json:"source_path,omitempty"` // for path installs
	VCSURL      string            `json:"vcs_url,omitempty"`     // for vcs installs
	DocTool     string            `json:"doc_tool,omitempty"`    // declared documentation tool, if any
}

// Target identifies what an adapter would build: one package version with one
// backend kind.
type Target struct {
	PackageName string      `json:"package_name"`
	Version     string      `json:"version"`
	Backend     BackendKind `json:"backend"`
}

// String renders the target in its canonical "name@version/backend" form.
func (t Target) String() string {
	return fmt.Sprintf("%s@%s/%s", t.PackageName, t.Version, t.Backend)
}

// Validate checks that all target fields are populated and the backend known.
func (t Target) Validate() error {
	if t.PackageName == "" {
		return fmt.Errorf("target package name is empty")
	}
	if t.Version == "" {
		return fmt.Errorf("target version is empty")
	}
	if !t.Backend.Valid() {
		return fmt.Errorf("unknown backend kind %q", t.Backend)
	}
	return nil
}
