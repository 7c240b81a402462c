// Package scanner parses and validates environment scan results: the JSON
// documents an interpreter-side probe emits with the project's resolved
// dependencies.
package scanner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/devildex/devildex/internal/docset"
	dderrors "github.com/devildex/devildex/internal/errors"
)

// ScanResult is one project snapshot: the project identity plus every
// package resolved in its environment.
type ScanResult struct {
	Project  docset.Project   `json:"project"`
	Packages []docset.Package `json:"packages"`
}

// ParseFile reads and validates a scan result from path.
func ParseFile(path string) (*ScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dderrors.ScanInputWrap(err, "opening scan result")
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a scan result. Package names are normalized
// and name+version duplicates collapsed so the registry snapshot stays
// unambiguous.
func Parse(r io.Reader) (*ScanResult, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var result ScanResult
	if err := dec.Decode(&result); err != nil {
		return nil, dderrors.ScanInputWrap(err, "decoding scan result")
	}

	if result.Project.Name == "" {
		return nil, dderrors.ScanInput("project name is empty")
	}
	if result.Project.RootPath == "" {
		return nil, dderrors.ScanInput("project root_path is empty")
	}

	seen := make(map[string]struct{}, len(result.Packages))
	packages := result.Packages[:0]
	for i, pkg := range result.Packages {
		pkg.Name = docset.NormalizeName(pkg.Name)
		if err := validatePackage(i, pkg); err != nil {
			return nil, err
		}
		key := pkg.Name + "@" + pkg.Version
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		packages = append(packages, pkg)
	}
	result.Packages = packages

	return &result, nil
}

func validatePackage(idx int, pkg docset.Package) error {
	if pkg.Name == "" {
		return dderrors.ScanInput(fmt.Sprintf("package %d has an empty name", idx))
	}
	if pkg.Version == "" {
		return dderrors.ScanInput(fmt.Sprintf("package %s has an empty version", pkg.Name))
	}
	if !pkg.Source.Valid() {
		return dderrors.ScanInput(fmt.Sprintf("package %s has unknown source kind %q", pkg.Name, pkg.Source))
	}
	if pkg.Source == docset.SourcePath && pkg.SourcePath == "" {
		return dderrors.ScanInput(fmt.Sprintf("path package %s is missing source_path", pkg.Name))
	}
	if pkg.Source == docset.SourceVCS && pkg.VCSURL == "" {
		return dderrors.ScanInput(fmt.Sprintf("vcs package %s is missing vcs_url", pkg.Name))
	}
	return nil
}
