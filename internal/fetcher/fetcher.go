// Package fetcher resolves a package's declared source into a local tree
// adapters can run against.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/devildex/devildex/internal/backends"
	"github.com/devildex/devildex/internal/docset"
	dderrors "github.com/devildex/devildex/internal/errors"
)

// Resolver materializes package sources. Path installs are used in place,
// VCS installs are shallow-cloned under cloneDir, index installs yield an
// empty source and rely on the fetch backend.
type Resolver struct {
	cloneDir string
}

// New builds a Resolver cloning VCS sources under cloneDir.
func New(cloneDir string) *Resolver {
	return &Resolver{cloneDir: cloneDir}
}

// Resolve returns the source tree for pkg. An empty Source with nil error
// means no local tree exists and only fetching backends apply.
func (r *Resolver) Resolve(ctx context.Context, pkg docset.Package) (backends.Source, error) {
	switch pkg.Source {
	case docset.SourcePath:
		info, err := os.Stat(pkg.SourcePath)
		if err != nil || !info.IsDir() {
			return backends.Source{}, dderrors.FetchFailed(
				fmt.Sprintf("source path %s for %s is not a directory", pkg.SourcePath, pkg.Name), err)
		}
		return backends.Source{Path: pkg.SourcePath}, nil

	case docset.SourceVCS:
		path, err := r.clone(ctx, pkg)
		if err != nil {
			return backends.Source{}, err
		}
		return backends.Source{Path: path}, nil

	default:
		// Index installs carry no source tree.
		return backends.Source{}, nil
	}
}

// clone performs a shallow single-branch clone, preferring the tag matching
// the package version. A previous clone for the same name and version is
// reused as-is.
func (r *Resolver) clone(ctx context.Context, pkg docset.Package) (string, error) {
	if pkg.VCSURL == "" {
		return "", dderrors.FetchFailed(fmt.Sprintf("package %s declares a vcs source without a url", pkg.Name), nil)
	}

	dest := filepath.Join(r.cloneDir, fmt.Sprintf("%s@%s", docset.NormalizeName(pkg.Name), pkg.Version))
	if info, err := os.Stat(filepath.Join(dest, ".git")); err == nil && info.IsDir() {
		slog.Debug("Reusing existing clone", "package", pkg.Name, "path", dest)
		return dest, nil
	}
	if err := os.MkdirAll(r.cloneDir, 0o755); err != nil {
		return "", dderrors.FetchFailed("creating clone dir", err)
	}

	refs := []plumbing.ReferenceName{
		plumbing.NewTagReferenceName("v" + pkg.Version),
		plumbing.NewTagReferenceName(pkg.Version),
		"", // default branch
	}

	var lastErr error
	for _, ref := range refs {
		opts := &git.CloneOptions{
			URL:          pkg.VCSURL,
			Depth:        1,
			SingleBranch: true,
		}
		if ref != "" {
			opts.ReferenceName = ref
		}

		slog.Debug("Cloning package source", "package", pkg.Name, "url", pkg.VCSURL, "ref", ref)
		_, err := git.PlainCloneContext(ctx, dest, false, opts)
		if err == nil {
			return dest, nil
		}
		lastErr = err
		os.RemoveAll(dest)
		if ctx.Err() != nil {
			break
		}
	}
	return "", dderrors.FetchFailed(fmt.Sprintf("cloning %s from %s", pkg.Name, pkg.VCSURL), lastErr)
}
