package backends

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/devildex/devildex/internal/config"
	"github.com/devildex/devildex/internal/docset"
)

// AdapterVersion participates in build fingerprints. Bump whenever adapter
// behavior changes generated output.
const AdapterVersion = "1"

// Registry holds the configured adapters and applies the backend selection
// policy for a package.
type Registry struct {
	adapters map[docset.BackendKind]Adapter
	override map[string]docset.BackendKind
}

// NewRegistry wires all adapters from configuration. Executable overrides and
// the ReadTheDocs API base come from cfg; project overrides are resolved
// against normalized package names.
func NewRegistry(cfg config.BackendsConfig) *Registry {
	bin := func(k docset.BackendKind) string { return cfg.Executables[string(k)] }

	httpClient := &http.Client{Timeout: 5 * time.Minute}

	r := &Registry{
		adapters: map[docset.BackendKind]Adapter{
			docset.BackendSphinx:      NewSphinx(bin(docset.BackendSphinx)),
			docset.BackendMkDocs:      NewMkDocs(bin(docset.BackendMkDocs)),
			docset.BackendPdoc3:       NewPdoc3(bin(docset.BackendPdoc3)),
			docset.BackendPydoctor:    NewPydoctor(bin(docset.BackendPydoctor)),
			docset.BackendReadTheDocs: NewReadTheDocs(cfg.ReadTheDocsAPI, httpClient),
		},
		override: make(map[string]docset.BackendKind, len(cfg.ProjectOverrides)),
	}
	for name, kind := range cfg.ProjectOverrides {
		// Validation already rejected unknown kinds.
		r.override[docset.NormalizeName(name)] = docset.BackendKind(kind)
	}
	return r
}

// Get returns the adapter for a backend kind.
func (r *Registry) Get(kind docset.BackendKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// Candidates returns the ordered adapters to attempt for a package, applying
// the selection policy: explicit project override, then the package's
// declared documentation tool, then source-tree detection in fixed priority
// order. The readthedocs fetch is always appended as last resort.
func (r *Registry) Candidates(pkg docset.Package, src Source) []Adapter {
	rtd := r.adapters[docset.BackendReadTheDocs]

	if kind, ok := r.override[docset.NormalizeName(pkg.Name)]; ok {
		slog.Debug("Backend forced by project override", "package", pkg.Name, "backend", kind)
		return r.withFallback(kind, rtd)
	}

	if pkg.DocTool != "" {
		if kind, err := docset.ParseBackendKind(pkg.DocTool); err == nil {
			slog.Debug("Backend selected by declared doc tool", "package", pkg.Name, "backend", kind)
			return r.withFallback(kind, rtd)
		}
		slog.Warn("Package declares unknown doc tool, falling back to detection",
			"package", pkg.Name, "doc_tool", pkg.DocTool)
	}

	candidates := make([]Adapter, 0, len(docset.DefaultBackendOrder)+1)
	for _, kind := range docset.DefaultBackendOrder {
		if a := r.adapters[kind]; a.CanHandle(src) {
			candidates = append(candidates, a)
		}
	}
	return append(candidates, rtd)
}

// PinnedCandidates returns the attempt order for an explicitly requested
// backend: that adapter, then the readthedocs fetch as last resort.
func (r *Registry) PinnedCandidates(kind docset.BackendKind) []Adapter {
	return r.withFallback(kind, r.adapters[docset.BackendReadTheDocs])
}

// Primary picks the backend a new build for pkg is keyed under, using only
// information available before any source fetch: the override, the declared
// tool, or detection on an already-local tree. VCS packages default to the
// first detection-order backend and rely on the runtime fallback chain;
// index packages have no source and go straight to fetching.
func (r *Registry) Primary(pkg docset.Package) docset.BackendKind {
	if kind, ok := r.override[docset.NormalizeName(pkg.Name)]; ok {
		return kind
	}
	if pkg.DocTool != "" {
		if kind, err := docset.ParseBackendKind(pkg.DocTool); err == nil {
			return kind
		}
	}
	switch pkg.Source {
	case docset.SourcePath:
		src := Source{Path: pkg.SourcePath}
		for _, kind := range docset.DefaultBackendOrder {
			if r.adapters[kind].CanHandle(src) {
				return kind
			}
		}
		return docset.BackendReadTheDocs
	case docset.SourceVCS:
		return docset.DefaultBackendOrder[0]
	default:
		return docset.BackendReadTheDocs
	}
}

// withFallback builds [selected, readthedocs], collapsing the pair when the
// selection already is the fetch backend.
func (r *Registry) withFallback(kind docset.BackendKind, rtd Adapter) []Adapter {
	if kind == docset.BackendReadTheDocs {
		return []Adapter{rtd}
	}
	if a, ok := r.adapters[kind]; ok {
		return []Adapter{a, rtd}
	}
	return []Adapter{rtd}
}
