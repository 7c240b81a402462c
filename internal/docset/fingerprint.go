package docset

import (
	"strings"

	"github.com/inful/mdfp"
)

// Fingerprint is the deterministic identity digest for one build request.
// Equal fingerprints are definitionally the same build, even across projects.
type Fingerprint string

// Resolver computes fingerprints for docset targets. The adapter and theme
// versions are fingerprint inputs so that upgrading either yields a new
// fingerprint (and therefore a fresh build) for an otherwise identical target.
type Resolver struct {
	AdapterVersion string
	ThemeVersion   string
}

// Fingerprint derives the digest for a target. Pure function: no I/O, stable
// across process restarts.
//
// The digest covers two canonical parts: the normalized target tuple and the
// adapter-relevant inputs, each joined with LF so that field boundaries cannot
// collide ("a"+"bc" vs "ab"+"c").
func (r Resolver) Fingerprint(t Target) Fingerprint {
	head := strings.Join([]string{
		NormalizeName(t.PackageName),
		t.Version,
		string(t.Backend),
	}, "\n")
	inputs := strings.Join([]string{
		r.AdapterVersion,
		r.ThemeVersion,
	}, "\n")
	return Fingerprint(mdfp.CalculateFingerprintFromParts(head, inputs))
}
