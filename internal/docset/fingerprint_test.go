package docset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	r := Resolver{AdapterVersion: "1.2.0", ThemeVersion: "0.4.1"}
	target := Target{PackageName: "requests", Version: "2.31.0", Backend: BackendSphinx}

	first := r.Fingerprint(target)
	second := r.Fingerprint(target)

	require.NotEmpty(t, first)
	require.Equal(t, first, second)
}

func TestFingerprintNormalizesPackageName(t *testing.T) {
	r := Resolver{AdapterVersion: "1.0.0", ThemeVersion: "1.0.0"}

	a := r.Fingerprint(Target{PackageName: "Typing_Extensions", Version: "4.9.0", Backend: BackendPdoc3})
	b := r.Fingerprint(Target{PackageName: "typing-extensions", Version: "4.9.0", Backend: BackendPdoc3})

	require.Equal(t, a, b)
}

func TestFingerprintSensitiveToInputs(t *testing.T) {
	base := Resolver{AdapterVersion: "1.0.0", ThemeVersion: "1.0.0"}
	target := Target{PackageName: "flask", Version: "3.0.0", Backend: BackendSphinx}
	ref := base.Fingerprint(target)

	t.Run("version", func(t *testing.T) {
		other := base.Fingerprint(Target{PackageName: "flask", Version: "3.0.1", Backend: BackendSphinx})
		require.NotEqual(t, ref, other)
	})

	t.Run("backend", func(t *testing.T) {
		other := base.Fingerprint(Target{PackageName: "flask", Version: "3.0.0", Backend: BackendMkDocs})
		require.NotEqual(t, ref, other)
	})

	t.Run("theme version", func(t *testing.T) {
		r := Resolver{AdapterVersion: "1.0.0", ThemeVersion: "2.0.0"}
		require.NotEqual(t, ref, r.Fingerprint(target))
	})

	t.Run("adapter version", func(t *testing.T) {
		r := Resolver{AdapterVersion: "1.1.0", ThemeVersion: "1.0.0"}
		require.NotEqual(t, ref, r.Fingerprint(target))
	})
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Concatenation of adjacent fields must not collide.
	r := Resolver{}
	a := r.Fingerprint(Target{PackageName: "ab", Version: "c", Backend: BackendSphinx})
	b := r.Fingerprint(Target{PackageName: "a", Version: "bc", Backend: BackendSphinx})
	require.NotEqual(t, a, b)
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"requests", "requests"},
		{"Typing_Extensions", "typing-extensions"},
		{"zope.interface", "zope-interface"},
		{"a__b..c--d", "a-b-c-d"},
		{"  Flask  ", "flask"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeName(tc.in), "input %q", tc.in)
	}
}

func TestParseBackendKind(t *testing.T) {
	k, err := ParseBackendKind("sphinx")
	require.NoError(t, err)
	require.Equal(t, BackendSphinx, k)

	_, err = ParseBackendKind("docbook")
	require.Error(t, err)
}
