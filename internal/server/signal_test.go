package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devildex/devildex/internal/docset"
)

func TestSignalWriterRoundTrip(t *testing.T) {
	root := t.TempDir()
	sw := NewSignalWriter(root)
	tgt := docset.Target{PackageName: "Flask", Version: "3.0.2", Backend: docset.BackendSphinx}

	// Unwritten targets read as zero.
	id, err := sw.Read(tgt)
	require.NoError(t, err)
	assert.Zero(t, id)

	require.NoError(t, sw.Write(tgt, 1))
	id, err = sw.Read(tgt)
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)

	// Each write replaces the value a poller observes.
	require.NoError(t, sw.Write(tgt, 2))
	id, err = sw.Read(tgt)
	require.NoError(t, err)
	assert.EqualValues(t, 2, id)

	// The artifact lives under the normalized package path.
	data, err := os.ReadFile(filepath.Join(root, "flask", "3.0.2", "sphinx", signalFileName))
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(data))

	require.NoError(t, sw.Remove(tgt))
	id, err = sw.Read(tgt)
	require.NoError(t, err)
	assert.Zero(t, id)

	// Removing twice is fine.
	require.NoError(t, sw.Remove(tgt))
}
