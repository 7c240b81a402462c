package backends

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devildex/devildex/internal/docset"
)

// htmlzip builds an in-memory archive shaped like a readthedocs download:
// one top-level directory wrapping the site.
func htmlzip(t *testing.T, topDir string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(topDir + "/index.html")
	require.NoError(t, err)
	_, err = w.Write([]byte("<html><head><title>docs</title></head><body>ok</body></html>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadTheDocsRun(t *testing.T) {
	archive := htmlzip(t, "requests-stable")

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/v3/projects/requests/versions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"next": null, "results": [
			{"slug": "latest", "active": true, "built": false, "downloads": {}},
			{"slug": "stable", "active": true, "built": true,
			 "downloads": {"htmlzip": %q}}
		]}`, server.URL+"/dl/htmlzip")
	})
	mux.HandleFunc("/dl/htmlzip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	adapter := NewReadTheDocs(server.URL+"/api/v3", server.Client())
	workdir := t.TempDir()
	require.NoError(t, adapter.Prepare(workdir))

	target := docset.Target{PackageName: "Requests", Version: "2.31.0", Backend: docset.BackendReadTheDocs}
	res := adapter.Run(context.Background(), target, Source{}, workdir)

	require.True(t, res.OK(), "run failed: %v", res.Failure)
	assert.FileExists(t, filepath.Join(res.OutputPath, "index.html"))
}

func TestReadTheDocsProjectNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	adapter := NewReadTheDocs(server.URL, server.Client())
	res := adapter.Run(context.Background(), docset.Target{PackageName: "ghost", Version: "1.0"}, Source{}, t.TempDir())

	require.False(t, res.OK())
	assert.Equal(t, FailureOutputMissing, res.Failure.Kind)
}

func TestReadTheDocsServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewReadTheDocs(server.URL, server.Client())
	res := adapter.Run(context.Background(), docset.Target{PackageName: "x", Version: "1.0"}, Source{}, t.TempDir())

	require.False(t, res.OK())
	assert.Equal(t, FailureInvocation, res.Failure.Kind)
	assert.True(t, res.Failure.Kind.Transient())
}

func TestReadTheDocsNoBuiltVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"next": null, "results": [{"slug": "latest", "active": true, "built": false, "downloads": {}}]}`)
	}))
	defer server.Close()

	adapter := NewReadTheDocs(server.URL, server.Client())
	res := adapter.Run(context.Background(), docset.Target{PackageName: "x", Version: "1.0"}, Source{}, t.TempDir())

	require.False(t, res.OK())
	assert.Equal(t, FailureOutputMissing, res.Failure.Kind)
}

func TestChooseVersion(t *testing.T) {
	versions := []rtdVersion{
		{Slug: "latest", Active: true, Built: true},
		{Slug: "stable", Active: true, Built: true},
		{Slug: "v2.0.0", Active: true, Built: true},
		{Slug: "v3.0.0", Active: true, Built: false},
	}

	assert.Equal(t, "v2.0.0", chooseVersion(versions, "2.0.0").Slug)
	assert.Equal(t, "stable", chooseVersion(versions, "9.9.9").Slug)
	assert.Nil(t, chooseVersion(nil, "1.0"))

	// Built versions only, even when the target matches.
	assert.Equal(t, "stable", chooseVersion(versions, "3.0.0").Slug)
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../escape.html")
	require.NoError(t, err)
	_, err = w.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dir := t.TempDir()
	archive := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	err = extractZip(archive, filepath.Join(dir, "out"))
	assert.Error(t, err)
}
