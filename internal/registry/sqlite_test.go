package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devildex/devildex/internal/docset"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testTarget() docset.Target {
	return docset.Target{PackageName: "requests", Version: "2.31.0", Backend: docset.BackendSphinx}
}

func terminalRecord(id string, state TaskState, target docset.Target) BuildRecord {
	now := time.Now().UTC()
	started := now.Add(-time.Minute)
	return BuildRecord{
		ID:          id,
		Fingerprint: docset.Fingerprint("fp-" + id),
		Target:      target,
		State:       state,
		EnqueuedAt:  now.Add(-2 * time.Minute),
		StartedAt:   &started,
		CompletedAt: &now,
	}
}

func TestRegisterAndGetProject(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	p, err := store.RegisterProject(ctx, docset.Project{Name: "webapp", RootPath: "/srv/webapp", Interpreter: "/srv/webapp/.venv/bin/python"})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.False(t, p.RegisteredAt.IsZero())

	// Re-registering updates path/interpreter but keeps identity.
	again, err := store.RegisterProject(ctx, docset.Project{Name: "webapp", RootPath: "/srv/webapp2", Interpreter: "python3"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, "/srv/webapp2", again.RootPath)

	_, err = store.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplacePackagesSupersedesSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	p, err := store.RegisterProject(ctx, docset.Project{Name: "webapp", RootPath: "/srv/webapp", Interpreter: "python3"})
	require.NoError(t, err)

	first := []docset.Package{
		{Name: "requests", Version: "2.30.0", Source: docset.SourceIndex, ProjectURLs: map[string]string{"Homepage": "https://requests.dev"}},
		{Name: "click", Version: "8.1.0", Source: docset.SourceIndex},
	}
	require.NoError(t, store.ReplacePackages(ctx, p.ID, first))

	// Rescan with a new version supersedes, never mutates in place.
	second := []docset.Package{
		{Name: "requests", Version: "2.31.0", Source: docset.SourceIndex},
	}
	require.NoError(t, store.ReplacePackages(ctx, p.ID, second))

	pkgs, err := store.ListPackages(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "2.31.0", pkgs[0].Version)

	found, err := store.FindPackage(ctx, "Requests", "2.31.0")
	require.NoError(t, err)
	assert.Equal(t, "requests", found.Name)
}

func TestRecordSuccessBumpsBuildID(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	target := testTarget()

	rec := terminalRecord("task-1", TaskSucceeded, target)
	rec.OutputPath = "/docsets/requests/2.31.0/sphinx"
	id1, err := store.RecordSuccess(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)

	rec2 := terminalRecord("task-2", TaskSucceeded, target)
	rec2.OutputPath = "/docsets/requests/2.31.0/sphinx"
	id2, err := store.RecordSuccess(ctx, rec2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id2)

	d, err := store.GetDocset(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.BuildID)
	assert.Equal(t, "available", d.Status)
	assert.Empty(t, d.LastError)
	assert.Equal(t, rec2.OutputPath, d.OutputPath)

	history, err := store.ListBuildHistory(ctx, target, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRecordFailurePreservesLastGoodBuild(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	target := testTarget()

	ok := terminalRecord("task-ok", TaskSucceeded, target)
	ok.OutputPath = "/docsets/requests/2.31.0/sphinx"
	_, err := store.RecordSuccess(ctx, ok)
	require.NoError(t, err)

	fail := terminalRecord("task-fail", TaskFailed, target)
	fail.Error = "sphinx-build exited with status 2"
	require.NoError(t, store.RecordFailure(ctx, fail))

	d, err := store.GetDocset(ctx, target)
	require.NoError(t, err)
	// Build id never increments on failure; stale output stays visible.
	assert.Equal(t, int64(1), d.BuildID)
	assert.Equal(t, ok.OutputPath, d.OutputPath)
	assert.Equal(t, "failed", d.Status)
	assert.Contains(t, d.LastError, "exited with status 2")
}

func TestGetDocsetNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetDocset(t.Context(), testTarget())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocset(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	target := testTarget()

	rec := terminalRecord("task-1", TaskSucceeded, target)
	rec.OutputPath = "/out"
	_, err := store.RecordSuccess(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, store.DeleteDocset(ctx, target))
	_, err = store.GetDocset(ctx, target)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteDocset(ctx, target), ErrNotFound)
}

func TestListProjectDocsets(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	p, err := store.RegisterProject(ctx, docset.Project{Name: "webapp", RootPath: "/srv", Interpreter: "python3"})
	require.NoError(t, err)
	require.NoError(t, store.ReplacePackages(ctx, p.ID, []docset.Package{
		{Name: "requests", Version: "2.31.0", Source: docset.SourceIndex},
	}))

	rec := terminalRecord("task-1", TaskSucceeded, testTarget())
	rec.OutputPath = "/out"
	_, err = store.RecordSuccess(ctx, rec)
	require.NoError(t, err)

	// Unrelated docset should not appear in the project listing.
	other := terminalRecord("task-2", TaskSucceeded, docset.Target{PackageName: "flask", Version: "3.0.0", Backend: docset.BackendMkDocs})
	other.OutputPath = "/out2"
	_, err = store.RecordSuccess(ctx, other)
	require.NoError(t, err)

	list, err := store.ListProjectDocsets(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "requests", list[0].Target.PackageName)

	all, err := store.ListDocsets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
