package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devildex/devildex/internal/config"
	"github.com/devildex/devildex/internal/docset"
	"github.com/devildex/devildex/internal/scanner"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.DocsetDir = t.TempDir()
	cfg.Backends.FetchDir = t.TempDir()
	cfg.Notify.Enabled = false
	cfg.Schedule.RebuildInterval = 0
	return cfg
}

func TestDaemonIngest(t *testing.T) {
	d, err := New(testConfig(t), "")
	require.NoError(t, err)
	defer d.store.Close()

	result := &scanner.ScanResult{
		Project: docset.Project{Name: "webapp", RootPath: "/srv/webapp"},
		Packages: []docset.Package{
			{Name: "flask", Version: "3.0.2", Source: docset.SourceIndex},
			{Name: "requests", Version: "2.31.0", Source: docset.SourceIndex},
		},
	}

	ctx := context.Background()
	enqueued, err := d.Ingest(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, 2, enqueued)

	project, err := d.store.GetProject(ctx, "webapp")
	require.NoError(t, err)
	pkgs, err := d.store.ListPackages(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, pkgs, 2)

	// Both builds are queued and keyed in flight.
	assert.Len(t, d.sched.InFlight(), 2)
}

func TestDaemonIngestDuplicateCoalesces(t *testing.T) {
	d, err := New(testConfig(t), "")
	require.NoError(t, err)
	defer d.store.Close()

	result := &scanner.ScanResult{
		Project:  docset.Project{Name: "webapp", RootPath: "/srv/webapp"},
		Packages: []docset.Package{{Name: "flask", Version: "3.0.2", Source: docset.SourceIndex}},
	}

	ctx := context.Background()
	first, err := d.Ingest(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	// The same snapshot again coalesces into the queued build.
	second, err := d.Ingest(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestApplyReloadReschedulesRebuild(t *testing.T) {
	d, err := New(testConfig(t), "")
	require.NoError(t, err)
	defer d.store.Close()
	defer d.periodic.Stop()

	next := testConfig(t)
	next.Schedule.RebuildInterval = config.Duration(time.Hour)
	d.applyReload(next)
	assert.Equal(t, next, d.cfg)
}
