package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.BuildTimeout.Std())
	assert.Equal(t, "https://readthedocs.org/api/v3", cfg.Backends.ReadTheDocsAPI)
	assert.NotEmpty(t, cfg.DocsetDir)
	assert.Equal(t, "127.0.0.1:8420", cfg.Server.Addr())
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("DEVILDEX_TEST_DOCSET_DIR", "/tmp/docsets-env")

	cfg, err := Parse([]byte("docset_dir: ${DEVILDEX_TEST_DOCSET_DIR}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/docsets-env", cfg.DocsetDir)
}

func TestParseRejectsUnknownOverrideBackend(t *testing.T) {
	raw := []byte("backends:\n  project_overrides:\n    myproj: docbook\n")
	_, err := Parse(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docbook")
}

func TestParseRejectsNotifyWithoutURL(t *testing.T) {
	_, err := Parse([]byte("notify:\n  enabled: true\n"))
	require.Error(t, err)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg, err := Parse([]byte("retry:\n  mode: linear\n  initial: 500ms\n  max: 5s\n  max_retries: 4\n"))
	require.NoError(t, err)

	p := cfg.Retry.Policy()
	assert.Equal(t, 500*time.Millisecond, p.Initial)
	assert.Equal(t, 5*time.Second, p.Max)
	assert.Equal(t, 4, p.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, p.Delay(1))
	assert.Equal(t, time.Second, p.Delay(2))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/devildex.yaml")
	require.Error(t, err)
}
