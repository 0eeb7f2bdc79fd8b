package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 10, cfg.Crawl.ParallelConnections)
	require.Equal(t, 30, cfg.Crawl.TimeoutSeconds)
	require.Equal(t, 3, cfg.Crawl.MaxLinkDepth)
	require.Equal(t, "smart_merge", cfg.Readable.MergeStrategy)
	require.Equal(t, 500, cfg.OpenRouter.MaxCallsPerRun)
	require.Equal(t, 6000, cfg.OpenRouter.ReadableMaxChars)
	require.False(t, cfg.OpenRouter.Enabled)
	require.NotEmpty(t, cfg.Heuristics)
	require.NotEmpty(t, cfg.Media.DenyPatterns)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MWI_DATA_LOCATION", "/tmp/corpus")
	t.Setenv("MWI_OPENROUTER_MODEL", "openai/gpt-4o-mini")
	t.Setenv("MWI_OPENROUTER_MAX_CALLS_PER_RUN", "25")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/corpus", cfg.DataLocation)
	require.Equal(t, "openai/gpt-4o-mini", cfg.OpenRouter.Model)
	require.Equal(t, 25, cfg.OpenRouter.MaxCallsPerRun)
	require.Equal(t, filepath.Join("/tmp/corpus", "lands"), cfg.ArchiveRoot())
}

func TestValidateRejectsBadMergeStrategy(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Readable.MergeStrategy = "newest_wins"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsGCSWithoutBucket(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Storage.Provider = "gcs"
	require.Error(t, cfg.Validate())
}
