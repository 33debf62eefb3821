package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	for _, key := range []string{"GEMINI_API_KEY", "RESALE_GEMINI_API_KEY", "RESALE_REDIS_ADDR", "RESALE_SQLITE_PATH"} {
		t.Setenv(key, "")
	}
}

func TestRun_RequiresAPIKeyForResearch(t *testing.T) {
	isolateEnv(t)

	err := run(options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
}

func TestRun_CheckSkipsAPIKey(t *testing.T) {
	isolateEnv(t)
	t.Setenv("RESALE_SOURCES", "vinted")
	t.Setenv("RESALE_FETCH_TIMEOUT", "1ms")

	err := run(options{check: true})
	if err != nil {
		assert.ErrorIs(t, err, errUnavailable)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "research.toml")
	require.NoError(t, os.WriteFile(path, []byte("sources = [\"craigslist\"]\n"), 0o644))

	err := run(options{configPath: path, check: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source "craigslist"`)
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"photos":["https://example.com/1.jpg"],"title":"Air Max 90","price":80}`), 0o644))

	in, err := readInput(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/1.jpg"}, in.Photos)
	assert.Equal(t, "Air Max 90", in.Title)
	assert.Equal(t, 80.0, in.Price)

	_, err = readInput(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
