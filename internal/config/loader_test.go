package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoadMissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	loader := NewLoader(filepath.Join(tmpDir, "absent.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)

	// Defaults apply when no file exists
	assert.Equal(t, 280, cfg.Social.MaxPostLength)
	assert.True(t, cfg.Posting.Enabled)
}

func TestLoaderLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "magpie.json")

	raw := `{
		"data_dir": "` + tmpDir + `",
		"social": {"dry_run": true, "max_post_length": 140},
		"posting": {"media_probability": 0.9, "media_dir": "pics"},
		"llm": {"providers": [
			{"name": "primary", "type": "gemini", "enabled": true, "api_key": "AIzaTest", "model": "gemini-2.0-flash-lite"},
			{"name": "backup", "type": "anthropic", "enabled": false, "api_key": "sk-ant-test", "model": "claude-sonnet-4"}
		]}
	}`
	require.NoError(t, os.WriteFile(configPath, []byte(raw), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.True(t, cfg.Social.DryRun)
	assert.Equal(t, 140, cfg.Social.MaxPostLength)
	assert.InDelta(t, 0.9, cfg.Posting.MediaProbability, 1e-9)
	assert.Equal(t, "pics", cfg.Posting.MediaDir)

	require.Len(t, cfg.LLM.Providers, 2)
	assert.Equal(t, "primary", cfg.LLM.Providers[0].Name)
	assert.Equal(t, "gemini", cfg.LLM.Providers[0].Type)
	assert.True(t, cfg.LLM.Providers[0].Enabled)
	assert.Equal(t, "backup", cfg.LLM.Providers[1].Name)
	assert.False(t, cfg.LLM.Providers[1].Enabled)

	// Untouched fields keep their defaults
	assert.Equal(t, 5, cfg.Actions.MaxPerCycle)
}

func TestLoaderDerivedPaths(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "magpie.json")

	raw := `{"data_dir": "` + tmpDir + `"}`
	require.NoError(t, os.WriteFile(configPath, []byte(raw), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmpDir, "magpie.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join(tmpDir, "cookies.json"), cfg.Social.CookieFile)
	assert.Equal(t, filepath.Join(tmpDir, "interactions.json"), cfg.Ledger.InteractionsFile)
	assert.Equal(t, filepath.Join(tmpDir, "used_media.log"), cfg.Ledger.MediaLogFile)
	assert.Equal(t, filepath.Join(tmpDir, "post_queue.json"), cfg.Queue.File)
}

func TestLoaderLoadMalformedFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "magpie.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "magpie.json")

	loader := NewLoader(configPath)

	cfg := DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Social.DryRun = true
	cfg.Posting.MaxPerCycle = 7

	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)

	assert.True(t, loaded.Social.DryRun)
	assert.Equal(t, 7, loaded.Posting.MaxPerCycle)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/tmp/custom.json")
	assert.Equal(t, "/tmp/custom.json", loader.GetConfigPath())

	loader = NewLoader("")
	path := loader.GetConfigPath()
	assert.Contains(t, path, ".magpie")
}
