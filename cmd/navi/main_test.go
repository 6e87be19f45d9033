package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/navi/internal/config"
	"github.com/antoniostano/navi/internal/voice"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func setTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("NAVI_CONFIG_FILE", "")
	t.Setenv("NAVI_MEMORY_PATH", filepath.Join(dir, "memory.json"))
	t.Setenv("NAVI_USER_ID", "josh")
	t.Setenv("NAVI_LOG_LEVEL", "error")
	return dir
}

func TestMemorySeedExportAndContext(t *testing.T) {
	dir := setTestEnv(t)
	fixture := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(`
people:
  - id: josh
    name: Josh
    facts: ["has a dog"]
globalFacts: ["bins go out on tuesday"]
`), 0o600))

	out, err := execute(t, "memory", "seed", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded")

	out, err = execute(t, "memory", "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"Josh"`)
	assert.Contains(t, out, "bins go out on tuesday")

	out, err = execute(t, "memory", "context")
	require.NoError(t, err)
	assert.Contains(t, out, "Name: Josh")
	assert.Contains(t, out, "Known facts: has a dog")

	out, err = execute(t, "memory", "context", "stranger")
	require.NoError(t, err)
	assert.NotContains(t, out, "Josh")
	assert.Contains(t, out, "General facts: bins go out on tuesday")
}

func TestMemoryContextHonoursDigestSizes(t *testing.T) {
	dir := setTestEnv(t)
	fixture := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(`
people:
  - id: josh
    name: Josh
    facts: ["has a dog", "likes jazz", "works nights"]
globalFacts: ["bins go out on tuesday"]
`), 0o600))
	_, err := execute(t, "memory", "seed", fixture)
	require.NoError(t, err)

	t.Setenv("NAVI_DIGEST_RECENT_FACTS", "1")
	t.Setenv("NAVI_DIGEST_GLOBAL_FACTS", "0")
	out, err := execute(t, "memory", "context")
	require.NoError(t, err)
	assert.Contains(t, out, "works nights")
	assert.NotContains(t, out, "has a dog")
	assert.NotContains(t, out, "General facts")
}

func TestMemoryContextWhenEmpty(t *testing.T) {
	setTestEnv(t)

	out, err := execute(t, "memory", "context")
	require.NoError(t, err)
	assert.Equal(t, "(nothing known about josh)\n", out)
}

func TestConfigErrorsSurface(t *testing.T) {
	setTestEnv(t)
	t.Setenv("NAVI_MAX_TURNS", "zero")

	_, err := execute(t, "memory", "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config error")
}

func TestMemoryRestoreNeedsDatabase(t *testing.T) {
	setTestEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "memory", "restore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestSayRequiresText(t *testing.T) {
	setTestEnv(t)
	_, err := execute(t, "say")
	assert.Error(t, err)
}

func TestConsoleSpeakerSelection(t *testing.T) {
	cfg := config.Defaults()
	cfg.TTSMode = "console"

	sp, err := newSpeaker(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &voice.ConsoleSpeaker{}, sp)
}

func TestScriptedTranscriberSelection(t *testing.T) {
	cfg := config.Defaults()
	cfg.STTMode = "mock"

	stt, err := newTranscriber(cfg, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &voice.ScriptedTranscriber{}, stt)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel(" warn "))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("whatever"))
}
