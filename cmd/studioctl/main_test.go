package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/imagestudio/internal/config"
	"github.com/digkill/imagestudio/internal/models"
)

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	load := func() (config.Config, error) {
		return config.Config{
			LogLevel:       "error",
			StorageBackend: config.BackendFile,
			FileStorageDir: filepath.Join(dir, "state"),
		}, nil
	}
	cmd := newRootCommand(load)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUpgradeCancelUsage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	out, err := run(t, dir, "upgrade", "basic")
	require.NoError(t, err)
	var sub models.UserSubscription
	require.NoError(t, json.Unmarshal([]byte(out), &sub))
	assert.Equal(t, "basic", sub.PlanID)

	_, err = run(t, dir, "upgrade", "platinum")
	assert.Error(t, err)

	out, err = run(t, dir, "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "* basic")

	_, err = run(t, dir, "cancel")
	require.NoError(t, err)

	out, err = run(t, dir, "usage")
	require.NoError(t, err)
	var usage models.UsageStats
	require.NoError(t, json.Unmarshal([]byte(out), &usage))
	assert.Equal(t, "Basic", usage.Plan)
	assert.False(t, usage.CanGenerate)
}

func TestHistoryImportExport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	src := filepath.Join(dir, "in.json")
	require.NoError(t, os.WriteFile(src, []byte(`[{"id":"a","prompt":"hello","provider":"kie","modelId":"flux-2","timestamp":1,"tags":["x"],"category":"social"}]`), 0o644))

	out, err := run(t, dir, "history", "import", src)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 images")

	dst := filepath.Join(dir, "out.json")
	_, err = run(t, dir, "history", "export", "-o", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	var records []models.ImageRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "hello", records[0].Prompt)

	out, err = run(t, dir, "history", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 1`)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{}`), 0o644))
	_, err = run(t, dir, "history", "import", bad)
	assert.Error(t, err)

	_, err = run(t, dir, "history", "clear")
	require.NoError(t, err)
	out, err = run(t, dir, "history", "export")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}
