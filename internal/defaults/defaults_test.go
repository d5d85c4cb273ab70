package defaults

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestListDefaults(t *testing.T) {
	files, err := ListDefaults()
	require.NoError(t, err)
	assert.Equal(t, []string{"config.yaml"}, files)
}

func TestDefaultConfigIsYAML(t *testing.T) {
	content, err := GetDefault("config.yaml")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(content, &doc))
	assert.Equal(t, "deepseek-chat", doc["model"])
	assert.Equal(t, 5, doc["max_iterations"])
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(DataDirEnv, dir)

	got, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestEnsureDataDirKeepsExistingFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, EnsureDataDir(dir))

	path := filepath.Join(dir, "config.yaml")
	require.FileExists(t, path)

	require.NoError(t, os.WriteFile(path, []byte("model: custom\n"), 0o600))
	require.NoError(t, EnsureDataDir(dir))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "model: custom\n", string(data))

	require.NoError(t, Reset(dir))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "deepseek-chat")
}
