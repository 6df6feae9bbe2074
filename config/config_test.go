package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BuiltinSource, cfg.Dataset.Source)
	assert.Equal(t, "random_forest", cfg.Model.Kind)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dataset:
  source: ./testdata/wine.data
  test_ratio: 0.3
model:
  kind: adaboost
  path: /tmp/wine.model
  params:
    num_estimators: 25
    max_depth: 2
http:
  port: 9090
  timeout: 5s
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./testdata/wine.data", cfg.Dataset.Source)
	assert.Equal(t, 0.3, cfg.Dataset.TestRatio)
	assert.Equal(t, int64(42), cfg.Dataset.Seed)
	assert.Equal(t, "adaboost", cfg.Model.Kind)
	assert.Equal(t, 25, cfg.Model.Params.NumEstimators)
	assert.Equal(t, 2, cfg.Model.Params.MaxDepth)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
dataset:
  test_ratio: 1.5
model:
  kind: svm
http:
  port: 70000
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_ratio")
	assert.Contains(t, err.Error(), "model.kind")
	assert.Contains(t, err.Error(), "http.port")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "model: [unterminated"))
	assert.Error(t, err)
}
