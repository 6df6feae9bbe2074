package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winemodel/pipeline"
	"winemodel/predict"
)

const testConfig = `
dataset:
  source: builtin:wine
  seed: 42
  test_ratio: 0.2
  stratify: true
model:
  kind: random_forest
  path: %s
  params:
    num_estimators: 15
    max_depth: 6
    seed: 42
database:
  path: ""
log:
  level: error
  format: json
`

func setup(t *testing.T) (cfgPath, modelFile string) {
	t.Helper()
	dir := t.TempDir()
	modelFile = filepath.Join(dir, "models", "wine.model")
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(testConfig, modelFile)), 0o644))
	return cfgPath, modelFile
}

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	require.NoError(t, app.Run(append([]string{"winemodel"}, args...)))
	return out.String()
}

func TestDemoCli(t *testing.T) {
	cfgPath, modelFile := setup(t)

	out := run(t, "", "--config", cfgPath, "demo")
	var resp predict.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 0, resp.Prediction)
	assert.FileExists(t, modelFile)
}

func TestDemoCliMissingFeature(t *testing.T) {
	cfgPath, _ := setup(t)

	out := run(t, "", "--config", cfgPath, "demo", "--kind", "decision_tree", "--drop", "hue")
	assert.Equal(t, predict.MissingFeaturesMessage, strings.TrimSpace(out))
}

func TestTrainAndPredictCli(t *testing.T) {
	cfgPath, modelFile := setup(t)

	out := run(t, "", "--config", cfgPath, "train", "--kind", "adaboost", "--seed", "7")
	var trained struct {
		Kind string `json:"kind"`
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &trained))
	assert.Equal(t, "adaboost", trained.Kind)
	assert.Equal(t, modelFile, trained.Path)

	sample, err := json.Marshal(pipeline.ExampleRequest())
	require.NoError(t, err)

	out = run(t, string(sample), "--config", cfgPath, "predict")
	var resp predict.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.GreaterOrEqual(t, resp.Prediction, 0)
	assert.Less(t, resp.Prediction, 3)

	input := filepath.Join(t.TempDir(), "sample.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"alcohol": 13.2}`), 0o644))
	out = run(t, "", "--config", cfgPath, "predict", "--input", input)
	assert.Equal(t, predict.MissingFeaturesMessage, strings.TrimSpace(out))
}

func TestDescribeCli(t *testing.T) {
	cfgPath, _ := setup(t)

	out := run(t, "", "--config", cfgPath, "describe")
	assert.Contains(t, out, "proline")
	assert.Contains(t, out, "178 samples: class_0=59 class_1=71 class_2=48")
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  kind: svm\n"), 0o644))

	app := newApp()
	app.Writer = &bytes.Buffer{}
	assert.Error(t, app.Run([]string{"winemodel", "--config", path, "demo"}))
}
