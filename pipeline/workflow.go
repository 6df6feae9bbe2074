// Package pipeline runs the train, save, reload and predict workflow over the
// wine data.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"winemodel/config"
	"winemodel/dataset"
	"winemodel/db"
	"winemodel/ml"
	"winemodel/modelstore"
	"winemodel/predict"
)

const BuiltinSource = config.BuiltinSource

// OptionsFromConfig maps the dataset and model sections of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Source: cfg.Dataset.Source,
		CSV: dataset.CSVOptions{
			Header:         cfg.Dataset.Header,
			LabelFirst:     cfg.Dataset.LabelFirst,
			OneBasedLabels: cfg.Dataset.OneBasedLabels,
			Encoding:       cfg.Dataset.Encoding,
			Comma:          ',',
		},
		Seed:      cfg.Dataset.Seed,
		TestRatio: cfg.Dataset.TestRatio,
		Stratify:  cfg.Dataset.Stratify,
		ModelKind: cfg.Model.Kind,
		Params:    cfg.Model.Params,
		ModelPath: cfg.Model.Path,
	}
}

// Options controls one train-and-reload run.
type Options struct {
	// Source is BuiltinSource or a CSV path or URL.
	Source    string
	CSV       dataset.CSVOptions
	Seed      int64
	TestRatio float64
	Stratify  bool
	ModelKind string
	Params    ml.Params
	ModelPath string
	// Example is the request predicted after reload; nil uses ExampleRequest.
	Example predict.Request
}

// TrainResult describes one fitted and saved model.
type TrainResult struct {
	RunID        string
	Artifact     *modelstore.Artifact
	ModelPath    string
	Evaluation   *ml.Evaluation
	Cleaning     CleaningStats
	Issues       []QualityIssue
	TrainSamples int
	TestSamples  int
	Duration     time.Duration
}

// Record converts the result into a training log row.
func (t *TrainResult) Record() db.TrainingRun {
	return db.TrainingRun{
		RunID:        t.RunID,
		ModelID:      t.Artifact.ID,
		ModelKind:    t.Artifact.Kind,
		ModelPath:    t.ModelPath,
		Accuracy:     t.Evaluation.Accuracy,
		Precision:    t.Evaluation.WeightedPrecision,
		Recall:       t.Evaluation.WeightedRecall,
		F1:           t.Evaluation.WeightedF1,
		TrainSamples: t.TrainSamples,
		TestSamples:  t.TestSamples,
		TrainedAt:    t.Artifact.CreatedAt,
	}
}

// Report is the outcome of Run.
type Report struct {
	*TrainResult
	Reloaded *modelstore.Artifact
	// Prediction is nil when the example request lacked features.
	Prediction         *predict.Response
	InMemoryPrediction *predict.Response
}

// Runner executes the train, save, reload and predict workflow against a Store.
type Runner struct {
	Store  *modelstore.Store
	Logger *zap.Logger
	// Out receives the missing-feature diagnostic.
	Out io.Writer
}

// NewRunner defaults a nil logger to a no-op and a nil out to io.Discard.
func NewRunner(store *modelstore.Store, logger *zap.Logger, out io.Writer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{Store: store, Logger: logger, Out: out}
}

// ExampleRequest is the hand-built request used after reload: the first row
// of the wine data.
func ExampleRequest() predict.Request {
	req := make(predict.Request, len(dataset.FeatureNames))
	for i, v := range dataset.FirstSample() {
		req[dataset.FeatureNames[i]] = v
	}
	return req
}

// LoadDataset returns the embedded wine data for BuiltinSource or an empty
// source, and reads opts.Source as CSV otherwise.
func LoadDataset(ctx context.Context, opts Options) (*dataset.Dataset, error) {
	if opts.Source == "" || opts.Source == BuiltinSource {
		return dataset.Wine(), nil
	}
	if strings.HasPrefix(opts.Source, "builtin:") {
		return nil, fmt.Errorf("unknown builtin dataset %q", opts.Source)
	}
	return dataset.LoadCSV(ctx, opts.Source, opts.CSV)
}

// Train loads, cleans and splits the data, fits the model, scores it on the
// held-out rows and saves the artifact to opts.ModelPath.
func (r *Runner) Train(ctx context.Context, opts Options) (*TrainResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger := r.Logger.With(zap.String("run_id", runID))

	if opts.ModelPath == "" {
		return nil, errors.New("model path is required")
	}

	ds, err := LoadDataset(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded",
		zap.String("source", opts.Source),
		zap.Int("samples", ds.Len()),
		zap.Int("features", ds.NumFeatures()),
		zap.Int("classes", ds.NumClasses()),
	)

	cleaned, issues, stats := NewDataCleaner(ds.NumFeatures()).Clean(ds)
	if stats.Rejected > 0 {
		logger.Warn("rows rejected by cleaning", zap.Int("rejected", stats.Rejected), zap.Any("issues", stats.Issues))
	}

	train, test, err := dataset.TrainTestSplit(cleaned, opts.TestRatio, opts.Seed, opts.Stratify)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}

	model, err := ml.NewClassifier(opts.ModelKind, opts.Params)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := model.Train(train.Features, train.Labels); err != nil {
		return nil, fmt.Errorf("train %s: %w", model.Kind(), err)
	}

	eval, err := ml.Evaluate(model, test.Features, test.Labels)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	logger.Info("model trained",
		zap.String("kind", model.Kind()),
		zap.Int("train_samples", train.Len()),
		zap.Int("test_samples", test.Len()),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("weighted_f1", eval.WeightedF1),
		zap.Any("confusion", eval.Confusion),
	)

	artifact := modelstore.NewArtifact(model, cleaned.FeatureNames, cleaned.ClassNames, eval)
	if err := r.Store.Save(ctx, opts.ModelPath, artifact); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	logger.Info("model saved", zap.String("path", opts.ModelPath), zap.String("model_id", artifact.ID))

	return &TrainResult{
		RunID:        runID,
		Artifact:     artifact,
		ModelPath:    opts.ModelPath,
		Evaluation:   eval,
		Cleaning:     stats,
		Issues:       issues,
		TrainSamples: train.Len(),
		TestSamples:  test.Len(),
		Duration:     time.Since(started),
	}, nil
}

// Run trains and saves a model, reloads it from storage and predicts the
// example request with both the in-memory and the reloaded model.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	result, err := r.Train(ctx, opts)
	if err != nil {
		return nil, err
	}

	reloaded, err := r.Store.Load(ctx, opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("reload model: %w", err)
	}
	if reloaded.ID != result.Artifact.ID {
		return nil, fmt.Errorf("reloaded model %s, saved %s", reloaded.ID, result.Artifact.ID)
	}
	r.Logger.Info("model reloaded", zap.String("path", opts.ModelPath), zap.String("model_id", reloaded.ID))

	example := opts.Example
	if example == nil {
		example = ExampleRequest()
	}

	report := &Report{TrainResult: result, Reloaded: reloaded}

	saved, err := predict.NewPredictor(result.Artifact)
	if err != nil {
		return nil, err
	}
	restored, err := predict.NewPredictor(reloaded)
	if err != nil {
		return nil, err
	}

	resp, ok, err := predict.Shape(ctx, restored, example, r.Out)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.Logger.Warn("example request is missing features")
		return report, nil
	}
	inMemory, err := saved.Predict(ctx, example)
	if err != nil {
		return nil, err
	}
	if inMemory.Prediction != resp.Prediction {
		return nil, fmt.Errorf("reloaded model predicts %d, in-memory model %d", resp.Prediction, inMemory.Prediction)
	}
	report.Prediction = resp
	report.InMemoryPrediction = &inMemory
	r.Logger.Info("example predicted",
		zap.Int("prediction", resp.Prediction),
		zap.String("class", reloaded.ClassName(resp.Prediction)),
	)
	return report, nil
}
