package http

import (
	"net/http"

	"go.uber.org/zap"

	"winemodel/db"
	"winemodel/ml"
	"winemodel/monitoring"
	"winemodel/pipeline"
)

// TrainRequest overrides parts of the configured training options. Every field
// is optional.
type TrainRequest struct {
	Kind      string     `json:"kind"`
	Params    *ml.Params `json:"params"`
	Seed      *int64     `json:"seed"`
	TestRatio float64    `json:"test_ratio"`
}

// TrainResponse summarises a finished training run.
type TrainResponse struct {
	RunID        string                  `json:"run_id"`
	Model        modelInfo               `json:"model"`
	Cleaning     pipeline.CleaningStats  `json:"cleaning"`
	Issues       []pipeline.QualityIssue `json:"issues,omitempty"`
	TrainSamples int                     `json:"train_samples"`
	TestSamples  int                     `json:"test_samples"`
	DurationMs   int64                   `json:"duration_ms"`
}

func (req TrainRequest) apply(opts pipeline.Options) pipeline.Options {
	if req.Kind != "" {
		opts.ModelKind = req.Kind
	}
	if req.Params != nil {
		opts.Params = *req.Params
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
		opts.Params.Seed = *req.Seed
	}
	if req.TestRatio > 0 && req.TestRatio < 1 {
		opts.TestRatio = req.TestRatio
	}
	return opts
}

// handleTrain retrains, saves to the configured model path and starts serving
// the new model. An empty body retrains with the configured options.
func (a *API) handleTrain(w http.ResponseWriter, r *http.Request) {
	if a.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "training is disabled")
		return
	}

	var req TrainRequest
	if !readJSON(w, r, &req, true) {
		return
	}
	if req.Kind != "" {
		if _, err := ml.NewClassifier(req.Kind, ml.Params{}); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if !a.trainMu.TryLock() {
		writeError(w, http.StatusConflict, "training already in progress")
		return
	}
	defer a.trainMu.Unlock()

	opts := req.apply(a.trainOpts)
	result, err := a.runner.Train(r.Context(), opts)
	if err != nil {
		a.logger.Error("training failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "training failed: "+err.Error())
		return
	}

	if a.cache != nil {
		a.cache.Put(result.ModelPath, result.Artifact)
	}
	if err := a.SetArtifact(result.Artifact); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	record := result.Record()
	if db.Enabled() {
		if err := db.SaveTrainingRun(record); err != nil {
			a.logger.Warn("save training run failed", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}
	a.publish(monitoring.TrainingEvent, record)

	writeJSON(w, http.StatusOK, TrainResponse{
		RunID:        result.RunID,
		Model:        modelInfoFor(result.Artifact),
		Cleaning:     result.Cleaning,
		Issues:       result.Issues,
		TrainSamples: result.TrainSamples,
		TestSamples:  result.TestSamples,
		DurationMs:   result.Duration.Milliseconds(),
	})
}
