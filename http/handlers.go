package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"winemodel/db"
	"winemodel/ml"
	"winemodel/modelstore"
	"winemodel/monitoring"
	"winemodel/pipeline"
	"winemodel/predict"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errNoModel = errors.New("no model loaded")

// API holds what the handlers share. The served model is swapped atomically
// by retraining and by hot reload.
type API struct {
	model     atomic.Pointer[predict.Predictor]
	cache     *modelstore.Cache
	runner    *pipeline.Runner
	trainOpts pipeline.Options
	hub       *monitoring.Hub
	counters  *monitoring.Counters
	logger    *zap.Logger
	started   time.Time

	// trainMu admits one training run at a time.
	trainMu sync.Mutex
}

// APIConfig collects the collaborators of an API. Runner and Hub may be nil.
type APIConfig struct {
	Cache  *modelstore.Cache
	Runner *pipeline.Runner
	// Train is the base for POST /api/train; requests may override kind,
	// params, seed and test ratio.
	Train  pipeline.Options
	Hub    *monitoring.Hub
	Logger *zap.Logger
}

// NewAPI builds the handlers. Call SetArtifact or ReloadModel before serving predictions.
func NewAPI(cfg APIConfig) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		cache:     cfg.Cache,
		runner:    cfg.Runner,
		trainOpts: cfg.Train,
		hub:       cfg.Hub,
		counters:  monitoring.NewCounters(),
		logger:    logger,
		started:   time.Now(),
	}
}

// RegisterHandlers mounts the /api routes on mux.
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("POST /api/train", a.handleTrain)
	mux.HandleFunc("GET /api/predictions", a.handlePredictions)
	mux.HandleFunc("GET /api/training", a.handleTrainingHistory)
	mux.HandleFunc("GET /api/stats", a.handleStats)
}

// SetArtifact makes artifact the served model.
func (a *API) SetArtifact(artifact *modelstore.Artifact) error {
	p, err := predict.NewPredictor(artifact)
	if err != nil {
		return err
	}
	prev := a.model.Swap(p)
	if prev == nil || prev.Artifact().ID != artifact.ID {
		a.logger.Info("serving model",
			zap.String("model_id", artifact.ID),
			zap.String("kind", artifact.Kind),
		)
	}
	return nil
}

// Predictor returns the served model, or nil.
func (a *API) Predictor() *predict.Predictor {
	return a.model.Load()
}

// ReloadModel drops the cached artifact at url, loads it again and serves it.
func (a *API) ReloadModel(ctx context.Context, url string) error {
	if a.cache == nil {
		return errors.New("no model cache configured")
	}
	a.cache.Invalidate(url)
	artifact, err := a.cache.Get(ctx, url)
	if err != nil {
		return err
	}
	prev := a.model.Load()
	if err := a.SetArtifact(artifact); err != nil {
		return err
	}
	if prev == nil || prev.Artifact().ID != artifact.ID {
		a.publish(monitoring.ModelReloaded, modelInfoFor(artifact))
	}
	return nil
}

func (a *API) publish(t monitoring.MessageType, data interface{}) {
	if a.hub == nil {
		return
	}
	if err := a.hub.Publish(t, data); err != nil {
		a.logger.Warn("publish event failed", zap.String("type", string(t)), zap.Error(err))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"model_loaded": a.model.Load() != nil,
		"uptime":       time.Since(a.started).Round(time.Second).String(),
	})
}

type modelInfo struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	FeatureNames []string       `json:"feature_names"`
	ClassNames   []string       `json:"class_names"`
	CreatedAt    time.Time      `json:"created_at"`
	Metrics      *ml.Evaluation `json:"metrics,omitempty"`
}

func modelInfoFor(a *modelstore.Artifact) modelInfo {
	return modelInfo{
		ID:           a.ID,
		Kind:         a.Kind,
		FeatureNames: a.FeatureNames,
		ClassNames:   a.ClassNames,
		CreatedAt:    a.CreatedAt,
		Metrics:      a.Metrics,
	}
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	p := a.model.Load()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, errNoModel.Error())
		return
	}
	writeJSON(w, http.StatusOK, modelInfoFor(p.Artifact()))
}

func (a *API) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if !db.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "prediction log is disabled")
		return
	}
	records, err := db.RecentPredictions(queryLimit(r, 50))
	if err != nil {
		a.logger.Error("query predictions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": records})
}

func (a *API) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	if !db.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "training log is disabled")
		return
	}
	runs, err := db.TrainingHistory(queryLimit(r, 20))
	if err != nil {
		a.logger.Error("query training history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{"predictions": a.counters.Snapshot()}
	if a.hub != nil {
		stats["websocket"] = a.hub.Stats()
	}
	if a.cache != nil {
		stats["cached_models"] = a.cache.Len()
	}
	writeJSON(w, http.StatusOK, stats)
}

// queryLimit reads ?limit=, clamped to [1, 500].
func queryLimit(r *http.Request, def int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return min(limit, 500)
}

// readJSON decodes the request body into v, answering 400 or 413 itself when
// it cannot. An empty body is accepted only when optional is set.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if optional {
			return true
		}
		writeError(w, http.StatusBadRequest, "empty request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
