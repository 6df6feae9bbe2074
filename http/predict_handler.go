package http

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"winemodel/db"
	"winemodel/monitoring"
	"winemodel/predict"
)

type missingFeaturesResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing"`
}

type predictionEvent struct {
	RequestID string `json:"request_id"`
	*predict.Detail
}

// handlePredict answers {"prediction": k}. With ?detail=true the reply also
// carries the class name, confidence and class probabilities.
func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := GetRequestID(r.Context())

	var req predict.Request
	if !readJSON(w, r, &req, false) {
		return
	}

	p := a.model.Load()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, errNoModel.Error())
		return
	}

	detail, err := p.Detailed(r.Context(), req)
	if missing, ok := predict.IsMissingFeatures(err); ok {
		a.counters.RecordRejected()
		writeJSON(w, http.StatusUnprocessableEntity, missingFeaturesResponse{
			Error:   predict.MissingFeaturesMessage,
			Missing: missing.Missing,
		})
		return
	}
	if err != nil {
		a.counters.RecordFailed()
		a.logger.Error("prediction failed", zap.String("request_id", requestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	a.counters.RecordPrediction(detail.Class, time.Since(start))

	if db.Enabled() {
		if _, err := db.SavePrediction(db.PredictionRecord{
			RequestID:  requestID,
			ModelID:    detail.ModelID,
			Features:   req,
			Prediction: detail.Prediction,
			ClassName:  detail.Class,
			Confidence: detail.Confidence,
		}); err != nil {
			a.logger.Warn("save prediction failed", zap.String("request_id", requestID), zap.Error(err))
		}
	}
	a.publish(monitoring.PredictionEvent, predictionEvent{RequestID: requestID, Detail: detail})

	if wantDetail(r) {
		writeJSON(w, http.StatusOK, detail)
		return
	}
	writeJSON(w, http.StatusOK, predict.Response{Prediction: detail.Prediction})
}

func wantDetail(r *http.Request) bool {
	switch r.URL.Query().Get("detail") {
	case "1", "true", "yes":
		return true
	}
	return false
}
