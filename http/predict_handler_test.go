package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"winemodel/pipeline"
	"winemodel/predict"
)

func TestHandlePredict(t *testing.T) {
	api := newTestAPI(t, true)
	req := pipeline.ExampleRequest()
	body, _ := json.Marshal(req)

	w := serve(api, http.MethodPost, "/api/predict", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload) != 1 {
		t.Fatalf("expected a single key, got %v", payload)
	}
	want, err := api.Predictor().Predict(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if payload["prediction"].(float64) != float64(want.Prediction) {
		t.Fatalf("unexpected prediction: %v", payload["prediction"])
	}
}

func TestHandlePredictDetail(t *testing.T) {
	api := newTestAPI(t, true)
	body, _ := json.Marshal(pipeline.ExampleRequest())

	w := serve(api, http.MethodPost, "/api/predict?detail=true", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var detail predict.Detail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if detail.ModelID != api.Predictor().Artifact().ID || len(detail.Probabilities) != 3 {
		t.Errorf("unexpected detail: %+v", detail)
	}
	if detail.Class == "" || detail.Confidence <= 0 {
		t.Errorf("expected class and confidence, got %+v", detail)
	}
}

func TestHandlePredictMissingFeatures(t *testing.T) {
	api := newTestAPI(t, true)
	req := pipeline.ExampleRequest()
	delete(req, "proline")
	delete(req, "hue")
	body, _ := json.Marshal(req)

	w := serve(api, http.MethodPost, "/api/predict", string(body))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var payload missingFeaturesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Error != predict.MissingFeaturesMessage {
		t.Errorf("unexpected error text: %q", payload.Error)
	}
	if len(payload.Missing) != 2 || payload.Missing[0] != "hue" || payload.Missing[1] != "proline" {
		t.Errorf("unexpected missing list: %v", payload.Missing)
	}
}

func TestHandlePredictErrors(t *testing.T) {
	body, _ := json.Marshal(pipeline.ExampleRequest())

	if w := serve(newTestAPI(t, false), http.MethodPost, "/api/predict", string(body)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no model: expected 503, got %d", w.Code)
	}
	if w := serve(newTestAPI(t, true), http.MethodPost, "/api/predict", `{"alcohol":`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", w.Code)
	}
	if w := serve(newTestAPI(t, true), http.MethodPost, "/api/predict", `{"alcohol":"high"}`); w.Code != http.StatusBadRequest {
		t.Errorf("string value: expected 400, got %d", w.Code)
	}
}

func TestHandlePredictBodyLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 64
	handler := NewHandler(cfg, newTestAPI(t, true), nil)

	body, _ := json.Marshal(pipeline.ExampleRequest())
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}
