package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "winemodel-db")
	if err != nil {
		panic(err)
	}
	if err := InitDB(filepath.Join(dir, "test.db")); err != nil {
		panic(err)
	}

	code := m.Run()

	Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestTrainingHistory(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b"} {
		run := TrainingRun{
			RunID:        id,
			ModelID:      "model-" + id,
			ModelKind:    "random_forest",
			ModelPath:    "./models/wine.model",
			Accuracy:     0.9 + float64(i)*0.05,
			TrainSamples: 142,
			TestSamples:  36,
			TrainedAt:    base.Add(time.Duration(i) * time.Hour),
		}
		if err := SaveTrainingRun(run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}

	runs, err := TrainingHistory(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(runs) < 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-b" {
		t.Fatalf("expected newest run first, got %s", runs[0].RunID)
	}
	if runs[0].TestSamples != 36 || runs[0].ModelPath != "./models/wine.model" {
		t.Fatalf("unexpected run: %+v", runs[0])
	}
	if !runs[1].TrainedAt.Equal(base) {
		t.Fatalf("expected %v, got %v", base, runs[1].TrainedAt)
	}

	if err := SaveTrainingRun(TrainingRun{RunID: "run-a", ModelID: "dup", TrainedAt: base}); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
	if err := SaveTrainingRun(TrainingRun{}); err == nil {
		t.Fatal("expected missing ids to fail")
	}
}

func TestPredictions(t *testing.T) {
	rec := PredictionRecord{
		RequestID:  "req-1",
		ModelID:    "model-1",
		Features:   map[string]float64{"alcohol": 14.23, "proline": 1065},
		Prediction: 0,
		ClassName:  "class_0",
		Confidence: 0.97,
	}
	id, err := SavePrediction(rec)
	if err != nil {
		t.Fatalf("save prediction: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	records, err := RecentPredictions(1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ID != id || got.ClassName != "class_0" || got.Features["proline"] != 1065 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}
