package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// ErrNotInitialized is returned when InitDB has not been called.
var ErrNotInitialized = errors.New("database not initialized")

// InitDB opens the SQLite database at path and creates the tables.
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL UNIQUE,
        model_id TEXT NOT NULL,
        model_kind VARCHAR(50) NOT NULL,
        model_path TEXT,
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        train_samples INTEGER,
        test_samples INTEGER,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        model_id TEXT NOT NULL,
        features TEXT NOT NULL,
        predicted_label INTEGER NOT NULL,
        class_name VARCHAR(50),
        confidence REAL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    `
	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return err
	}
	database = conn
	return nil
}

// Enabled reports whether InitDB has been called.
func Enabled() bool {
	return database != nil
}

// Close releases the global handle. It is safe to call when nothing is open.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// TrainingRun is one row of training_log.
type TrainingRun struct {
	RunID        string    `json:"run_id"`
	ModelID      string    `json:"model_id"`
	ModelKind    string    `json:"model_kind"`
	ModelPath    string    `json:"model_path"`
	Accuracy     float64   `json:"accuracy"`
	Precision    float64   `json:"precision"`
	Recall       float64   `json:"recall"`
	F1           float64   `json:"f1"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	TrainedAt    time.Time `json:"trained_at"`
}

// SaveTrainingRun appends run to training_log.
func SaveTrainingRun(run TrainingRun) error {
	if database == nil {
		return ErrNotInitialized
	}
	if run.RunID == "" || run.ModelID == "" {
		return errors.New("run id and model id required")
	}
	_, err := database.Exec(`
        INSERT INTO training_log (
            run_id, model_id, model_kind, model_path, accuracy, precision, recall, f1,
            train_samples, test_samples, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ModelID, run.ModelKind, run.ModelPath, run.Accuracy, run.Precision, run.Recall, run.F1,
		run.TrainSamples, run.TestSamples, run.TrainedAt.UTC())
	return err
}

// TrainingHistory returns the most recent runs first.
func TrainingHistory(limit int) ([]TrainingRun, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT run_id, model_id, model_kind, model_path, accuracy, precision, recall, f1,
               train_samples, test_samples, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		var path sql.NullString
		if err := rows.Scan(&run.RunID, &run.ModelID, &run.ModelKind, &path, &run.Accuracy, &run.Precision,
			&run.Recall, &run.F1, &run.TrainSamples, &run.TestSamples, &run.TrainedAt); err != nil {
			return nil, err
		}
		run.ModelPath = path.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PredictionRecord is one row of prediction_log. Features is stored as JSON.
type PredictionRecord struct {
	ID         int64              `json:"id"`
	RequestID  string             `json:"request_id,omitempty"`
	ModelID    string             `json:"model_id"`
	Features   map[string]float64 `json:"features"`
	Prediction int                `json:"prediction"`
	ClassName  string             `json:"class"`
	Confidence float64            `json:"confidence"`
	CreatedAt  time.Time          `json:"created_at"`
}

// SavePrediction inserts rec and returns its row ID.
func SavePrediction(rec PredictionRecord) (int64, error) {
	if database == nil {
		return 0, ErrNotInitialized
	}
	features, err := jsoniter.Marshal(rec.Features)
	if err != nil {
		return 0, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := database.Exec(`
        INSERT INTO predictions (
            request_id, model_id, features, predicted_label, class_name, confidence, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.ModelID, string(features), rec.Prediction, rec.ClassName, rec.Confidence, rec.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentPredictions returns the latest predictions first.
func RecentPredictions(limit int) ([]PredictionRecord, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT id, request_id, model_id, features, predicted_label, class_name, confidence, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var requestID, className sql.NullString
		var features string
		if err := rows.Scan(&rec.ID, &requestID, &rec.ModelID, &features, &rec.Prediction, &className,
			&rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := jsoniter.UnmarshalFromString(features, &rec.Features); err != nil {
			return nil, err
		}
		rec.RequestID = requestID.String
		rec.ClassName = className.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
