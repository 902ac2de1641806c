package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"powercast/ml"
	"powercast/prediction"
)

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(100) NOT NULL,
        features TEXT NOT NULL,
        prediction REAL NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    `

// PredictionLog stores successful predictions in SQLite.
type PredictionLog struct {
	database *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*PredictionLog, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, err
	}
	return &PredictionLog{database: database}, nil
}

// RecordPrediction saves one prediction
func (l *PredictionLog) RecordPrediction(ctx context.Context, rec prediction.Record) error {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return err
	}
	_, err = l.database.ExecContext(ctx, `
        INSERT INTO predictions (model_name, features, prediction, created_at)
        VALUES (?, ?, ?, ?)`,
		rec.Model, string(features), rec.Value, rec.CreatedAt.UTC())
	return err
}

// Recent returns up to limit predictions, newest first.
func (l *PredictionLog) Recent(ctx context.Context, limit int) ([]prediction.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.database.QueryContext(ctx, `
        SELECT model_name, features, prediction, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []prediction.Record
	for rows.Next() {
		var (
			rec      prediction.Record
			features string
			created  time.Time
		)
		if err := rows.Scan(&rec.Model, &features, &rec.Value, &created); err != nil {
			return nil, err
		}
		var vector ml.FeatureVector
		if err := json.Unmarshal([]byte(features), &vector); err != nil {
			return nil, err
		}
		rec.Features = vector
		rec.CreatedAt = created
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (l *PredictionLog) Close() error {
	return l.database.Close()
}
