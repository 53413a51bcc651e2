package sqlite_db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/glebarez/sqlite" // Pure Go SQLite driver
)

// InitDB initializes an SQLite database at the given path.
// It creates the database file if it doesn't exist and sets up the 'runs'
// and 'epochs' tables.
func InitDB(dataSourceName string) (*sql.DB, error) {
	dir := filepath.Dir(dataSourceName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTablesSQL := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			"id" INTEGER PRIMARY KEY AUTOINCREMENT,
			"experiment" TEXT NOT NULL,
			"config" TEXT NOT NULL,
			"started" DATETIME DEFAULT CURRENT_TIMESTAMP,
			"test_metric" REAL
		);`,
		`CREATE TABLE IF NOT EXISTS epochs (
			"run_id" INTEGER NOT NULL REFERENCES runs(id),
			"epoch" INTEGER NOT NULL,
			"train_loss" REAL NOT NULL,
			"dev_loss" REAL NOT NULL,
			"metric" REAL NOT NULL,
			"improved" BOOLEAN NOT NULL,
			PRIMARY KEY (run_id, epoch)
		);`,
	}
	for _, stmt := range createTablesSQL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	log.Printf("SQLite database initialized at %s", dataSourceName)
	return db, nil
}

// Run is one training run.
type Run struct {
	ID         int64
	Experiment string
	Config     string
	Started    string
	TestMetric sql.NullFloat64
}

// Epoch is one evaluated epoch of a run.
type Epoch struct {
	Epoch     int
	TrainLoss float64
	DevLoss   float64
	Metric    float64
	Improved  bool
}

// StartRun records a new run and returns its ID. config is the serialized
// configuration the run was started with.
func StartRun(db *sql.DB, experiment, config string) (int64, error) {
	result, err := db.Exec(`INSERT INTO runs(experiment, config) VALUES (?, ?)`, experiment, config)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// SaveEpoch records one evaluated epoch of a run.
func SaveEpoch(db *sql.DB, runID int64, e Epoch) error {
	_, err := db.Exec(`INSERT INTO epochs(run_id, epoch, train_loss, dev_loss, metric, improved) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, e.Epoch, e.TrainLoss, e.DevLoss, e.Metric, e.Improved)
	if err != nil {
		return fmt.Errorf("failed to insert epoch %d of run %d: %w", e.Epoch, runID, err)
	}
	return nil
}

// FinishRun stores the test metric of a run.
func FinishRun(db *sql.DB, runID int64, testMetric float64) error {
	if _, err := db.Exec(`UPDATE runs SET test_metric = ? WHERE id = ?`, testMetric, runID); err != nil {
		return fmt.Errorf("failed to update run %d: %w", runID, err)
	}
	return nil
}

// GetRuns retrieves all runs of an experiment, oldest first.
func GetRuns(db *sql.DB, experiment string) ([]Run, error) {
	rows, err := db.Query(`SELECT id, experiment, config, started, test_metric FROM runs WHERE experiment = ? ORDER BY id ASC`, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Experiment, &r.Config, &r.Started, &r.TestMetric); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetEpochs retrieves the epochs of a run in order.
func GetEpochs(db *sql.DB, runID int64) ([]Epoch, error) {
	rows, err := db.Query(`SELECT epoch, train_loss, dev_loss, metric, improved FROM epochs WHERE run_id = ? ORDER BY epoch ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var e Epoch
		if err := rows.Scan(&e.Epoch, &e.TrainLoss, &e.DevLoss, &e.Metric, &e.Improved); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}
