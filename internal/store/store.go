// Package store persists run history to SQLite: one row per run, per file,
// per stage, and per sweep cell, so past runs can be inspected after the
// fact without re-reading log files.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
	"github.com/Metanome/eeg-preprocppl/internal/sweep"
)

type Store struct {
	*sql.DB
}

// Open opens (or creates) the run history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			mode              TEXT,
			config            TEXT,
			files_total       BIGINT,
			files_failed      BIGINT,
			elapsed_ms        BIGINT,
			started           TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			finished          TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS file_reports (
			run_id            TEXT,
			path              TEXT,
			output_path       TEXT,
			retention         DOUBLE,
			snr_improvement   DOUBLE,
			failed            BOOLEAN,
			fatal_stage       TEXT,
			elapsed_ms        BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS stage_results (
			run_id            TEXT,
			path              TEXT,
			stage             TEXT,
			outcome           TEXT,
			elapsed_ms        BIGINT,
			note              TEXT,
			error             TEXT,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS sweep_cells (
			run_id            TEXT,
			burst_criterion   DOUBLE,
			window_criterion  DOUBLE,
			mean_retention    DOUBLE,
			std_retention     DOUBLE,
			mean_snr          DOUBLE,
			mean_kurtosis     DOUBLE,
			files_passing     BIGINT,
			quality_score     DOUBLE,
			selection_score   DOUBLE,
			admissible        BOOLEAN,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db}, nil
}

// CreateRun registers a new run and returns its generated ID.
func (s *Store) CreateRun(mode string, cfg pipeline.Config) (string, error) {
	runID := uuid.NewString()
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.Exec("INSERT INTO runs (run_id, mode, config) VALUES (?, ?, ?)", runID, mode, string(cfgJSON))
	if err != nil {
		return "", err
	}
	return runID, nil
}

// FinishRun records the run's final counters.
func (s *Store) FinishRun(runID string, filesTotal, filesFailed int, elapsed time.Duration) error {
	_, err := s.Exec(
		"UPDATE runs SET files_total = ?, files_failed = ?, elapsed_ms = ?, finished = CURRENT_TIMESTAMP WHERE run_id = ?",
		filesTotal, filesFailed, elapsed.Milliseconds(), runID,
	)
	return err
}

// RecordFileReport stores a file's outcome plus one row per executed stage.
func (s *Store) RecordFileReport(runID string, report *pipeline.FileReport) error {
	snr := math.NaN()
	if report.Overall != nil {
		snr = report.Overall.SNRImprovementDB
	}
	_, err := s.Exec(
		`INSERT INTO file_reports (run_id, path, output_path, retention, snr_improvement, failed, fatal_stage, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, report.Path, report.OutputPath, nullFloat(report.Retention), nullFloat(snr),
		report.Failed, report.FatalStage, report.Elapsed.Milliseconds(),
	)
	if err != nil {
		return err
	}
	for _, st := range report.Stages {
		_, err := s.Exec(
			`INSERT INTO stage_results (run_id, path, stage, outcome, elapsed_ms, note, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, report.Path, st.Stage, string(st.Outcome), st.Elapsed.Milliseconds(), st.Note, st.Error,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordSweepCell stores one evaluated sweep cell.
func (s *Store) RecordSweepCell(runID string, cell sweep.CellResult) error {
	_, err := s.Exec(
		`INSERT INTO sweep_cells (run_id, burst_criterion, window_criterion, mean_retention, std_retention,
		 mean_snr, mean_kurtosis, files_passing, quality_score, selection_score, admissible)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, cell.Burst, cell.Window, nullFloat(cell.MeanRetention), nullFloat(cell.StdRetention),
		nullFloat(cell.MeanSNR), nullFloat(cell.MeanKurtosis), cell.FilesPassing,
		nullFloat(cell.QualityScore), nullFloat(cell.SelectionScore()), cell.Admissible,
	)
	return err
}

// RunRow is one row of the runs table.
type RunRow struct {
	RunID       string
	Mode        string
	FilesTotal  int
	FilesFailed int
	ElapsedMS   int64
	Started     string
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Query(
		`SELECT run_id, mode, COALESCE(files_total, 0), COALESCE(files_failed, 0), COALESCE(elapsed_ms, 0), started
		 FROM runs ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.Mode, &r.FilesTotal, &r.FilesFailed, &r.ElapsedMS, &r.Started); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// nullFloat maps non-finite values to SQL NULL; SQLite has no NaN.
func nullFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
