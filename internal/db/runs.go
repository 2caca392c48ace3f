package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/branchpoints/internal/analysis"
	"github.com/banshee-data/branchpoints/internal/branching"
	"github.com/banshee-data/branchpoints/internal/timeutil"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("analysis run not found")

// Run is one stored analysis together with its results.
type Run struct {
	ID           string                       `json:"id"`
	Label        string                       `json:"label"`
	Classes      []string                     `json:"classes"`
	Times        []float64                    `json:"times"`
	SmoothSigma  float64                      `json:"smooth_sigma"`
	Params       branching.Params             `json:"params"`
	Crossover    [][]float64                  `json:"crossover,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
	BranchPoints []branching.BranchPoint      `json:"branch_points"`
	Definitions  []branching.BranchDefinition `json:"branch_definitions"`
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	NumClasses int       `json:"num_classes"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRun captures an analysis result for storage.
func NewRun(label string, res *analysis.Result) *Run {
	r := &Run{
		Label:        label,
		Classes:      res.Classes,
		Times:        res.Times,
		SmoothSigma:  res.SmoothSigma,
		Params:       res.Params,
		BranchPoints: res.BranchPoints,
		Definitions:  res.Definitions,
	}
	if res.Crossover != nil {
		r.Crossover = res.Crossover.Array()
	}
	return r
}

// RunStore persists analysis runs.
type RunStore struct {
	db    *DB
	clock timeutil.Clock
}

// NewRunStore returns a store over db. A nil clock uses wall time.
func NewRunStore(db *DB, clock timeutil.Clock) *RunStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RunStore{db: db, clock: clock}
}

func marshalText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Insert stores run with its branch points and definitions in one
// transaction. An empty ID is filled with a new UUID; CreatedAt is set from
// the store's clock.
func (s *RunStore) Insert(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt = s.clock.Now().UTC()

	classesJSON, err := marshalText(run.Classes)
	if err != nil {
		return fmt.Errorf("failed to encode classes: %w", err)
	}
	timesJSON, err := marshalText(run.Times)
	if err != nil {
		return fmt.Errorf("failed to encode times: %w", err)
	}
	paramsJSON, err := marshalText(run.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	var crossoverJSON sql.NullString
	if run.Crossover != nil {
		text, err := marshalText(run.Crossover)
		if err != nil {
			return fmt.Errorf("failed to encode crossover matrix: %w", err)
		}
		crossoverJSON = sql.NullString{String: text, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			run_id, label, classes_json, times_json, smooth_sigma,
			params_json, crossover_json, created_at_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Label, classesJSON, timesJSON, run.SmoothSigma,
		paramsJSON, crossoverJSON, run.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for seq, bp := range run.BranchPoints {
		left, err := marshalText(bp.Left)
		if err != nil {
			return err
		}
		right, err := marshalText(bp.Right)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO branch_points (run_id, seq, branch_time, left_json, right_json)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, seq, bp.Time, left, right); err != nil {
			return fmt.Errorf("failed to insert branch point %d: %w", seq, err)
		}
	}

	for seq, d := range run.Definitions {
		classes, err := marshalText(d.Classes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO branch_definitions (run_id, seq, classes_json, start_time, end_time)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, seq, classes, d.Start, d.End); err != nil {
			return fmt.Errorf("failed to insert branch definition %s: %w", d, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Get loads a run and its results.
func (s *RunStore) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	var classesJSON, timesJSON, paramsJSON string
	var crossoverJSON sql.NullString
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, label, classes_json, times_json, smooth_sigma,
		       params_json, crossover_json, created_at_unix_nanos
		FROM analysis_runs
		WHERE run_id = ?
	`, id).Scan(&run.ID, &run.Label, &classesJSON, &timesJSON, &run.SmoothSigma,
		&paramsJSON, &crossoverJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()

	if err := json.Unmarshal([]byte(classesJSON), &run.Classes); err != nil {
		return nil, fmt.Errorf("failed to decode classes: %w", err)
	}
	if err := json.Unmarshal([]byte(timesJSON), &run.Times); err != nil {
		return nil, fmt.Errorf("failed to decode times: %w", err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	if crossoverJSON.Valid {
		if err := json.Unmarshal([]byte(crossoverJSON.String), &run.Crossover); err != nil {
			return nil, fmt.Errorf("failed to decode crossover matrix: %w", err)
		}
	}

	if run.BranchPoints, err = s.branchPoints(ctx, id); err != nil {
		return nil, err
	}
	if run.Definitions, err = s.definitions(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *RunStore) branchPoints(ctx context.Context, id string) ([]branching.BranchPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT branch_time, left_json, right_json
		FROM branch_points
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query branch points: %w", err)
	}
	defer rows.Close()

	var points []branching.BranchPoint
	for rows.Next() {
		var bp branching.BranchPoint
		var left, right string
		if err := rows.Scan(&bp.Time, &left, &right); err != nil {
			return nil, fmt.Errorf("failed to scan branch point: %w", err)
		}
		if err := json.Unmarshal([]byte(left), &bp.Left); err != nil {
			return nil, fmt.Errorf("failed to decode branch point: %w", err)
		}
		if err := json.Unmarshal([]byte(right), &bp.Right); err != nil {
			return nil, fmt.Errorf("failed to decode branch point: %w", err)
		}
		points = append(points, bp)
	}
	return points, rows.Err()
}

func (s *RunStore) definitions(ctx context.Context, id string) ([]branching.BranchDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT classes_json, start_time, end_time
		FROM branch_definitions
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query branch definitions: %w", err)
	}
	defer rows.Close()

	var defs []branching.BranchDefinition
	for rows.Next() {
		var d branching.BranchDefinition
		var classes string
		if err := rows.Scan(&classes, &d.Start, &d.End); err != nil {
			return nil, fmt.Errorf("failed to scan branch definition: %w", err)
		}
		if err := json.Unmarshal([]byte(classes), &d.Classes); err != nil {
			return nil, fmt.Errorf("failed to decode branch definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// List returns every stored run, newest first.
func (s *RunStore) List(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, label, classes_json, created_at_unix_nanos
		FROM analysis_runs
		ORDER BY created_at_unix_nanos DESC, run_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		var classesJSON string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Label, &classesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var classes []string
		if err := json.Unmarshal([]byte(classesJSON), &classes); err != nil {
			return nil, fmt.Errorf("failed to decode classes for run %s: %w", r.ID, err)
		}
		r.NumClasses = len(classes)
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run and, by cascade, its results.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
