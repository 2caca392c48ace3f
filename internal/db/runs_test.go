package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/branchpoints/internal/analysis"
	"github.com/banshee-data/branchpoints/internal/branching"
	"github.com/banshee-data/branchpoints/internal/timeutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRun(label string) *Run {
	return &Run{
		Label:       label,
		Classes:     []string{"A", "B", "C"},
		Times:       []float64{0, 1, 2, 3, 4, 5},
		SmoothSigma: 3,
		Params:      branching.Params{Epsilon: 0.005, TLimit: 5},
		Crossover:   [][]float64{{0, 2, 4}, {2, 0, 4}, {4, 4, 0}},
		BranchPoints: []branching.BranchPoint{
			{Time: 2, Left: []string{"A"}, Right: []string{"B"}},
			{Time: 4, Left: []string{"A", "B"}, Right: []string{"C"}},
		},
		Definitions: []branching.BranchDefinition{
			{Classes: []string{"A", "B", "C"}, Start: 4, End: 5},
			{Classes: []string{"A", "B"}, Start: 2, End: 4},
			{Classes: []string{"C"}, Start: 0, End: 4},
			{Classes: []string{"A"}, Start: 0, End: 2},
			{Classes: []string{"B"}, Start: 0, End: 2},
		},
	}
}

func TestRunStore_InsertGet(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewMockClock(epoch)
	store := NewRunStore(newTestDB(t), clock)

	run := sampleRun("first")
	require.NoError(t, store.Insert(ctx, run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, epoch, run.CreatedAt)

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("stored run mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStore_KeepsExplicitID(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(newTestDB(t), nil)

	run := sampleRun("explicit")
	run.ID = "fixed-id"
	require.NoError(t, store.Insert(ctx, run))
	assert.Equal(t, "fixed-id", run.ID)

	dup := sampleRun("dup")
	dup.ID = "fixed-id"
	assert.Error(t, store.Insert(ctx, dup))
}

func TestRunStore_RejectsDuplicateDefinitions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewRunStore(db, nil)

	run := sampleRun("bad")
	run.Definitions = append(run.Definitions, run.Definitions[0])
	require.Error(t, store.Insert(ctx, run))

	// The transaction rolled back the run row too.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM analysis_runs`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewMockClock(epoch)
	store := NewRunStore(newTestDB(t), clock)

	empty, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	older := sampleRun("older")
	require.NoError(t, store.Insert(ctx, older))
	clock.Advance(time.Minute)
	newer := sampleRun("newer")
	require.NoError(t, store.Insert(ctx, newer))

	runs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, []string{newer.ID, older.ID}, []string{runs[0].ID, runs[1].ID})
	assert.Equal(t, "newer", runs[0].Label)
	assert.Equal(t, 3, runs[0].NumClasses)
	assert.Equal(t, epoch.Add(time.Minute), runs[0].CreatedAt)
}

func TestRunStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewRunStore(db, nil)

	run := sampleRun("doomed")
	require.NoError(t, store.Insert(ctx, run))
	require.NoError(t, store.Delete(ctx, run.ID))

	_, err := store.Get(ctx, run.ID)
	assert.True(t, errors.Is(err, ErrRunNotFound))

	for _, table := range []string{"branch_points", "branch_definitions"} {
		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&count))
		assert.Equal(t, 0, count, table)
	}

	assert.ErrorIs(t, store.Delete(ctx, run.ID), ErrRunNotFound)
}

func TestNewRun(t *testing.T) {
	m, err := branching.NewCrossoverMatrix([]string{"A", "B"}, [][]float64{{0, 1}, {1, 0}})
	require.NoError(t, err)

	res := &analysis.Result{
		Classes:      []string{"A", "B"},
		Times:        []float64{0, 1},
		SmoothSigma:  0.5,
		Params:       branching.Params{TLimit: 1},
		Crossover:    m,
		BranchPoints: []branching.BranchPoint{{Time: 1, Left: []string{"A"}, Right: []string{"B"}}},
	}
	run := NewRun("label", res)
	assert.Equal(t, "label", run.Label)
	assert.Equal(t, [][]float64{{0, 1}, {1, 0}}, run.Crossover)
	assert.Equal(t, res.BranchPoints, run.BranchPoints)
	assert.Empty(t, run.ID)
}
