package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigbench/yig/pkg/run"
	"github.com/yigbench/yig/pkg/sweep"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "yig.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateSaveGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	req := run.Measurement{FreqFrom: 1e9, FreqTo: 2e9, FreqPoints: 2, PowerPoints: 1}

	id, err := s.Create(ctx, run.MeasureIFPower, req)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, run.StateRunning, rec.State)
	assert.Equal(t, req, rec.Request)
	assert.Nil(t, rec.Result)

	res := &run.MeasurementResult{
		ID:          id,
		MeasureType: run.MeasureIFPower,
		State:       run.StateCompleted,
		FinishedAt:  time.Now(),
		Request:     req,
		Steps: []run.StepResult{
			{Setpoint: sweep.Setpoint{Value: 1e9, Unit: sweep.Hertz}, RawSamples: []float64{-20}, ElapsedTimes: []float64{0.01}, Aggregate: -20},
			{Setpoint: sweep.Setpoint{Value: 2e9, Unit: sweep.Hertz}, RawSamples: []float64{-21}, ElapsedTimes: []float64{0.01}, Aggregate: -21},
		},
	}
	require.NoError(t, s.Save(ctx, res))

	rec, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, run.StateCompleted, rec.State)
	assert.False(t, rec.FinishedAt.IsZero())
	require.NotNil(t, rec.Result)
	assert.Equal(t, res.Steps, rec.Result.Steps)
}

func TestSaveUnknown(t *testing.T) {
	s := openTestStore(t)
	err := s.Save(context.Background(), &run.MeasurementResult{ID: "nope", State: run.StateFailed})

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Create(ctx, run.MeasureChopperIFPower, run.Measurement{FreqPoints: i + 2})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)
	assert.Equal(t, run.MeasureChopperIFPower, all[0].MeasureType)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, s.Delete(ctx, ids[1]))
	assert.ErrorIs(t, s.Delete(ctx, ids[1]), ErrNotFound)
	all, err = s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yig.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Create(context.Background(), run.MeasureIFPower, run.Measurement{})
	require.NoError(t, err)
	v, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get(context.Background(), id)
	assert.NoError(t, err)
}
