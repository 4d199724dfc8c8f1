package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/config"
	"github.com/yigbench/yig/pkg/controller"
	"github.com/yigbench/yig/pkg/instrument"
	"github.com/yigbench/yig/pkg/store"
	"github.com/yigbench/yig/pkg/sweep"
)

type testEnv struct {
	srv  *server
	http *httptest.Server
	dir  string
	conf *config.File
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	confPath := filepath.Join(dir, "yig.json")
	raw := fmt.Sprintf(`{
  "simulate": true,
  "stepDelay": "0s",
  "calibrationStepDelay": "0s",
  "firstPointDelay": "0s",
  "phaseDelay": "0s",
  "calibrationPoints": 6,
  "calibrationFile": %q,
  "calibrationStatePath": %q,
  "databasePath": %q
}`, filepath.Join(dir, "calibration.csv"), filepath.Join(dir, "state.json"), filepath.Join(dir, "db", "yig.db"))
	require.NoError(t, os.WriteFile(confPath, []byte(raw), 0644))

	conf, err := config.NewFile(confPath)
	require.NoError(t, err)
	s, err := newServer(conf)
	require.NoError(t, err)

	env := &testEnv{srv: s, http: httptest.NewServer(s.routes()), dir: dir, conf: conf}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.stop(ctx)
		env.http.Close()
		_ = s.store.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func (e *testEnv) waitIdle(t *testing.T) controller.Status {
	t.Helper()
	var st controller.Status
	require.Eventually(t, func() bool {
		code, body := e.do(t, http.MethodGet, "/run", nil)
		if code != http.StatusOK {
			return false
		}
		st = controller.Status{}
		require.NoError(t, json.Unmarshal(body, &st))
		return !st.Active && st.Run != nil && st.Run.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return st
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "gitCommit")
}

func TestGetConfigResolvesDefaults(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, code)

	var raw config.RawFileConfig
	require.NoError(t, json.Unmarshal(body, &raw))
	require.NotNil(t, raw.KeithleyAddress)
	assert.Equal(t, 22, *raw.KeithleyAddress)
	require.NotNil(t, raw.Simulate)
	assert.True(t, *raw.Simulate)
}

func TestMeasurementLifecycle(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/measurements/start", map[string]any{
		"freqFrom": 1e9, "freqTo": 2e9, "freqPoints": 5, "powerPoints": 2,
	})
	require.Equal(t, http.StatusAccepted, code, string(body))
	var started StartResponse
	require.NoError(t, json.Unmarshal(body, &started))
	assert.Equal(t, "measurement", started.Kind)
	assert.NotEmpty(t, started.ID)

	st := env.waitIdle(t)
	assert.Equal(t, started.ID, st.Run.ID)
	assert.EqualValues(t, "Completed", st.Run.State)

	code, body = env.do(t, http.MethodGet, "/measurements", nil)
	require.Equal(t, http.StatusOK, code)
	var list []store.Summary
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.EqualValues(t, "IF_POWER", list[0].MeasureType)

	code, body = env.do(t, http.MethodGet, "/measurements/"+list[0].ID, nil)
	require.Equal(t, http.StatusOK, code)
	var rec store.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	require.NotNil(t, rec.Result)
	assert.Len(t, rec.Result.Steps, 5)

	code, _ = env.do(t, http.MethodDelete, "/measurements/"+list[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = env.do(t, http.MethodGet, "/measurements/"+list[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStartMeasurementInvalid(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/measurements/start", map[string]any{
		"freqFrom": 2e9, "freqTo": 2e9, "freqPoints": 5, "powerPoints": 2,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/measurements/start", map[string]any{
		"freqFrom": 1e9, "freqTo": 2e9, "freqPoints": 1, "powerPoints": 2,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/measurements/start", "not an object")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStopAndConflict(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPost, "/run/stop", nil)
	assert.Equal(t, http.StatusConflict, code)

	slow := map[string]any{
		"freqFrom": 1e9, "freqTo": 2e9, "freqPoints": 50, "powerPoints": 1,
		"delays": map[string]any{"step": int64(50 * time.Millisecond)},
	}
	code, body := env.do(t, http.MethodPost, "/measurements/start", slow)
	require.Equal(t, http.StatusAccepted, code, string(body))

	code, _ = env.do(t, http.MethodPost, "/calibration/start", map[string]any{
		"currentFrom": 0, "currentTo": 0.1, "points": 3,
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = env.do(t, http.MethodPost, "/run/stop", nil)
	assert.Equal(t, http.StatusAccepted, code)

	st := env.waitIdle(t)
	assert.EqualValues(t, "Cancelled", st.Run.State)
}

func TestCalibrationEndpoints(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/calibration", nil)
	require.Equal(t, http.StatusOK, code)
	var cal calibration.State
	require.NoError(t, json.Unmarshal(body, &cal))
	assert.Equal(t, calibration.SourceDefault, cal.Source)

	code, _ = env.do(t, http.MethodPost, "/calibration/apply", ApplyRequest{Path: filepath.Join(env.dir, "missing.csv")})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = env.do(t, http.MethodPost, "/calibration/start", map[string]any{
		"currentFrom": 0.01, "currentTo": 0.09, "points": 6,
	})
	require.Equal(t, http.StatusAccepted, code, string(body))
	st := env.waitIdle(t)
	assert.EqualValues(t, "Completed", st.Run.State)
	assert.Equal(t, calibration.SourceRun, st.Calibration.Source)
	assert.FileExists(t, filepath.Join(env.dir, "calibration.csv"))

	// Without a body the configured table is used.
	code, body = env.do(t, http.MethodPost, "/calibration/apply", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	require.NoError(t, json.Unmarshal(body, &cal))
	assert.Equal(t, calibration.SourceFile, cal.Source)
	assert.InEpsilon(t, calibration.DefaultCurrentToFreq.Slope, cal.CurrentToFreq.Slope, 0.05)

	code, body = env.do(t, http.MethodPost, "/calibration/reset", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &cal))
	assert.Equal(t, calibration.DefaultState().CurrentToFreq, cal.CurrentToFreq)
}

func TestSchedule(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodPut, "/calibration/schedule", ScheduleRequest{Cron: "not a cron"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := env.do(t, http.MethodPut, "/calibration/schedule", ScheduleRequest{Cron: "0 3 * * *"})
	require.Equal(t, http.StatusOK, code, string(body))
	var resp ScheduleResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "0 3 * * *", resp.Cron)
	assert.True(t, resp.Running)
	assert.Len(t, resp.Upcoming, 3)
	assert.Equal(t, "0 3 * * *", env.conf.Cron())

	code, _ = env.do(t, http.MethodPost, "/calibration/schedule/postpone", PostponeRequest{Duration: "soon"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodPost, "/calibration/schedule/postpone", PostponeRequest{Duration: "1h"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodPost, "/calibration/schedule/skip", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = env.do(t, http.MethodPut, "/calibration/schedule", ScheduleRequest{})
	require.Equal(t, http.StatusOK, code)
	resp = ScheduleResponse{}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Empty(t, resp.Cron)
	assert.False(t, resp.Running)

	code, _ = env.do(t, http.MethodPost, "/calibration/schedule/skip", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.http.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	code, body := env.do(t, http.MethodPost, "/measurements/start", map[string]any{
		"freqFrom": 1e9, "freqTo": 2e9, "freqPoints": 3, "powerPoints": 1,
	})
	require.Equal(t, http.StatusAccepted, code, string(body))

	seen := map[string]bool{}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			seen[name] = true
			if name == "run.result" {
				break
			}
		}
	}
	assert.True(t, seen["run.state"])
	assert.True(t, seen["run.result"])
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{pkgerrors.Wrap(sweep.ErrInvalidRange, "frequency sweep"), http.StatusBadRequest},
		{controller.ErrAlreadyRunning, http.StatusConflict},
		{controller.ErrNotRunning, http.StatusConflict},
		{store.ErrNotFound, http.StatusNotFound},
		{&calibration.Error{Reason: "singular fit"}, http.StatusUnprocessableEntity},
		{&instrument.Error{Device: "nrx", Operation: "read", Cause: errors.New("timeout")}, http.StatusBadGateway},
		{&store.PersistenceError{Op: "save", Err: errors.New("disk full")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.code, statusFor(tc.err))
		})
	}
}
