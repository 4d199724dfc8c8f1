package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigbench/yig/pkg/controller"
	"github.com/yigbench/yig/pkg/daemon"
	"github.com/yigbench/yig/pkg/events"
)

// serveUnix serves h on a fresh unix socket and returns a client for it.
func serveUnix(t *testing.T, h http.Handler) *Client {
	t.Helper()
	// Socket paths are length limited, keep it short.
	dir, err := os.MkdirTemp("", "yig")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	sock := filepath.Join(dir, "d.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := &http.Server{Handler: h}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return NewClient(sock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.Get("/version")
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestStartMeasurement(t *testing.T) {
	var got controller.MeasurementRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/measurements/start", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusAccepted, daemon.StartResponse{ID: "abc", Kind: "measurement"})
	})
	c := serveUnix(t, mux)

	req := controller.MeasurementRequest{}
	req.FreqFrom, req.FreqTo, req.FreqPoints, req.PowerPoints, req.Chopper = 1e9, 2e9, 3, 4, true
	resp, err := c.StartMeasurement(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.ID)
	assert.Equal(t, req, got)
}

func TestAPIErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/run/stop", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, "no run is active")
	})
	mux.HandleFunc("/measurements/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, "measurement not found")
	})
	mux.HandleFunc("/calibration/reset", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("plain failure"))
	})
	c := serveUnix(t, mux)

	_, err := c.StopRun()
	assert.ErrorIs(t, err, ErrBusy)
	assert.Contains(t, err.Error(), "no run is active")

	_, err = c.GetMeasurement("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.ResetCalibration()
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "plain failure", apiErr.Message)
}

func TestListMeasurementsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/measurements", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte("[]"))
	})
	c := serveUnix(t, mux)

	list, err := c.ListMeasurements(5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"event:run.progress",
		`data:{"runId":"a","percent":50}`,
		"",
		"",
		"event: run.state",
		`data: {"runId":"a",`,
		`data: "to":"Completed"}`,
		"",
		"",
	}, "\n")

	var got []events.Event
	err := readEvents(strings.NewReader(stream), func(ev events.Event) bool {
		got = append(got, ev)
		return true
	})
	require.Error(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, events.RunProgress, got[0].Name)
	p, err := events.DecodeAs[events.ProgressEvent](got[0])
	require.NoError(t, err)
	assert.Equal(t, 50, p.Percent)

	assert.Equal(t, events.RunState, got[1].Name)
	s, err := events.DecodeAs[events.StateEvent](got[1])
	require.NoError(t, err)
	assert.Equal(t, "Completed", s.To)
}

func TestReadEventsDropsUnterminatedEvent(t *testing.T) {
	stream := "event:run.progress\ndata:{\"percent\":10}\n\nevent:run.progress\ndata:{\"percent\":20}\n"

	var got []events.Event
	err := readEvents(strings.NewReader(stream), func(ev events.Event) bool {
		got = append(got, ev)
		return true
	})
	require.Error(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"percent":10}`, string(got[0].Data))
}

func TestSubscribeEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(w, "event:run.progress\ndata:{\"runId\":\"x\",\"percent\":%d}\n\n", i*10)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	c := serveUnix(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch := c.SubscribeEvents(ctx)

	var percents []int
	for ev := range ch {
		p, err := events.DecodeAs[events.ProgressEvent](ev)
		require.NoError(t, err)
		percents = append(percents, p.Percent)
		if len(percents) == 3 {
			cancel()
			break
		}
	}
	assert.Equal(t, []int{10, 20, 30}, percents)
}
