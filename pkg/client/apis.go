package client

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/config"
	"github.com/yigbench/yig/pkg/controller"
	"github.com/yigbench/yig/pkg/daemon"
	"github.com/yigbench/yig/pkg/store"
	"github.com/yigbench/yig/pkg/version"
)

func (c *Client) StartMeasurement(req controller.MeasurementRequest) (daemon.StartResponse, error) {
	var resp daemon.StartResponse
	if err := c.sendJSON(http.MethodPost, "/measurements/start", req, &resp); err != nil {
		return resp, pkgerrors.Wrap(err, "failed to start measurement")
	}
	return resp, nil
}

func (c *Client) StartCalibration(req controller.CalibrationRequest) (daemon.StartResponse, error) {
	var resp daemon.StartResponse
	if err := c.sendJSON(http.MethodPost, "/calibration/start", req, &resp); err != nil {
		return resp, pkgerrors.Wrap(err, "failed to start calibration")
	}
	return resp, nil
}

func (c *Client) StopRun() (controller.RunStatus, error) {
	var st controller.RunStatus
	if err := c.sendJSON(http.MethodPost, "/run/stop", nil, &st); err != nil {
		return st, pkgerrors.Wrap(err, "failed to stop run")
	}
	return st, nil
}

func (c *Client) GetStatus() (controller.Status, error) {
	var st controller.Status
	if err := c.getJSON("/run", &st); err != nil {
		return st, pkgerrors.Wrap(err, "failed to get status")
	}
	return st, nil
}

func (c *Client) ListMeasurements(limit int) ([]store.Summary, error) {
	path := "/measurements"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list []store.Summary
	if err := c.getJSON(path, &list); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list measurements")
	}
	return list, nil
}

func (c *Client) GetMeasurement(id string) (*store.Record, error) {
	var rec store.Record
	if err := c.getJSON("/measurements/"+url.PathEscape(id), &rec); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get measurement %s", id)
	}
	return &rec, nil
}

func (c *Client) DeleteMeasurement(id string) error {
	_, err := c.Delete("/measurements/" + url.PathEscape(id))
	return pkgerrors.Wrapf(err, "failed to delete measurement %s", id)
}

func (c *Client) GetCalibration() (calibration.State, error) {
	var st calibration.State
	if err := c.getJSON("/calibration", &st); err != nil {
		return st, pkgerrors.Wrap(err, "failed to get calibration")
	}
	return st, nil
}

// ApplyCalibration refits the daemon's model from a calibration table on
// the daemon host. An empty path selects the configured table.
func (c *Client) ApplyCalibration(path string) (calibration.State, error) {
	var st calibration.State
	if err := c.sendJSON(http.MethodPost, "/calibration/apply", daemon.ApplyRequest{Path: path}, &st); err != nil {
		return st, pkgerrors.Wrap(err, "failed to apply calibration")
	}
	return st, nil
}

func (c *Client) ResetCalibration() (calibration.State, error) {
	var st calibration.State
	if err := c.sendJSON(http.MethodPost, "/calibration/reset", nil, &st); err != nil {
		return st, pkgerrors.Wrap(err, "failed to reset calibration")
	}
	return st, nil
}

func (c *Client) GetSchedule() (daemon.ScheduleResponse, error) {
	var resp daemon.ScheduleResponse
	if err := c.getJSON("/calibration/schedule", &resp); err != nil {
		return resp, pkgerrors.Wrap(err, "failed to get calibration schedule")
	}
	return resp, nil
}

// SetSchedule sets the calibration cron expression. An empty expression
// disables scheduled calibration.
func (c *Client) SetSchedule(cron string) (daemon.ScheduleResponse, error) {
	var resp daemon.ScheduleResponse
	if err := c.sendJSON(http.MethodPut, "/calibration/schedule", daemon.ScheduleRequest{Cron: cron}, &resp); err != nil {
		return resp, pkgerrors.Wrap(err, "failed to set calibration schedule")
	}
	return resp, nil
}

func (c *Client) PostponeSchedule(d time.Duration) (daemon.ScheduleResponse, error) {
	var resp daemon.ScheduleResponse
	if err := c.sendJSON(http.MethodPost, "/calibration/schedule/postpone", daemon.PostponeRequest{Duration: d.String()}, &resp); err != nil {
		return resp, pkgerrors.Wrap(err, "failed to postpone calibration")
	}
	return resp, nil
}

func (c *Client) SkipSchedule() (daemon.ScheduleResponse, error) {
	var resp daemon.ScheduleResponse
	if err := c.sendJSON(http.MethodPost, "/calibration/schedule/skip", nil, &resp); err != nil {
		return resp, pkgerrors.Wrap(err, "failed to skip calibration")
	}
	return resp, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	var conf config.RawFileConfig
	if err := c.getJSON("/config", &conf); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get config")
	}
	return &conf, nil
}

func (c *Client) GetVersion() (version.Info, error) {
	var info version.Info
	if err := c.getJSON("/version", &info); err != nil {
		return info, pkgerrors.Wrap(err, "failed to get daemon version")
	}
	return info, nil
}
