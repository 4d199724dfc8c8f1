package daemon

import (
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/config"
	"github.com/yigbench/yig/pkg/controller"
	"github.com/yigbench/yig/pkg/instrument"
	"github.com/yigbench/yig/pkg/store"
	"github.com/yigbench/yig/pkg/sweep"
	"github.com/yigbench/yig/pkg/version"
)

// StartResponse is returned by both start endpoints.
type StartResponse struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// ApplyRequest selects the calibration table to refit from. An empty
// path selects the configured one.
type ApplyRequest struct {
	Path string `json:"path"`
}

// ScheduleRequest sets the calibration cron expression.
type ScheduleRequest struct {
	Cron string `json:"cron"`
}

// ScheduleResponse describes the calibration schedule.
type ScheduleResponse struct {
	controller.ScheduleStatus
	Upcoming []time.Time `json:"upcoming,omitempty"`
}

// PostponeRequest delays the next scheduled calibration.
type PostponeRequest struct {
	Duration string `json:"duration"`
}

func (s *server) startMeasurement(c *gin.Context) {
	var req controller.MeasurementRequest
	if !bind(c, &req) {
		return
	}

	h, err := s.ctrl.StartMeasurement(req)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusAccepted, StartResponse{ID: h.ID, Kind: string(h.Kind)})
}

func (s *server) startCalibration(c *gin.Context) {
	var req controller.CalibrationRequest
	if !bind(c, &req) {
		return
	}

	h, err := s.ctrl.StartCalibration(req)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusAccepted, StartResponse{ID: h.ID, Kind: string(h.Kind)})
}

func (s *server) stopRun(c *gin.Context) {
	h, err := s.ctrl.Stop()
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusAccepted, h.Status())
}

func (s *server) getRun(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.Status())
}

func (s *server) listMeasurements(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, list)
}

func (s *server) getMeasurement(c *gin.Context) {
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, rec)
}

func (s *server) deleteMeasurement(c *gin.Context) {
	id := c.Param("id")
	if h := s.ctrl.Active(); h != nil && h.ID == id {
		abort(c, controller.ErrAlreadyRunning)
		return
	}
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}
	logrus.WithField("id", id).Info("measurement deleted")
	c.Status(http.StatusNoContent)
}

func (s *server) getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.Model().State())
}

func (s *server) applyCalibration(c *gin.Context) {
	var req ApplyRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}

	st, err := s.ctrl.ApplyCalibration(req.Path)
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (s *server) resetCalibration(c *gin.Context) {
	st, err := s.ctrl.Model().Reset()
	if err != nil {
		abort(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (s *server) getSchedule(c *gin.Context) {
	st := s.sched.Status()
	resp := ScheduleResponse{ScheduleStatus: st}
	if st.Cron != "" {
		if runs, err := controller.NextRuns(st.Cron, 3); err == nil {
			resp.Upcoming = runs
		}
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func (s *server) setSchedule(c *gin.Context) {
	var req ScheduleRequest
	if !bind(c, &req) {
		return
	}

	if err := s.applySchedule(req.Cron); err != nil {
		badRequest(c, err)
		return
	}

	s.conf.SetCron(req.Cron)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	action, msg := controller.ScheduleSet, "calibration scheduled: "+req.Cron
	if req.Cron == "" {
		action, msg = controller.ScheduleDisabled, "calibration schedule disabled"
	}
	s.ctrl.PublishSchedule(action, msg)
	logrus.Info(msg)

	s.getSchedule(c)
}

func (s *server) postponeSchedule(c *gin.Context) {
	var req PostponeRequest
	if !bind(c, &req) {
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.sched.Postpone(d); err != nil {
		badRequest(c, err)
		return
	}
	s.ctrl.PublishSchedule(controller.SchedulePostpone, "next calibration postponed by "+d.String())
	s.getSchedule(c)
}

func (s *server) skipSchedule(c *gin.Context) {
	if err := s.sched.Skip(); err != nil {
		badRequest(c, err)
		return
	}
	s.ctrl.PublishSchedule(controller.ScheduleSkip, "next calibration skipped")
	s.getSchedule(c)
}

func (s *server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Get())
}

func bind(c *gin.Context, obj any) bool {
	if err := c.BindJSON(obj); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return false
	}
	return true
}

func badRequest(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusBadRequest, err.Error())
	_ = c.AbortWithError(http.StatusBadRequest, err)
}

// abort writes err with the status code of its class.
func abort(c *gin.Context, err error) {
	code := statusFor(err)
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func statusFor(err error) int {
	var (
		calErr  *calibration.Error
		instErr *instrument.Error
	)
	switch {
	case errors.Is(err, sweep.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrAlreadyRunning), errors.Is(err, controller.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &calErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &instErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
