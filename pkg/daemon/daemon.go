package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/calibration"
	"github.com/yigbench/yig/pkg/config"
	"github.com/yigbench/yig/pkg/controller"
	"github.com/yigbench/yig/pkg/events"
	"github.com/yigbench/yig/pkg/store"
)

type server struct {
	conf  config.Config
	ctrl  *controller.Controller
	store *store.Store
	hub   *events.EventHub
	sched *controller.Scheduler

	// quit ends open event streams on shutdown.
	quit chan struct{}
}

func (s *server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))

	router.POST("/measurements/start", s.startMeasurement)
	router.GET("/measurements", s.listMeasurements)
	router.GET("/measurements/:id", s.getMeasurement)
	router.DELETE("/measurements/:id", s.deleteMeasurement)

	router.POST("/calibration/start", s.startCalibration)
	router.GET("/calibration", s.getCalibration)
	router.POST("/calibration/apply", s.applyCalibration)
	router.POST("/calibration/reset", s.resetCalibration)
	router.GET("/calibration/schedule", s.getSchedule)
	router.PUT("/calibration/schedule", s.setSchedule)
	router.POST("/calibration/schedule/postpone", s.postponeSchedule)
	router.POST("/calibration/schedule/skip", s.skipSchedule)

	router.GET("/run", s.getRun)
	router.POST("/run/stop", s.stopRun)

	router.GET("/events", s.streamEvents)
	router.GET("/config", s.getConfig)
	router.GET("/version", getVersion)

	return router
}

func newServer(conf config.Config) (*server, error) {
	model := calibration.NewModel(conf.CalibrationStatePath())
	model.Init(conf.CalibrationFile())
	logrus.WithFields(model.State().LogrusFields()).Info("calibration loaded")

	dbPath := conf.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create database directory for %s", dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	hub := events.NewEventHub()
	ctrl := controller.New(controller.Options{
		Bench:    newBench(conf),
		Model:    model,
		Store:    st,
		Hub:      hub,
		Defaults: defaultsFrom(conf),
	})

	s := &server{
		conf:  conf,
		ctrl:  ctrl,
		store: st,
		hub:   hub,
		sched: ctrl.NewScheduler(),
		quit:  make(chan struct{}),
	}
	return s, nil
}

func defaultsFrom(conf config.Config) controller.Defaults {
	return controller.Defaults{
		MeasurementDelays: conf.MeasurementDelays(),
		CalibrationDelays: conf.CalibrationDelays(),
		CalibrationFile:   conf.CalibrationFile(),
		Calibration:       conf.DefaultCalibration(),
	}
}

// applySchedule sets the calibration cron expression and runs the
// scheduler when it is not empty.
func (s *server) applySchedule(expr string) error {
	if err := s.sched.Schedule(expr); err != nil {
		return err
	}
	if expr != "" {
		s.sched.Start()
	}
	return nil
}

// stop ends the schedule, the active run and all event streams.
func (s *server) stop(ctx context.Context) {
	logrus.Info("stopping calibration schedule")
	s.sched.Stop()

	logrus.Info("stopping active run")
	if err := s.ctrl.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to stop active run: %v", err)
	}
	close(s.quit)
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	s, err := newServer(conf)
	if err != nil {
		return err
	}

	// Receive SIGHUP to reload config. Instrument addresses take effect on
	// the next run; the schedule is re-applied immediately.
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := s.applySchedule(conf.Cron()); err != nil {
				logrus.Errorf("failed to apply calibration schedule: %v", err)
			}
			logrus.Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A socket left behind by a crashed daemon would fail Listen.
	if _, err := os.Stat(unixSocketPath); err == nil {
		logrus.Warnf("removing stale socket %s", unixSocketPath)
		_ = os.Remove(unixSocketPath)
	}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, chaning permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	if err := s.applySchedule(conf.Cron()); err != nil {
		logrus.WithError(err).WithField("cron", conf.Cron()).Error("invalid calibration schedule in config, scheduling disabled")
	}

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The run has to end before the HTTP server goes away, so SSE clients
	// see its final state.
	s.stop(ctx)

	logrus.Info("shutting down http server")
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}

	logrus.Info("closing measurement store")
	if err := s.store.Close(); err != nil {
		logrus.Errorf("failed to close measurement store: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
