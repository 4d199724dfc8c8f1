package controller

import (
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	defaultLead        = time.Minute
	defaultBusyRetries = 30
	defaultBusyBackoff = 10 * time.Second
)

// CronParser accepts standard cron expressions with an optional seconds
// field and descriptors such as @daily or @every 6h.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// TaskFunc is the scheduled job.
type TaskFunc func() error

// SchedulerHooks are called from their own goroutines.
type SchedulerHooks struct {
	// Upcoming is called Lead before a run.
	Upcoming func(at time.Time)
	// Skipped is called when the precheck kept failing and the tick was
	// dropped.
	Skipped func(at time.Time, err error)
	// Failed is called when the task returns an error.
	Failed func(err error)
}

// Scheduler runs a task on a cron schedule. Before each run PreCheck is
// retried until it passes or BusyRetries is exhausted, in which case that
// tick is skipped.
type Scheduler struct {
	Task     TaskFunc
	PreCheck TaskFunc
	Hooks    SchedulerHooks

	Lead        time.Duration
	BusyRetries int
	BusyBackoff time.Duration

	mu       sync.Mutex
	schedule cron.Schedule
	expr     string
	nextRun  time.Time
	running  bool
	stopCh   chan struct{}
	ctrlCh   chan ctrlMsg
}

type ctrlKind int

const (
	ctrlReschedule ctrlKind = iota
	ctrlPostpone
	ctrlSkip
)

type ctrlMsg struct {
	kind ctrlKind
	at   time.Time
}

func NewScheduler(task, preCheck TaskFunc, hooks SchedulerHooks) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}
	return &Scheduler{
		Task:        task,
		PreCheck:    preCheck,
		Hooks:       hooks,
		Lead:        defaultLead,
		BusyRetries: defaultBusyRetries,
		BusyBackoff: defaultBusyBackoff,
		ctrlCh:      make(chan ctrlMsg, 4),
	}
}

// Schedule sets the cron expression. An empty expression clears the
// schedule and stops the scheduler.
func (s *Scheduler) Schedule(expr string) error {
	if expr == "" {
		s.Stop()
		s.mu.Lock()
		s.schedule, s.expr, s.nextRun = nil, "", time.Time{}
		s.mu.Unlock()
		return nil
	}

	sh, err := CronParser.Parse(expr)
	if err != nil {
		return pkgerrors.Wrapf(err, "invalid cron expression %q", expr)
	}

	s.mu.Lock()
	s.schedule = sh
	s.expr = expr
	s.nextRun = sh.Next(time.Now())
	running := s.running
	s.mu.Unlock()

	if running {
		s.sendCtrl(ctrlMsg{kind: ctrlReschedule})
	}
	return nil
}

// NextRuns returns the next n activation times of expr.
func NextRuns(expr string, n int) ([]time.Time, error) {
	sh, err := CronParser.Parse(expr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid cron expression %q", expr)
	}
	out := make([]time.Time, 0, n)
	t := time.Now()
	for range n {
		t = sh.Next(t)
		out = append(out, t)
	}
	return out, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	go s.loop(s.stopCh)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// Postpone delays the next run by d. The new time must stay before the
// run after it.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return pkgerrors.New("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() || !s.running {
		s.mu.Unlock()
		return pkgerrors.New("no active schedule to postpone")
	}
	at := s.nextRun.Add(d).Truncate(time.Second)
	if !at.Before(s.schedule.Next(s.nextRun)) {
		s.mu.Unlock()
		return pkgerrors.New("postpone duration too long")
	}
	s.nextRun = at
	s.mu.Unlock()

	s.sendCtrl(ctrlMsg{kind: ctrlPostpone, at: at})
	return nil
}

// Skip drops the next run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return pkgerrors.New("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.sendCtrl(ctrlMsg{kind: ctrlSkip})
	}
	return nil
}

// ScheduleStatus is a snapshot of the scheduler.
type ScheduleStatus struct {
	Cron    string    `json:"cron"`
	NextRun time.Time `json:"nextRun"`
	Running bool      `json:"running"`
}

func (s *Scheduler) Status() ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScheduleStatus{Cron: s.expr, NextRun: s.nextRun, Running: s.running}
}

func (s *Scheduler) loop(stopCh chan struct{}) {
	logrus.Debug("scheduler started")
	defer logrus.Debug("scheduler stopped")

	for {
		next := s.next()
		var wait time.Duration
		if next.IsZero() {
			wait = 10000 * time.Hour
		} else {
			wait = max(time.Until(next)-s.Lead, 0)
		}
		timer := time.NewTimer(wait)

		select {
		case <-stopCh:
			timer.Stop()
			return
		case msg := <-s.ctrlCh:
			timer.Stop()
			logrus.WithField("kind", msg.kind).Debug("scheduler control message")
			continue
		case <-timer.C:
		}

		if next.IsZero() {
			continue
		}
		if !s.fire(next, stopCh) {
			return
		}
	}
}

// fire notifies, waits for next, runs the prechecks and the task. It
// returns false when the scheduler was stopped meanwhile.
func (s *Scheduler) fire(at time.Time, stopCh chan struct{}) bool {
	if s.Hooks.Upcoming != nil {
		go s.Hooks.Upcoming(at)
	}

	timer := time.NewTimer(max(time.Until(at), 0))
	defer timer.Stop()

	attempts := 0
	for {
		select {
		case <-stopCh:
			return false
		case msg := <-s.ctrlCh:
			switch msg.kind {
			case ctrlPostpone:
				at = msg.at
				timer.Reset(max(time.Until(at), 0))
				continue
			default:
				// Rescheduled or skipped: nextRun already moved.
				return true
			}
		case <-timer.C:
		}

		logrus.WithField("at", at.Format(time.DateTime)).Debug("running scheduled task")

		if s.PreCheck != nil {
			if err := s.PreCheck(); err != nil {
				attempts++
				if attempts <= s.BusyRetries {
					logrus.WithError(err).Debugf("precheck failed (%d/%d), retrying in %s", attempts, s.BusyRetries, s.BusyBackoff)
					timer.Reset(s.BusyBackoff)
					continue
				}
				logrus.WithError(err).Warn("skipping scheduled task")
				if s.Hooks.Skipped != nil {
					go s.Hooks.Skipped(at, err)
				}
				s.advance(at)
				return true
			}
		}

		s.advance(at)
		go func() {
			if err := s.Task(); err != nil {
				logrus.WithError(err).Error("scheduled task failed")
				if s.Hooks.Failed != nil {
					s.Hooks.Failed(err)
				}
			}
		}()
		return true
	}
}

func (s *Scheduler) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// advance moves nextRun past at unless the schedule changed meanwhile.
func (s *Scheduler) advance(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	if !s.nextRun.After(at) {
		s.nextRun = s.schedule.Next(at)
	}
}

func (s *Scheduler) sendCtrl(msg ctrlMsg) {
	select {
	case s.ctrlCh <- msg:
	default:
	}
}
