package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/cnocal/cnocal/pkg/calib"
	"github.com/cnocal/cnocal/pkg/events"
)

const (
	// leadDuration is how long before the scheduled time subscribers are
	// warned that a run is coming.
	leadDuration     = time.Minute * 5
	preCheckMaxTimes = 30
	preCheckInterval = time.Second * 10
)

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler fires the calibration task on a cron schedule. A pre-check
// callback can hold a run off (retried with backoff) when the previous run is
// still in flight.
type Scheduler struct {
	OnUpcoming NotifyFunc // called leadDuration before running the task
	OnError    NotifyFunc // called on task or pre-check error
	Task       TaskFunc
	PreCheck   TaskFunc

	parser cron.Parser

	schedule cron.Schedule
	nextRun  time.Time

	mu      sync.Mutex
	running bool

	controlCh chan controlMsg
	stopCh    chan struct{}
}

type controlKind int

const (
	ctrlRecalculate controlKind = iota // schedule changed, timer needs recalculation
	ctrlPostpone
	ctrlSkip
)

type controlMsg struct {
	kind controlKind
	data any
}

func newCronParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func NewScheduler(task, preCheck TaskFunc, onUpcoming, onError NotifyFunc) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		OnUpcoming: onUpcoming,
		OnError:    onError,
		Task:       task,
		PreCheck:   preCheck,
		parser:     newCronParser(),
		controlCh:  make(chan controlMsg, 4),
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.runScheduled()
}

func (s *Scheduler) Schedule(cronExpr string) error {
	sh, err := s.parser.Parse(cronExpr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	running := s.running
	if !running {
		s.schedule = sh
		s.nextRun = sh.Next(time.Now())
	}
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate, sh)
	}
	return nil
}

// Postpone delays the next scheduled run by the given duration. The postponed
// time must still fall before the run after it.
func (s *Scheduler) Postpone(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("postpone duration must be positive")
	}

	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to postpone")
	}
	orig := s.nextRun
	next := s.schedule.Next(orig).Truncate(time.Second)
	running := s.running
	s.mu.Unlock()

	if !running {
		return fmt.Errorf("no active schedule to postpone")
	}

	pp := orig.Add(d).Truncate(time.Second)
	if pp.Compare(next) >= 0 {
		return fmt.Errorf("postpone duration too long")
	}

	s.trySendControl(ctrlPostpone, pp)
	return nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	next := s.schedule.Next(s.nextRun)
	s.nextRun = next
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	s.trySendControl(ctrlSkip, nil)
	return nil
}

func (s *Scheduler) Status() (nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, s.running
}

func (s *Scheduler) runScheduled() {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logrus.Debug("scheduler stopped")
	}()

	logrus.Debug("scheduler started")

	for {
		leading := true
		attempts := 0
		var precheckErr error

		schedule, nextRun := s.snapshot()
		var timer *time.Timer
		if schedule == nil || nextRun.IsZero() {
			timer = time.NewTimer(time.Hour * 10000)
		} else {
			wait := time.Until(nextRun) - leadDuration
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		}

		for {
			select {
			case <-timer.C:
				if schedule == nil || nextRun.IsZero() {
					break
				}

				if leading {
					logrus.Debugf("upcoming scheduled run at %s", nextRun.Format(time.DateTime))
					leading = false
					runWait := time.Until(nextRun)
					if runWait < 0 {
						runWait = 0
					}
					timer.Reset(runWait)
					s.sendNotify(nextRun)
					continue
				}

				logrus.Debugf("running scheduled calibration at %s", nextRun.Format(time.DateTime))

				if s.PreCheck != nil {
					if err := s.PreCheck(); err != nil {
						if precheckErr == nil || err.Error() != precheckErr.Error() {
							precheckErr = err
							s.sendError(fmt.Errorf("precheck failed: %v", err))
						}

						attempts++
						if attempts <= preCheckMaxTimes {
							logrus.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, preCheckMaxTimes, err, preCheckInterval)
							timer.Reset(preCheckInterval)
							continue
						}

						timer.Stop()
						s.advanceNextRun()
						break
					}
				}

				timer.Stop()

				go func() {
					if err := s.Task(); err != nil {
						s.sendError(fmt.Errorf("task failed: %v", err))
					}
				}()
				s.advanceNextRun()
			case <-s.stopCh:
				timer.Stop()
				s.mu.Lock()
				s.running = false
				s.mu.Unlock()
				return
			case msg := <-s.controlCh:
				logrus.WithFields(logrus.Fields{
					"kind": msg.kind,
					"data": msg.data,
				}).Debug("received control msg")

				switch msg.kind {
				case ctrlRecalculate:
					timer.Stop()
					sh := msg.data.(cron.Schedule)
					s.mu.Lock()
					s.schedule = sh
					s.nextRun = sh.Next(time.Now())
					s.mu.Unlock()
				case ctrlPostpone: // only affects the current run
					pp := msg.data.(time.Time)
					timer.Reset(time.Until(pp))
					continue
				case ctrlSkip:
					timer.Stop()
				}
			}

			break
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

func (s *Scheduler) advanceNextRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(s.nextRun)
}

func (s *Scheduler) sendNotify(runAt time.Time) {
	if s.OnUpcoming == nil {
		return
	}
	go s.OnUpcoming(runAt)
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}
	go s.OnError(err)
}

func (s *Scheduler) trySendControl(kind controlKind, data any) {
	select {
	case s.controlCh <- controlMsg{kind: kind, data: data}:
	default:
	}
}

// schedule sets (or, with an empty expression, disables) the cron schedule
// for periodic calibration runs and returns the next few run times.
func schedule(cronExpr string) ([]time.Time, error) {
	if cronExpr == "" {
		if conf.Cron() == "" {
			// Already disabled
			return nil, nil
		}

		conf.SetCron("")
		if err := conf.Save(); err != nil {
			logrus.WithError(err).Error("failed to save config")
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
		scheduler.Stop()
		sseHub.Publish(events.RunAction, events.RunActionEvent{
			Action:  string(calib.ActionScheduleDisable),
			Message: "Calibration schedule disabled",
			Ts:      time.Now().Unix(),
		})
		return nil, nil
	}

	sched, err := newCronParser().Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	conf.SetCron(cronExpr)
	if err := conf.Save(); err != nil {
		logrus.WithError(err).Error("failed to save config")
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	if err := scheduler.Schedule(cronExpr); err != nil {
		logrus.WithError(err).Error("failed to schedule calibration")
		return nil, err
	}
	scheduler.Start()

	nextRuns := []time.Time{}
	now := time.Now()
	for i := 0; i < 3; i++ {
		next := sched.Next(now)
		nextRuns = append(nextRuns, next)
		now = next
	}

	sseHub.Publish(events.RunAction, events.RunActionEvent{
		Action:  string(calib.ActionSchedule),
		Message: fmt.Sprintf("Calibration scheduled at %s", nextRuns[0].Format("Jan _2 15:04")),
		Ts:      time.Now().Unix(),
	})

	return nextRuns, nil
}

func postpone(duration time.Duration) error {
	if err := scheduler.Postpone(duration); err != nil {
		logrus.WithError(err).Error("failed to postpone calibration")
		return err
	}

	sseHub.Publish(events.RunAction, events.RunActionEvent{
		Action:  string(calib.ActionSchedulePostpone),
		Message: fmt.Sprintf("Calibration postponed for %s", duration.String()),
		Ts:      time.Now().Unix(),
	})
	return nil
}

func skipNextSchedule() error {
	if err := scheduler.Skip(); err != nil {
		logrus.WithError(err).Error("failed to skip next scheduled calibration")
		return err
	}

	sseHub.Publish(events.RunAction, events.RunActionEvent{
		Action:  string(calib.ActionScheduleSkip),
		Message: "Next scheduled calibration skipped",
		Ts:      time.Now().Unix(),
	})
	return nil
}
