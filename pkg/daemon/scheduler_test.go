package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsTask(t *testing.T) {
	ran := make(chan struct{}, 4)
	s := NewScheduler(func() error {
		ran <- struct{}{}
		return nil
	}, nil, nil, nil)
	defer s.Stop()

	// Every second so the test does not have to wait for a real schedule.
	require.NoError(t, s.Schedule("* * * * * *"))
	s.Start()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled task did not run")
	}
}

func TestSchedulerPreCheckHoldsRunOff(t *testing.T) {
	ran := make(chan struct{}, 4)
	failed := make(chan struct{}, 4)
	s := NewScheduler(func() error {
		ran <- struct{}{}
		return nil
	}, func() error {
		return errors.New("still busy")
	}, nil, func(any) {
		failed <- struct{}{}
	})
	defer s.Stop()

	require.NoError(t, s.Schedule("* * * * * *"))
	s.Start()

	select {
	case <-failed:
	case <-time.After(3 * time.Second):
		t.Fatal("precheck failure was not reported")
	}

	select {
	case <-ran:
		t.Fatal("task ran despite failing precheck")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestSchedulerRejectsInvalidCron(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	assert.Error(t, s.Schedule("not a cron expression"))
}

func TestSchedulerPostponeRequiresSchedule(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	assert.Error(t, s.Postpone(time.Minute))
	assert.Error(t, s.Postpone(-time.Minute))
}

func TestSchedulerPostponeTooLong(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)
	defer s.Stop()

	// Hourly schedule; postponing by two hours would overrun the next slot.
	require.NoError(t, s.Schedule("0 * * * *"))
	s.Start()
	time.Sleep(50 * time.Millisecond)

	assert.Error(t, s.Postpone(2*time.Hour))
	assert.NoError(t, s.Postpone(time.Minute))
}

func TestSchedulerSkipAdvancesNextRun(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)

	assert.Error(t, s.Skip()) // nothing scheduled yet

	require.NoError(t, s.Schedule("0 * * * *"))
	before, _ := s.Status()
	require.NoError(t, s.Skip())
	after, _ := s.Status()
	assert.True(t, after.After(before))
}

func TestSchedulerStatus(t *testing.T) {
	s := NewScheduler(func() error { return nil }, nil, nil, nil)

	next, running := s.Status()
	assert.True(t, next.IsZero())
	assert.False(t, running)

	require.NoError(t, s.Schedule("0 * * * *"))
	s.Start()
	defer s.Stop()
	time.Sleep(50 * time.Millisecond)

	next, running = s.Status()
	assert.False(t, next.IsZero())
	assert.True(t, running)
}
