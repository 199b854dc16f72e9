package coop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(nil)
	require.NoError(t, err)
	return s
}

func TestScheduler_CreateTask_RunsToCompletion(t *testing.T) {
	s := newTestScheduler(t)

	id := s.CreateTask(func(y *Yield) (any, error) {
		return 42, nil
	})

	err := s.Run(context.Background())
	require.NoError(t, err)

	task, ok := s.Task(id)
	require.True(t, ok)
	require.True(t, task.IsDone())

	result, terr := task.Result()
	require.NoError(t, terr)
	require.Equal(t, 42, result)
}

func TestScheduler_Join_WaitsForChild(t *testing.T) {
	s := newTestScheduler(t)

	var parentResult any
	s.CreateTask(func(y *Yield) (any, error) {
		childID := s.CreateTask(func(y *Yield) (any, error) {
			return "child-done", nil
		})
		child, _ := s.Task(childID)
		res, err := child.Join(y)
		if err != nil {
			return nil, err
		}
		parentResult = res
		return res, nil
	})

	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, "child-done", parentResult)
}

func TestScheduler_CancelTask_InjectsCancelledError(t *testing.T) {
	s := newTestScheduler(t)

	gotErr := make(chan error, 1)
	id := s.CreateTask(func(y *Yield) (any, error) {
		_, err := y.Send(SleepFor{Delay: time.Hour})
		gotErr <- err
		return nil, err
	})

	s.CreateTask(func(y *Yield) (any, error) {
		return nil, s.CancelTask(id, nil)
	})

	require.NoError(t, s.Run(context.Background()))

	task, _ := s.Task(id)
	require.Equal(t, StateCancelled, task.State())

	err := <-gotErr
	require.ErrorIs(t, err, ErrCancelled)
}

func TestScheduler_SleepFor_ResumesAfterDelay(t *testing.T) {
	s := newTestScheduler(t)

	start := time.Now()
	s.CreateTask(func(y *Yield) (any, error) {
		_, err := y.Send(SleepFor{Delay: 20 * time.Millisecond, Result: "woke"})
		return err, nil
	})

	require.NoError(t, s.Run(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestScheduler_ContextCancellation_StopsRun(t *testing.T) {
	s := newTestScheduler(t)

	s.CreateTask(func(y *Yield) (any, error) {
		_, err := y.Send(SleepFor{Delay: time.Hour})
		return nil, err
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_Shutdown_CancelsNonSurvivors(t *testing.T) {
	s := newTestScheduler(t)

	var survivorID int64
	victimDone := make(chan State, 1)

	victim := s.CreateTask(func(y *Yield) (any, error) {
		_, err := y.Send(SleepFor{Delay: time.Hour})
		return nil, err
	})

	survivorID = s.CreateTask(func(y *Yield) (any, error) {
		_, err := y.Send(Shutdown{SkipID: survivorID})
		return nil, err
	})

	require.NoError(t, s.Run(context.Background()))

	victimTask, _ := s.Task(victim)
	victimDone <- victimTask.State()
	require.Equal(t, StateCancelled, <-victimDone)
}
