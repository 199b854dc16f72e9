package coop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskGroup_All_WaitsForEveryMember(t *testing.T) {
	s := newTestScheduler(t)

	g := NewTaskGroup(s, GroupAll)
	var joined bool

	s.CreateTask(func(y *Yield) (any, error) {
		_, _ = g.Spawn(factorialTask(3, 0))
		_, _ = g.Spawn(factorialTask(4, time.Millisecond))
		err := g.Join(y)
		joined = true
		return nil, err
	})

	require.NoError(t, s.Run(context.Background()))
	require.True(t, joined)
	require.Len(t, g.finished, 2)
}

func TestTaskGroup_Any_ResolvesOnFirstDone(t *testing.T) {
	s := newTestScheduler(t)

	g := NewTaskGroup(s, GroupAny)
	var joined bool

	s.CreateTask(func(y *Yield) (any, error) {
		_, _ = g.Spawn(factorialTask(3, 0))
		_, _ = g.Spawn(func(y *Yield) (any, error) {
			_, err := y.Send(SleepFor{Delay: time.Hour})
			return nil, err
		})
		err := g.Join(y)
		joined = true
		return nil, err
	})

	// An any-policy join does not cancel the still-sleeping member, so the
	// run only ends at the context deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
	require.True(t, joined)
}

func TestTaskGroup_NextResult_ReachesFirstNonNilResult(t *testing.T) {
	s := newTestScheduler(t)

	g := NewTaskGroup(s, GroupObject)
	var nextResult any

	s.CreateTask(func(y *Yield) (any, error) {
		_, _ = g.Spawn(func(y *Yield) (any, error) { return nil, nil })
		_, _ = g.Spawn(func(y *Yield) (any, error) { return "the one", nil })

		for {
			r, err := g.NextResult(y)
			if err != nil {
				return nil, err
			}
			if r != nil {
				nextResult = r
				break
			}
		}
		return nil, nil
	})

	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, "the one", nextResult)
}

func TestTaskGroup_None_CancelsImmediately(t *testing.T) {
	s := newTestScheduler(t)

	g := NewTaskGroup(s, GroupNone)

	slowID, _ := g.Spawn(func(y *Yield) (any, error) {
		_, err := y.Send(SleepFor{Delay: time.Hour})
		return nil, err
	})

	s.CreateTask(func(y *Yield) (any, error) {
		return nil, g.Join(y)
	})

	require.NoError(t, s.Run(context.Background()))

	slow, ok := s.Task(slowID)
	require.True(t, ok)
	require.Equal(t, StateCancelled, slow.State())
}

func TestTaskGroup_OnChange_FiresPerMember(t *testing.T) {
	s := newTestScheduler(t)

	g := NewTaskGroup(s, GroupAll)
	var changes int

	g.onChange(func(any) { changes++ })

	s.CreateTask(func(y *Yield) (any, error) {
		_, _ = g.Spawn(factorialTask(3, 0))
		_, _ = g.Spawn(factorialTask(4, 0))
		return nil, g.Join(y)
	})

	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, 2, changes)
}

func TestTaskGroup_CancelRemaining_CleanCancelReturnsNil(t *testing.T) {
	s := newTestScheduler(t)
	g := NewTaskGroup(s, GroupAll)

	_, _ = g.Spawn(func(y *Yield) (any, error) {
		_, err := y.Send(SleepFor{Delay: time.Hour})
		return nil, err
	})

	err := g.CancelRemaining()
	require.NoError(t, err) // a single member cancelling cleanly yields no error
}
