package coop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_NowaitPutGet(t *testing.T) {
	s := newTestScheduler(t)
	q := NewQueue[int](s, 2)

	require.NoError(t, q.PutNowait(1))
	require.NoError(t, q.PutNowait(2))
	require.ErrorIs(t, q.PutNowait(3), ErrQueueFull)

	v, err := q.GetNowait()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	_, err = q.GetNowait()
	require.NoError(t, err)

	_, err = q.GetNowait()
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestQueue_BlockingPutGet_Rendezvous(t *testing.T) {
	s := newTestScheduler(t)
	q := NewQueue[string](s, 1)

	var got string
	s.CreateTask(func(y *Yield) (any, error) {
		v, err := q.Get(y)
		got = v
		return v, err
	})
	s.CreateTask(func(y *Yield) (any, error) {
		return nil, q.Put(y, "work-item")
	})

	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, "work-item", got)
}

func TestQueue_DoneJoin(t *testing.T) {
	s := newTestScheduler(t)
	q := NewQueue[int](s, 0)

	require.NoError(t, q.PutNowait(1))
	require.NoError(t, q.PutNowait(2))

	var joined bool
	s.CreateTask(func(y *Yield) (any, error) {
		err := q.Join(y)
		joined = true
		return nil, err
	})

	s.CreateTask(func(y *Yield) (any, error) {
		if _, err := q.GetNowait(); err != nil {
			return nil, err
		}
		if err := q.Done(); err != nil {
			return nil, err
		}
		if _, err := q.GetNowait(); err != nil {
			return nil, err
		}
		return nil, q.Done()
	})

	require.NoError(t, s.Run(context.Background()))
	require.True(t, joined)
}

func TestQueue_Done_WithoutUnfinished_ReturnsLengthError(t *testing.T) {
	s := newTestScheduler(t)
	q := NewQueue[int](s, 0)

	require.ErrorIs(t, q.Done(), ErrLength)
}
