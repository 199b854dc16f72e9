package timerheap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHeap_Tick_FiresDueInTriggerOrder(t *testing.T) {
	h := New()
	base := time.Now()

	var fired []int
	h.Insert(base.Add(30*time.Millisecond), func() { fired = append(fired, 3) })
	h.Insert(base.Add(10*time.Millisecond), func() { fired = append(fired, 1) })
	h.Insert(base.Add(20*time.Millisecond), func() { fired = append(fired, 2) })

	h.Tick(base.Add(25 * time.Millisecond))

	require.Equal(t, []int{1, 2}, fired)
	require.Equal(t, 1, h.Len())
}

func TestHeap_Tick_TieBrokenByInsertionOrder(t *testing.T) {
	h := New()
	due := time.Now()

	var fired []int
	h.Insert(due, func() { fired = append(fired, 1) })
	h.Insert(due, func() { fired = append(fired, 2) })
	h.Insert(due, func() { fired = append(fired, 3) })

	h.Tick(due)

	require.Equal(t, []int{1, 2, 3}, fired)
}

func TestHandle_Stop_PreventsFire(t *testing.T) {
	h := New()
	due := time.Now().Add(10 * time.Millisecond)

	fired := false
	handle := h.Insert(due, func() { fired = true })

	require.True(t, handle.Stop())
	require.Equal(t, 0, h.Len())

	h.Tick(due.Add(time.Millisecond))
	require.False(t, fired)
}

func TestHandle_Stop_AfterFire_ReturnsFalse(t *testing.T) {
	h := New()
	due := time.Now()

	handle := h.Insert(due, func() {})
	h.Tick(due)

	require.False(t, handle.Stop())
}

func TestHandle_Stop_Twice_ReturnsFalseSecondTime(t *testing.T) {
	h := New()
	due := time.Now().Add(time.Hour)

	handle := h.Insert(due, func() {})

	require.True(t, handle.Stop())
	require.False(t, handle.Stop())
}

func TestHeap_NextDue_EmptyReturnsFalse(t *testing.T) {
	h := New()

	_, ok := h.NextDue(time.Now())
	require.False(t, ok)
}

func TestHeap_NextDue_ReportsEarliestPending(t *testing.T) {
	h := New()
	now := time.Now()

	h.Insert(now.Add(50*time.Millisecond), func() {})
	h.Insert(now.Add(10*time.Millisecond), func() {})

	d, ok := h.NextDue(now)
	require.True(t, ok)
	require.InDelta(t, float64(10*time.Millisecond), float64(d), float64(2*time.Millisecond))
}

func TestHeap_NextDue_PastTriggerClampsToZero(t *testing.T) {
	h := New()
	now := time.Now()

	h.Insert(now.Add(-time.Minute), func() {})

	d, ok := h.NextDue(now)
	require.True(t, ok)
	require.Equal(t, time.Duration(0), d)
}
