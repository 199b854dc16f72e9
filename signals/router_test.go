package signals

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouter_Add_ActivatesAndDispatches(t *testing.T) {
	r := NewRouter()
	require.False(t, r.Active())

	var got os.Signal
	r.Add(os.Interrupt, func(sig os.Signal) { got = sig })
	require.True(t, r.Active())

	r.Dispatch(os.Interrupt)
	require.Equal(t, os.Interrupt, got)
}

func TestRouter_Remove_LastHandler_Deactivates(t *testing.T) {
	r := NewRouter()

	invoked := false
	r.Add(os.Interrupt, func(os.Signal) { invoked = true })
	require.True(t, r.Active())

	r.Remove(os.Interrupt)
	require.False(t, r.Active())

	r.Dispatch(os.Interrupt)
	require.False(t, invoked)
}

func TestRouter_Remove_KeepsEarlierHandlers(t *testing.T) {
	r := NewRouter()

	var firstCalled, secondCalled bool
	r.Add(os.Interrupt, func(os.Signal) { firstCalled = true })
	r.Add(os.Interrupt, func(os.Signal) { secondCalled = true })

	r.Remove(os.Interrupt)
	require.True(t, r.Active())

	r.Dispatch(os.Interrupt)
	require.True(t, firstCalled)
	require.False(t, secondCalled)
}

func TestRouter_Dispatch_NoHandlers_IsNoop(t *testing.T) {
	r := NewRouter()
	require.NotPanics(t, func() { r.Dispatch(os.Interrupt) })
}

func TestRouter_Close_ClearsAllHandlers(t *testing.T) {
	r := NewRouter()
	r.Add(os.Interrupt, func(os.Signal) {})
	require.True(t, r.Active())

	r.Close()
	require.False(t, r.Active())
}

func TestRouter_Pending_ReturnsReadableChannel(t *testing.T) {
	r := NewRouter()
	ch := r.Pending()
	require.NotNil(t, ch)

	select {
	case <-ch:
		t.Fatal("expected no pending signal")
	default:
	}
}
