//go:build !unix

package netpoll

import "errors"

// NewPortable is unavailable outside unix GOOS targets; the scheduler falls
// back to a timer-only mode (no fd readiness waits) on such platforms.
func NewPortable() (Poller, error) {
	return nil, errors.New("netpoll: portable poller requires a unix target")
}
