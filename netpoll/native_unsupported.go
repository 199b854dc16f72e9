//go:build !linux

package netpoll

import "errors"

// NewNative is only implemented for Linux (epoll). Callers should fall back
// to NewPortable on other platforms.
func NewNative() (Poller, error) {
	return nil, errors.New("netpoll: native poller is only implemented for linux")
}
