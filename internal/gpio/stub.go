//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealKeys is not available on non-Linux platforms.
type RealKeys struct{}

// NewRealKeys returns an error on non-Linux platforms.
func NewRealKeys(Pins) (*RealKeys, error) {
	return nil, errUnsupported
}

func (k *RealKeys) ReadKeys() (KeyMask, error) { return 0, errUnsupported }
func (k *RealKeys) OnEdge(func())              {}
func (k *RealKeys) Close() error               { return nil }

// RealLED is not available on non-Linux platforms.
type RealLED struct{}

// NewRealLED returns an error on non-Linux platforms.
func NewRealLED(Pins) (*RealLED, error) {
	return nil, errUnsupported
}

func (l *RealLED) Set(bool) error { return errUnsupported }
func (l *RealLED) Toggle() error  { return errUnsupported }
func (l *RealLED) Close() error   { return nil }
