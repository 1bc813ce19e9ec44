// Package gpio provides key input and LED output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// KeyMask is a set of pressed keys. Zero means all keys released.
type KeyMask uint8

const (
	KeySW1 KeyMask = 0x01 // primary button
	KeySW2 KeyMask = 0x02
)

func (k KeyMask) String() string {
	return fmt.Sprintf("0x%02x", uint8(k))
}

// Keys reads the current key state.
type Keys interface {
	// ReadKeys returns the mask of keys currently held down.
	ReadKeys() (KeyMask, error)

	// OnEdge sets the function called on any key edge. It runs on a driver
	// goroutine and must not block.
	OnEdge(fn func())

	// Close releases GPIO resources.
	Close() error
}

// LED drives the status LED.
type LED interface {
	Set(on bool) error
	Toggle() error
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinSW1 = 17
	PinSW2 = 27
	PinLED = 22
)

// Pins selects the lines used by the real drivers.
type Pins struct {
	Chip string
	SW1  int
	SW2  int
	LED  int
}

// DefaultPins returns the standard wiring on gpiochip0.
func DefaultPins() Pins {
	return Pins{Chip: "gpiochip0", SW1: PinSW1, SW2: PinSW2, LED: PinLED}
}
