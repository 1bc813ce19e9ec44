package gpio

import "sync"

// FakeKeys is a test double holding a settable key mask.
type FakeKeys struct {
	mu   sync.Mutex
	mask KeyMask
	edge func()

	// Reads counts calls to ReadKeys.
	Reads int

	// ReadError, if set, will be returned by ReadKeys()
	ReadError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeKeys creates FakeKeys with all keys released.
func NewFakeKeys() *FakeKeys {
	return &FakeKeys{}
}

// Set changes the held keys and fires the edge callback, as a real edge
// interrupt would.
func (f *FakeKeys) Set(mask KeyMask) {
	f.mu.Lock()
	f.mask = mask
	fn := f.edge
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetQuiet changes the held keys without an edge, simulating a bounce the
// interrupt missed.
func (f *FakeKeys) SetQuiet(mask KeyMask) {
	f.mu.Lock()
	f.mask = mask
	f.mu.Unlock()
}

func (f *FakeKeys) ReadKeys() (KeyMask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return f.mask, nil
}

func (f *FakeKeys) OnEdge(fn func()) {
	f.mu.Lock()
	f.edge = fn
	f.mu.Unlock()
}

// Close marks the keys as closed.
func (f *FakeKeys) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeLED records LED output.
type FakeLED struct {
	mu sync.Mutex

	On bool

	// History contains every level written, in order.
	History []bool

	// SetError, if set, will be returned by Set and Toggle.
	SetError error

	Closed bool
}

// NewFakeLED creates a FakeLED that starts off.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

func (f *FakeLED) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	f.History = append(f.History, on)
	return nil
}

func (f *FakeLED) Toggle() error {
	f.mu.Lock()
	on := !f.On
	f.mu.Unlock()
	return f.Set(on)
}

// Level returns the current output.
func (f *FakeLED) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.On
}

// Writes returns how many levels have been written.
func (f *FakeLED) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.History)
}

func (f *FakeLED) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
