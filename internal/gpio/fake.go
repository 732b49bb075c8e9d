package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted sensor values.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted detection values to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// reads counts calls to Read
	reads int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Exhausted reports whether every scripted sample has been returned at least once.
func (f *FakeReader) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads >= len(f.Samples)
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.reads = 0
	f.Closed = false
}

// FakeLED records the states it is set to.
type FakeLED struct {
	// States contains every value passed to Set.
	States []bool

	// SetError, if set, will be returned by Set()
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// Set records the state.
func (l *FakeLED) Set(on bool) error {
	if l.SetError != nil {
		return l.SetError
	}
	l.States = append(l.States, on)
	return nil
}

// On reports the last state set, false if never set.
func (l *FakeLED) On() bool {
	if len(l.States) == 0 {
		return false
	}
	return l.States[len(l.States)-1]
}

// Close marks the LED as closed.
func (l *FakeLED) Close() error {
	l.Closed = true
	return nil
}
