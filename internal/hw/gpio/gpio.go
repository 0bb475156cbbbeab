package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/MBot/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return fmt.Sprintf("PinMode(%d)", int(m))
}

// Driver defines the abstract interface for controlling GPIOs.
// The motors only ever see this, so the same code runs on a Raspberry Pi
// or on a development machine with the mock.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// MockDriver keeps pin state in memory and logs every access at trace level.
// Reads return the last written level.
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	writes int
}

// NewMockDriver returns an empty mock.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		modes:  make(map[int]PinMode),
		levels: make(map[int]Level),
	}
}

// NewDriver creates a GPIO driver based on the chosen mode.
// mock=true returns a MockDriver, otherwise the go-rpio driver.
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (motors are simulated)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	if mode != Input && mode != Output {
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modes[pin]; !ok {
		m.modes[pin] = Output
	}
	m.levels[pin] = level
	m.writes++
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock, %d writes)", m.Writes())
	return nil
}

// Mode reports the mode a pin was set up with.
func (m *MockDriver) Mode(pin int) (PinMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.modes[pin]
	return mode, ok
}

// Writes returns the number of WritePin calls so far.
func (m *MockDriver) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
