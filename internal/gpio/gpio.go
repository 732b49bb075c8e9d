// Package gpio provides GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the photoelectric sensor input.
type Reader interface {
	// Read returns true while the sensor detects an object.
	// The input is active low: raw 0 = detected.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Indicator drives a status LED.
type Indicator interface {
	Set(on bool) error
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinSensor   = 14 // photoelectric sensor, pulled up
	DefaultPinLEDLog   = 20 // orange: logging window active
	DefaultPinLEDReady = 21 // green: initialized
)

// DefaultChip is the Raspberry Pi header GPIO chip.
const DefaultChip = "gpiochip0"
