package encoder

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/sweeney/machine-monitor/internal/fault"
)

// Config selects the SPI port and counter geometry.
type Config struct {
	Bus           int
	ChipSelect    int
	ClockHz       int64
	ByteWidth     int
	CountsPerFoot float64
}

// Open initializes the host drivers, opens the SPI port and initializes the chip.
func Open(cfg Config) (*Decoder, error) {
	if _, err := host.Init(); err != nil {
		return nil, fault.Wrap(fault.HardwareIO, "host init", err)
	}

	name := fmt.Sprintf("SPI%d.%d", cfg.Bus, cfg.ChipSelect)
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fault.Wrap(fault.HardwareIO, "open "+name, err)
	}

	conn, err := port.Connect(physic.Frequency(cfg.ClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fault.Wrap(fault.HardwareIO, "connect "+name, err)
	}

	d, err := New(conn, port, cfg.ByteWidth, Options{CountsPerFoot: cfg.CountsPerFoot})
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("init encoder on %s: %w", name, err)
	}
	return d, nil
}
