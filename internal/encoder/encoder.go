// Package encoder drives an LS7366R quadrature counter over SPI and converts
// its position register into travelled distance.
package encoder

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sweeney/machine-monitor/internal/fault"
)

// LS7366R opcodes.
const (
	cmdClearCounter = 0x20
	cmdClearStatus  = 0x30
	cmdReadCounter  = 0x60
	cmdReadStatus   = 0x70
	cmdWriteMode0   = 0x88
	cmdWriteMode1   = 0x90
)

// CountMode is the MDR0 value written at init. 0x00 selects non-quadrature
// counting (A = clock, B = direction), free-running, index disabled; the
// installed encoder is wired for it. 0x01, 0x02 and 0x03 would select x1, x2
// and x4 quadrature.
const CountMode = 0x00

// MDR1 counter width, indexed by byte width - 1.
var byteModes = [4]byte{0x03, 0x02, 0x01, 0x00}

// SettleDelay is the pause the chip needs between the MDR0 and MDR1 writes.
const SettleDelay = 100 * time.Millisecond

// DefaultCountsPerFoot matches a 500 pulse/rev encoder on a 6 in wheel.
const DefaultCountsPerFoot = 1000.0

// Conn is a full-duplex SPI transaction. periph.io's spi.Conn satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// Options tune a Decoder.
type Options struct {
	// CountsPerFoot converts the raw position to feet. Defaults to DefaultCountsPerFoot.
	CountsPerFoot float64
	// Sleep is used for the settle delay. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Decoder is an initialized LS7366R.
type Decoder struct {
	mu            sync.Mutex
	conn          Conn
	closer        io.Closer
	width         int
	countsPerFoot float64
	closed        bool
}

// New initializes the chip on conn with the given counter width in bytes (1-4).
// closer, if non-nil, is released by Close.
func New(conn Conn, closer io.Closer, width int, opts Options) (*Decoder, error) {
	if width < 1 || width > 4 {
		return nil, fmt.Errorf("encoder: byte width %d out of range 1-4", width)
	}
	if opts.CountsPerFoot <= 0 {
		opts.CountsPerFoot = DefaultCountsPerFoot
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	d := &Decoder{
		conn:          conn,
		closer:        closer,
		width:         width,
		countsPerFoot: opts.CountsPerFoot,
	}

	if err := d.ClearCounter(); err != nil {
		return nil, err
	}
	if err := d.ClearStatus(); err != nil {
		return nil, err
	}
	if err := d.tx("write mode 0", []byte{cmdWriteMode0, CountMode}, nil); err != nil {
		return nil, err
	}
	opts.Sleep(SettleDelay)
	if err := d.tx("write mode 1", []byte{cmdWriteMode1, byteModes[width-1]}, nil); err != nil {
		return nil, err
	}
	return d, nil
}

// Width returns the configured counter width in bytes.
func (d *Decoder) Width() int {
	return d.width
}

// ClearCounter zeroes the hardware position register.
func (d *Decoder) ClearCounter() error {
	return d.tx("clear counter", []byte{cmdClearCounter}, nil)
}

// ClearStatus zeroes the status register.
func (d *Decoder) ClearStatus() error {
	return d.tx("clear status", []byte{cmdClearStatus}, nil)
}

// ReadCounter returns the signed position. A first data byte of 0xFF marks
// a wrapped (negative) count, which is reported relative to 2^(8*width).
func (d *Decoder) ReadCounter() (int64, error) {
	w := make([]byte, d.width+1)
	w[0] = cmdReadCounter
	r := make([]byte, len(w))
	if err := d.tx("read counter", w, r); err != nil {
		return 0, err
	}
	return decodeCount(r[1:]), nil
}

// ReadStatus returns the STR register. Diagnostic only.
func (d *Decoder) ReadStatus() (byte, error) {
	r := make([]byte, 2)
	if err := d.tx("read status", []byte{cmdReadStatus, 0xFF}, r); err != nil {
		return 0, err
	}
	return r[1], nil
}

// Distance returns the position converted to feet.
func (d *Decoder) Distance() (float64, error) {
	n, err := d.ReadCounter()
	if err != nil {
		return 0, err
	}
	return float64(n) / d.countsPerFoot, nil
}

// Close releases the SPI port. Further calls, including Close, fail.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fault.Closed("close encoder")
	}
	d.closed = true
	if d.closer == nil {
		return nil
	}
	return fault.Wrap(fault.HardwareIO, "close encoder", d.closer.Close())
}

func (d *Decoder) tx(op string, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fault.Closed(op)
	}
	return fault.Wrap(fault.HardwareIO, op, d.conn.Tx(w, r))
}

func decodeCount(data []byte) int64 {
	var n int64
	for _, b := range data {
		n = n<<8 | int64(b)
	}
	if data[0] == 0xFF {
		n -= int64(1) << (8 * len(data))
	}
	return n
}
