package encoder

// FakeConn is a test double that emulates the LS7366R register set.
type FakeConn struct {
	// Raw is the position register; ReadCounter returns its low bytes.
	Raw uint32

	// Status is returned by ReadStatus.
	Status byte

	// Writes records every transmitted buffer.
	Writes [][]byte

	// TxError, if set, is returned by every transaction.
	TxError error

	// Closed tracks if Close was called.
	Closed bool

	mode0 byte
	mode1 byte
}

// NewFakeConn creates a FakeConn with the position register set to raw.
func NewFakeConn(raw uint32) *FakeConn {
	return &FakeConn{Raw: raw}
}

// Tx interprets the opcode in w[0] and fills r like the chip would.
func (f *FakeConn) Tx(w, r []byte) error {
	if f.TxError != nil {
		return f.TxError
	}
	f.Writes = append(f.Writes, append([]byte(nil), w...))

	switch w[0] {
	case cmdClearCounter:
		f.Raw = 0
	case cmdClearStatus:
		f.Status = 0
	case cmdWriteMode0:
		f.mode0 = w[1]
	case cmdWriteMode1:
		f.mode1 = w[1]
	case cmdReadCounter:
		n := len(w) - 1
		for i := 0; i < n; i++ {
			r[1+i] = byte(f.Raw >> (8 * (n - 1 - i)))
		}
	case cmdReadStatus:
		r[1] = f.Status
	}
	return nil
}

// Close marks the connection as closed.
func (f *FakeConn) Close() error {
	f.Closed = true
	return nil
}

// Mode returns the last values written to MDR0 and MDR1.
func (f *FakeConn) Mode() (byte, byte) {
	return f.mode0, f.mode1
}
