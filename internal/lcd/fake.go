package lcd

// FakeBus records every byte written to the expander.
type FakeBus struct {
	// Writes contains each raw expander byte in order.
	Writes []byte

	// TxError, if set, is returned by Tx.
	TxError error
}

// Tx records w.
func (f *FakeBus) Tx(w, r []byte) error {
	if f.TxError != nil {
		return f.TxError
	}
	f.Writes = append(f.Writes, w...)
	return nil
}

// Op is one byte as latched by the controller.
type Op struct {
	Char bool // RS set: character data; otherwise a command
	Byte byte
}

// Ops reassembles the bytes the controller latched: every write with the
// enable bit set carries one nibble, high nibble first.
func (f *FakeBus) Ops() []Op {
	var ops []Op
	var pending *byte
	for _, w := range f.Writes {
		if w&enable == 0 {
			continue
		}
		n := w & 0xF0
		if pending == nil {
			hi := n
			pending = &hi
			continue
		}
		ops = append(ops, Op{Char: w&modeChar != 0, Byte: *pending | n>>4})
		pending = nil
	}
	return ops
}

// Screen replays Ops into two text rows.
func (f *FakeBus) Screen() (string, string) {
	var rows [2][]byte
	row := 0
	for _, op := range f.Ops() {
		switch {
		case op.Char:
			rows[row] = append(rows[row], op.Byte)
		case op.Byte == cmdClear:
			rows = [2][]byte{}
			row = 0
		case op.Byte == Line1:
			row = 0
		case op.Byte == Line2:
			row = 1
		}
	}
	return string(rows[0]), string(rows[1])
}

// Reset clears recorded writes.
func (f *FakeBus) Reset() {
	f.Writes = nil
	f.TxError = nil
}
