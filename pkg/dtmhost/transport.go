package dtmhost

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/tap"
)

// transport turns register scans into adapter shifts while tracking where
// the target TAP should be.
type transport struct {
	adapter jtag.Adapter
	tap     *tap.StateMachine
	scans   int
}

func newTransport(adapter jtag.Adapter) *transport {
	return &transport{adapter: adapter, tap: tap.NewStateMachine()}
}

// reset pulses TRST where the adapter can, then clocks five TMS=1 cycles and
// parks in Run-Test/Idle.
func (t *transport) reset() error {
	if err := t.adapter.ResetTAP(true); err != nil && !errors.Is(err, jtag.ErrNotImplemented) {
		return err
	}
	seq := t.tap.Reset()
	tms := append(seq.TMS, false)
	t.tap.Clock(false)
	_, err := t.shift(false, tms, nil)
	return err
}

// scan moves to Shift-IR or Shift-DR, shifts value in LSB first, updates and
// returns to Run-Test/Idle. The captured bits are returned.
func (t *transport) scan(ir bool, value uint64, bits int) (uint64, error) {
	target := tap.StateShiftDR
	if ir {
		target = tap.StateShiftIR
	}
	path, err := tap.Path(t.tap.State(), target)
	if err != nil {
		return 0, err
	}

	off := len(path.TMS)
	tms := make([]bool, 0, off+bits+2)
	tms = append(tms, path.TMS...)
	tdi := make([]bool, off, off+bits+2)
	for i := 0; i < bits; i++ {
		tms = append(tms, i == bits-1)
		tdi = append(tdi, value>>uint(i)&1 == 1)
	}
	tms = append(tms, true, false) // Update, Run-Test/Idle
	tdi = append(tdi, false, false)

	tdo, err := t.shift(ir, tms, tdi)
	if err != nil {
		return 0, err
	}
	for _, bit := range tms {
		t.tap.Clock(bit)
	}
	t.scans++
	return jtag.UnpackBits(jtag.ExtractBits(tdo, off, bits), bits), nil
}

// idle clocks n cycles with TMS low. It must be called in Run-Test/Idle.
func (t *transport) idle(n int) error {
	if n <= 0 {
		return nil
	}
	if t.tap.State() != tap.StateRunTestIdle {
		return fmt.Errorf("dtmhost: idle requested in %s", t.tap.State())
	}
	_, err := t.shift(false, make([]bool, n), nil)
	return err
}

func (t *transport) shift(ir bool, tms, tdi []bool) ([]byte, error) {
	bits := len(tms)
	tmsBytes := make([]byte, (bits+7)/8)
	tdiBytes := make([]byte, len(tmsBytes))
	for i, b := range tms {
		jtag.SetBit(tmsBytes, i, b)
	}
	for i, b := range tdi {
		jtag.SetBit(tdiBytes, i, b)
	}
	if ir {
		return t.adapter.ShiftIR(tmsBytes, tdiBytes, bits)
	}
	return t.adapter.ShiftDR(tmsBytes, tdiBytes, bits)
}
