package dtm

import (
	"testing"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/tap"
)

// harness drives an Engine at the pin level the way a probe would.
type harness struct {
	t    *testing.T
	cfg  *Config
	eng  *Engine
	bus  *dmi.MemoryBus
	pins *jtag.PinAdapter
	sm   *tap.StateMachine
}

func newHarness(t *testing.T, cfg *Config) *harness {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	bus := cfg.NewBus()
	eng, err := New(cfg, bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{
		t:    t,
		cfg:  cfg,
		eng:  eng,
		bus:  bus,
		pins: jtag.NewPinAdapter(eng, int(cfg.TickRate)),
		sm:   tap.NewStateMachine(),
	}
}

// scan walks to Shift-IR or Shift-DR, shifts bits of value, passes through
// Update and parks in Run-Test/Idle. It returns the bits shifted out.
func (h *harness) scan(ir bool, value uint64, bits int) uint64 {
	h.t.Helper()
	target := tap.StateShiftDR
	if ir {
		target = tap.StateShiftIR
	}
	path, err := tap.Path(h.sm.State(), target)
	if err != nil {
		h.t.Fatalf("Path: %v", err)
	}

	off := len(path.TMS)
	n := off + bits + 2
	tms := make([]byte, (n+7)/8)
	tdi := make([]byte, (n+7)/8)
	for i, b := range path.TMS {
		jtag.SetBit(tms, i, b)
	}
	for i := 0; i < bits; i++ {
		jtag.SetBit(tdi, off+i, value>>uint(i)&1 == 1)
	}
	jtag.SetBit(tms, off+bits-1, true) // Exit1
	jtag.SetBit(tms, off+bits, true)   // Update, then Run-Test/Idle

	tdo, err := h.pins.Sequence(tms, tdi, n)
	if err != nil {
		h.t.Fatalf("Sequence: %v", err)
	}
	h.sm.Force(tap.StateRunTestIdle)
	if h.eng.State() != tap.StateRunTestIdle {
		h.t.Fatalf("engine in %s after scan, want %s", h.eng.State(), tap.StateRunTestIdle)
	}
	return jtag.UnpackBits(jtag.ExtractBits(tdo, off, bits), bits)
}

func (h *harness) selectIR(inst Instruction) {
	h.t.Helper()
	if got := h.scan(true, uint64(inst), IRLength); got != uint64(InstIDCode) {
		h.t.Fatalf("IR capture = %05b, want %05b", got, InstIDCode)
	}
}

// idle clocks n TCK cycles in Run-Test/Idle.
func (h *harness) idle(n int) {
	h.t.Helper()
	if _, err := h.pins.Sequence(nil, nil, n); err != nil {
		h.t.Fatalf("idle: %v", err)
	}
}

func (h *harness) dmi(addr uint8, data uint32, op dmi.Op) (uint8, uint32, dmi.Status) {
	h.t.Helper()
	a, d, s := DecodeDMI(h.scan(false, EncodeDMI(addr, data, uint8(op)), DMILength))
	return a, d, dmi.Status(s)
}

func (h *harness) dtmcs(value uint32) DTMCS {
	h.t.Helper()
	return DecodeDTMCS(uint32(h.scan(false, uint64(value), DTMCSLength)))
}
