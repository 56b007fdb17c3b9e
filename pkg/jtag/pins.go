package jtag

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/OpenTraceDTM/pkg/cdc"
)

// Pins is the level driven on each JTAG input for one target tick.
type Pins struct {
	TCK  bool
	TMS  bool
	TDI  bool
	TRST bool // asserted, i.e. nTRST low
}

// PinTarget is a device clocked at the pin level, one call per target clock.
type PinTarget interface {
	Tick(p Pins)
	TDO() bool
}

const (
	// MinHalfPeriod is the shortest TCK half period in target ticks. It keeps
	// TCK at a quarter of the tick rate or slower.
	MinHalfPeriod = 2
	// SettleTicks lets the last TCK edge of an operation reach the target.
	SettleTicks = cdc.Latency
	// TRSTHoldTicks is how long a hard reset holds TRST.
	TRSTHoldTicks = cdc.Latency + 1
)

// PinAdapter bit-bangs a PinTarget. It implements Adapter.
//
// Each bit drives TCK low with TMS and TDI set for one half period, samples
// TDO, then drives TCK high for another half period.
type PinAdapter struct {
	target   PinTarget
	tickRate int
	half     int
	pins     Pins
	ticks    uint64

	mu sync.Mutex
}

// NewPinAdapter drives target, whose clock runs at tickRate Hz, at the
// fastest TCK the target accepts.
func NewPinAdapter(target PinTarget, tickRate int) *PinAdapter {
	return &PinAdapter{target: target, tickRate: tickRate, half: MinHalfPeriod}
}

// MaxSpeed is the fastest TCK frequency accepted by SetSpeed.
func (a *PinAdapter) MaxSpeed() int {
	return a.tickRate / (2 * MinHalfPeriod)
}

// Info reports the pin adapter capabilities.
func (a *PinAdapter) Info() (AdapterInfo, error) {
	return AdapterInfo{
		Name:         "Pin adapter",
		Vendor:       "OpenTraceLab",
		Model:        "bit-bang",
		MinFrequency: 1,
		MaxFrequency: a.MaxSpeed(),
		SupportsTRST: true,
		Notes:        fmt.Sprintf("target clock %d Hz", a.tickRate),
	}, nil
}

// SetSpeed picks the shortest half period that does not exceed hz.
func (a *PinAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	if hz > a.MaxSpeed() {
		return fmt.Errorf("jtag: %d Hz exceeds a quarter of the %d Hz target clock", hz, a.tickRate)
	}
	half := (a.tickRate + 2*hz - 1) / (2 * hz)
	if half < MinHalfPeriod {
		half = MinHalfPeriod
	}
	a.half = half
	return nil
}

// Speed is the TCK frequency currently generated.
func (a *PinAdapter) Speed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tickRate / (2 * a.half)
}

// Ticks counts target ticks driven so far.
func (a *PinAdapter) Ticks() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ticks
}

// ShiftIR clocks bits through the target. The TAP path is entirely up to
// the caller's TMS pattern.
func (a *PinAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.Sequence(tms, tdi, bits)
}

// ShiftDR clocks bits through the target.
func (a *PinAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.Sequence(tms, tdi, bits)
}

// Sequence clocks bits TCK cycles with per-bit TMS and TDI and returns the
// TDO sampled before each rising edge. Missing TMS or TDI buffers read as
// zero.
func (a *PinAdapter) Sequence(tms, tdi []byte, bits int) ([]byte, error) {
	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tdo := make([]byte, (bits+7)/8)
	for i := 0; i < bits; i++ {
		SetBit(tdo, i, a.clock(GetBit(tms, i), GetBit(tdi, i)))
	}
	a.hold(SettleTicks)
	return tdo, nil
}

// ResetTAP resets the target TAP. A hard reset pulses TRST, a soft one
// clocks five cycles with TMS high.
func (a *PinAdapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hard {
		a.setTRST(true, TRSTHoldTicks)
		a.setTRST(false, SettleTicks)
		return nil
	}
	for i := 0; i < 5; i++ {
		a.clock(true, false)
	}
	a.hold(SettleTicks)
	return nil
}

// Idle holds the pins for n target ticks.
func (a *PinAdapter) Idle(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hold(n)
}

func (a *PinAdapter) clock(tms, tdi bool) bool {
	a.pins.TCK = false
	a.pins.TMS = tms
	a.pins.TDI = tdi
	a.hold(a.half)

	tdo := a.target.TDO()

	a.pins.TCK = true
	a.hold(a.half)
	a.pins.TCK = false
	return tdo
}

func (a *PinAdapter) setTRST(assert bool, ticks int) {
	a.pins.TRST = assert
	a.hold(ticks)
}

func (a *PinAdapter) hold(n int) {
	for i := 0; i < n; i++ {
		a.target.Tick(a.pins)
		a.ticks++
	}
}
