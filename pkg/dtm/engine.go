package dtm

import (
	"github.com/OpenTraceLab/OpenTraceDTM/internal/logger"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/cdc"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/dmi"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDTM/pkg/tap"
)

// Trace is the state of the model after one tick.
type Trace struct {
	Tick     uint64
	Pins     jtag.Pins
	TAP      tap.State
	IR       Instruction
	TDO      bool
	Arbiter  dmi.Snapshot
	Request  dmi.Request
	Response dmi.Response
	Soft     bool // dmireset pulse active this tick
	Hard     bool // dmihardreset pulse active this tick
}

// Engine is the complete transport module. It implements jtag.PinTarget.
type Engine struct {
	// Observer, when set, is called at the end of every tick.
	Observer func(Trace)

	cfg  Config
	bus  dmi.Bus
	sync cdc.Synchronizer
	tap  tap.Controller
	regs bank
	arb  dmi.Arbiter

	soft, hard bool // pulses applied on the current tick
	ticks      uint64
}

var _ jtag.PinTarget = (*Engine)(nil)

// New builds an engine connected to bus. A nil cfg uses DefaultConfig.
func New(cfg *Config, bus dmi.Bus) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: *cfg, bus: bus}
	e.Reset()
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Reset returns every register to its power-on value. The bus is not reset.
func (e *Engine) Reset() {
	e.sync.Reset()
	e.tap.Reset()
	e.regs.idValue = e.cfg.IDCode()
	e.regs.reset()
	e.arb.Reset()
	e.arb.Timeout = e.cfg.Timeout()
	e.soft, e.hard = false, false
	e.ticks = 0
}

// ResetTransport moves the TAP to Test-Logic-Reset and reloads IDCODE into
// the instruction register. The arbiter and any pending reset pulse are left
// alone.
func (e *Engine) ResetTransport() {
	e.tap.Reset()
	e.regs.ir = InstIDCode
}

// Tick evaluates one clock of the model with p driven on the pins.
func (e *Engine) Tick(p jtag.Pins) {
	in := e.sync.Sample(cdc.Lines{Reset: p.TRST, TCK: p.TCK, TMS: p.TMS, TDI: p.TDI})

	req := e.Request()
	resp := e.bus.Clock(req)

	// Everything below sees the registers as they were at the start of the tick.
	view := live{status: e.arb.Status(), addr: e.arb.Addr(), rdata: e.arb.ReadData()}

	var ev *dmi.UpdateEvent
	var nextSoft, nextHard bool
	if e.tap.Entered(tap.StateUpdateDR) {
		switch e.regs.selected() {
		case RegDMI:
			ev = e.regs.dmiUpdate()
		case RegDTMCS:
			nextSoft, nextHard = e.regs.dtmcsUpdate()
			if nextSoft {
				logger.Log("dtm", "dmireset requested")
			}
			if nextHard {
				logger.Log("dtm", "dmihardreset requested")
			}
		}
	}

	if in.TCKRise && !in.Reset {
		switch e.tap.State() {
		case tap.StateCaptureIR:
			e.regs.captureIR()
		case tap.StateShiftIR:
			e.regs.shiftIR(in.TDI)
		case tap.StateCaptureDR:
			e.regs.captureDR(view)
		case tap.StateShiftDR:
			e.regs.shiftDR(in.TDI)
		}
	}

	before := e.tap.State()
	e.tap.Step(in.Reset, in.TCKRise, in.TMS)
	if e.tap.State() == tap.StateTestLogicReset {
		e.regs.ir = InstIDCode
		if before != tap.StateTestLogicReset {
			logger.Logf("tap", "%s -> %s", before, tap.StateTestLogicReset)
		}
	}
	if e.tap.Entered(tap.StateUpdateIR) {
		logger.Logf("tap", "instruction %s", e.regs.ir)
	}

	e.arb.Step(ev, resp, e.soft, e.hard)

	soft, hard := e.soft, e.hard
	e.soft, e.hard = nextSoft, nextHard
	e.ticks++

	if e.Observer != nil {
		e.Observer(Trace{
			Tick:     e.ticks,
			Pins:     p,
			TAP:      e.tap.State(),
			IR:       e.regs.ir,
			TDO:      e.TDO(),
			Arbiter:  e.arb.Snapshot(),
			Request:  req,
			Response: resp,
			Soft:     soft,
			Hard:     hard,
		})
	}
}

// TDO is the serial output for the current tick.
func (e *Engine) TDO() bool {
	return e.regs.tdo(e.tap.State())
}

// State returns the TAP controller state.
func (e *Engine) State() tap.State { return e.tap.State() }

// IR returns the instruction register.
func (e *Engine) IR() Instruction { return e.regs.ir }

// Arbiter returns a copy of the arbiter registers.
func (e *Engine) Arbiter() dmi.Snapshot { return e.arb.Snapshot() }

// Status is the dmistat value a capture would see now.
func (e *Engine) Status() dmi.Status { return e.arb.Status() }

// Request is what the next Tick drives onto the bus.
func (e *Engine) Request() dmi.Request {
	req := e.arb.Request()
	req.ResetN = e.ResetN()
	return req
}

// ResetN is low exactly while a hard reset pulse is pending for the next
// tick.
func (e *Engine) ResetN() bool { return !e.hard }

// Ticks counts ticks since the last Reset.
func (e *Engine) Ticks() uint64 { return e.ticks }
