package dmi

import (
	"github.com/OpenTraceLab/OpenTraceDTM/internal/logger"
)

// Arbiter turns DMI register updates into request/response transactions on
// the external register interface and keeps the sticky error flag.
//
// There is no timeout unless Timeout is set: a bus that never answers keeps
// the arbiter in a Wait or Busy state until a hard reset.
type Arbiter struct {
	// Timeout is consulted every tick spent waiting. Nil disables it.
	Timeout TimeoutFunc

	state  State
	sticky bool
	addr   uint8
	wdata  uint32
	rdata  uint32
	waited uint64
}

// Snapshot is a copy of the arbiter registers.
type Snapshot struct {
	State     State
	Sticky    bool
	Addr      uint8
	WriteData uint32
	ReadData  uint32
}

// State returns the current arbiter state.
func (a *Arbiter) State() State { return a.state }

// Sticky reports the sticky error flag.
func (a *Arbiter) Sticky() bool { return a.sticky }

// Addr returns the latched address.
func (a *Arbiter) Addr() uint8 { return a.addr }

// WriteData returns the latched write data.
func (a *Arbiter) WriteData() uint32 { return a.wdata }

// ReadData returns the data latched from the last read response.
func (a *Arbiter) ReadData() uint32 { return a.rdata }

// Snapshot copies the registers.
func (a *Arbiter) Snapshot() Snapshot {
	return Snapshot{
		State:     a.state,
		Sticky:    a.sticky,
		Addr:      a.addr,
		WriteData: a.wdata,
		ReadData:  a.rdata,
	}
}

// Busy reports whether a transaction is in flight.
func (a *Arbiter) Busy() bool { return a.state != StateIdle }

// Status is the value presented in the DMI op field and dtmcs.dmistat.
func (a *Arbiter) Status() Status {
	switch {
	case a.Busy():
		return StatusBusy
	case a.sticky:
		return StatusFailed
	default:
		return StatusOK
	}
}

// ReqValid is high for the single tick a request is offered.
func (a *Arbiter) ReqValid() bool {
	return a.state == StateRead || a.state == StateWrite
}

// ReqWrite is the request operation bit: 0 read, 1 write.
func (a *Arbiter) ReqWrite() bool {
	return a.state == StateWrite || a.state == StateWriteBusy
}

// RespReady is high while a response is awaited.
func (a *Arbiter) RespReady() bool {
	return a.state == StateReadBusy || a.state == StateWriteBusy
}

// Request assembles the outputs for this tick. ResetN is owned by the
// caller and left false.
func (a *Arbiter) Request() Request {
	return Request{
		Valid:     a.ReqValid(),
		Addr:      a.addr,
		Write:     a.ReqWrite(),
		Data:      a.wdata,
		RespReady: a.RespReady(),
	}
}

// Step evaluates one tick. ev is non-nil only on the tick the DMI register
// was updated. soft and hard are the one-tick reset pulses decoded from
// dtmcs.
func (a *Arbiter) Step(ev *UpdateEvent, resp Response, soft, hard bool) {
	if hard {
		if a.state != StateIdle {
			logger.Logf("dmi", "hard reset abandons %s", a.state)
		}
		a.state = StateIdle
		a.sticky = false
		a.waited = 0
		return
	}

	prev := a.state
	switch a.state {
	case StateIdle:
		if ev != nil {
			a.accept(*ev)
		}
	case StateReadWait:
		if resp.ReqReady {
			a.state = StateRead
		}
	case StateWriteWait:
		if resp.ReqReady {
			a.state = StateWrite
		}
	case StateRead:
		a.state = StateReadBusy
	case StateWrite:
		a.state = StateWriteBusy
	case StateReadBusy:
		if resp.Valid {
			a.rdata = resp.Data
			a.complete(resp.Err)
		}
	case StateWriteBusy:
		if resp.Valid {
			a.complete(resp.Err)
		}
	}

	if a.state == prev && a.waiting() {
		a.waited++
		if a.Timeout != nil && a.Timeout(a.state, a.waited) {
			logger.Logf("dmi", "timeout in %s after %d ticks", a.state, a.waited)
			a.state = StateIdle
			a.sticky = true
			a.waited = 0
		}
	} else {
		a.waited = 0
	}

	if soft && a.sticky {
		logger.Log("dmi", "sticky error cleared")
		a.sticky = false
	}
}

func (a *Arbiter) accept(ev UpdateEvent) {
	switch ev.Op {
	case OpRead:
		a.state = StateReadWait
	case OpWrite:
		a.state = StateWriteWait
	default:
		return
	}
	a.addr = ev.Addr & AddrMask
	a.wdata = ev.Data
}

func (a *Arbiter) complete(err bool) {
	if err && !a.sticky {
		logger.Logf("dmi", "error response at 0x%02x", a.addr)
	}
	a.sticky = a.sticky || err
	a.state = StateIdle
}

func (a *Arbiter) waiting() bool {
	switch a.state {
	case StateReadWait, StateWriteWait, StateReadBusy, StateWriteBusy:
		return true
	}
	return false
}

// Reset returns the arbiter to its power-on state.
func (a *Arbiter) Reset() {
	timeout := a.Timeout
	*a = Arbiter{Timeout: timeout}
}
