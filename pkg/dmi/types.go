package dmi

import "fmt"

// State is the arbiter's position in a DMI transaction.
type State uint8

const (
	StateIdle State = iota
	StateReadWait
	StateRead
	StateReadBusy
	StateWriteWait
	StateWrite
	StateWriteBusy
)

var stateNames = map[State]string{
	StateIdle:      "Idle",
	StateReadWait:  "ReadWait",
	StateRead:      "Read",
	StateReadBusy:  "ReadBusy",
	StateWriteWait: "WriteWait",
	StateWrite:     "Write",
	StateWriteBusy: "WriteBusy",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

// Op is the two-bit operation field shifted into the DMI register.
type Op uint8

const (
	OpNop   Op = 0
	OpRead  Op = 1
	OpWrite Op = 2
	// OpReserved is treated like OpNop.
	OpReserved Op = 3
)

func (o Op) String() string {
	switch o & 3 {
	case OpNop:
		return "nop"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "reserved"
	}
}

// Status is the two-bit field read back from the DMI register and mirrored
// into dtmcs.dmistat.
type Status uint8

const (
	StatusOK     Status = 0
	StatusFailed Status = 2
	StatusBusy   Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusBusy:
		return "busy"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// AddrBits is the width of a DMI address.
const AddrBits = 7

// AddrMask masks a value down to a DMI address.
const AddrMask = 1<<AddrBits - 1

// UpdateEvent is raised by the register bank on the tick the TAP enters
// Update-DR with the DMI register selected. It carries the fields that were
// just shifted in.
type UpdateEvent struct {
	Addr uint8
	Data uint32
	Op   Op
}

// Request is what the arbiter drives towards the external register
// interface on a tick.
type Request struct {
	Valid     bool // one-tick request pulse
	Addr      uint8
	Write     bool
	Data      uint32
	RespReady bool
	ResetN    bool // low while a hard reset is active
}

// Response is what the external register interface drives back on a tick.
type Response struct {
	ReqReady bool // level: a request would be accepted
	Valid    bool
	Data     uint32
	Err      bool
}

// Bus is the external register interface. Clock is called exactly once per
// model tick with the arbiter's outputs for that tick; the returned Response
// is sampled by the arbiter on the same tick.
type Bus interface {
	Clock(req Request) Response
}

// BusFunc adapts a function to the Bus interface.
type BusFunc func(req Request) Response

// Clock implements Bus.
func (f BusFunc) Clock(req Request) Response { return f(req) }

// TimeoutFunc decides whether a transaction stuck in a Wait or Busy state
// should be abandoned. waited counts the ticks spent in state so far.
// Returning true sends the arbiter back to Idle with the sticky error set.
type TimeoutFunc func(state State, waited uint64) bool

// WaitLimit returns a TimeoutFunc that gives up after limit ticks in any
// single waiting state.
func WaitLimit(limit uint64) TimeoutFunc {
	return func(_ State, waited uint64) bool {
		return waited >= limit
	}
}
