package dmi

// Access records one completed transaction on a MemoryBus.
type Access struct {
	Addr  uint8
	Write bool
	Data  uint32
	Err   bool
}

// MemoryBus is a reference register interface backed by a 128-word register
// file. It accepts one request at a time and answers after a configurable
// delay. It can be told to fail particular addresses or to stop answering.
type MemoryBus struct {
	Regs [1 << AddrBits]uint32

	// AcceptDelay holds ReqReady low for this many ticks after each
	// completed transaction and after a reset.
	AcceptDelay int
	// ResponseDelay is the number of ticks between accepting a request and
	// presenting its response.
	ResponseDelay int
	// Stall accepts requests but never responds.
	Stall bool

	// OnAccess is called when a response is handed over.
	OnAccess func(Access)

	errAddrs map[uint8]bool
	pending  *Access
	delay    int
	cooldown int

	reads, writes, errors, resets int
}

// NewMemoryBus returns a bus that accepts and answers with no delay.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{errAddrs: make(map[uint8]bool)}
}

// FailAddr makes every access to addr complete with the error flag set.
// Writes to a failing address are dropped.
func (m *MemoryBus) FailAddr(addr uint8, fail bool) {
	if m.errAddrs == nil {
		m.errAddrs = make(map[uint8]bool)
	}
	if fail {
		m.errAddrs[addr&AddrMask] = true
	} else {
		delete(m.errAddrs, addr&AddrMask)
	}
}

// Pending reports whether a request has been accepted but not answered.
func (m *MemoryBus) Pending() bool { return m.pending != nil }

// Stats reports completed reads, writes, error responses and hard resets seen.
func (m *MemoryBus) Stats() (reads, writes, errors, resets int) {
	return m.reads, m.writes, m.errors, m.resets
}

// Clock implements Bus.
func (m *MemoryBus) Clock(req Request) Response {
	if !req.ResetN {
		m.resets++
		m.pending = nil
		m.delay = 0
		m.cooldown = m.AcceptDelay
		return Response{}
	}

	var resp Response

	// Outputs and bookkeeping depend only on state at the start of the tick.
	pending := m.pending
	ready := pending == nil && m.cooldown == 0
	resp.ReqReady = ready
	if pending != nil && m.delay == 0 && !m.Stall {
		resp.Valid = true
		resp.Data = m.pending.Data
		resp.Err = m.pending.Err
		if req.RespReady {
			m.finish()
		}
	}

	switch {
	case req.Valid && ready:
		m.start(req)
	case pending != nil:
		if m.delay > 0 {
			m.delay--
		}
	case m.cooldown > 0:
		m.cooldown--
	}

	return resp
}

func (m *MemoryBus) start(req Request) {
	addr := req.Addr & AddrMask
	a := &Access{Addr: addr, Write: req.Write, Err: m.errAddrs[addr]}
	switch {
	case req.Write:
		a.Data = req.Data
		if !a.Err {
			m.Regs[addr] = req.Data
		}
	case !a.Err:
		a.Data = m.Regs[addr]
	}
	m.pending = a
	m.delay = m.ResponseDelay
}

func (m *MemoryBus) finish() {
	a := *m.pending
	m.pending = nil
	m.cooldown = m.AcceptDelay
	if a.Write {
		m.writes++
	} else {
		m.reads++
	}
	if a.Err {
		m.errors++
	}
	if m.OnAccess != nil {
		m.OnAccess(a)
	}
}
