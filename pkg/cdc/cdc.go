// Package cdc brings the externally clocked JTAG lines into the model's tick
// domain.
//
// Each line runs through a short delay chain. Levels become visible two ticks
// after they are first sampled, and a TCK rising edge is flagged for exactly
// one tick provided TCK holds each level for at least one tick. Faster edges
// may be missed or merged; callers bit-banging the model must respect that.
package cdc

// Depths of the per-line delay chains.
const (
	ResetDepth = 2
	TCKDepth   = 3
	DataDepth  = 2
)

// Latency is the number of ticks between a level being sampled and the
// synchronized view reflecting it.
const Latency = 2

// Lines is a one-tick sample of the external pins.
type Lines struct {
	Reset bool // test reset asserted
	TCK   bool
	TMS   bool
	TDI   bool
}

// Synced is the view of the lines from inside the tick domain.
type Synced struct {
	Reset   bool
	TCKRise bool
	TMS     bool
	TDI     bool
}

// Synchronizer owns the delay chains. The zero value is ready to use and
// equivalent to all lines having been low forever.
type Synchronizer struct {
	rst [ResetDepth]bool
	tck [TCKDepth]bool
	tms [DataDepth]bool
	tdi [DataDepth]bool
}

// Sample returns the synchronized view for this tick, computed from the chain
// contents before in is shifted in, and then shifts in.
func (s *Synchronizer) Sample(in Lines) Synced {
	out := s.Peek()

	s.rst = [ResetDepth]bool{in.Reset, s.rst[0]}
	s.tck = [TCKDepth]bool{in.TCK, s.tck[0], s.tck[1]}
	s.tms = [DataDepth]bool{in.TMS, s.tms[0]}
	s.tdi = [DataDepth]bool{in.TDI, s.tdi[0]}

	return out
}

// Peek returns the view Sample would report this tick without advancing.
func (s *Synchronizer) Peek() Synced {
	return Synced{
		Reset:   s.rst[ResetDepth-1],
		TCKRise: s.tck[1] && !s.tck[2],
		TMS:     s.tms[DataDepth-1],
		TDI:     s.tdi[DataDepth-1],
	}
}

// Reset clears every chain.
func (s *Synchronizer) Reset() {
	*s = Synchronizer{}
}
