package jtag

import (
	"fmt"
	"sync"
)

// ShiftRegion identifies whether a shift operation targets the instruction or
// data register.
type ShiftRegion uint8

const (
	ShiftRegionIR ShiftRegion = iota
	ShiftRegionDR
)

func (r ShiftRegion) String() string {
	if r == ShiftRegionIR {
		return "IR"
	}
	return "DR"
}

// ShiftHook lets a test script the TDO a SimAdapter returns.
type ShiftHook func(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error)

// ShiftOp is one recorded shift request.
type ShiftOp struct {
	Region ShiftRegion
	TMS    []byte
	TDI    []byte
	Bits   int
}

// SimAdapter is an in-memory adapter for tests. It records every request
// and answers with OnShift, or echoes TDI when no hook is set.
type SimAdapter struct {
	InfoData AdapterInfo
	SpeedHz  int

	OnShift ShiftHook

	mu        sync.Mutex
	history   []ShiftOp
	resets    int
	hardReset int
}

var _ Adapter = (*SimAdapter)(nil)

// NewSimAdapter constructs a simulator configured with the provided AdapterInfo.
func NewSimAdapter(info AdapterInfo) *SimAdapter {
	return &SimAdapter{InfoData: info}
}

// LastShift returns a copy of the most recent shift request.
func (s *SimAdapter) LastShift() ShiftOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return ShiftOp{}
	}
	return s.history[len(s.history)-1]
}

// History returns every shift request in order.
func (s *SimAdapter) History() []ShiftOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ShiftOp(nil), s.history...)
}

// ResetCounts reports how many resets have been requested (soft as total,
// hardReset as subset).
func (s *SimAdapter) ResetCounts() (soft, hard int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets, s.hardReset
}

func (s *SimAdapter) Info() (AdapterInfo, error) {
	return s.InfoData, nil
}

func (s *SimAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionIR, tms, tdi, bits)
}

func (s *SimAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionDR, tms, tdi, bits)
}

func (s *SimAdapter) ResetTAP(hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	if hard {
		s.hardReset++
	}
	return nil
}

func (s *SimAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	s.mu.Lock()
	s.SpeedHz = hz
	s.mu.Unlock()
	return nil
}

func (s *SimAdapter) shift(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error) {
	required, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.history = append(s.history, ShiftOp{
		Region: region,
		TMS:    append([]byte(nil), tms...),
		TDI:    append([]byte(nil), tdi...),
		Bits:   bits,
	})
	hook := s.OnShift
	s.mu.Unlock()

	if hook != nil {
		return hook(region, tms, tdi, bits)
	}

	tdo := make([]byte, required)
	copy(tdo, tdi)
	return tdo, nil
}
