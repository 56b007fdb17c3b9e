package jtag

import (
	"errors"
	"fmt"
	"strings"
)

// AdapterInfo describes the probe driving the DTM's JTAG pins.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	SupportsSRST bool
	SupportsTRST bool
	Notes        string
}

// String formats the identifying fields for a one-line banner.
func (i AdapterInfo) String() string {
	var parts []string
	for _, s := range []string{i.Vendor, i.Model} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	out := i.Name
	if len(parts) > 0 {
		out += " (" + strings.Join(parts, " ") + ")"
	}
	if i.SerialNumber != "" {
		out += " s/n " + i.SerialNumber
	}
	return out
}

// Adapter moves bits through a single TAP, either on real hardware or on the
// in-process DTM model.
//
// ShiftIR and ShiftDR clock bits TCK cycles with the given per-bit TMS and
// TDI (LSB first) and return TDO sampled before each rising edge. The TMS
// pattern alone decides the TAP path; the IR/DR split only tells backends
// which register the caller expects to be in.
//
// ResetTAP(false) walks the TAP to Test-Logic-Reset with TMS. ResetTAP(true)
// pulses TRST where the backend has one.
type Adapter interface {
	Info() (AdapterInfo, error)
	ShiftIR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ShiftDR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ResetTAP(hard bool) error
	SetSpeed(hz int) error
}

var (
	// ErrNotImplemented is returned for capabilities a backend lacks.
	ErrNotImplemented = errors.New("jtag: not implemented")
	// ErrShiftLength is returned when a shift is empty or its buffers cannot
	// hold the requested number of bits.
	ErrShiftLength = errors.New("jtag: bad shift length")
)

// ValidateShiftBuffers checks a shift request and returns the buffer size in
// bytes for bits. An empty TMS or TDI buffer means all zeros.
func ValidateShiftBuffers(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("%w: %d bits", ErrShiftLength, bits)
	}
	required := (bits + 7) / 8
	for _, b := range []struct {
		name string
		buf  []byte
	}{{"tms", tms}, {"tdi", tdi}} {
		if len(b.buf) > 0 && len(b.buf) < required {
			return 0, fmt.Errorf("%w: %s has %d bytes, need %d", ErrShiftLength, b.name, len(b.buf), required)
		}
	}
	return required, nil
}
