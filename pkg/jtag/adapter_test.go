package jtag

import (
	"errors"
	"testing"
)

func TestValidateShiftBuffers(t *testing.T) {
	tests := []struct {
		name     string
		tms, tdi []byte
		bits     int
		want     int
		wantErr  bool
	}{
		{name: "no bits", bits: 0, wantErr: true},
		{name: "negative", bits: -3, wantErr: true},
		{name: "nil buffers", bits: 41, want: 6},
		{name: "ir scan", tms: []byte{0x10}, tdi: []byte{0x11}, bits: 5, want: 1},
		{name: "dmi scan", tms: make([]byte, 6), tdi: make([]byte, 6), bits: 41, want: 6},
		{name: "short tms", tms: []byte{0x00}, bits: 16, wantErr: true},
		{name: "short tdi", tdi: make([]byte, 5), bits: 41, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateShiftBuffers(tt.tms, tt.tdi, tt.bits)
			if tt.wantErr {
				if !errors.Is(err, ErrShiftLength) {
					t.Fatalf("error = %v, want ErrShiftLength", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("required = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdapterInfoString(t *testing.T) {
	tests := []struct {
		info AdapterInfo
		want string
	}{
		{AdapterInfo{Name: "pins"}, "pins"},
		{AdapterInfo{Name: "CMSIS-DAP", Vendor: "OpenTraceLab", Model: "Virtual CMSIS-DAP", SerialNumber: "SIM0001"},
			"CMSIS-DAP (OpenTraceLab Virtual CMSIS-DAP) s/n SIM0001"},
		{AdapterInfo{Name: "probe", Model: "X"}, "probe (X)"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSimAdapterRecordsScans(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "sim"})

	// Select DMI (0x11) then push a 41-bit request.
	if _, err := sim.ShiftIR(nil, PackBits(0x11, 5), 5); err != nil {
		t.Fatalf("ShiftIR: %v", err)
	}
	req := uint64(0x10)<<34 | uint64(0xCAFE)<<2 | 2
	tdo, err := sim.ShiftDR(nil, PackBits(req, 41), 41)
	if err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	if got := UnpackBits(tdo, 41); got != req {
		t.Fatalf("echoed 0x%X, want 0x%X", got, req)
	}

	history := sim.History()
	if len(history) != 2 {
		t.Fatalf("history has %d entries, want 2", len(history))
	}
	if history[0].Region != ShiftRegionIR || history[0].Bits != 5 || UnpackBits(history[0].TDI, 5) != 0x11 {
		t.Fatalf("first op = %+v", history[0])
	}
	if last := sim.LastShift(); last.Region != ShiftRegionDR || last.Bits != 41 {
		t.Fatalf("last op = %+v", last)
	}
	if ShiftRegionIR.String() != "IR" || ShiftRegionDR.String() != "DR" {
		t.Fatalf("region names = %s/%s", ShiftRegionIR, ShiftRegionDR)
	}

	if _, err := sim.ShiftDR(make([]byte, 2), nil, 41); !errors.Is(err, ErrShiftLength) {
		t.Fatalf("short TMS: %v", err)
	}
	if n := len(sim.History()); n != 2 {
		t.Fatalf("rejected shift was recorded, history %d", n)
	}
}

func TestSimAdapterHook(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "sim"})
	sim.OnShift = func(region ShiftRegion, _, _ []byte, bits int) ([]byte, error) {
		if region == ShiftRegionIR {
			return nil, ErrNotImplemented
		}
		return PackBits(0x2071, bits), nil
	}

	if _, err := sim.ShiftIR(nil, nil, 5); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("ShiftIR error = %v", err)
	}
	tdo, err := sim.ShiftDR(nil, nil, 32)
	if err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	if got := UnpackBits(tdo, 32); got != 0x2071 {
		t.Fatalf("dtmcs = 0x%X, want 0x2071", got)
	}
}

func TestSimAdapterResetsAndSpeed(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	if err := sim.SetSpeed(4_000_000); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	if sim.SpeedHz != 4_000_000 {
		t.Fatalf("SpeedHz = %d", sim.SpeedHz)
	}
	if err := sim.SetSpeed(-1); err == nil {
		t.Fatalf("expected error for negative speed")
	}

	for _, hard := range []bool{false, true, true} {
		if err := sim.ResetTAP(hard); err != nil {
			t.Fatalf("ResetTAP(%v): %v", hard, err)
		}
	}
	if soft, hard := sim.ResetCounts(); soft != 3 || hard != 2 {
		t.Fatalf("ResetCounts = %d/%d, want 3/2", soft, hard)
	}
}
